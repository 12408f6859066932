package verification

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
)

// HashMethod names the one-way function used to hash a credential. It is
// stored next to the hash so older records keep verifying after the default
// changes.
type HashMethod string

const (
	HashSHA256  HashMethod = "sha256"
	HashSHA512  HashMethod = "sha512"
	HashSHA3256 HashMethod = "sha3-256"

	// DefaultHashMethod is used for newly issued credentials
	DefaultHashMethod = HashSHA256
)

// CredentialHasher hashes credentials and compares them against stored hashes
type CredentialHasher interface {
	// Hash returns the lowercase hex digest of the raw credential
	Hash(raw string) string

	// Matches compares raw against a stored hex digest in constant time
	Matches(raw, storedHash string) bool
}

// HasherRegistry resolves hashers by method
type HasherRegistry interface {
	GetHasher(method HashMethod) (CredentialHasher, error)
}

type digestHasher struct {
	newHash func() hash.Hash
}

func (h digestHasher) Hash(raw string) string {
	d := h.newHash()
	d.Write([]byte(raw))
	return hex.EncodeToString(d.Sum(nil))
}

func (h digestHasher) Matches(raw, storedHash string) bool {
	computed := h.Hash(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// DefaultHasherRegistry knows sha256, sha512 and sha3-256
type DefaultHasherRegistry struct {
	hashers map[HashMethod]CredentialHasher
}

// NewHasherRegistry returns a registry with the built-in hash methods
func NewHasherRegistry() *DefaultHasherRegistry {
	return &DefaultHasherRegistry{
		hashers: map[HashMethod]CredentialHasher{
			HashSHA256:  digestHasher{newHash: sha256.New},
			HashSHA512:  digestHasher{newHash: sha512.New},
			HashSHA3256: digestHasher{newHash: sha3.New256},
		},
	}
}

// GetHasher implements HasherRegistry.GetHasher
func (r *DefaultHasherRegistry) GetHasher(method HashMethod) (CredentialHasher, error) {
	if method == "" {
		method = DefaultHashMethod
	}
	h, ok := r.hashers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHashMethod, method)
	}
	return h, nil
}

// Register adds or replaces the hasher for a method
func (r *DefaultHasherRegistry) Register(method HashMethod, hasher CredentialHasher) {
	r.hashers[method] = hasher
}

// ParseHashMethod validates a configured hash method name
func ParseHashMethod(s string) (HashMethod, error) {
	switch m := HashMethod(s); m {
	case HashSHA256, HashSHA512, HashSHA3256:
		return m, nil
	case "":
		return DefaultHashMethod, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownHashMethod, s)
	}
}
