package verification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// credentialBytes is the entropy of a credential (256 bits)
const credentialBytes = 32

var credentialPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ValidateCredentialFormat reports whether s has the shape of an issued
// credential: 64 lowercase hex characters.
func ValidateCredentialFormat(s string) bool {
	return credentialPattern.MatchString(s)
}

// GenerateCredential creates a random credential hashed with method
func GenerateCredential(hashers HasherRegistry, method HashMethod) (Credential, error) {
	hasher, err := hashers.GetHasher(method)
	if err != nil {
		return Credential{}, err
	}

	b := make([]byte, credentialBytes)
	if _, err := rand.Read(b); err != nil {
		return Credential{}, fmt.Errorf("failed to generate credential: %w", err)
	}
	raw := hex.EncodeToString(b)

	return Credential{
		Raw:        raw,
		Hash:       hasher.Hash(raw),
		HashMethod: method,
	}, nil
}

// Issuer creates credentials and records their hash, locking the account
type Issuer struct {
	repo       Repository
	hashers    HasherRegistry
	hashMethod HashMethod
	now        func() time.Time
}

// IssuerOption configures an Issuer
type IssuerOption func(*Issuer)

// WithHashMethod sets the hash method used for new credentials
func WithHashMethod(method HashMethod) IssuerOption {
	return func(i *Issuer) {
		i.hashMethod = method
	}
}

// WithHasherRegistry replaces the built-in hasher registry
func WithHasherRegistry(hashers HasherRegistry) IssuerOption {
	return func(i *Issuer) {
		i.hashers = hashers
	}
}

// WithIssuerClock overrides time.Now, mostly for tests
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates a new Issuer
func NewIssuer(repo Repository, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		repo:       repo,
		hashers:    NewHasherRegistry(),
		hashMethod: DefaultHashMethod,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue generates a credential, stores its hash and locks the account. Any
// previously issued credential stops being valid. The resend counter is left
// untouched.
func (i *Issuer) Issue(ctx context.Context, accountID uuid.UUID) (Credential, error) {
	cred, err := GenerateCredential(i.hashers, i.hashMethod)
	if err != nil {
		return Credential{}, err
	}

	if _, err := i.repo.Lock(ctx, i.lockParams(accountID, cred)); err != nil {
		slog.Error("Failed to store verification credential", "account_id", accountID, "error", err)
		return Credential{}, fmt.Errorf("failed to store credential: %w", err)
	}

	slog.Info("Verification credential issued", "account_id", accountID, "hash_method", cred.HashMethod)
	return cred, nil
}

// Reissue replaces the credential of a locked account and counts the resend,
// as one atomic step. It fails with ErrResendLimitReached once maxAttempts
// resends have been used.
func (i *Issuer) Reissue(ctx context.Context, accountID uuid.UUID, maxAttempts int) (Credential, *VerificationRecord, error) {
	cred, err := GenerateCredential(i.hashers, i.hashMethod)
	if err != nil {
		return Credential{}, nil, err
	}

	record, err := i.repo.ReissueWithinLimit(ctx, i.lockParams(accountID, cred), maxAttempts)
	if err != nil {
		return Credential{}, nil, err
	}

	slog.Info("Verification credential reissued", "account_id", accountID, "resend_attempts", record.ResendAttempts)
	return cred, record, nil
}

func (i *Issuer) lockParams(accountID uuid.UUID, cred Credential) LockParams {
	return LockParams{
		AccountID:      accountID,
		CredentialHash: cred.Hash,
		HashMethod:     cred.HashMethod,
		IssuedAt:       i.now().UTC(),
	}
}
