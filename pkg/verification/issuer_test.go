package verification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCredentialFormat(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{strings.Repeat("a", 64), true},
		{"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", true},
		{strings.Repeat("A", 64), false},
		{strings.Repeat("a", 63), false},
		{strings.Repeat("a", 65), false},
		{strings.Repeat("a", 63) + "-", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateCredentialFormat(tt.in), tt.in)
	}
}

func TestGenerateCredential(t *testing.T) {
	hashers := NewHasherRegistry()

	cred, err := GenerateCredential(hashers, HashSHA256)
	require.NoError(t, err)
	assert.True(t, ValidateCredentialFormat(cred.Raw))

	sum := sha256.Sum256([]byte(cred.Raw))
	assert.Equal(t, hex.EncodeToString(sum[:]), cred.Hash)

	other, err := GenerateCredential(hashers, HashSHA256)
	require.NoError(t, err)
	assert.NotEqual(t, cred.Raw, other.Raw)

	_, err = GenerateCredential(hashers, "md5")
	assert.ErrorIs(t, err, ErrUnknownHashMethod)
}

func TestHasherRegistry(t *testing.T) {
	hashers := NewHasherRegistry()
	raw := strings.Repeat("5", 64)

	for _, method := range []HashMethod{HashSHA256, HashSHA512, HashSHA3256} {
		t.Run(string(method), func(t *testing.T) {
			h, err := hashers.GetHasher(method)
			require.NoError(t, err)
			digest := h.Hash(raw)
			assert.True(t, h.Matches(raw, digest))
			assert.False(t, h.Matches(strings.Repeat("6", 64), digest))
			assert.False(t, h.Matches(raw, digest[:len(digest)-1]))
		})
	}

	h256, _ := hashers.GetHasher(HashSHA256)
	h3, _ := hashers.GetHasher(HashSHA3256)
	assert.NotEqual(t, h256.Hash(raw), h3.Hash(raw))

	def, err := hashers.GetHasher("")
	require.NoError(t, err)
	assert.Equal(t, h256.Hash(raw), def.Hash(raw))
}

func TestParseHashMethod(t *testing.T) {
	m, err := ParseHashMethod("sha3-256")
	require.NoError(t, err)
	assert.Equal(t, HashSHA3256, m)

	m, err = ParseHashMethod("")
	require.NoError(t, err)
	assert.Equal(t, DefaultHashMethod, m)

	_, err = ParseHashMethod("md5")
	assert.ErrorIs(t, err, ErrUnknownHashMethod)
}

func TestIssuer_Issue(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer := NewIssuer(repo, WithHashMethod(HashSHA512), WithIssuerClock(func() time.Time { return now }))
	id := uuid.New()

	cred, err := issuer.Issue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, HashSHA512, cred.HashMethod)

	record, err := repo.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateLocked, record.LockState)
	assert.Equal(t, cred.Hash, record.CredentialHash)
	assert.Equal(t, HashSHA512, record.HashMethod)
	assert.Equal(t, now, record.IssuedAt)
	assert.Equal(t, 0, record.ResendAttempts)
}

func TestVerifier_OlderHashMethodStillVerifies(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	id := uuid.New()

	cred, err := NewIssuer(repo, WithHashMethod(HashSHA3256)).Issue(ctx, id)
	require.NoError(t, err)

	// the default changed since the credential was issued
	verifier := NewVerifier(repo)
	assert.NoError(t, verifier.Verify(ctx, id, cred.Raw))
}

func TestVerifier_StaleCredentialAfterConcurrentReissue(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	issuer := NewIssuer(repo)
	id := uuid.New()

	cred, err := issuer.Issue(ctx, id)
	require.NoError(t, err)
	record, err := repo.GetRecord(ctx, id)
	require.NoError(t, err)

	_, _, err = issuer.Reissue(ctx, id, 5)
	require.NoError(t, err)

	_, err = repo.Unlock(ctx, UnlockParams{AccountID: id, ExpectedHash: record.CredentialHash, At: time.Now()})
	assert.ErrorIs(t, err, ErrCredentialChanged)
	assert.ErrorIs(t, NewVerifier(repo).Verify(ctx, id, cred.Raw), ErrVerificationFailed)
}

func TestThrottle_ClampsMaxAttempts(t *testing.T) {
	repo := NewInMemoryRepository()
	issuer := NewIssuer(repo)

	assert.Equal(t, MinResendAttempts, NewThrottle(issuer, 0).MaxAttempts())
	assert.Equal(t, MaxResendAttempts, NewThrottle(issuer, 99).MaxAttempts())
	assert.Equal(t, 7, NewThrottle(issuer, 7).MaxAttempts())
}

func TestThrottle_InvalidAccount(t *testing.T) {
	repo := NewInMemoryRepository()
	throttle := NewThrottle(NewIssuer(repo), 5)

	result, err := throttle.TryResend(context.Background(), uuid.Nil, false)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, CodeInvalidRequest, result.Code)
	assert.Equal(t, ResendError, result.Status)
}
