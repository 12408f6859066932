package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Verifier checks presented credentials and unlocks accounts on a match
type Verifier struct {
	repo    Repository
	hashers HasherRegistry
	now     func() time.Time
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithVerifierHashers replaces the built-in hasher registry
func WithVerifierHashers(hashers HasherRegistry) VerifierOption {
	return func(v *Verifier) {
		v.hashers = hashers
	}
}

// WithVerifierClock overrides time.Now, mostly for tests
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a new Verifier
func NewVerifier(repo Repository, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		repo:    repo,
		hashers: NewHasherRegistry(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify unlocks the account when presented matches the stored credential.
//
// It returns ErrInvalidRequest for malformed input (the store is not read),
// ErrVerificationNotRequired when the account has no record,
// ErrAlreadyVerified when it is unlocked, and ErrVerificationFailed on a
// mismatch. A failed verification never changes the record.
func (v *Verifier) Verify(ctx context.Context, accountID uuid.UUID, presented string) error {
	if accountID == uuid.Nil || !ValidateCredentialFormat(presented) {
		return ErrInvalidRequest
	}

	record, err := v.repo.GetRecord(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrVerificationNotRequired
		}
		return fmt.Errorf("failed to load verification record: %w", err)
	}

	if !record.Locked() {
		return ErrAlreadyVerified
	}

	hasher, err := v.hashers.GetHasher(record.HashMethod)
	if err != nil {
		slog.Error("Stored hash method is not supported", "account_id", accountID, "hash_method", record.HashMethod)
		return err
	}

	if record.CredentialHash == "" || !hasher.Matches(presented, record.CredentialHash) {
		slog.Warn("Verification credential mismatch", "account_id", accountID)
		return ErrVerificationFailed
	}

	_, err = v.repo.Unlock(ctx, UnlockParams{
		AccountID:    accountID,
		ExpectedHash: record.CredentialHash,
		At:           v.now().UTC(),
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrCredentialChanged):
		// reissued between read and unlock; the presented credential is stale
		return ErrVerificationFailed
	case errors.Is(err, ErrAlreadyVerified):
		return ErrAlreadyVerified
	default:
		return fmt.Errorf("failed to unlock account: %w", err)
	}

	slog.Info("Account verified", "account_id", accountID)
	return nil
}
