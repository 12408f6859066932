package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/tendant/simple-verify/pkg/errors"
)

// LockManager reports the lock state of accounts and gates authentication
type LockManager struct {
	repo       Repository
	resendPath string
	now        func() time.Time
}

// LockManagerOption configures a LockManager
type LockManagerOption func(*LockManager)

// WithResendPath sets the path advertised in the resend prompt of CheckLogin
func WithResendPath(path string) LockManagerOption {
	return func(m *LockManager) {
		m.resendPath = path
	}
}

// NewLockManager creates a new LockManager
func NewLockManager(repo Repository, opts ...LockManagerOption) *LockManager {
	m := &LockManager{
		repo:       repo,
		resendPath: "/resend",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the lock state of the account, StateNone when there is no record
func (m *LockManager) State(ctx context.Context, accountID uuid.UUID) (LockState, error) {
	record, err := m.repo.GetRecord(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return StateNone, nil
		}
		return "", fmt.Errorf("failed to load verification record: %w", err)
	}
	return record.LockState, nil
}

// NeedsValidation reports whether the account is locked
func (m *LockManager) NeedsValidation(ctx context.Context, accountID uuid.UUID) (bool, error) {
	state, err := m.State(ctx, accountID)
	if err != nil {
		return false, err
	}
	return state == StateLocked, nil
}

// CheckLogin rejects authentication of a locked account. The returned error
// has code EMAIL_NOT_VERIFIED, wraps ErrEmailNotVerified and tells the client
// how to request a new link.
func (m *LockManager) CheckLogin(ctx context.Context, accountID uuid.UUID, accountLogin string) error {
	locked, err := m.NeedsValidation(ctx, accountID)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}

	slog.Info("Login rejected for unverified account", "account_id", accountID)
	return apperrors.Wrap(ErrEmailNotVerified, apperrors.ErrCodeEmailNotVerified,
		"please verify your email address before logging in").
		WithDetail("resend", map[string]any{
			"method":        "POST",
			"path":          m.resendPath,
			"account_login": accountLogin,
		})
}

// ForceUnlock unlocks a locked account without a credential
func (m *LockManager) ForceUnlock(ctx context.Context, accountID uuid.UUID) error {
	_, err := m.repo.Unlock(ctx, UnlockParams{
		AccountID: accountID,
		At:        m.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrVerificationNotRequired
		}
		return err
	}

	slog.Info("Account unlocked by administrator", "account_id", accountID)
	return nil
}
