package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const (
	// DefaultMaxResendAttempts is the resend cap for non-privileged callers
	DefaultMaxResendAttempts = 5
	// MinResendAttempts and MaxResendAttempts bound the configurable cap
	MinResendAttempts = 1
	MaxResendAttempts = 15
)

// Throttle caps how many times a non-privileged caller can have a new
// credential issued while the account is locked. The cap covers the lifetime
// of the record; it is not a sliding window.
type Throttle struct {
	issuer      *Issuer
	maxAttempts int
}

// NewThrottle creates a Throttle. maxAttempts is clamped to
// [MinResendAttempts, MaxResendAttempts].
func NewThrottle(issuer *Issuer, maxAttempts int) *Throttle {
	if maxAttempts < MinResendAttempts {
		maxAttempts = MinResendAttempts
	}
	if maxAttempts > MaxResendAttempts {
		maxAttempts = MaxResendAttempts
	}
	return &Throttle{
		issuer:      issuer,
		maxAttempts: maxAttempts,
	}
}

// MaxAttempts returns the effective resend cap
func (t *Throttle) MaxAttempts() int {
	return t.maxAttempts
}

// TryResend issues a new credential for the account.
//
// Privileged callers always succeed; the account is re-locked if needed and
// the counter is left alone. Non-privileged callers get ErrAlreadyVerified
// when the account is not locked and ErrResendLimitReached once the cap is
// used up. The returned ResendResult describes the outcome in both cases.
func (t *Throttle) TryResend(ctx context.Context, accountID uuid.UUID, privileged bool) (ResendResult, error) {
	if accountID == uuid.Nil {
		return resendFailure(ErrInvalidRequest), ErrInvalidRequest
	}

	if privileged {
		cred, err := t.issuer.Issue(ctx, accountID)
		if err != nil {
			return ResendResult{Status: ResendError, Code: CodeInvalidRequest, Message: "Unable to send a verification link."}, err
		}
		slog.Info("Privileged verification resend", "account_id", accountID)
		return resendSuccess(cred), nil
	}

	cred, _, err := t.issuer.Reissue(ctx, accountID, t.maxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			err = ErrAlreadyVerified
		case errors.Is(err, ErrAlreadyVerified), errors.Is(err, ErrResendLimitReached):
		default:
			return ResendResult{Status: ResendError, Code: CodeInvalidRequest, Message: "Unable to send a verification link."},
				fmt.Errorf("failed to reissue credential: %w", err)
		}
		if errors.Is(err, ErrResendLimitReached) {
			slog.Warn("Resend limit reached", "account_id", accountID, "limit", t.maxAttempts)
		}
		return resendFailure(err), err
	}

	return resendSuccess(cred), nil
}

// Remaining returns how many non-privileged resends the record has left
func (t *Throttle) Remaining(record *VerificationRecord) int {
	if record == nil || !record.Locked() {
		return 0
	}
	if r := t.maxAttempts - record.ResendAttempts; r > 0 {
		return r
	}
	return 0
}

func resendSuccess(cred Credential) ResendResult {
	return ResendResult{
		Status:     ResendSuccess,
		Code:       CodeVerifyLinkSent,
		Message:    "A new verification link has been sent to your email address.",
		Credential: &cred,
	}
}

func resendFailure(err error) ResendResult {
	result := ResendResult{Status: ResendError}
	switch {
	case errors.Is(err, ErrAlreadyVerified):
		result.Code = CodeUserAlreadyVerified
		result.Message = "This account is already verified."
	case errors.Is(err, ErrResendLimitReached):
		result.Code = CodeMaxResendAttemptsReached
		result.Message = "You have reached the maximum number of resend attempts. Please contact an administrator."
	default:
		result.Code = CodeInvalidRequest
		result.Message = "Invalid request."
	}
	return result
}
