package verification

import "errors"

var (
	// ErrInvalidRequest is returned for malformed or missing identifiers and credentials
	ErrInvalidRequest = errors.New("invalid verification request")

	// ErrAlreadyVerified is returned when the account is already unlocked
	ErrAlreadyVerified = errors.New("account already verified")

	// ErrVerificationNotRequired is returned when the account has no verification record
	ErrVerificationNotRequired = errors.New("verification not required")

	// ErrVerificationFailed is returned when the presented credential does not match
	ErrVerificationFailed = errors.New("verification failed")

	// ErrResendLimitReached is returned when a non-privileged caller used up its resends
	ErrResendLimitReached = errors.New("maximum resend attempts reached")

	// ErrAccountNotFound is returned when the account store has no such account
	ErrAccountNotFound = errors.New("account not found")

	// ErrRecordNotFound is returned by repositories when no record exists
	ErrRecordNotFound = errors.New("verification record not found")

	// ErrCredentialChanged is returned by Unlock when the stored hash no longer matches
	ErrCredentialChanged = errors.New("credential changed since it was read")

	// ErrEmailNotVerified is returned when a locked account tries to log in
	ErrEmailNotVerified = errors.New("email address not verified")

	// ErrUnknownHashMethod is returned for hash methods without a registered hasher
	ErrUnknownHashMethod = errors.New("unknown hash method")
)

// IsNotRequired reports whether err means the account needs no verification,
// either because it was never locked or because it is already unlocked.
func IsNotRequired(err error) bool {
	return errors.Is(err, ErrVerificationNotRequired) || errors.Is(err, ErrAlreadyVerified)
}
