// Package errors provides structured error handling with error codes for simple-verify.
//
// Handlers convert domain errors into an *Error carrying a code, a
// human-readable message and optional details, and derive the HTTP status
// from the code:
//
//	err := errors.New(errors.ErrCodeEmailNotVerified, "email address not verified").
//		WithDetail("resend", map[string]any{"method": "POST", "path": "/resend"})
//
//	status := err.HTTPStatusCode() // 403
//
// The wrapped error stays reachable through errors.Is / errors.As:
//
//	err := errors.Wrap(verification.ErrResendLimitReached, errors.ErrCodeResendLimitExceeded, "too many resends")
//	stderrors.Is(err, verification.ErrResendLimitReached) // true
package errors
