package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apperrors "github.com/tendant/simple-verify/pkg/errors"
	"github.com/tendant/simple-verify/pkg/verification"
)

// toAppError converts verification errors into structured errors
func toAppError(err error) *apperrors.Error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, verification.ErrInvalidRequest):
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidRequest, "Invalid request")
	case errors.Is(err, verification.ErrAccountNotFound):
		return apperrors.Wrap(err, apperrors.ErrCodeAccountNotFound, "Account not found")
	case errors.Is(err, verification.ErrAlreadyVerified):
		return apperrors.Wrap(err, apperrors.ErrCodeAlreadyVerified, "Account is already verified")
	case errors.Is(err, verification.ErrVerificationNotRequired):
		return apperrors.Wrap(err, apperrors.ErrCodeVerificationDisabled, "Account does not require verification")
	case errors.Is(err, verification.ErrVerificationFailed):
		return apperrors.Wrap(err, apperrors.ErrCodeVerificationFailed, "Verification failed")
	case errors.Is(err, verification.ErrResendLimitReached):
		return apperrors.Wrap(err, apperrors.ErrCodeResendLimitExceeded, "Maximum resend attempts reached")
	default:
		return apperrors.InternalWrap(err, "An internal error occurred")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	status := appErr.HTTPStatusCode()
	if status >= http.StatusInternalServerError {
		slog.Error("Verification request failed", "path", r.URL.Path, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// resendStatus maps a resend result code to an HTTP status
func resendStatus(code string) int {
	switch code {
	case verification.CodeVerifyLinkSent:
		return http.StatusOK
	case verification.CodeUserAlreadyVerified:
		return http.StatusConflict
	case verification.CodeMaxResendAttemptsReached:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}
