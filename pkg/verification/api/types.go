package api

import "time"

// Response status values shared by the verify and resend endpoints
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Verify endpoint codes
const (
	CodeAwaitingVerification = "awaiting_verification"
	CodeVerified             = "verified"
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidToken         = "invalid_token"
)

// VerifyResponse is returned by GET /verify
type VerifyResponse struct {
	Status      string `json:"status"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// ResendRequest is accepted by POST /resend as JSON or form values
type ResendRequest struct {
	AccountID    string `json:"account_id"`
	AccountLogin string `json:"account_login"`
}

// ResendResponse mirrors verification.ResendResult
type ResendResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusResponse is the verification status of one account
type StatusResponse struct {
	AccountID       string     `json:"account_id" copier:"-"`
	Required        bool       `json:"required"`
	State           string     `json:"state"`
	ResendAttempts  int        `json:"resend_attempts"`
	ResendRemaining int        `json:"resend_remaining"`
	IssuedAt        *time.Time `json:"issued_at,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
