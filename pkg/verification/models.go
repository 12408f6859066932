package verification

import (
	"time"

	"github.com/google/uuid"
)

// LockState is the verification state of an account.
type LockState string

const (
	// StateLocked means the account must verify its email before logging in.
	StateLocked LockState = "locked"
	// StateUnlocked means the account verified (or was unlocked by an administrator).
	StateUnlocked LockState = "unlocked"
	// StateNone is reported for accounts that have no verification record.
	StateNone LockState = "none"
)

// VerificationRecord tracks the verification status of one account.
type VerificationRecord struct {
	AccountID      uuid.UUID  `json:"account_id"`
	CredentialHash string     `json:"credential_hash,omitempty"`
	HashMethod     HashMethod `json:"hash_method,omitempty"`
	LockState      LockState  `json:"lock_state"`
	ResendAttempts int        `json:"resend_attempts"`
	IssuedAt       time.Time  `json:"issued_at"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Locked reports whether the record is in the LOCKED state.
func (r *VerificationRecord) Locked() bool {
	return r.LockState == StateLocked
}

// LockParams describes a credential hash to store while locking an account.
type LockParams struct {
	AccountID      uuid.UUID
	CredentialHash string
	HashMethod     HashMethod
	IssuedAt       time.Time
}

// UnlockParams describes an unlock. An empty ExpectedHash unlocks regardless
// of the stored hash (administrative unlock).
type UnlockParams struct {
	AccountID    uuid.UUID
	ExpectedHash string
	At           time.Time
}

// Credential is a freshly issued verification credential. Raw is only ever
// placed in the outbound link.
type Credential struct {
	Raw        string
	Hash       string
	HashMethod HashMethod
}

// ResendStatus is the outcome class of a resend request.
type ResendStatus string

const (
	ResendSuccess ResendStatus = "success"
	ResendError   ResendStatus = "error"
)

// Resend result codes.
const (
	CodeVerifyLinkSent           = "verify_link_sent"
	CodeInvalidRequest           = "invalid_request"
	CodeUserAlreadyVerified      = "user_already_verified"
	CodeMaxResendAttemptsReached = "max_resend_attempts_reached"
)

// ResendResult is the structured result of a resend attempt.
type ResendResult struct {
	Status     ResendStatus `json:"status"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Credential *Credential  `json:"-"`
}

// Succeeded reports whether a new credential was issued.
func (r ResendResult) Succeeded() bool {
	return r.Status == ResendSuccess
}

// Status summarizes the verification status of an account.
type Status struct {
	AccountID       uuid.UUID
	Required        bool
	State           LockState
	ResendAttempts  int
	ResendRemaining int
	IssuedAt        *time.Time
	VerifiedAt      *time.Time
}
