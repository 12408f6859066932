// Package signup registers new accounts and puts them behind email
// verification.
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tendant/simple-verify/pkg/account"
)

var (
	ErrRegistrationDisabled  = errors.New("registration is disabled")
	ErrInvalidInvitationCode = errors.New("invalid invitation code")
	// ErrVerificationSetup is returned when the new account could not be locked
	// for verification. The account is removed again.
	ErrVerificationSetup = errors.New("failed to start email verification")
)

// Registrar creates accounts and removes them when registration cannot finish
type Registrar interface {
	Register(ctx context.Context, params account.RegisterParams) (*account.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// VerificationGate locks new accounts until their email is verified
type VerificationGate interface {
	Register(ctx context.Context, accountID uuid.UUID) error
	AwaitingVerificationURL() string
}

// RegisterRequest is a registration as received from a client
type RegisterRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Fullname         string `json:"fullname"`
	Password         string `json:"password"`
	InvitationCode   string `json:"invitation_code,omitempty"`
	SkipVerification bool   `json:"skip_verification,omitempty"`
}

// RegisterResult describes the created account
type RegisterResult struct {
	Account     *account.Account
	Verified    bool
	RedirectURL string
}

// SignupService handles registration business logic
type SignupService struct {
	accounts            Registrar
	gate                VerificationGate
	registrationEnabled bool
	defaultRole         string
	invitationCodes     map[string]string
}

// SignupServiceOption is a functional option for configuring SignupService
type SignupServiceOption func(*SignupService)

// NewSignupService creates a new SignupService
func NewSignupService(accounts Registrar, gate VerificationGate, opts ...SignupServiceOption) *SignupService {
	s := &SignupService{
		accounts:            accounts,
		gate:                gate,
		registrationEnabled: true,
		defaultRole:         "user",
		invitationCodes:     map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithRegistrationEnabled(enabled bool) SignupServiceOption {
	return func(s *SignupService) {
		s.registrationEnabled = enabled
	}
}

func WithDefaultRole(role string) SignupServiceOption {
	return func(s *SignupService) {
		s.defaultRole = role
	}
}

// WithInvitationCodes maps invitation codes to the role they grant
func WithInvitationCodes(codes map[string]string) SignupServiceOption {
	return func(s *SignupService) {
		if codes != nil {
			s.invitationCodes = codes
		}
	}
}

// RoleForInvitationCode returns the role granted by code
func (s *SignupService) RoleForInvitationCode(code string) (string, bool) {
	role, ok := s.invitationCodes[code]
	return role, ok
}

// Register creates the account and, unless skipVerification is set, locks it
// and emails the verification link. The caller decides who may skip.
func (s *SignupService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if !s.registrationEnabled {
		return nil, ErrRegistrationDisabled
	}

	role := s.defaultRole
	if req.InvitationCode != "" {
		assigned, ok := s.RoleForInvitationCode(req.InvitationCode)
		if !ok {
			slog.Warn("Unrecognized invitation code", "username", req.Username)
			return nil, ErrInvalidInvitationCode
		}
		role = assigned
	}

	var roles []string
	if role != "" {
		roles = []string{role}
	}

	acct, err := s.accounts.Register(ctx, account.RegisterParams{
		Username: req.Username,
		Email:    req.Email,
		Name:     req.Fullname,
		Password: req.Password,
		Roles:    roles,
	})
	if err != nil {
		return nil, err
	}

	if req.SkipVerification {
		slog.Info("Account registered without email verification", "account_id", acct.ID)
		return &RegisterResult{Account: acct, Verified: true}, nil
	}

	// An account without a verification record is exempt from the login
	// gate, so it must not outlive a failed lock.
	if err := s.gate.Register(ctx, acct.ID); err != nil {
		slog.Error("Failed to lock new account for verification", "account_id", acct.ID, "error", err)
		if delErr := s.accounts.DeleteAccount(ctx, acct.ID); delErr != nil {
			slog.Error("Failed to remove unverified account", "account_id", acct.ID, "error", delErr)
			return nil, fmt.Errorf("%w: %v (cleanup failed: %v)", ErrVerificationSetup, err, delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrVerificationSetup, err)
	}

	return &RegisterResult{
		Account:     acct,
		RedirectURL: s.gate.AwaitingVerificationURL(),
	}, nil
}
