package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-verify/pkg/account"
	"github.com/tendant/simple-verify/pkg/notification"
)

// AccountLookup resolves accounts from the account store
type AccountLookup interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*account.Account, error)
}

// Sender delivers notifications. *notification.NotificationManager implements it.
type Sender interface {
	Send(noticeType notification.NoticeType, data notification.NotificationData) error
}

// ResendRequest identifies the account by ID or by login name
type ResendRequest struct {
	AccountID    uuid.UUID
	AccountLogin string
	Privileged   bool
}

// Service composes the verification components with the account store and
// the notification sender.
type Service struct {
	issuer    *Issuer
	verifier  *Verifier
	locks     *LockManager
	throttle  *Throttle
	accounts  AccountLookup
	sender    Sender
	repo      Repository
	authorize string
	siteName  string
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithAuthorizeURL sets the page verification links point to
func WithAuthorizeURL(u string) ServiceOption {
	return func(s *Service) {
		s.authorize = u
	}
}

// WithSiteName sets the site name shown in verification emails
func WithSiteName(name string) ServiceOption {
	return func(s *Service) {
		s.siteName = name
	}
}

// NewService creates a new verification Service. sender may be nil, in which
// case links are not emailed.
func NewService(
	repo Repository,
	issuer *Issuer,
	verifier *Verifier,
	locks *LockManager,
	throttle *Throttle,
	accounts AccountLookup,
	sender Sender,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		repo:      repo,
		issuer:    issuer,
		verifier:  verifier,
		locks:     locks,
		throttle:  throttle,
		accounts:  accounts,
		sender:    sender,
		authorize: "http://localhost:4000/verify",
		siteName:  "simple-verify",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register locks a newly created account and emails its verification link.
func (s *Service) Register(ctx context.Context, accountID uuid.UUID) error {
	return s.SendVerificationLink(ctx, accountID)
}

// SendVerificationLink issues a fresh credential (re-locking the account) and
// emails the link. It bypasses the resend throttle.
func (s *Service) SendVerificationLink(ctx context.Context, accountID uuid.UUID) error {
	acct, err := s.lookup(ctx, accountID, "")
	if err != nil {
		return err
	}

	cred, err := s.issuer.Issue(ctx, acct.ID)
	if err != nil {
		return err
	}

	s.sendLink(acct, cred)
	return nil
}

// Verify checks the presented token for the account
func (s *Service) Verify(ctx context.Context, accountID uuid.UUID, token string) error {
	return s.verifier.Verify(ctx, accountID, token)
}

// Resend runs the resend throttle and emails the new link on success. The
// returned error is nil whenever the result carries a user-facing outcome;
// it is only set for unexpected failures.
func (s *Service) Resend(ctx context.Context, req ResendRequest) (ResendResult, error) {
	acct, err := s.lookup(ctx, req.AccountID, req.AccountLogin)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrAccountNotFound) {
			return resendFailure(ErrInvalidRequest), nil
		}
		return ResendResult{}, err
	}

	result, err := s.throttle.TryResend(ctx, acct.ID, req.Privileged)
	if err != nil {
		if errors.Is(err, ErrAlreadyVerified) || errors.Is(err, ErrResendLimitReached) || errors.Is(err, ErrInvalidRequest) {
			return result, nil
		}
		return result, err
	}

	s.sendLink(acct, *result.Credential)
	return result, nil
}

// Unlock force-unlocks an account
func (s *Service) Unlock(ctx context.Context, accountID uuid.UUID) error {
	return s.locks.ForceUnlock(ctx, accountID)
}

// Status reports the verification status of an account
func (s *Service) Status(ctx context.Context, accountID uuid.UUID) (Status, error) {
	record, err := s.repo.GetRecord(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Status{AccountID: accountID, State: StateNone}, nil
		}
		return Status{}, fmt.Errorf("failed to load verification record: %w", err)
	}
	return s.statusOf(record), nil
}

// List returns the status of every account in state, oldest record first
func (s *Service) List(ctx context.Context, state LockState) ([]Status, error) {
	if state != StateLocked && state != StateUnlocked {
		return nil, ErrInvalidRequest
	}
	records, err := s.repo.FindRecordsByState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification records: %w", err)
	}
	statuses := make([]Status, 0, len(records))
	for _, record := range records {
		statuses = append(statuses, s.statusOf(record))
	}
	return statuses, nil
}

func (s *Service) statusOf(record *VerificationRecord) Status {
	issuedAt := record.IssuedAt
	return Status{
		AccountID:       record.AccountID,
		Required:        record.Locked(),
		State:           record.LockState,
		ResendAttempts:  record.ResendAttempts,
		ResendRemaining: s.throttle.Remaining(record),
		IssuedAt:        &issuedAt,
		VerifiedAt:      record.VerifiedAt,
	}
}

// CheckLogin rejects authentication of locked accounts
func (s *Service) CheckLogin(ctx context.Context, accountID uuid.UUID, accountLogin string) error {
	return s.locks.CheckLogin(ctx, accountID, accountLogin)
}

// NeedsValidation reports whether the account is locked
func (s *Service) NeedsValidation(ctx context.Context, accountID uuid.UUID) (bool, error) {
	return s.locks.NeedsValidation(ctx, accountID)
}

// MaxResendAttempts returns the configured resend cap
func (s *Service) MaxResendAttempts() int {
	return s.throttle.MaxAttempts()
}

// VerificationLink builds the link emailed to the account
func (s *Service) VerificationLink(accountID uuid.UUID, raw string) string {
	q := url.Values{}
	q.Set("account_id", accountID.String())
	q.Set("token", raw)

	sep := "?"
	if strings.Contains(s.authorize, "?") {
		sep = "&"
	}
	return s.authorize + sep + q.Encode()
}

// AwaitingVerificationURL is where newly registered accounts are sent
func (s *Service) AwaitingVerificationURL() string {
	sep := "?"
	if strings.Contains(s.authorize, "?") {
		sep = "&"
	}
	return s.authorize + sep + "awaiting-verification=true"
}

func (s *Service) lookup(ctx context.Context, accountID uuid.UUID, login string) (*account.Account, error) {
	var (
		acct *account.Account
		err  error
	)
	switch {
	case accountID != uuid.Nil:
		acct, err = s.accounts.GetAccount(ctx, accountID)
	case strings.TrimSpace(login) != "":
		acct, err = s.accounts.GetAccountByUsername(ctx, strings.TrimSpace(login))
	default:
		return nil, ErrInvalidRequest
	}
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return acct, nil
}

// sendLink emails the verification link. Delivery failures are logged and
// never undo the issued credential.
func (s *Service) sendLink(acct *account.Account, cred Credential) {
	if s.sender == nil {
		slog.Warn("Notification sender not configured, skipping verification email", "account_id", acct.ID)
		return
	}
	if acct.Email == "" {
		slog.Warn("Account has no email address, skipping verification email", "account_id", acct.ID)
		return
	}

	name := acct.Name
	if name == "" {
		name = acct.Username
	}

	err := s.sender.Send(notification.EmailVerification, notification.NotificationData{
		To: acct.Email,
		Data: map[string]string{
			"Name":     name,
			"Link":     s.VerificationLink(acct.ID, cred.Raw),
			"SiteName": s.siteName,
		},
	})
	if err != nil {
		slog.Error("Failed to send verification email", "account_id", acct.ID, "error", err)
		return
	}
	slog.Info("Verification email sent", "account_id", acct.ID)
}
