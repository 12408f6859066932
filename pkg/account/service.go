package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterParams describes a new account
type RegisterParams struct {
	Username string
	Email    string
	Name     string
	Password string
	Roles    []string
}

// Service registers and authenticates accounts
type Service struct {
	repo Repository
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates an account with a bcrypt password hash
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Account, error) {
	username := strings.TrimSpace(params.Username)
	email := strings.TrimSpace(params.Email)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidAccount)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidAccount)
	}
	if len(params.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidAccount)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acct, err := s.repo.CreateAccount(ctx, Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		Name:         strings.TrimSpace(params.Name),
		PasswordHash: string(hash),
		Roles:        params.Roles,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if !errors.Is(err, ErrAccountExists) {
			slog.Error("Failed to create account", "username", username, "error", err)
		}
		return nil, err
	}

	slog.Info("Account registered", "account_id", acct.ID, "username", acct.Username)
	return acct, nil
}

// Authenticate checks a username/password pair
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	acct, err := s.repo.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return acct, nil
}

// DeleteAccount removes the account with the given ID
func (s *Service) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		return err
	}
	slog.Info("Account deleted", "account_id", id)
	return nil
}

// GetAccount returns the account with the given ID
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// GetAccountByUsername returns the account with the given username
func (s *Service) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return s.repo.GetAccountByUsername(ctx, username)
}
