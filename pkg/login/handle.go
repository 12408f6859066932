// Package login authenticates accounts and refuses those whose email is not
// yet verified.
package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-verify/pkg/account"
	"github.com/tendant/simple-verify/pkg/auth"
	apperrors "github.com/tendant/simple-verify/pkg/errors"
)

const STATUS_SUCCESS = "success"

// Authenticator checks a username/password pair
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*account.Account, error)
}

// LoginGate rejects accounts that may not log in yet
type LoginGate interface {
	CheckLogin(ctx context.Context, accountID uuid.UUID, accountLogin string) error
}

// AccessTokenIssuer signs access tokens
type AccessTokenIssuer interface {
	IssueAccessToken(subject auth.Subject) (string, time.Time, error)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type LoginResponse struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type Handle struct {
	accounts Authenticator
	gate     LoginGate
	tokens   AccessTokenIssuer
	cookies  auth.CookieSetter
}

type Option func(*Handle)

func NewHandle(accounts Authenticator, tokens AccessTokenIssuer, opts ...Option) *Handle {
	h := &Handle{
		accounts: accounts,
		tokens:   tokens,
		cookies:  auth.NewCookieSetter(true, true),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithLoginGate sets the check run after the password is accepted
func WithLoginGate(gate LoginGate) Option {
	return func(h *Handle) {
		h.gate = gate
	}
}

func WithCookieSetter(cookies auth.CookieSetter) Option {
	return func(h *Handle) {
		h.cookies = cookies
	}
}

func (h *Handle) Routes(r chi.Router) {
	r.Post("/login", h.PostLogin)
	r.Post("/logout", h.PostLogout)
}

// PostLogin handles POST /login
func (h *Handle) PostLogin(w http.ResponseWriter, r *http.Request) {
	data := LoginRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidRequest, "Unable to parse request body"))
		return
	}
	if data.Username == "" || data.Password == "" {
		writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidRequest, "Username and password are required"))
		return
	}

	acct, err := h.accounts.Authenticate(r.Context(), data.Username, data.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			slog.Info("Login failed", "username", data.Username)
			writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidCredentials, "Invalid username or password"))
			return
		}
		slog.Error("Failed to authenticate", "username", data.Username, "error", err)
		writeError(w, r, apperrors.InternalWrap(err, "Login failed"))
		return
	}

	if h.gate != nil {
		if err := h.gate.CheckLogin(r.Context(), acct.ID, data.Username); err != nil {
			var appErr *apperrors.Error
			if errors.As(err, &appErr) {
				writeError(w, r, appErr)
				return
			}
			slog.Error("Failed to check verification state", "account_id", acct.ID, "error", err)
			writeError(w, r, apperrors.InternalWrap(err, "Login failed"))
			return
		}
	}

	token, expiresAt, err := h.tokens.IssueAccessToken(auth.Subject{
		AccountID:   acct.ID,
		Username:    acct.Username,
		DisplayName: acct.Name,
		Roles:       acct.Roles,
	})
	if err != nil {
		slog.Error("Failed to issue access token", "account_id", acct.ID, "error", err)
		writeError(w, r, apperrors.InternalWrap(err, "Login failed"))
		return
	}
	h.cookies.SetCookie(w, auth.ACCESS_TOKEN_NAME, token, expiresAt)

	slog.Info("Login successful", "account_id", acct.ID)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, LoginResponse{
		Status:      STATUS_SUCCESS,
		Message:     "Login successful",
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User: User{
			ID:       acct.ID.String(),
			Username: acct.Username,
			Name:     acct.Name,
			Email:    acct.Email,
			Roles:    acct.Roles,
		},
	})
}

// PostLogout clears the access token cookie
func (h *Handle) PostLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearCookie(w, auth.ACCESS_TOKEN_NAME)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": STATUS_SUCCESS, "message": "Logged out"})
}

func writeError(w http.ResponseWriter, r *http.Request, err *apperrors.Error) {
	render.Status(r, err.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{Code: string(err.Code), Message: err.Message, Details: err.Details})
}
