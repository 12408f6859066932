package signup

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-verify/pkg/account"
	"github.com/tendant/simple-verify/pkg/auth"
	apperrors "github.com/tendant/simple-verify/pkg/errors"
)

// RegisterResponse is returned by POST /register
type RegisterResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	AccountID   string `json:"account_id"`
	Username    string `json:"username"`
	Verified    bool   `json:"verified"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Handle struct {
	signupService *SignupService
	adminRoles    []string
}

type Option func(*Handle)

func NewHandle(signupService *SignupService, opts ...Option) *Handle {
	h := &Handle{
		signupService: signupService,
		adminRoles:    []string{"admin"},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithAdminRoles sets the roles allowed to register accounts without verification
func WithAdminRoles(roles ...string) Option {
	return func(h *Handle) {
		h.adminRoles = roles
	}
}

func (h *Handle) Routes(r chi.Router) {
	r.With(auth.OptionalAuthUserMiddleware).Post("/register", h.RegisterUser)
}

// RegisterUser handles POST /register
func (h *Handle) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var request RegisterRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidRequest, "Please check your registration information and try again"))
		return
	}

	if request.Username == "" || request.Password == "" || request.Email == "" {
		writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidRequest, "Username, password, and email are required"))
		return
	}

	if request.SkipVerification && !auth.HasAnyRole(auth.GetAuthUser(r.Context()), h.adminRoles) {
		writeError(w, r, apperrors.Forbidden("Only administrators can skip email verification"))
		return
	}

	result, err := h.signupService.Register(r.Context(), request)
	if err != nil {
		writeError(w, r, toAppError(err))
		return
	}

	message := "Registration successful. Check your email to verify your account."
	if result.Verified {
		message = "Registration successful."
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, RegisterResponse{
		Status:      "success",
		Message:     message,
		AccountID:   result.Account.ID.String(),
		Username:    result.Account.Username,
		Verified:    result.Verified,
		RedirectURL: result.RedirectURL,
	})
}

func toAppError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, ErrRegistrationDisabled):
		return apperrors.Wrap(err, apperrors.ErrCodeForbidden, "Registration is disabled")
	case errors.Is(err, ErrInvalidInvitationCode):
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidRequest, "Invalid invitation code")
	case errors.Is(err, account.ErrAccountExists):
		return apperrors.Wrap(err, apperrors.ErrCodeAlreadyExists, "Username or email already registered")
	case errors.Is(err, account.ErrInvalidAccount):
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidRequest, err.Error())
	default:
		slog.Error("Registration failed", "error", err)
		return apperrors.InternalWrap(err, "Failed to register user")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err *apperrors.Error) {
	render.Status(r, err.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{Code: string(err.Code), Message: err.Message})
}
