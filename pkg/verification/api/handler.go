package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/tendant/simple-verify/pkg/auth"
	"github.com/tendant/simple-verify/pkg/verification"
)

// AccessTokenIssuer signs access tokens for auto-login after verification
type AccessTokenIssuer interface {
	IssueAccessToken(subject auth.Subject) (string, time.Time, error)
}

// Handler serves the verification endpoints
type Handler struct {
	service     *verification.Service
	redirectURL string
	adminRoles  []string

	cookieName   string
	cookieTTL    time.Duration
	verifyCookie *auth.BaseCookieSetter

	// auto-login, disabled while tokens is nil
	accounts      verification.AccountLookup
	tokens        AccessTokenIssuer
	accessCookies auth.CookieSetter

	now func() time.Time
}

type Option func(*Handler)

// WithRedirectURL sets where verified users are sent
func WithRedirectURL(u string) Option {
	return func(h *Handler) {
		h.redirectURL = u
	}
}

// WithAdminRoles sets the roles that make a caller privileged
func WithAdminRoles(roles ...string) Option {
	return func(h *Handler) {
		h.adminRoles = roles
	}
}

// WithVerifyCookie configures the short-lived cookie that carries the token
// between the link redirect and the verification request
func WithVerifyCookie(name string, ttl time.Duration, secure bool) Option {
	return func(h *Handler) {
		h.cookieName = name
		h.cookieTTL = ttl
		h.verifyCookie = auth.NewCookieSetter(true, secure)
	}
}

// WithAutoLogin signs the account in once its email is verified
func WithAutoLogin(accounts verification.AccountLookup, tokens AccessTokenIssuer, cookies auth.CookieSetter) Option {
	return func(h *Handler) {
		h.accounts = accounts
		h.tokens = tokens
		h.accessCookies = cookies
	}
}

// NewHandler creates a verification API handler
func NewHandler(service *verification.Service, opts ...Option) *Handler {
	h := &Handler{
		service:      service,
		adminRoles:   []string{"admin"},
		cookieName:   "verify_token",
		cookieTTL:    120 * time.Second,
		verifyCookie: auth.NewCookieSetter(true, true),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the endpoints on r. The access token is expected to have
// been parsed upstream by auth.Verifier.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/verify", h.Verify)
	r.With(auth.OptionalAuthUserMiddleware).Post("/resend", h.Resend)
	r.With(auth.AuthUserMiddleware).Get("/status", h.Status)

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthUserMiddleware)
		r.Use(auth.RequireRole(h.adminRoles...))
		r.Get("/verifications", h.List)
		r.Get("/accounts/{id}/verification", h.AdminStatus)
		r.Post("/accounts/{id}/unlock", h.AdminUnlock)
		r.Post("/accounts/{id}/resend", h.AdminResend)
	})
}

// Verify handles GET /verify.
//
// A request carrying the token in its URL is answered with a redirect that
// moves the token into a cookie, so it does not stay in the address bar or
// in referrer headers. The follow-up request consumes the cookie.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("awaiting-verification") == "true" {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, VerifyResponse{
			Status:  StatusSuccess,
			Code:    CodeAwaitingVerification,
			Message: "A verification link has been sent to your email address. Follow it to activate your account.",
		})
		return
	}

	accountID, err := uuid.Parse(q.Get("account_id"))
	if err != nil || accountID == uuid.Nil {
		h.verifyFailed(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid request.")
		return
	}

	needs, err := h.service.NeedsValidation(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !needs {
		h.verifyFailed(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid request.")
		return
	}

	if token := q.Get("token"); token != "" {
		if !verification.ValidateCredentialFormat(token) {
			h.verifyFailed(w, r, http.StatusBadRequest, CodeInvalidToken, "The verification link is invalid.")
			return
		}
		h.verifyCookie.SetCookie(w, h.cookieName, token, h.now().Add(h.cookieTTL))
		location := r.URL.Path + "?" + url.Values{"account_id": {accountID.String()}}.Encode()
		http.Redirect(w, r, location, http.StatusSeeOther)
		return
	}

	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		h.verifyFailed(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid request.")
		return
	}
	h.verifyCookie.ClearCookie(w, h.cookieName)

	err = h.service.Verify(r.Context(), accountID, cookie.Value)
	switch {
	case err == nil:
	case errors.Is(err, verification.ErrVerificationFailed), errors.Is(err, verification.ErrInvalidRequest):
		h.verifyFailed(w, r, http.StatusBadRequest, CodeInvalidToken, "The verification link is invalid.")
		return
	case verification.IsNotRequired(err):
		h.verifyFailed(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid request.")
		return
	default:
		writeError(w, r, err)
		return
	}

	h.autoLogin(w, r, accountID)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, VerifyResponse{
		Status:      StatusSuccess,
		Code:        CodeVerified,
		Message:     "Your email address has been verified.",
		RedirectURL: h.redirectURL,
	})
}

func (h *Handler) verifyFailed(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, VerifyResponse{Status: StatusError, Code: code, Message: message})
}

// autoLogin sets the access token cookie. Failures are logged; the account
// stays verified and the user can log in normally.
func (h *Handler) autoLogin(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	if h.tokens == nil || h.accounts == nil || h.accessCookies == nil {
		return
	}

	acct, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		slog.Error("Auto-login failed to load account", "account_id", accountID, "error", err)
		return
	}

	token, expiresAt, err := h.tokens.IssueAccessToken(auth.Subject{
		AccountID:   acct.ID,
		Username:    acct.Username,
		DisplayName: acct.Name,
		Roles:       acct.Roles,
	})
	if err != nil {
		slog.Error("Auto-login failed to issue access token", "account_id", accountID, "error", err)
		return
	}
	h.accessCookies.SetCookie(w, auth.ACCESS_TOKEN_NAME, token, expiresAt)
	slog.Info("Account signed in after verification", "account_id", accountID)
}

// Resend handles POST /resend
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	req, err := decodeResendRequest(r)
	if err != nil {
		slog.Warn("Failed to decode resend request", "error", err)
		h.writeResend(w, r, verification.ResendResult{
			Status:  verification.ResendError,
			Code:    verification.CodeInvalidRequest,
			Message: "Invalid request.",
		})
		return
	}

	var accountID uuid.UUID
	if req.AccountID != "" {
		accountID, err = uuid.Parse(req.AccountID)
		if err != nil {
			h.writeResend(w, r, verification.ResendResult{
				Status:  verification.ResendError,
				Code:    verification.CodeInvalidRequest,
				Message: "Invalid request.",
			})
			return
		}
	}

	caller := auth.GetAuthUser(r.Context())
	result, err := h.service.Resend(r.Context(), verification.ResendRequest{
		AccountID:    accountID,
		AccountLogin: req.AccountLogin,
		Privileged:   auth.HasAnyRole(caller, h.adminRoles),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeResend(w, r, result)
}

func decodeResendRequest(r *http.Request) (ResendRequest, error) {
	var req ResendRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := render.DecodeJSON(r.Body, &req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.AccountID = strings.TrimSpace(r.Form.Get("account_id"))
	req.AccountLogin = strings.TrimSpace(r.Form.Get("account_login"))
	return req, nil
}

func (h *Handler) writeResend(w http.ResponseWriter, r *http.Request, result verification.ResendResult) {
	var resp ResendResponse
	if err := copier.Copy(&resp, &result); err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, resendStatus(result.Code))
	render.JSON(w, r, resp)
}

// Status handles GET /status for the authenticated caller
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	caller := auth.GetAuthUser(r.Context())
	if caller == nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: "UNAUTHORIZED", Message: "Unauthorized"})
		return
	}
	h.writeStatus(w, r, caller.AccountUuid)
}

// AdminStatus handles GET /admin/accounts/{id}/verification
func (h *Handler) AdminStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	h.writeStatus(w, r, accountID)
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	status, err := h.service.Status(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := toStatusResponse(status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// List handles GET /admin/verifications?state=locked|unlocked
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	state := verification.LockState(r.URL.Query().Get("state"))
	if state == "" {
		state = verification.StateLocked
	}

	statuses, err := h.service.List(r.Context(), state)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]StatusResponse, 0, len(statuses))
	for _, s := range statuses {
		item, err := toStatusResponse(s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp = append(resp, item)
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// AdminUnlock handles POST /admin/accounts/{id}/unlock
func (h *Handler) AdminUnlock(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Unlock(r.Context(), accountID); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeStatus(w, r, accountID)
}

// AdminResend handles POST /admin/accounts/{id}/resend. It is privileged and
// does not count against the resend cap.
func (h *Handler) AdminResend(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.service.Resend(r.Context(), verification.ResendRequest{
		AccountID:  accountID,
		Privileged: true,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeResend(w, r, result)
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || id == uuid.Nil {
		writeError(w, r, verification.ErrInvalidRequest)
		return uuid.Nil, false
	}
	return id, true
}

func toStatusResponse(s verification.Status) (StatusResponse, error) {
	var resp StatusResponse
	if err := copier.Copy(&resp, &s); err != nil {
		return StatusResponse{}, err
	}
	resp.AccountID = s.AccountID.String()
	return resp, nil
}
