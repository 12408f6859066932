package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-verify/pkg/account"
	"github.com/tendant/simple-verify/pkg/auth"
	"github.com/tendant/simple-verify/pkg/notification"
	"github.com/tendant/simple-verify/pkg/verification"
)

const testSecret = "handler-test-secret-at-least-32-bytes"

type testServer struct {
	router   *chi.Mux
	service  *verification.Service
	repo     *verification.InMemoryRepository
	accounts *account.InMemoryRepository
	mock     *notification.MockNotifier
	tokens   *auth.TokenIssuer
}

func newTestServer(t *testing.T, maxResend int, opts ...Option) *testServer {
	t.Helper()

	repo := verification.NewInMemoryRepository()
	accounts := account.NewInMemoryRepository()
	mock := &notification.MockNotifier{}
	nm, err := notification.NewNotificationManagerWithOptions(
		notification.WithNotifier(notification.EmailSystem, mock),
		notification.WithDefaultTemplates(),
	)
	require.NoError(t, err)

	issuer := verification.NewIssuer(repo)
	svc := verification.NewService(
		repo,
		issuer,
		verification.NewVerifier(repo),
		verification.NewLockManager(repo),
		verification.NewThrottle(issuer, maxResend),
		accounts,
		nm,
		verification.WithAuthorizeURL("https://example.com/verify"),
	)

	tokens := auth.NewTokenIssuer(testSecret, "simple-verify", time.Hour)
	opts = append([]Option{WithRedirectURL("https://example.com/home")}, opts...)
	h := NewHandler(svc, opts...)

	r := chi.NewRouter()
	r.Use(auth.Verifier(jwtauth.New("HS256", []byte(testSecret), nil)))
	h.Routes(r)

	return &testServer{router: r, service: svc, repo: repo, accounts: accounts, mock: mock, tokens: tokens}
}

func (s *testServer) register(t *testing.T, username string, roles ...string) *account.Account {
	t.Helper()
	acct, err := s.accounts.CreateAccount(context.Background(), account.Account{
		Username: username,
		Email:    username + "@example.com",
		Roles:    roles,
	})
	require.NoError(t, err)
	require.NoError(t, s.service.Register(context.Background(), acct.ID))
	return acct
}

func (s *testServer) lastToken(t *testing.T) string {
	t.Helper()
	sent := s.mock.Sent()
	require.NotEmpty(t, sent)
	link, err := url.Parse(sent[len(sent)-1].Data["Link"])
	require.NoError(t, err)
	return link.Query().Get("token")
}

func (s *testServer) bearer(t *testing.T, acct *account.Account) string {
	t.Helper()
	token, _, err := s.tokens.IssueAccessToken(auth.Subject{AccountID: acct.ID, Username: acct.Username, Roles: acct.Roles})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestVerify_LinkFlow(t *testing.T) {
	s := newTestServer(t, 5)
	acct := s.register(t, "alice")
	token := s.lastToken(t)

	// link click moves the token into a cookie
	req := httptest.NewRequest(http.MethodGet, "/verify?account_id="+acct.ID.String()+"&token="+token, nil)
	rec := s.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/verify?account_id="+acct.ID.String(), rec.Header().Get("Location"))

	cookie := findCookie(rec, "verify_token")
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	// the redirect target consumes the cookie
	req = httptest.NewRequest(http.MethodGet, "/verify?account_id="+acct.ID.String(), nil)
	req.AddCookie(cookie)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[VerifyResponse](t, rec)
	assert.Equal(t, CodeVerified, resp.Code)
	assert.Equal(t, "https://example.com/home", resp.RedirectURL)

	cleared := findCookie(rec, "verify_token")
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Nil(t, findCookie(rec, auth.ACCESS_TOKEN_NAME))

	needs, err := s.service.NeedsValidation(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestVerify_AutoLogin(t *testing.T) {
	s := newTestServer(t, 5)
	acct := s.register(t, "bob")

	h := NewHandler(s.service,
		WithRedirectURL("https://example.com/home"),
		WithAutoLogin(s.accounts, s.tokens, auth.NewCookieSetter(true, false)),
	)
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/verify?account_id="+acct.ID.String(), nil)
	req.AddCookie(&http.Cookie{Name: "verify_token", Value: s.lastToken(t)})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	access := findCookie(rec, auth.ACCESS_TOKEN_NAME)
	require.NotNil(t, access)
	assert.NotEmpty(t, access.Value)
}

func TestVerify_Rejections(t *testing.T) {
	s := newTestServer(t, 5)
	acct := s.register(t, "carol")
	legacy, err := s.accounts.CreateAccount(context.Background(), account.Account{Username: "legacy", Email: "legacy@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		cookie string
		status int
		code   string
	}{
		{"missing account id", "/verify", "", http.StatusBadRequest, CodeInvalidRequest},
		{"malformed account id", "/verify?account_id=nope", "", http.StatusBadRequest, CodeInvalidRequest},
		{"account without lock", "/verify?account_id=" + legacy.ID.String(), "", http.StatusBadRequest, CodeInvalidRequest},
		{"no token and no cookie", "/verify?account_id=" + acct.ID.String(), "", http.StatusBadRequest, CodeInvalidRequest},
		{"malformed token", "/verify?account_id=" + acct.ID.String() + "&token=xyz", "", http.StatusBadRequest, CodeInvalidToken},
		{"wrong token", "/verify?account_id=" + acct.ID.String(), strings.Repeat("a", 64), http.StatusBadRequest, CodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "verify_token", Value: tt.cookie})
			}
			rec := s.do(req)
			assert.Equal(t, tt.status, rec.Code)
			resp := decode[VerifyResponse](t, rec)
			assert.Equal(t, StatusError, resp.Status)
			assert.Equal(t, tt.code, resp.Code)
		})
	}

	needs, err := s.service.NeedsValidation(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestVerify_AwaitingNotice(t *testing.T) {
	s := newTestServer(t, 5)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/verify?awaiting-verification=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CodeAwaitingVerification, decode[VerifyResponse](t, rec).Code)
}

func TestResend_Throttled(t *testing.T) {
	s := newTestServer(t, 2)
	acct := s.register(t, "dave")

	send := func() *httptest.ResponseRecorder {
		body := strings.NewReader(`{"account_login":"dave"}`)
		req := httptest.NewRequest(http.MethodPost, "/resend", body)
		req.Header.Set("Content-Type", "application/json")
		return s.do(req)
	}

	for i := 0; i < 2; i++ {
		rec := send()
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[ResendResponse](t, rec)
		assert.Equal(t, "success", resp.Status)
		assert.Equal(t, verification.CodeVerifyLinkSent, resp.Code)
	}

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, verification.CodeMaxResendAttemptsReached, decode[ResendResponse](t, rec).Code)

	// an admin caller is not throttled
	admin, err := s.accounts.CreateAccount(context.Background(), account.Account{Username: "root", Roles: []string{"admin"}})
	require.NoError(t, err)
	form := url.Values{"account_id": {acct.ID.String()}}
	req := httptest.NewRequest(http.MethodPost, "/resend", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.bearer(t, admin))
	rec = s.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	status, err := s.service.Status(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.ResendAttempts)
}

func TestResend_Errors(t *testing.T) {
	s := newTestServer(t, 5)
	acct := s.register(t, "erin")

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/resend", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return s.do(req)
	}

	rec := post(`{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, verification.CodeInvalidRequest, decode[ResendResponse](t, rec).Code)

	rec = post(`{"account_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(`{"account_login":"nobody"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, verification.CodeInvalidRequest, decode[ResendResponse](t, rec).Code)

	rec = post(`{bad json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, s.service.Unlock(context.Background(), acct.ID))
	rec = post(`{"account_id":"` + acct.ID.String() + `"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, verification.CodeUserAlreadyVerified, decode[ResendResponse](t, rec).Code)
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, 5)
	acct := s.register(t, "frank")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer "+s.bearer(t, acct))
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[StatusResponse](t, rec)
	assert.Equal(t, acct.ID.String(), resp.AccountID)
	assert.True(t, resp.Required)
	assert.Equal(t, "locked", resp.State)
	assert.Equal(t, 5, resp.ResendRemaining)
	assert.NotNil(t, resp.IssuedAt)
	assert.Nil(t, resp.VerifiedAt)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, 5)
	acct := s.register(t, "grace")
	user, err := s.accounts.CreateAccount(context.Background(), account.Account{Username: "user"})
	require.NoError(t, err)
	admin, err := s.accounts.CreateAccount(context.Background(), account.Account{Username: "root", Roles: []string{"admin"}})
	require.NoError(t, err)

	call := func(method, target string, as *account.Account) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		if as != nil {
			req.Header.Set("Authorization", "Bearer "+s.bearer(t, as))
		}
		return s.do(req)
	}

	base := "/admin/accounts/" + acct.ID.String()
	assert.Equal(t, http.StatusUnauthorized, call(http.MethodGet, base+"/verification", nil).Code)
	assert.Equal(t, http.StatusForbidden, call(http.MethodGet, base+"/verification", user).Code)

	rec := call(http.MethodGet, "/admin/verifications", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]StatusResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, acct.ID.String(), list[0].AccountID)

	rec = call(http.MethodGet, "/admin/verifications?state=bogus", admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(http.MethodPost, base+"/resend", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, s.mock.Sent(), 2)

	rec = call(http.MethodPost, base+"/unlock", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[StatusResponse](t, rec)
	assert.Equal(t, "unlocked", resp.State)
	assert.NotNil(t, resp.VerifiedAt)

	rec = call(http.MethodPost, base+"/unlock", admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_VERIFIED", decode[ErrorResponse](t, rec).Code)

	rec = call(http.MethodPost, "/admin/accounts/"+uuid.NewString()+"/unlock", admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "VERIFICATION_NOT_REQUIRED", decode[ErrorResponse](t, rec).Code)

	rec = call(http.MethodGet, "/admin/accounts/nope/verification", admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
