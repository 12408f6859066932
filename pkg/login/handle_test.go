package login

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-verify/pkg/account"
	"github.com/tendant/simple-verify/pkg/auth"
	"github.com/tendant/simple-verify/pkg/verification"
)

type loginEnv struct {
	router   *chi.Mux
	accounts *account.Service
	issuer   *verification.Issuer
	verifier *verification.Verifier
}

func newLoginEnv(t *testing.T) *loginEnv {
	t.Helper()
	repo := verification.NewInMemoryRepository()
	accounts := account.NewService(account.NewInMemoryRepository())

	h := NewHandle(accounts,
		auth.NewTokenIssuer("login-test-secret-at-least-32-bytes", "simple-verify", time.Hour),
		WithLoginGate(verification.NewLockManager(repo)),
		WithCookieSetter(auth.NewCookieSetter(true, false)),
	)
	r := chi.NewRouter()
	h.Routes(r)

	return &loginEnv{
		router:   r,
		accounts: accounts,
		issuer:   verification.NewIssuer(repo),
		verifier: verification.NewVerifier(repo),
	}
}

func (e *loginEnv) login(username, password string) *httptest.ResponseRecorder {
	body := `{"username":"` + username + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestPostLogin_LockedThenVerified(t *testing.T) {
	env := newLoginEnv(t)
	ctx := context.Background()

	acct, err := env.accounts.Register(ctx, account.RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	cred, err := env.issuer.Issue(ctx, acct.ID)
	require.NoError(t, err)

	rec := env.login("alice", "password123")
	require.Equal(t, http.StatusForbidden, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "EMAIL_NOT_VERIFIED", errResp.Code)
	resend, ok := errResp.Details["resend"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "POST", resend["method"])
	assert.Equal(t, "/resend", resend["path"])
	assert.Equal(t, "alice", resend["account_login"])

	require.NoError(t, env.verifier.Verify(ctx, acct.ID, cred.Raw))

	rec = env.login("alice", "password123")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, STATUS_SUCCESS, resp.Status)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, acct.ID.String(), resp.User.ID)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.ACCESS_TOKEN_NAME {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, resp.AccessToken, cookie.Value)
}

func TestPostLogin_AccountWithoutRecord(t *testing.T) {
	env := newLoginEnv(t)
	_, err := env.accounts.Register(context.Background(), account.RegisterParams{
		Username: "legacy",
		Email:    "legacy@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, env.login("legacy", "password123").Code)
}

func TestPostLogin_BadCredentials(t *testing.T) {
	env := newLoginEnv(t)
	_, err := env.accounts.Register(context.Background(), account.RegisterParams{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, env.login("bob", "wrong-password").Code)
	assert.Equal(t, http.StatusUnauthorized, env.login("nobody", "password123").Code)
	assert.Equal(t, http.StatusBadRequest, env.login("", "").Code)
}

func TestPostLogout(t *testing.T) {
	env := newLoginEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}
