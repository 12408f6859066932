package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.PersistenceType)
	assert.Equal(t, 5, cfg.Verification.MaxResendAttempts)
	assert.Equal(t, "sha256", cfg.Verification.HashMethod)
	assert.Equal(t, "verify_token", cfg.Verification.CookieName)
	assert.Equal(t, 120*time.Second, cfg.Verification.CookieTTL)
	assert.False(t, cfg.Verification.AutoLogin)
	assert.Equal(t, []string{"admin"}, cfg.JWT.AdminRoles)
	assert.Equal(t, "smtp", cfg.Email.System)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PERSISTENCE_TYPE", "file")
	t.Setenv("DATA_DIR", "/tmp/verify")
	t.Setenv("VERIFY_MAX_RESEND_ATTEMPTS", "15")
	t.Setenv("VERIFY_HASH_METHOD", "sha3-256")
	t.Setenv("VERIFY_AUTO_LOGIN", "true")
	t.Setenv("ADMIN_ROLES", "admin,superadmin")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "15m")
	t.Setenv("INVITATION_CODES", "SUP-1:support,ADM-1:admin")
	t.Setenv("RATE_LIMIT_TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.PersistenceType)
	assert.Equal(t, "/tmp/verify", cfg.DataDir)
	assert.Equal(t, 15, cfg.Verification.MaxResendAttempts)
	assert.Equal(t, "sha3-256", cfg.Verification.HashMethod)
	assert.True(t, cfg.Verification.AutoLogin)
	assert.Equal(t, []string{"admin", "superadmin"}, cfg.JWT.AdminRoles)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenExpiry)
	assert.Equal(t, map[string]string{"SUP-1": "support", "ADM-1": "admin"}, cfg.Signup.InvitationCodes)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimit.TrustedProxies)
	assert.Equal(t, "accounts", cfg.Mongo.AccountsCollection)
}

func TestLoad_RateLimitDisabledSkipsChecks(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_TRUSTED_PROXIES", "nonsense")

	_, err := Load()
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"resend attempts too high", map[string]string{"VERIFY_MAX_RESEND_ATTEMPTS": "16"}, "VERIFY_MAX_RESEND_ATTEMPTS"},
		{"resend attempts zero", map[string]string{"VERIFY_MAX_RESEND_ATTEMPTS": "0"}, "VERIFY_MAX_RESEND_ATTEMPTS"},
		{"unknown hash method", map[string]string{"VERIFY_HASH_METHOD": "md5"}, "VERIFY_HASH_METHOD"},
		{"unknown persistence", map[string]string{"PERSISTENCE_TYPE": "redis"}, "PERSISTENCE_TYPE"},
		{"short jwt secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"relative authorize url", map[string]string{"VERIFY_AUTHORIZE_URL": "/verify"}, "VERIFY_AUTHORIZE_URL"},
		{"ses without region", map[string]string{"EMAIL_SYSTEM": "ses"}, "SES_REGION"},
		{"smtp user without password", map[string]string{"EMAIL_USERNAME": "mailer"}, "EMAIL_PASSWORD"},
		{"rate limit capacity zero", map[string]string{"RATE_LIMIT_CAPACITY": "0"}, "RATE_LIMIT_CAPACITY"},
		{"negative refill rate", map[string]string{"RATE_LIMIT_REFILL_RATE": "-1"}, "RATE_LIMIT_REFILL_RATE"},
		{"bad trusted proxy", map[string]string{"RATE_LIMIT_TRUSTED_PROXIES": "10.0.0.0/99"}, "RATE_LIMIT_TRUSTED_PROXIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := CollectErrors(
		RequireNonEmpty("A", ""),
		nil,
		RequireInRange("B", 20, 1, 15),
	)
	require.Len(t, errs, 2)
	assert.Equal(t, "configuration validation failed:\n  - A: is required\n  - B: must be between 1 and 15, got 20", errs.Error())
	assert.Nil(t, Validate(func() ValidationErrors { return nil }))
}

func TestDatabaseConfig_ToDatabaseURL(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Database: "verify", User: "u", Password: "p@ss"}
	assert.Equal(t, "postgres://u:p%40ss@db:5433/verify?sslmode=disable", d.ToDatabaseURL())
}
