package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-verify/pkg/notification"
	"github.com/tendant/simple-verify/pkg/ratelimit"
	"github.com/tendant/simple-verify/pkg/verification"
)

// Config is the complete service configuration, read from the environment
type Config struct {
	PersistenceType string `env:"PERSISTENCE_TYPE" env-default:"postgres"`
	DataDir         string `env:"DATA_DIR" env-default:"./data"`

	Database     DatabaseConfig
	Mongo        MongoConfig
	Email        EmailConfig
	JWT          JWTConfig
	Verification VerificationConfig
	Signup       SignupConfig
	RateLimit    RateLimitConfig
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host          string `env:"PG_HOST" env-default:"localhost"`
	Port          uint16 `env:"PG_PORT" env-default:"5432"`
	Database      string `env:"PG_DATABASE" env-default:"verify_db"`
	User          string `env:"PG_USER" env-default:"verify"`
	Password      string `env:"PG_PASSWORD" env-default:"pwd"`
	RunMigrations bool   `env:"PG_RUN_MIGRATIONS" env-default:"true"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// MongoConfig holds MongoDB configuration, used when PERSISTENCE_TYPE=mongo
type MongoConfig struct {
	URI        string `env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database   string `env:"MONGO_DATABASE" env-default:"verify"`
	Collection string `env:"MONGO_COLLECTION" env-default:"verification_records"`

	AccountsCollection string `env:"MONGO_ACCOUNTS_COLLECTION" env-default:"accounts"`
}

// EmailConfig selects and configures the email delivery system
type EmailConfig struct {
	System   string `env:"EMAIL_SYSTEM" env-default:"smtp"`
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME"`
	Password string `env:"EMAIL_PASSWORD"`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`

	SESRegion          string `env:"SES_REGION"`
	SESAccessKeyID     string `env:"SES_ACCESS_KEY_ID"`
	SESSecretAccessKey string `env:"SES_SECRET_ACCESS_KEY"`
}

// ToSMTPConfig converts the config to a notification.SMTPConfig
func (e EmailConfig) ToSMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     e.Host,
		Port:     int(e.Port),
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
		TLS:      e.TLS,
	}
}

// ToSESConfig converts the config to a notification.SESConfig
func (e EmailConfig) ToSESConfig() notification.SESConfig {
	return notification.SESConfig{
		Region:          e.SESRegion,
		AccessKeyID:     e.SESAccessKeyID,
		SecretAccessKey: e.SESSecretAccessKey,
		From:            e.From,
	}
}

// JWTConfig holds access token configuration
type JWTConfig struct {
	Secret            string        `env:"JWT_SECRET" env-default:"very-secure-jwt-secret-change-me"`
	Issuer            string        `env:"JWT_ISSUER" env-default:"simple-verify"`
	AccessTokenExpiry time.Duration `env:"ACCESS_TOKEN_EXPIRY" env-default:"1h"`
	CookieHttpOnly    bool          `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure      bool          `env:"COOKIE_SECURE" env-default:"true"`
	AdminRoles        []string      `env:"ADMIN_ROLES" env-default:"admin" env-separator:","`
}

// VerificationConfig holds the email verification settings
type VerificationConfig struct {
	// AuthorizeURL is the page verification links point to
	AuthorizeURL string `env:"VERIFY_AUTHORIZE_URL" env-default:"http://localhost:4000/verify"`
	// RedirectURL is where a verified user is sent afterwards
	RedirectURL       string        `env:"VERIFY_REDIRECT_URL" env-default:"http://localhost:4000/"`
	AutoLogin         bool          `env:"VERIFY_AUTO_LOGIN" env-default:"false"`
	MaxResendAttempts int           `env:"VERIFY_MAX_RESEND_ATTEMPTS" env-default:"5"`
	HashMethod        string        `env:"VERIFY_HASH_METHOD" env-default:"sha256"`
	CookieName        string        `env:"VERIFY_COOKIE_NAME" env-default:"verify_token"`
	CookieTTL         time.Duration `env:"VERIFY_COOKIE_TTL" env-default:"120s"`
	CookieSecure      bool          `env:"VERIFY_COOKIE_SECURE" env-default:"true"`
	SiteName          string        `env:"SITE_NAME" env-default:"simple-verify"`
}

// SignupConfig controls self-service registration
type SignupConfig struct {
	Enabled     bool   `env:"REGISTRATION_ENABLED" env-default:"true"`
	DefaultRole string `env:"REGISTRATION_DEFAULT_ROLE" env-default:"user"`
	// InvitationCodes maps code to role, e.g. "SUP-L6D4F8:support,ADM-K3P8Q5:admin"
	InvitationCodes map[string]string `env:"INVITATION_CODES" env-separator:","`
}

// RateLimitConfig configures the per-client limiter on public routes
type RateLimitConfig struct {
	Enabled    bool    `env:"RATE_LIMIT_ENABLED" env-default:"true"`
	Capacity   int     `env:"RATE_LIMIT_CAPACITY" env-default:"20"`
	RefillRate float64 `env:"RATE_LIMIT_REFILL_RATE" env-default:"0.5"`
	// TrustedProxies lists the IPs or CIDR ranges allowed to set
	// X-Forwarded-For, e.g. "10.0.0.0/8,127.0.0.1". Empty trusts none.
	TrustedProxies []string `env:"RATE_LIMIT_TRUSTED_PROXIES" env-separator:","`
}

// Load reads the configuration from the environment and validates it
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	return Validate(
		c.validatePersistence,
		c.Email.validate,
		c.JWT.validate,
		c.Verification.validate,
		c.RateLimit.validate,
	)
}

func (c Config) validatePersistence() ValidationErrors {
	errs := CollectErrors(
		RequireOneOf("PERSISTENCE_TYPE", c.PersistenceType, []string{"postgres", "file", "mongo", "memory"}),
	)
	switch c.PersistenceType {
	case "file":
		errs = append(errs, CollectErrors(RequireNonEmpty("DATA_DIR", c.DataDir))...)
	case "mongo":
		errs = append(errs, CollectErrors(
			RequireNonEmpty("MONGO_URI", c.Mongo.URI),
			RequireNonEmpty("MONGO_DATABASE", c.Mongo.Database),
			RequireNonEmpty("MONGO_ACCOUNTS_COLLECTION", c.Mongo.AccountsCollection),
		)...)
	}
	return errs
}

func (e EmailConfig) validate() ValidationErrors {
	errs := CollectErrors(
		RequireOneOf("EMAIL_SYSTEM", e.System, []string{"smtp", "ses", "none"}),
	)
	switch e.System {
	case "smtp":
		errs = append(errs, CollectErrors(
			RequireNonEmpty("EMAIL_HOST", e.Host),
			RequireNonEmpty("EMAIL_FROM", e.From),
			WhenSet(e.Username, func() *ValidationError {
				return RequireNonEmpty("EMAIL_PASSWORD", e.Password)
			}),
		)...)
	case "ses":
		errs = append(errs, CollectErrors(
			RequireNonEmpty("SES_REGION", e.SESRegion),
			RequireNonEmpty("EMAIL_FROM", e.From),
		)...)
	}
	return errs
}

func (j JWTConfig) validate() ValidationErrors {
	return CollectErrors(
		RequireMinLength("JWT_SECRET", j.Secret, 32),
		RequirePositiveDuration("ACCESS_TOKEN_EXPIRY", j.AccessTokenExpiry),
	)
}

func (v VerificationConfig) validate() ValidationErrors {
	return CollectErrors(
		RequireValidURL("VERIFY_AUTHORIZE_URL", v.AuthorizeURL),
		RequireValidURL("VERIFY_REDIRECT_URL", v.RedirectURL),
		RequireInRange("VERIFY_MAX_RESEND_ATTEMPTS", v.MaxResendAttempts,
			verification.MinResendAttempts, verification.MaxResendAttempts),
		RequireParsable("VERIFY_HASH_METHOD", func() error {
			_, err := verification.ParseHashMethod(v.HashMethod)
			return err
		}),
		RequireNonEmpty("VERIFY_COOKIE_NAME", v.CookieName),
		RequirePositiveDuration("VERIFY_COOKIE_TTL", v.CookieTTL),
	)
}

func (r RateLimitConfig) validate() ValidationErrors {
	return CollectErrors(WhenEnabled(r.Enabled,
		RequirePositiveInt("RATE_LIMIT_CAPACITY", r.Capacity),
		RequirePositiveFloat("RATE_LIMIT_REFILL_RATE", r.RefillRate),
		RequireParsable("RATE_LIMIT_TRUSTED_PROXIES", func() error {
			_, err := ratelimit.ParseTrustedProxies(r.TrustedProxies)
			return err
		}),
	)...)
}
