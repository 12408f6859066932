package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tendant/simple-verify/pkg/account"
	"github.com/tendant/simple-verify/pkg/auth"
	"github.com/tendant/simple-verify/pkg/config"
	"github.com/tendant/simple-verify/pkg/dbmigrate"
	"github.com/tendant/simple-verify/pkg/login"
	"github.com/tendant/simple-verify/pkg/notification"
	"github.com/tendant/simple-verify/pkg/ratelimit"
	"github.com/tendant/simple-verify/pkg/signup"
	"github.com/tendant/simple-verify/pkg/verification"
	verificationapi "github.com/tendant/simple-verify/pkg/verification/api"
)

const accountCacheSize = 1024

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	loadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pool *pgxpool.Pool
	if cfg.PersistenceType == "postgres" {
		pool, err = pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
		if err != nil {
			slog.Error("Failed to connect to database", "host", cfg.Database.Host, "database", cfg.Database.Database, "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if cfg.Database.RunMigrations {
			if err := dbmigrate.Up(pool); err != nil {
				slog.Error("Failed to run migrations", "error", err)
				os.Exit(1)
			}
		}
		slog.Info("Database connected", "database", cfg.Database.Database)
	}

	var mongoDB *mongo.Database
	if cfg.PersistenceType == "mongo" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			slog.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				slog.Warn("Failed to disconnect from MongoDB", "error", err)
			}
		}()
		mongoDB = client.Database(cfg.Mongo.Database)
		slog.Info("MongoDB connected", "database", cfg.Mongo.Database)
	}

	verificationRepo, err := verification.NewRepository(cfg.PersistenceType, verification.RepositoryConfig{
		Pool:            pool,
		DataDir:         cfg.DataDir,
		Mongo:           mongoDB,
		MongoCollection: cfg.Mongo.Collection,
	})
	if err != nil {
		slog.Error("Failed to create verification repository", "error", err)
		os.Exit(1)
	}

	accountStore, err := account.NewRepository(ctx, cfg.PersistenceType, account.RepositoryConfig{
		Pool:            pool,
		DataDir:         cfg.DataDir,
		Mongo:           mongoDB,
		MongoCollection: cfg.Mongo.AccountsCollection,
	})
	if err != nil {
		slog.Error("Failed to create account repository", "error", err)
		os.Exit(1)
	}
	if cfg.PersistenceType == "memory" {
		slog.Warn("Accounts and verification records are kept in memory and lost on restart")
	}
	cachedAccounts, err := account.NewCachedRepository(accountStore, accountCacheSize)
	if err != nil {
		slog.Error("Failed to create account cache", "error", err)
		os.Exit(1)
	}
	accountService := account.NewService(cachedAccounts)

	sender, err := newSender(cfg)
	if err != nil {
		slog.Error("Failed to create notification manager", "error", err)
		os.Exit(1)
	}

	hashMethod, _ := verification.ParseHashMethod(cfg.Verification.HashMethod)
	issuer := verification.NewIssuer(verificationRepo, verification.WithHashMethod(hashMethod))
	locks := verification.NewLockManager(verificationRepo)
	verificationService := verification.NewService(
		verificationRepo,
		issuer,
		verification.NewVerifier(verificationRepo),
		locks,
		verification.NewThrottle(issuer, cfg.Verification.MaxResendAttempts),
		accountService,
		sender,
		verification.WithAuthorizeURL(cfg.Verification.AuthorizeURL),
		verification.WithSiteName(cfg.Verification.SiteName),
	)

	tokenAuth := jwtauth.New("HS256", []byte(cfg.JWT.Secret), nil)
	tokens := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	accessCookies := auth.NewCookieSetter(cfg.JWT.CookieHttpOnly, cfg.JWT.CookieSecure)

	verifyOpts := []verificationapi.Option{
		verificationapi.WithRedirectURL(cfg.Verification.RedirectURL),
		verificationapi.WithAdminRoles(cfg.JWT.AdminRoles...),
		verificationapi.WithVerifyCookie(cfg.Verification.CookieName, cfg.Verification.CookieTTL, cfg.Verification.CookieSecure),
	}
	if cfg.Verification.AutoLogin {
		verifyOpts = append(verifyOpts, verificationapi.WithAutoLogin(accountService, tokens, accessCookies))
	}
	verifyHandle := verificationapi.NewHandler(verificationService, verifyOpts...)

	signupHandle := signup.NewHandle(
		signup.NewSignupService(accountService, verificationService,
			signup.WithRegistrationEnabled(cfg.Signup.Enabled),
			signup.WithDefaultRole(cfg.Signup.DefaultRole),
			signup.WithInvitationCodes(cfg.Signup.InvitationCodes),
		),
		signup.WithAdminRoles(cfg.JWT.AdminRoles...),
	)

	loginHandle := login.NewHandle(accountService, tokens,
		login.WithLoginGate(verificationService),
		login.WithCookieSetter(accessCookies),
	)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Group(func(r chi.Router) {
		r.Use(auth.Verifier(tokenAuth))
		if cfg.RateLimit.Enabled {
			limiter := ratelimit.NewLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate, ratelimit.WithBucketTTL(time.Hour))
			go limiter.RunSweeper(ctx)
			// validated by config.Load
			proxies, _ := ratelimit.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
			r.Use(ratelimit.NewMiddleware(limiter, ratelimit.WithTrustedProxies(proxies)).Handler)
		}

		verifyHandle.Routes(r)
		signupHandle.Routes(r)
		loginHandle.Routes(r)
	})

	slog.Info("Verification service ready",
		"persistence_type", cfg.PersistenceType,
		"email_system", cfg.Email.System,
		"authorize_url", cfg.Verification.AuthorizeURL,
		"max_resend_attempts", verificationService.MaxResendAttempts(),
	)
	server.Run()
}

// newSender builds the notification manager for the configured email system.
// It returns a nil Sender when email is disabled.
func newSender(cfg config.Config) (verification.Sender, error) {
	var opt notification.NotificationManagerOption
	switch cfg.Email.System {
	case "smtp":
		opt = notification.WithSMTP(cfg.Email.ToSMTPConfig())
	case "ses":
		opt = notification.WithSES(cfg.Email.ToSESConfig())
	default:
		slog.Warn("Email delivery disabled, verification links will not be sent")
		return nil, nil
	}

	nm, err := notification.NewNotificationManagerWithOptions(opt, notification.WithDefaultTemplates())
	if err != nil {
		return nil, err
	}
	return nm, nil
}

// loadEnvFile loads .env from the executable's directory or the working directory
func loadEnvFile() {
	envFile := ".env"
	if execPath, err := os.Executable(); err == nil {
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, _ := os.Getwd()
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}
