// Package config loads and validates the simple-verify configuration.
//
// Settings are read from the environment with cleanenv (struct tags `env` and
// `env-default`); cmd/verifyd loads an optional .env file first.
//
//	cfg, err := config.Load()
//	if err != nil {
//		// err is a ValidationErrors listing every invalid field
//	}
//
// The validators can also be composed directly:
//
//	err := config.Validate(func() config.ValidationErrors {
//		return config.CollectErrors(
//			config.RequireNonEmpty("PG_HOST", host),
//			config.RequireInRange("VERIFY_MAX_RESEND_ATTEMPTS", max, 1, 15),
//		)
//	})
package config
