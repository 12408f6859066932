// Package verification gates newly registered accounts behind an email
// verification step.
//
// An account is locked when it registers, a one-time credential is issued and
// emailed as a link, and the account is unlocked when the link is followed.
// Only the hash of a credential is ever persisted.
//
// # Components
//
//   - Issuer: generates credentials and records their hash (LOCKED)
//   - Verifier: checks a presented credential in constant time
//   - LockManager: reports lock state and gates authentication
//   - Throttle: caps non-privileged resends per lock
//   - Service: composes the above with account lookup and notifications
//
// # Basic Usage
//
//	repo := verification.NewInMemoryRepository()
//	issuer := verification.NewIssuer(repo, verification.WithHashMethod(verification.HashSHA256))
//	verifier := verification.NewVerifier(repo)
//	locks := verification.NewLockManager(repo)
//	throttle := verification.NewThrottle(issuer, 5)
//
//	svc := verification.NewService(
//		repo, issuer, verifier, locks, throttle,
//		accounts, notificationManager,
//		verification.WithAuthorizeURL("https://example.com/verify"),
//	)
//
//	// registration hook
//	if err := svc.Register(ctx, accountID); err != nil { ... }
//
//	// link followed
//	err := svc.Verify(ctx, accountID, token)
//	switch {
//	case err == nil:
//		// unlocked
//	case verification.IsNotRequired(err):
//		// already verified or never locked
//	case errors.Is(err, verification.ErrVerificationFailed):
//		// still locked
//	}
//
// # Persistence
//
// Repositories are available for memory, a JSON file, PostgreSQL and MongoDB.
// NewRepository selects one from a persistence type string. Every repository
// performs the throttled reissue and the unlock as single atomic operations.
package verification
