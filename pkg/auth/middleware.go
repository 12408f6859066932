package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

// Verifier extracts and verifies the access token from the Authorization
// header or the access token cookie. It never rejects a request by itself.
func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)(next)
	}
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// authUserFromRequest builds the AuthUser from the claims stored by Verifier
func authUserFromRequest(r *http.Request) (*AuthUser, error) {
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return nil, err
	}
	if token == nil || claims == nil {
		return nil, jwtauth.ErrNoTokenFound
	}

	authUser := new(AuthUser)
	if err := LoadFromMap(claims, authUser); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(authUser.AccountId)
	if err != nil {
		return nil, err
	}
	authUser.AccountUuid = id
	return authUser, nil
}

// AuthUserMiddleware requires a valid access token and puts the AuthUser in
// the request context.
func AuthUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authUser, err := authUserFromRequest(r)
		if err != nil {
			slog.Debug("rejecting unauthenticated request", "path", r.URL.Path, "error", err)
			http.Error(w, "missing or invalid JWT", http.StatusUnauthorized)
			return
		}

		slog.Debug("authenticated user", "accountId", authUser.AccountId, "roles", authUser.ExtraClaims.Roles)
		next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), authUser)))
	})
}

// OptionalAuthUserMiddleware attaches the AuthUser when a valid token is
// present and lets anonymous requests through.
func OptionalAuthUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authUser, err := authUserFromRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), authUser)))
	})
}

// RequireRole rejects requests whose AuthUser has none of roles. It must run
// after AuthUserMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser := GetAuthUser(r.Context())
			if authUser == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !HasAnyRole(authUser, roles) {
				slog.Warn("forbidden: missing role", "accountId", authUser.AccountId, "required", roles)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
