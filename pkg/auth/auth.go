// Package auth issues access tokens and resolves the authenticated account
// of a request.
package auth

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

const (
	ACCESS_TOKEN_NAME = "access_token"
)

// ExtraClaims are the application claims carried in an access token
type ExtraClaims struct {
	Username    string   `json:"username,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// AuthUser is the account behind an authenticated request
type AuthUser struct {
	AccountId   string `json:"sub,omitempty"`
	AccountUuid uuid.UUID
	ExtraClaims ExtraClaims `json:"extra_claims,omitempty"`
}

func (u AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account", u.AccountId),
		slog.Any("roles", u.ExtraClaims.Roles),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "auth context value " + k.name
}

var (
	AuthUserKey = &contextKey{"AuthUser"}
)

// WithAuthUser returns a copy of ctx carrying user
func WithAuthUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, AuthUserKey, user)
}

// GetAuthUser returns the authenticated user, or nil
func GetAuthUser(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(AuthUserKey).(*AuthUser)
	return user
}

// HasAnyRole checks if the user has any of the given roles
func HasAnyRole(user *AuthUser, roles []string) bool {
	if user == nil {
		return false
	}
	for _, userRole := range user.ExtraClaims.Roles {
		for _, role := range roles {
			if userRole == role {
				return true
			}
		}
	}
	return false
}

// LoadFromMap decodes a claims map into c
func LoadFromMap[T any](m map[string]interface{}, c *T) error {
	data, err := json.Marshal(m)
	if err == nil {
		err = json.Unmarshal(data, c)
	}
	return err
}
