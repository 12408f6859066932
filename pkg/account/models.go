package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAccountNotFound is returned when no account matches
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when the username or email is already taken
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidAccount is returned when registration input is rejected
	ErrInvalidAccount = errors.New("invalid account")

	// ErrInvalidCredentials is returned when a username/password pair does not match
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// RoleAdmin is the role that makes a caller privileged
const RoleAdmin = "admin"

// Account is a registered account
type Account struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasRole reports whether the account carries role
func (a *Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// clone returns a copy that shares nothing with a
func (a *Account) clone() *Account {
	c := *a
	c.Roles = append([]string(nil), a.Roles...)
	return &c
}
