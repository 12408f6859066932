package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the JWT payload of an access token
type AccessClaims struct {
	jwt.RegisteredClaims
	ExtraClaims ExtraClaims `json:"extra_claims"`
}

// Subject describes whom a token is issued for
type Subject struct {
	AccountID   uuid.UUID
	Username    string
	DisplayName string
	Roles       []string
}

// TokenIssuer signs HS256 access tokens
type TokenIssuer struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a token issuer. The same secret must be given to
// jwtauth.New("HS256", secret, nil) to verify the tokens.
func NewTokenIssuer(secret, issuer string, expiry time.Duration) *TokenIssuer {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
}

// IssueAccessToken returns a signed token and its expiry
func (ti *TokenIssuer) IssueAccessToken(subject Subject) (string, time.Time, error) {
	now := ti.now().UTC()
	expiresAt := now.Add(ti.expiry)

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.AccountID.String(),
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		ExtraClaims: ExtraClaims{
			Username:    subject.Username,
			DisplayName: subject.DisplayName,
			Roles:       subject.Roles,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}
