package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind int

const (
	AccessToken TokenKind = iota
	RefreshToken
)

// Subject is the identity carried inside a session token.
type Subject struct {
	Email   string `json:"email"`
	UserUID string `json:"user_uid"`
}

type Claims struct {
	User    Subject `json:"user"`
	Refresh bool    `json:"refresh"`
	jwt.RegisteredClaims
}

func (c *Claims) Kind() TokenKind {
	if c.Refresh {
		return RefreshToken
	}
	return AccessToken
}

// JTI is the unique token identifier used for revocation tracking.
func (c *Claims) JTI() string {
	return c.ID
}

// RemainingTTL reports how long the token is still valid for. Revocation
// entries use this so they never outlive the token they target.
func (c *Claims) RemainingTTL() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	remaining := time.Until(c.ExpiresAt.Time)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NewToken issues a signed HS256 token embedding the subject, a fresh random
// jti and an absolute expiry of now+ttl.
func NewToken(secret, issuer string, ttl time.Duration, subject Subject, kind TokenKind) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		User:    subject,
		Refresh: kind == RefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.UserUID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// DecodeToken verifies signature and expiry. It returns nil on any failure
// rather than an error; the verifier turns a nil result into its own
// domain error so callers never see parser internals.
func DecodeToken(secret, tokenString string) *Claims {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil
	}
	return claims
}
