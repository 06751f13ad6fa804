// ABOUTME: JWT session tokens issued after a successful login ceremony
// ABOUTME: Uses HS256 signing with configurable secret and lifetime

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session errors
var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("session expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// DefaultLifetime applies when no session duration is configured.
const DefaultLifetime = 24 * time.Hour

// Issuer creates and validates session tokens bound to a username.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
}

// NewIssuer creates a session issuer with the given secret and lifetime.
// A zero lifetime falls back to DefaultLifetime.
func NewIssuer(secret []byte, lifetime time.Duration) *Issuer {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Issuer{secret: secret, lifetime: lifetime}
}

// Issue creates a signed session token for the given username.
func (i *Issuer) Issue(username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(i.lifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates the token and extracts the username from the "sub" claim
func (i *Issuer) Verify(tokenString string) (username string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Lifetime reports the configured session duration.
func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}
