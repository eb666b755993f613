// Package xsrf implements short-lived signed anti-forgery tokens.
//
// A token binds an identity and an optional payload map under an HMAC
// signature. It is issued per handler session and verified per request;
// nothing is persisted. Verification fails if the signature is invalid, the
// token expired, or the bound identity differs from the current identity.
package xsrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/authcore/identity"
)

// DefaultExpiry is how long issued tokens stay valid.
const DefaultExpiry = 4 * time.Hour

// ErrInvalidToken indicates a token that failed verification.
var ErrInvalidToken = errors.New("xsrf: invalid token")

// Generator issues and verifies XSRF tokens with a shared HMAC secret.
type Generator struct {
	// Secret is the HMAC signing key. Required.
	Secret []byte

	// Expiry overrides DefaultExpiry when positive.
	Expiry time.Duration

	// now is overridable in tests.
	now func() time.Time
}

type xsrfClaims struct {
	Payload map[string]string `json:"payload,omitempty"`
	jwt.RegisteredClaims
}

// Generate returns a new token bound to id, embedding payload. The token is
// valid only when verified under the same identity.
func (g *Generator) Generate(_ context.Context, id identity.Identity, payload map[string]string) (string, error) {
	if len(g.Secret) == 0 {
		return "", errors.New("xsrf: signing secret is not configured")
	}
	now := g.timeNow()
	claims := xsrfClaims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry())),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.Secret)
}

// Verify checks the token signature, expiry and identity binding, returning
// the embedded payload.
func (g *Generator) Verify(_ context.Context, token string, id identity.Identity) (map[string]string, error) {
	claims := &xsrfClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(g.timeNow))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject != id.String() {
		return nil, fmt.Errorf("%w: issued for %q", ErrInvalidToken, claims.Subject)
	}
	if claims.Payload == nil {
		return map[string]string{}, nil
	}
	return claims.Payload, nil
}

func (g *Generator) expiry() time.Duration {
	if g.Expiry > 0 {
		return g.Expiry
	}
	return DefaultExpiry
}

func (g *Generator) timeNow() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}
