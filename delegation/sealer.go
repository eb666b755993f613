package delegation

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultMaxTokenSize bounds the sealed token so it always fits in an HTTP
// header alongside the rest of the request.
const DefaultMaxTokenSize = 8 * 1024

// Sealer turns a subtoken into an opaque signed string safe to hand to
// untrusted bearers.
type Sealer interface {
	// Seal signs and encodes the subtoken. Returns ErrTokenTooLarge when
	// the result exceeds the size limit.
	Seal(sub *Subtoken) (string, error)
}

// Unsealer is the inverse of Sealer: it verifies the signature and decodes
// the embedded subtoken. Expiry is NOT checked here; the verifier owns
// time-based checks so it can apply clock skew policy in one place.
type Unsealer interface {
	Unseal(token string) (*Subtoken, error)
}

// JWTSealer seals subtokens as HMAC-signed JWTs.
type JWTSealer struct {
	// Secret is the HMAC signing key. Required.
	Secret []byte

	// MaxTokenSize overrides DefaultMaxTokenSize when positive.
	MaxTokenSize int
}

type subtokenClaims struct {
	Subtoken *Subtoken `json:"sub_tok"`
	jwt.RegisteredClaims
}

// Seal signs sub with the shared secret.
func (s *JWTSealer) Seal(sub *Subtoken) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("delegation: sealing secret is not configured")
	}
	claims := subtokenClaims{
		Subtoken: sub,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  sub.DelegatedIdentity.String(),
			IssuedAt: jwt.NewNumericDate(sub.CreationTime),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("delegation: sealing subtoken: %w", err)
	}
	if max := s.maxSize(); len(token) > max {
		return "", fmt.Errorf("%w (%d > %d bytes)", ErrTokenTooLarge, len(token), max)
	}
	return token, nil
}

// Unseal verifies the token signature and returns the embedded subtoken.
// Signature and structural failures come back as *BadTokenError.
func (s *JWTSealer) Unseal(token string) (*Subtoken, error) {
	if max := s.maxSize(); len(token) > max {
		return nil, &BadTokenError{Reason: fmt.Sprintf("token exceeds %d bytes", max)}
	}
	claims := &subtokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, &BadTokenError{Reason: "signature verification failed", Cause: err}
	}
	if claims.Subtoken == nil {
		return nil, &BadTokenError{Reason: "token carries no subtoken"}
	}
	return claims.Subtoken, nil
}

var _ Sealer = (*JWTSealer)(nil)
var _ Unsealer = (*JWTSealer)(nil)

func (s *JWTSealer) maxSize() int {
	if s.MaxTokenSize > 0 {
		return s.MaxTokenSize
	}
	return DefaultMaxTokenSize
}
