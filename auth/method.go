package auth

import (
	"context"
	"net/http"

	"github.com/jonwraymond/authcore/identity"
)

// Method examines request credentials and finishes with one of three
// outcomes:
//
//   - (zero, false, nil): the method is not applicable to this request and
//     the next method in the chain should be tried.
//   - (id, true, nil): the method is applicable and request authenticity is
//     confirmed.
//   - (zero, false, err): the method recognized its credential format but
//     the credentials are invalid. The chain aborts; err must be an
//     *AuthenticationError.
//
// Order in the chain defines precedence, not fallback-by-failure: a method
// must never fall through after recognizing a bad credential.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: implementations should honor cancellation/deadlines.
type Method interface {
	// Name returns a unique identifier for this method.
	Name() string

	// HeaderBased reports whether credentials arrive in request headers.
	// A browser never attaches such headers on its own, so header-based
	// methods are exempt from XSRF enforcement.
	HeaderBased() bool

	// Authenticate examines the request.
	Authenticate(ctx context.Context, r *http.Request) (identity.Identity, bool, error)
}

// Chain runs methods in fixed priority order. The first method to claim the
// request wins and is recorded as the request's auth method; a hard failure
// aborts the chain; if every method passes, the caller is anonymous.
type Chain struct {
	// Methods are evaluated left to right.
	Methods []Method
}

// Authenticate runs the chain. The returned Method is nil when no method
// claimed the request and the identity defaulted to anonymous.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) (identity.Identity, Method, error) {
	for _, m := range c.Methods {
		id, ok, err := m.Authenticate(ctx, r)
		if err != nil {
			return identity.Identity{}, m, err
		}
		if ok {
			return id, m, nil
		}
	}
	return identity.Anonymous, nil, nil
}
