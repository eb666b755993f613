package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonwraymond/authcore/identity"
)

// Handler is a business handler invoked after identity resolution. A
// returned error is classified by ErrorStatus and rendered as a JSON error
// body; in particular an *AuthorizationError raised during handling becomes
// a 403.
type Handler func(w http.ResponseWriter, r *http.Request, st *State) error

// Authorizer decides whether the resolved caller may reach a route's
// handler. It runs after every dispatch check has passed.
type Authorizer func(ctx context.Context, st *State) error

// Route pairs a handler with its authorization predicate. A Route cannot be
// built without one: handlers with no access policy do not exist, they must
// opt out explicitly with Public.
type Route struct {
	name      string
	authorize Authorizer
	handler   Handler
}

// NewRoute builds a route. Both the authorizer and the handler are required.
func NewRoute(name string, authorize Authorizer, handler Handler) (*Route, error) {
	if name == "" {
		return nil, errors.New("auth: route name is required")
	}
	if authorize == nil {
		return nil, fmt.Errorf("auth: route %q has no authorization predicate", name)
	}
	if handler == nil {
		return nil, fmt.Errorf("auth: route %q has no handler", name)
	}
	return &Route{name: name, authorize: authorize, handler: handler}, nil
}

// MustRoute is NewRoute for static route tables. It panics on error.
func MustRoute(name string, authorize Authorizer, handler Handler) *Route {
	route, err := NewRoute(name, authorize, handler)
	if err != nil {
		panic(err)
	}
	return route
}

// Name returns the route name.
func (r *Route) Name() string { return r.name }

// Public allows every caller, including anonymous ones. The explicit opt-out
// from authorization.
func Public() Authorizer {
	return func(context.Context, *State) error { return nil }
}

// RequireNonAnonymous rejects anonymous callers.
func RequireNonAnonymous() Authorizer {
	return func(_ context.Context, st *State) error {
		if st.CurrentIdentity.IsAnonymous() {
			return &AuthorizationError{Reason: "authentication required"}
		}
		return nil
	}
}

// RequireGroup admits only members of the named group.
func RequireGroup(matcher *identity.Matcher, group string) Authorizer {
	descriptor := identity.GroupPrefix + group
	return func(ctx context.Context, st *State) error {
		ok, err := matcher.Matches(ctx, descriptor, st.CurrentIdentity)
		if err != nil {
			return &TransientError{Op: "group lookup", Cause: err}
		}
		if !ok {
			return &AuthorizationError{
				Subject: st.CurrentIdentity.String(),
				Reason:  fmt.Sprintf("not a member of group %q", group),
			}
		}
		return nil
	}
}

// RequireTokenRequestHeader decorates a handler with the handshake check
// used by token-issuing endpoints: the client must set the
// X-XSRF-Token-Request header to prove it is deliberately asking for one.
func RequireTokenRequestHeader(next Handler) Handler {
	return func(w http.ResponseWriter, r *http.Request, st *State) error {
		if r.Header.Get("X-XSRF-Token-Request") == "" {
			return &AuthorizationError{Reason: "missing required XSRF request header"}
		}
		return next(w, r, st)
	}
}
