package auth

import (
	"context"
	"net/netip"

	"github.com/jonwraymond/authcore/identity"
)

// State is the outcome of identity resolution for one request. It is
// constructed once by the Dispatcher after all checks pass and threaded by
// parameter into the business handler; it is never mutated afterwards and
// never stored in a process-wide global.
type State struct {
	// PeerIdentity is who physically made the call, established by
	// transport-level authentication. Used for audit and IP logic.
	PeerIdentity identity.Identity

	// CurrentIdentity is who the call is made as, after applying any valid
	// delegation token. Equal to PeerIdentity when no token was presented.
	CurrentIdentity identity.Identity

	// PeerIP is the source address of the request.
	PeerIP netip.Addr

	// Method is the name of the authentication method that resolved the
	// caller, or "" when the caller defaulted to anonymous.
	Method string

	// XSRFPayload holds the data embedded in a verified XSRF token, if one
	// was presented. Empty map when none was.
	XSRFPayload map[string]string
}

type contextKey int

const stateKey contextKey = iota

// WithState returns a new context with the resolved request state attached.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateKey, st)
}

// StateFromContext retrieves the request state from the context.
// Returns nil if dispatch has not run.
func StateFromContext(ctx context.Context) *State {
	st, _ := ctx.Value(stateKey).(*State)
	return st
}

// CurrentIdentity returns the effective identity from the context, or the
// anonymous identity if dispatch has not run.
func CurrentIdentity(ctx context.Context) identity.Identity {
	if st := StateFromContext(ctx); st != nil {
		return st.CurrentIdentity
	}
	return identity.Anonymous
}

// PeerIdentity returns the transport peer identity from the context, or the
// anonymous identity if dispatch has not run.
func PeerIdentity(ctx context.Context) identity.Identity {
	if st := StateFromContext(ctx); st != nil {
		return st.PeerIdentity
	}
	return identity.Anonymous
}
