package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/jonwraymond/authcore/identity"
	"github.com/jonwraymond/authcore/observe"
	"github.com/jonwraymond/authcore/xsrf"
)

// DelegationHeader carries the serialized sealed delegation token.
const DelegationHeader = "X-Delegation-Token-V1"

// XSRFHeader carries the anti-forgery token.
const XSRFHeader = "X-XSRF-Token"

// XSRFParam is the request parameter checked when the header is absent.
const XSRFParam = "xsrf_token"

// xsrfEnforceOn lists the HTTP verbs that mutate state.
var xsrfEnforceOn = map[string]bool{
	http.MethodDelete: true,
	http.MethodPost:   true,
	http.MethodPut:    true,
}

// TokenChecker validates a bearer delegation token presented on a request
// and returns the effective identity it conveys.
type TokenChecker interface {
	Check(ctx context.Context, token string, peer identity.Identity) (identity.Identity, error)
}

// Dispatcher runs the fixed per-request sequence: configure, security
// headers, authenticate, bot IP fallback, IP whitelist check, delegation
// check, XSRF check, handler dispatch. The sequence is linear with
// early-exit; no step is ever re-entered, and the first failure is terminal.
type Dispatcher struct {
	// Chain is the ordered authentication method chain. Required.
	Chain *Chain

	// Whitelist is the IP restriction source. Nil disables IP policy and
	// the bots fallback.
	Whitelist IPWhitelist

	// Delegation validates delegation tokens. Nil rejects any request
	// carrying one.
	Delegation TokenChecker

	// XSRF issues and verifies anti-forgery tokens. Required when any
	// route is served to browsers.
	XSRF *xsrf.Generator

	// Configure, if set, loads auth configuration before the first request
	// is served. It runs once; its error is sticky.
	Configure func(ctx context.Context) error

	// UseBotsWhitelist enables the legacy anonymous-to-bot promotion.
	UseBotsWhitelist bool

	// FrameOptions sets the X-Frame-Options response header. Empty
	// disables the header (APIs are not subject to clickjacking).
	FrameOptions string

	// Logger and Metrics are optional observability sinks.
	Logger  observe.Logger
	Metrics observe.Metrics

	configureOnce sync.Once
	configureErr  error
}

// Wrap turns a route into an http.Handler that performs the full dispatch
// sequence before invoking the route's handler.
func (d *Dispatcher) Wrap(route *Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		status, method := d.dispatch(sw, r, route)
		if status == 0 {
			// The handler wrote its own response.
			status = sw.status
			if status == 0 {
				status = http.StatusOK
			}
		}
		if d.Metrics != nil {
			d.Metrics.RecordRequest(r.Context(), method, status, time.Since(start))
		}
	})
}

// statusWriter captures the first status written so request metrics carry
// the real terminal status.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// dispatch runs the state machine. It returns the terminal HTTP status and
// the auth method name for metrics; a 0 status means the handler wrote its
// own response.
func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request, route *Route) (int, string) {
	ctx := r.Context()

	// Configure: immutable auth configuration, loaded once.
	d.configureOnce.Do(func() {
		if d.Configure != nil {
			d.configureErr = d.Configure(ctx)
		}
	})
	if d.configureErr != nil {
		d.logError(ctx, "auth configuration failed", d.configureErr)
		WriteError(w, 500, "internal error")
		return 500, ""
	}

	// SecurityHeaders: fixed response headers, non-failing.
	d.securityHeaders(w)

	// Authenticate: first method to claim the request wins.
	peer, method, err := d.Chain.Authenticate(ctx, r)
	methodName := ""
	if method != nil {
		methodName = method.Name()
	}
	if err != nil {
		// A dependency outage during authentication is a server failure,
		// not a credential problem.
		if errors.Is(err, ErrTransient) {
			d.logError(ctx, "transient failure during authentication", err,
				observe.Field{Key: "method", Value: methodName})
			WriteError(w, 500, err.Error())
			return 500, methodName
		}
		d.logWarn(ctx, "authentication error", err,
			observe.Field{Key: "method", Value: methodName})
		WriteError(w, 401, err.Error())
		return 401, methodName
	}

	ip := peerIP(r)

	// BotIPFallback: anonymous callers from the bots whitelist become the
	// fixed bot identity, then get normal IP enforcement under it.
	if d.UseBotsWhitelist && d.Whitelist != nil && peer.IsAnonymous() {
		inBots, err := d.Whitelist.Contains(ctx, BotsWhitelist, ip)
		if err != nil {
			terr := &TransientError{Op: "bots whitelist lookup", Cause: err}
			d.logError(ctx, "bots whitelist lookup failed", terr)
			WriteError(w, 500, terr.Error())
			return 500, methodName
		}
		if inBots {
			peer = IPWhitelistedBot
		}
	}

	// IPWhitelistCheck.
	if err := VerifyIPWhitelisted(ctx, d.Whitelist, peer, ip); err != nil {
		return d.authFailure(ctx, w, r, peer, err), methodName
	}

	// DelegationCheck: deduce the effective identity.
	current := peer
	if token := r.Header.Get(DelegationHeader); token != "" {
		if d.Delegation == nil {
			err := &AuthorizationError{Reason: "delegation is not supported here"}
			return d.authFailure(ctx, w, r, peer, err), methodName
		}
		current, err = d.Delegation.Check(ctx, token, peer)
		if err != nil {
			return d.authFailure(ctx, w, r, peer, err), methodName
		}
	}

	// XSRFCheck: required iff the auth method is cookie/IP based and the
	// verb mutates state. Header-based credentials are never attached by a
	// browser on its own, so they are exempt.
	headersAuth := method != nil && method.HeaderBased()
	needXSRF := !headersAuth && xsrfEnforceOn[r.Method]
	token := r.Header.Get(XSRFHeader)
	if token == "" {
		token = r.URL.Query().Get(XSRFParam)
	}
	if needXSRF && token == "" {
		err := &AuthorizationError{Subject: current.String(), Reason: "XSRF token is missing"}
		return d.authFailure(ctx, w, r, peer, err), methodName
	}

	// A present token is always verified, even when not required: some
	// handlers use its payload as signed session state. When not required,
	// a broken token degrades to trusting the underlying auth.
	payload := map[string]string{}
	if token != "" && d.XSRF != nil {
		payload, err = d.XSRF.Verify(ctx, token, current)
		if err != nil {
			if needXSRF {
				aerr := &AuthorizationError{Subject: current.String(), Reason: "invalid XSRF token", Cause: err}
				return d.authFailure(ctx, w, r, peer, aerr), methodName
			}
			d.logWarn(ctx, "XSRF token is broken, ignoring", err)
			payload = map[string]string{}
		}
	}

	st := &State{
		PeerIdentity:    peer,
		CurrentIdentity: current,
		PeerIP:          ip,
		Method:          methodName,
		XSRFPayload:     payload,
	}

	// HandlerDispatch: authorization predicate, then the business handler.
	ctx = WithState(ctx, st)
	r = r.WithContext(ctx)
	if err := route.authorize(ctx, st); err != nil {
		return d.authFailure(ctx, w, r, peer, err), methodName
	}
	if err := route.handler(w, r, st); err != nil {
		status := ErrorStatus(err)
		if status == 403 {
			return d.authFailure(ctx, w, r, peer, err), methodName
		}
		d.logError(ctx, "handler error", err, observe.Field{Key: "route", Value: route.name})
		WriteError(w, status, err.Error())
		return status, methodName
	}
	return 0, methodName
}

// authFailure renders an authorization-class failure: 403 for denials,
// 500 for transient dependency errors.
func (d *Dispatcher) authFailure(ctx context.Context, w http.ResponseWriter, r *http.Request, peer identity.Identity, err error) int {
	status := ErrorStatus(err)
	if errors.Is(err, ErrTransient) {
		d.logError(ctx, "transient failure during dispatch", err,
			observe.Field{Key: "peer", Value: peer.String()})
		WriteError(w, 500, err.Error())
		return 500
	}
	if status != 403 {
		status = 403
	}
	d.logWarn(ctx, "authorization error", err,
		observe.Field{Key: "peer", Value: peer.String()},
		observe.Field{Key: "ip", Value: r.RemoteAddr})
	// The response body carries the bare reason; the subject is already
	// known to the caller and stays in the log only.
	text := err.Error()
	var aerr *AuthorizationError
	if errors.As(err, &aerr) && aerr.Reason != "" {
		text = aerr.Reason
	}
	WriteError(w, status, text)
	return status
}

func (d *Dispatcher) securityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Security-Policy", "default-src https: 'self'")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	if d.FrameOptions != "" {
		h.Set("X-Frame-Options", d.FrameOptions)
	}
}

func (d *Dispatcher) logWarn(ctx context.Context, msg string, err error, fields ...observe.Field) {
	if d.Logger == nil {
		return
	}
	d.Logger.Warn(ctx, msg, append(fields, observe.Field{Key: "error", Value: err.Error()})...)
}

func (d *Dispatcher) logError(ctx context.Context, msg string, err error, fields ...observe.Field) {
	if d.Logger == nil {
		return
	}
	d.Logger.Error(ctx, msg, append(fields, observe.Field{Key: "error", Value: err.Error()})...)
}

// peerIP extracts the source address, tolerating a bare host with no port.
func peerIP(r *http.Request) netip.Addr {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr
}
