package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/authcore/identity"
)

// AccessTokenValidator checks a bearer access token against the platform's
// token service (external collaborator) and returns the identity it belongs
// to. Invalid tokens error; the error is surfaced as an authentication
// failure, never as a fall-through.
type AccessTokenValidator interface {
	Validate(ctx context.Context, token string) (identity.Identity, error)
}

// OAuthMethod authenticates bearer access tokens from the Authorization
// header. Highest priority method in the chain.
type OAuthMethod struct {
	// Validator verifies the token. Required.
	Validator AccessTokenValidator
}

// Name returns "oauth".
func (m *OAuthMethod) Name() string { return "oauth" }

// HeaderBased returns true.
func (m *OAuthMethod) HeaderBased() bool { return true }

// Authenticate claims any request with an Authorization header.
func (m *OAuthMethod) Authenticate(ctx context.Context, r *http.Request) (identity.Identity, bool, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return identity.Identity{}, false, nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" || token == header {
		return identity.Identity{}, false, &AuthenticationError{
			Method: m.Name(),
			Reason: "Authorization header is not a bearer token",
		}
	}
	id, err := m.Validator.Validate(ctx, token)
	if err != nil {
		// A token service outage is not the caller's fault.
		if errors.Is(err, ErrTransient) {
			return identity.Identity{}, false, err
		}
		return identity.Identity{}, false, &AuthenticationError{
			Method: m.Name(),
			Reason: "invalid access token",
			Cause:  err,
		}
	}
	return id, true, nil
}

// CookieAuth is the closed set of session-cookie identity providers. Exactly
// two variants exist: the platform session store and the OpenID id-token
// cookie. The variant is selected once at configuration load, never per
// request.
type CookieAuth interface {
	// CurrentUser returns the email of the signed-in user, or "" when the
	// request carries no session. A present-but-invalid session errors.
	CurrentUser(ctx context.Context, r *http.Request) (string, error)

	cookieAuth() // closed interface marker
}

// ErrNoSession is returned by SessionStore lookups for unknown sessions.
var ErrNoSession = errors.New("auth: no such session")

// SessionStore resolves platform session cookies to user emails
// (external collaborator).
type SessionStore interface {
	Lookup(ctx context.Context, sessionID string) (email string, err error)
}

// PlatformCookieAuth resolves the platform's session cookie through a
// session store.
type PlatformCookieAuth struct {
	// Sessions is the backing store. Required.
	Sessions SessionStore

	// CookieName overrides the default "session" cookie.
	CookieName string
}

func (a *PlatformCookieAuth) cookieAuth() {}

// CurrentUser looks up the session cookie.
func (a *PlatformCookieAuth) CurrentUser(ctx context.Context, r *http.Request) (string, error) {
	name := a.CookieName
	if name == "" {
		name = "session"
	}
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", nil
	}
	email, err := a.Sessions.Lookup(ctx, cookie.Value)
	if errors.Is(err, ErrNoSession) {
		return "", nil
	}
	return email, err
}

// OpenIDCookieAuth verifies an OpenID id-token carried in a cookie.
type OpenIDCookieAuth struct {
	// Keys provides verification keys by key id. Required.
	Keys KeyProvider

	// Issuer is the expected iss claim. Optional.
	Issuer string

	// Audience is the expected aud claim. Optional.
	Audience string

	// CookieName overrides the default "oid_session" cookie.
	CookieName string
}

func (a *OpenIDCookieAuth) cookieAuth() {}

// CurrentUser parses and verifies the id-token cookie.
func (a *OpenIDCookieAuth) CurrentUser(ctx context.Context, r *http.Request) (string, error) {
	name := a.CookieName
	if name == "" {
		name = "oid_session"
	}
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", nil
	}

	parsed, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return a.Keys.GetKey(ctx, kid)
	}, jwt.WithValidMethods([]string{"RS256", "HS256"}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("bad id token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("bad id token: unexpected claims format")
	}
	if a.Issuer != "" {
		if iss, _ := claims["iss"].(string); iss != a.Issuer {
			return "", fmt.Errorf("bad id token: issuer %q", iss)
		}
	}
	if a.Audience != "" {
		aud, _ := claims.GetAudience()
		if !containsString(aud, a.Audience) {
			return "", errors.New("bad id token: audience mismatch")
		}
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return "", errors.New("bad id token: no email claim")
	}
	return email, nil
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

// CookieMethod authenticates browser sessions through the configured
// CookieAuth variant. Second priority in the chain.
type CookieMethod struct {
	// Users is the selected cookie provider. Required.
	Users CookieAuth
}

// Name returns "cookie".
func (m *CookieMethod) Name() string { return "cookie" }

// HeaderBased returns false: cookies are attached by the browser, so
// requests authenticated this way need XSRF protection.
func (m *CookieMethod) HeaderBased() bool { return false }

// Authenticate resolves the session to a user identity.
func (m *CookieMethod) Authenticate(ctx context.Context, r *http.Request) (identity.Identity, bool, error) {
	email, err := m.Users.CurrentUser(ctx, r)
	if err != nil {
		// A key or session backend outage is not the caller's fault.
		if errors.Is(err, ErrTransient) {
			return identity.Identity{}, false, err
		}
		return identity.Identity{}, false, &AuthenticationError{
			Method: m.Name(),
			Reason: "invalid session",
			Cause:  err,
		}
	}
	if email == "" {
		return identity.Identity{}, false, nil
	}
	id, err := identity.New(identity.KindUser, email)
	if err != nil {
		return identity.Identity{}, false, &AuthenticationError{
			Method: m.Name(),
			Reason: fmt.Sprintf("unsupported user email %q", email),
			Cause:  err,
		}
	}
	return id, true, nil
}

// DefaultServiceHeader carries the peer service id on calls between platform
// services. The front end strips it from external traffic, so its presence
// is proof the call came from inside.
const DefaultServiceHeader = "X-Inbound-Service-Id"

// ServiceHeaderMethod authenticates service-to-service calls by the inbound
// service header. Lowest priority in the chain.
type ServiceHeaderMethod struct {
	// Header overrides DefaultServiceHeader.
	Header string
}

// Name returns "service".
func (m *ServiceHeaderMethod) Name() string { return "service" }

// HeaderBased returns true.
func (m *ServiceHeaderMethod) HeaderBased() bool { return true }

// Authenticate reads the inbound service header.
func (m *ServiceHeaderMethod) Authenticate(_ context.Context, r *http.Request) (identity.Identity, bool, error) {
	header := m.Header
	if header == "" {
		header = DefaultServiceHeader
	}
	appID := r.Header.Get(header)
	if appID == "" {
		return identity.Identity{}, false, nil
	}
	id, err := identity.New(identity.KindService, appID)
	if err != nil {
		return identity.Identity{}, false, &AuthenticationError{
			Method: m.Name(),
			Reason: fmt.Sprintf("unsupported service id %q", appID),
			Cause:  err,
		}
	}
	return id, true, nil
}

// Ensure methods implement Method.
var (
	_ Method = (*OAuthMethod)(nil)
	_ Method = (*CookieMethod)(nil)
	_ Method = (*ServiceHeaderMethod)(nil)

	_ CookieAuth = (*PlatformCookieAuth)(nil)
	_ CookieAuth = (*OpenIDCookieAuth)(nil)
)
