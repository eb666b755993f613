package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/authcore/identity"
	"github.com/jonwraymond/authcore/xsrf"
)

type fakeChecker struct {
	delegated identity.Identity
	err       error
	gotToken  string
	gotPeer   identity.Identity
}

func (c *fakeChecker) Check(_ context.Context, token string, peer identity.Identity) (identity.Identity, error) {
	c.gotToken = token
	c.gotPeer = peer
	if c.err != nil {
		return identity.Identity{}, c.err
	}
	return c.delegated, nil
}

// captureMetrics records the last request measurement.
type captureMetrics struct {
	method string
	status int
}

func (m *captureMetrics) RecordRequest(_ context.Context, method string, status int, _ time.Duration) {
	m.method = method
	m.status = status
}

func (m *captureMetrics) RecordMint(context.Context, string, time.Duration) {}

// captureRoute records the state the handler observed.
func captureRoute(t *testing.T) (*Route, **State) {
	t.Helper()
	var seen *State
	route := MustRoute("test", Public(), func(w http.ResponseWriter, _ *http.Request, st *State) error {
		seen = st
		WriteJSON(w, 200, map[string]string{"ok": "yes"})
		return nil
	})
	return route, &seen
}

func errorText(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Text
}

func TestDispatchAnonymous(t *testing.T) {
	d := &Dispatcher{Chain: &Chain{}}
	route, seen := captureRoute(t)

	rec := httptest.NewRecorder()
	d.Wrap(route).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	st := *seen
	if st == nil {
		t.Fatal("handler was not invoked")
	}
	if st.PeerIdentity != identity.Anonymous || st.CurrentIdentity != identity.Anonymous {
		t.Errorf("state identities = %v/%v, want anonymous", st.PeerIdentity, st.CurrentIdentity)
	}
	if st.Method != "" {
		t.Errorf("state method = %q, want empty", st.Method)
	}
}

func TestDispatchSecurityHeaders(t *testing.T) {
	d := &Dispatcher{Chain: &Chain{}, FrameOptions: "DENY"}
	route, _ := captureRoute(t)

	rec := httptest.NewRecorder()
	d.Wrap(route).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	h := rec.Header()
	if h.Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy header missing")
	}
	if h.Get("Strict-Transport-Security") == "" {
		t.Error("Strict-Transport-Security header missing")
	}
	if got := h.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}

	rec = httptest.NewRecorder()
	(&Dispatcher{Chain: &Chain{}}).Wrap(route).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("X-Frame-Options") != "" {
		t.Error("X-Frame-Options set with no FrameOptions configured")
	}
}

func TestDispatchAuthenticationFailure(t *testing.T) {
	method := &fakeMethod{name: "oauth", err: &AuthenticationError{Method: "oauth", Reason: "bad token"}}
	d := &Dispatcher{Chain: &Chain{Methods: []Method{method}}}
	route, seen := captureRoute(t)

	rec := httptest.NewRecorder()
	d.Wrap(route).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != 401 {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if *seen != nil {
		t.Error("handler ran after an authentication failure")
	}
}

func TestDispatchRecordsTerminalStatus(t *testing.T) {
	tests := []struct {
		name       string
		route      *Route
		wantStatus int
	}{
		{
			name: "handler status",
			route: MustRoute("created", Public(), func(w http.ResponseWriter, _ *http.Request, _ *State) error {
				WriteJSON(w, 201, map[string]string{"ok": "yes"})
				return nil
			}),
			wantStatus: 201,
		},
		{
			name: "implicit 200",
			route: MustRoute("quiet", Public(), func(http.ResponseWriter, *http.Request, *State) error {
				return nil
			}),
			wantStatus: 200,
		},
		{
			name: "denied",
			route: MustRoute("locked", RequireNonAnonymous(), func(http.ResponseWriter, *http.Request, *State) error {
				return nil
			}),
			wantStatus: 403,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &captureMetrics{}
			d := &Dispatcher{Chain: &Chain{}, Metrics: metrics}
			rec := httptest.NewRecorder()
			d.Wrap(tt.route).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
			if metrics.status != tt.wantStatus {
				t.Errorf("recorded status = %d, want %d", metrics.status, tt.wantStatus)
			}
		})
	}
}

func TestDispatchAuthenticationTransientFailure(t *testing.T) {
	method := &fakeMethod{name: "oauth", err: &TransientError{Op: "token check", Cause: errors.New("backend down")}}
	d := &Dispatcher{Chain: &Chain{Methods: []Method{method}}}
	route, seen := captureRoute(t)

	rec := httptest.NewRecorder()
	d.Wrap(route).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != 500 {
		t.Errorf("status = %d, want 500 when the auth backend is down", rec.Code)
	}
	if *seen != nil {
		t.Error("handler ran after a transient authentication failure")
	}
}

func TestDispatchBotPromotion(t *testing.T) {
	botIP := netip.MustParseAddr("192.0.2.1")
	wl := &fakeWhitelist{
		members: map[string][]netip.Addr{BotsWhitelist: {botIP}},
	}
	d := &Dispatcher{Chain: &Chain{}, Whitelist: wl, UseBotsWhitelist: true}
	route, seen := captureRoute(t)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:4711"
	d.Wrap(route).ServeHTTP(rec, r)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if st := *seen; st.PeerIdentity != IPWhitelistedBot {
		t.Errorf("peer = %v, want %v", st.PeerIdentity, IPWhitelistedBot)
	}
}

func TestDispatchBotPromotionOffByDefault(t *testing.T) {
	wl := &fakeWhitelist{
		members: map[string][]netip.Addr{BotsWhitelist: {netip.MustParseAddr("192.0.2.1")}},
	}
	d := &Dispatcher{Chain: &Chain{}, Whitelist: wl}
	route, seen := captureRoute(t)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:4711"
	d.Wrap(route).ServeHTTP(rec, r)

	if st := *seen; st == nil || st.PeerIdentity != identity.Anonymous {
		t.Errorf("peer promoted with UseBotsWhitelist off")
	}
}

func TestDispatchBotsLookupFailure(t *testing.T) {
	d := &Dispatcher{
		Chain:            &Chain{},
		Whitelist:        &fakeWhitelist{err: errors.New("down")},
		UseBotsWhitelist: true,
	}
	route, seen := captureRoute(t)

	rec := httptest.NewRecorder()
	d.Wrap(route).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != 500 {
		t.Errorf("status = %d, want 500 on whitelist backend failure", rec.Code)
	}
	if *seen != nil {
		t.Error("handler ran despite the whitelist failure")
	}
}

func TestDispatchIPWhitelistEnforced(t *testing.T) {
	bot := identity.MustParse("bot:build-host-17")
	method := &fakeMethod{name: "service", headerBased: true, applies: true, id: bot}
	wl := &fakeWhitelist{
		assigned: map[identity.Identity]string{bot: "builders"},
		members:  map[string][]netip.Addr{"builders": {netip.MustParseAddr("10.0.0.5")}},
	}
	d := &Dispatcher{Chain: &Chain{Methods: []Method{method}}, Whitelist: wl}
	route, _ := captureRoute(t)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:4711"
	d.Wrap(route).ServeHTTP(rec, r)

	if rec.Code != 403 {
		t.Errorf("status = %d, want 403 for excluded IP", rec.Code)
	}
}

func TestDispatchDelegation(t *testing.T) {
	peer := identity.MustParse("service:frontend")
	delegated := identity.MustParse("user:joe@example.com")
	method := &fakeMethod{name: "service", headerBased: true, applies: true, id: peer}

	t.Run("valid token switches current identity", func(t *testing.T) {
		checker := &fakeChecker{delegated: delegated}
		d := &Dispatcher{Chain: &Chain{Methods: []Method{method}}, Delegation: checker}
		route, seen := captureRoute(t)

		rec := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(DelegationHeader, "tok")
		d.Wrap(route).ServeHTTP(rec, r)

		if rec.Code != 200 {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
		}
		st := *seen
		if st.PeerIdentity != peer || st.CurrentIdentity != delegated {
			t.Errorf("identities = %v/%v, want %v/%v", st.PeerIdentity, st.CurrentIdentity, peer, delegated)
		}
		if checker.gotToken != "tok" || checker.gotPeer != peer {
			t.Errorf("checker saw (%q, %v), want (tok, %v)", checker.gotToken, checker.gotPeer, peer)
		}
	})

	t.Run("no token means current equals peer", func(t *testing.T) {
		d := &Dispatcher{Chain: &Chain{Methods: []Method{method}}, Delegation: &fakeChecker{delegated: delegated}}
		route, seen := captureRoute(t)

		d.Wrap(route).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		if st := *seen; st.CurrentIdentity != peer {
			t.Errorf("current = %v, want %v", st.CurrentIdentity, peer)
		}
	})

	t.Run("bad token is 403", func(t *testing.T) {
		checker := &fakeChecker{err: &AuthorizationError{Reason: "bad delegation token"}}
		d := &Dispatcher{Chain: &Chain{Methods: []Method{method}}, Delegation: checker}
		route, _ := captureRoute(t)

		rec := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(DelegationHeader, "tok")
		d.Wrap(route).ServeHTTP(rec, r)

		if rec.Code != 403 {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("transient checker failure is 500", func(t *testing.T) {
		checker := &fakeChecker{err: &TransientError{Op: "unseal", Cause: errors.New("kms down")}}
		d := &Dispatcher{Chain: &Chain{Methods: []Method{method}}, Delegation: checker}
		route, _ := captureRoute(t)

		rec := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(DelegationHeader, "tok")
		d.Wrap(route).ServeHTTP(rec, r)

		if rec.Code != 500 {
			t.Errorf("status = %d, want 500: authority must never silently downgrade", rec.Code)
		}
	})

	t.Run("token without a checker is 403", func(t *testing.T) {
		d := &Dispatcher{Chain: &Chain{Methods: []Method{method}}}
		route, _ := captureRoute(t)

		rec := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(DelegationHeader, "tok")
		d.Wrap(route).ServeHTTP(rec, r)

		if rec.Code != 403 {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}

func TestDispatchXSRF(t *testing.T) {
	user := identity.MustParse("user:joe@example.com")
	cookieMethod := &fakeMethod{name: "cookie", applies: true, id: user}
	headerMethod := &fakeMethod{name: "oauth", headerBased: true, applies: true, id: user}
	gen := &xsrf.Generator{Secret: []byte("xsrf-test-secret")}

	validToken, err := gen.Generate(context.Background(), user, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	tests := []struct {
		name       string
		method     Method
		verb       string
		header     string
		param      string
		wantStatus int
		wantText   string
	}{
		{name: "cookie GET needs no token", method: cookieMethod, verb: "GET", wantStatus: 200},
		{name: "cookie POST without token", method: cookieMethod, verb: "POST", wantStatus: 403, wantText: "XSRF token is missing"},
		{name: "cookie PUT without token", method: cookieMethod, verb: "PUT", wantStatus: 403, wantText: "XSRF token is missing"},
		{name: "cookie DELETE without token", method: cookieMethod, verb: "DELETE", wantStatus: 403, wantText: "XSRF token is missing"},
		{name: "cookie POST with header token", method: cookieMethod, verb: "POST", header: validToken, wantStatus: 200},
		{name: "cookie POST with param token", method: cookieMethod, verb: "POST", param: validToken, wantStatus: 200},
		{name: "cookie POST with broken token", method: cookieMethod, verb: "POST", header: "broken", wantStatus: 403},
		{name: "header auth POST is exempt", method: headerMethod, verb: "POST", wantStatus: 200},
		{name: "header auth DELETE is exempt", method: headerMethod, verb: "DELETE", wantStatus: 200},
		// A broken token on a request that does not require one degrades
		// to trusting the underlying auth.
		{name: "broken token ignored when not required", method: cookieMethod, verb: "GET", header: "broken", wantStatus: 200},
		{name: "broken token ignored for header auth", method: headerMethod, verb: "POST", header: "broken", wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Dispatcher{Chain: &Chain{Methods: []Method{tt.method}}, XSRF: gen}
			route, seen := captureRoute(t)

			target := "/"
			if tt.param != "" {
				target = "/?" + XSRFParam + "=" + tt.param
			}
			r := httptest.NewRequest(tt.verb, target, strings.NewReader("{}"))
			if tt.header != "" {
				r.Header.Set(XSRFHeader, tt.header)
			}

			rec := httptest.NewRecorder()
			d.Wrap(route).ServeHTTP(rec, r)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantText != "" {
				if got := errorText(t, rec); got != tt.wantText {
					t.Errorf("error text = %q, want %q", got, tt.wantText)
				}
			}
			if tt.wantStatus == 200 && tt.header == validToken {
				if st := *seen; st.XSRFPayload["k"] != "v" {
					t.Errorf("XSRF payload = %v, want k=v", st.XSRFPayload)
				}
			}
		})
	}
}

func TestDispatchVerifiesPresentTokenEvenWhenNotRequired(t *testing.T) {
	user := identity.MustParse("user:joe@example.com")
	method := &fakeMethod{name: "oauth", headerBased: true, applies: true, id: user}
	gen := &xsrf.Generator{Secret: []byte("xsrf-test-secret")}

	token, err := gen.Generate(context.Background(), user, map[string]string{"flow": "settings"})
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	d := &Dispatcher{Chain: &Chain{Methods: []Method{method}}, XSRF: gen}
	route, seen := captureRoute(t)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(XSRFHeader, token)
	d.Wrap(route).ServeHTTP(httptest.NewRecorder(), r)

	if st := *seen; st.XSRFPayload["flow"] != "settings" {
		t.Errorf("XSRF payload = %v, want flow=settings", st.XSRFPayload)
	}
}

func TestDispatchConfigureError(t *testing.T) {
	calls := 0
	d := &Dispatcher{
		Chain: &Chain{},
		Configure: func(context.Context) error {
			calls++
			return errors.New("config backend down")
		},
	}
	route, _ := captureRoute(t)
	wrapped := d.Wrap(route)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != 500 {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	}
	if calls != 1 {
		t.Errorf("Configure ran %d times, want once (sticky error)", calls)
	}
}

func TestDispatchAuthorizeDenied(t *testing.T) {
	d := &Dispatcher{Chain: &Chain{}}
	route := MustRoute("admin", RequireNonAnonymous(), noopHandler)

	rec := httptest.NewRecorder()
	d.Wrap(route).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != 403 {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestDispatchHandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unclassified", errors.New("boom"), 500},
		{"validation class", fmt.Errorf("bad body: %w", ErrValidation), 400},
		{"authorization", &AuthorizationError{Reason: "nope"}, 403},
		{"transient", &TransientError{Op: "db", Cause: errors.New("down")}, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Dispatcher{Chain: &Chain{}}
			route := MustRoute("x", Public(), func(http.ResponseWriter, *http.Request, *State) error {
				return tt.err
			})
			rec := httptest.NewRecorder()
			d.Wrap(route).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestPeerIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.1:4711", "192.0.2.1"},
		{"192.0.2.1", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"not-an-ip", "invalid IP"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = tt.remoteAddr
		got := peerIP(r)
		if tt.want == "invalid IP" {
			if got.IsValid() {
				t.Errorf("peerIP(%q) = %v, want invalid", tt.remoteAddr, got)
			}
			continue
		}
		if got != netip.MustParseAddr(tt.want) {
			t.Errorf("peerIP(%q) = %v, want %v", tt.remoteAddr, got, tt.want)
		}
	}
}
