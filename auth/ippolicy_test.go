package auth

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/jonwraymond/authcore/identity"
)

// fakeWhitelist scripts IP restriction answers per identity and whitelist.
type fakeWhitelist struct {
	assigned map[identity.Identity]string
	members  map[string][]netip.Addr
	err      error
}

func (w *fakeWhitelist) Contains(_ context.Context, whitelist string, ip netip.Addr) (bool, error) {
	if w.err != nil {
		return false, w.err
	}
	for _, a := range w.members[whitelist] {
		if a == ip {
			return true, nil
		}
	}
	return false, nil
}

func (w *fakeWhitelist) AssignedWhitelist(_ context.Context, id identity.Identity) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	return w.assigned[id], nil
}

func TestVerifyIPWhitelisted(t *testing.T) {
	bot := identity.MustParse("bot:build-host-17")
	inside := netip.MustParseAddr("10.0.0.5")
	outside := netip.MustParseAddr("192.0.2.1")

	wl := &fakeWhitelist{
		assigned: map[identity.Identity]string{bot: "builders"},
		members:  map[string][]netip.Addr{"builders": {inside}},
	}

	tests := []struct {
		name    string
		wl      IPWhitelist
		id      identity.Identity
		ip      netip.Addr
		wantErr error
	}{
		{name: "nil source means unrestricted", wl: nil, id: bot, ip: outside},
		{name: "unrestricted identity", wl: wl, id: identity.MustParse("user:joe@example.com"), ip: outside},
		{name: "restricted identity from whitelisted ip", wl: wl, id: bot, ip: inside},
		{name: "restricted identity from outside", wl: wl, id: bot, ip: outside, wantErr: ErrForbidden},
		{name: "lookup failure is transient", wl: &fakeWhitelist{err: errors.New("down")}, id: bot, ip: inside, wantErr: ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyIPWhitelisted(context.Background(), tt.wl, tt.id, tt.ip)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("VerifyIPWhitelisted error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyIPWhitelisted error = %v, want %v class", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyIPWhitelistedMessage(t *testing.T) {
	bot := identity.MustParse("bot:build-host-17")
	wl := &fakeWhitelist{
		assigned: map[identity.Identity]string{bot: "builders"},
		members:  map[string][]netip.Addr{},
	}
	err := VerifyIPWhitelisted(context.Background(), wl, bot, netip.MustParseAddr("192.0.2.1"))
	if err == nil {
		t.Fatal("VerifyIPWhitelisted = nil, want error")
	}
	want := `authorization denied: subject="bot:build-host-17" reason="IP 192.0.2.1 is not whitelisted"`
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}
