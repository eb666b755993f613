package auth

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/jonwraymond/authcore/identity"
)

// BotsWhitelist names the distinguished whitelist that upgrades anonymous
// callers to the fixed bot identity. Legacy path for bots that have not
// moved to service accounts yet.
const BotsWhitelist = "bots"

// IPWhitelistedBot is the identity assigned to anonymous callers from the
// bots whitelist. It goes through normal IP enforcement like any identity.
var IPWhitelistedBot = identity.Identity{Kind: identity.KindBot, Name: "whitelisted-ip"}

// IPWhitelist answers IP restriction questions. The backing data source is
// externally owned, refreshed out of band, and may be eventually consistent.
type IPWhitelist interface {
	// Contains reports whether ip belongs to the named whitelist.
	Contains(ctx context.Context, whitelist string, ip netip.Addr) (bool, error)

	// AssignedWhitelist returns the whitelist the identity is restricted
	// to, or "" when the identity may call from anywhere.
	AssignedWhitelist(ctx context.Context, id identity.Identity) (string, error)
}

// VerifyIPWhitelisted fails when the identity is restricted to an IP set
// that excludes ip. A nil whitelist source means no IP restrictions exist.
func VerifyIPWhitelisted(ctx context.Context, wl IPWhitelist, id identity.Identity, ip netip.Addr) error {
	if wl == nil {
		return nil
	}
	name, err := wl.AssignedWhitelist(ctx, id)
	if err != nil {
		return &TransientError{Op: "ip whitelist lookup", Cause: err}
	}
	if name == "" {
		return nil
	}
	ok, err := wl.Contains(ctx, name, ip)
	if err != nil {
		return &TransientError{Op: "ip whitelist lookup", Cause: err}
	}
	if !ok {
		return &AuthorizationError{
			Subject: id.String(),
			Reason:  fmt.Sprintf("IP %s is not whitelisted", ip),
		}
	}
	return nil
}
