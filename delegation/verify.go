package delegation

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/authcore/auth"
	"github.com/jonwraymond/authcore/identity"
)

// allowedClockSkew tolerates small clock drift between the minting service
// and this verifier when checking creation_time.
const allowedClockSkew = 30 * time.Second

// Verifier validates presented delegation tokens for one service. It
// implements auth.TokenChecker.
type Verifier struct {
	// Unsealer verifies the token envelope.
	Unsealer Unsealer

	// Matcher resolves audience descriptors (identities, groups, globs).
	Matcher *identity.Matcher

	// OwnID is this service's identity, checked against the token's
	// services list.
	OwnID identity.Identity

	// now is overridable in tests.
	now func() time.Time
}

// Check unseals the token and verifies its time window, audience and
// services scope against the presenting peer. On success the token's
// delegated identity becomes the effective identity of the request.
func (v *Verifier) Check(ctx context.Context, token string, peer identity.Identity) (identity.Identity, error) {
	sub, err := v.Unsealer.Unseal(token)
	if err != nil {
		return identity.Identity{}, err
	}

	now := v.timeNow()
	if sub.CreationTime.After(now.Add(allowedClockSkew)) {
		return identity.Identity{}, &BadTokenError{Reason: "token is not valid yet"}
	}
	if now.After(sub.Expiry()) {
		return identity.Identity{}, &BadTokenError{Reason: "token expired"}
	}

	if !containsWildcard(sub.Audience) {
		ok, err := v.Matcher.MatchesAny(ctx, sub.Audience, peer)
		if err != nil {
			return identity.Identity{}, &auth.TransientError{Op: "delegation audience check", Cause: err}
		}
		if !ok {
			return identity.Identity{}, &BadTokenError{Reason: fmt.Sprintf(
				"token is not intended for %s", peer.String())}
		}
	}

	if !containsWildcard(sub.Services) && !containsString(sub.Services, v.OwnID.String()) {
		return identity.Identity{}, &BadTokenError{Reason: fmt.Sprintf(
			"token is not intended for %s", v.OwnID.String())}
	}

	return sub.DelegatedIdentity, nil
}

var _ auth.TokenChecker = (*Verifier)(nil)

func (v *Verifier) timeNow() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}

func containsString(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
