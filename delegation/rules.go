package delegation

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonwraymond/authcore/auth"
	"github.com/jonwraymond/authcore/identity"
)

// Rule describes who may mint delegation tokens and with what bounds. Rules
// come from configuration and are consulted in their declared order; the
// first rule whose user_id matches the caller and whose target_service
// covers the requested services wins.
type Rule struct {
	// Name identifies the rule in logs and audit records.
	Name string `yaml:"name" json:"name"`

	// UserID lists principal descriptors the calling identity must match.
	UserID []string `yaml:"user_id" json:"user_id"`

	// TargetService lists the services the rule covers, or ["*"].
	TargetService []string `yaml:"target_service" json:"target_service"`

	// MaxValidityDuration caps validity_duration for tokens minted under
	// this rule, in seconds.
	MaxValidityDuration int `yaml:"max_validity_duration" json:"max_validity_duration"`

	// AllowedToImpersonate lists principal descriptors the caller may
	// delegate as. Empty means self-delegation only.
	AllowedToImpersonate []string `yaml:"allowed_to_impersonate" json:"allowed_to_impersonate"`
}

// DefaultRule is the synthetic catch-all appended after the configured
// rules. It allows anyone to self-delegate anywhere for up to a day.
func DefaultRule() Rule {
	return Rule{
		Name:                "default",
		UserID:              []string{"*"},
		TargetService:       []string{"*"},
		MaxValidityDuration: MaxValiditySeconds,
	}
}

// Engine evaluates mint requests against the configured rule list.
type Engine struct {
	// Rules returns the current configured rule list, in order. The
	// synthetic default rule is appended automatically; it must not be
	// included. Called on every evaluation so a hot-reloaded snapshot
	// takes effect immediately.
	Rules func() []Rule

	// Matcher resolves principal descriptors in user_id and
	// allowed_to_impersonate.
	Matcher *identity.Matcher
}

// SelectRule returns the first rule matching the caller and the requested
// services, falling back to the synthetic default rule. services must
// already be normalized (wildcard collapsed).
func (e *Engine) SelectRule(ctx context.Context, caller identity.Identity, services []string) (Rule, error) {
	for _, r := range e.Rules() {
		ok, err := e.Matcher.MatchesAny(ctx, r.UserID, caller)
		if err != nil {
			return Rule{}, err
		}
		if !ok {
			continue
		}
		if ruleCoversServices(r, services) {
			return r, nil
		}
	}
	return DefaultRule(), nil
}

// ruleCoversServices reports whether every requested service falls under
// the rule's target_service list. A wildcard request matches any rule: the
// minter later narrows it to the selected rule's target list.
func ruleCoversServices(r Rule, services []string) bool {
	if containsWildcard(r.TargetService) || containsWildcard(services) {
		return true
	}
	targets := make(map[string]bool, len(r.TargetService))
	for _, t := range r.TargetService {
		targets[t] = true
	}
	for _, s := range services {
		if !targets[s] {
			return false
		}
	}
	return true
}

// AuthorizeMint checks req against rule and returns the identity the token
// will delegate as. Both a validity ceiling breach and a disallowed
// impersonation are authorization failures: the request was well-formed,
// the matched rule just does not permit it.
func (e *Engine) AuthorizeMint(ctx context.Context, rule Rule, req *MintRequest, caller identity.Identity) (identity.Identity, error) {
	if req.ValidityDuration > rule.MaxValidityDuration {
		return identity.Identity{}, &auth.AuthorizationError{
			Subject: caller.String(),
			Reason: fmt.Sprintf(
				"Maximum allowed validity_duration is %d sec, %d requested.",
				rule.MaxValidityDuration, req.ValidityDuration),
		}
	}

	// Self-delegation is always allowed.
	delegated := req.Impersonate
	if delegated == (identity.Identity{}) || delegated == caller {
		return caller, nil
	}

	ok, err := e.Matcher.MatchesAny(ctx, rule.AllowedToImpersonate, delegated)
	if err != nil {
		return identity.Identity{}, err
	}
	if !ok {
		return identity.Identity{}, &impersonationError{
			caller:   caller,
			target:   delegated,
			services: req.Services,
		}
	}
	return delegated, nil
}

// DefaultAllowedServices returns the target_service list of the first rule
// matching the caller for a wildcard services request. It defines what a
// requested ["*"] services list expands to at mint time.
func (e *Engine) DefaultAllowedServices(ctx context.Context, caller identity.Identity) ([]string, error) {
	rule, err := e.SelectRule(ctx, caller, []string{"*"})
	if err != nil {
		return nil, err
	}
	return rule.TargetService, nil
}

// impersonationError is an authorization failure naming the denied
// delegation.
type impersonationError struct {
	caller   identity.Identity
	target   identity.Identity
	services []string
}

func (e *impersonationError) Error() string {
	return fmt.Sprintf("%q is not allowed to impersonate %q on %s",
		e.caller.String(), e.target.String(), strings.Join(e.services, ", "))
}

// Is classifies the failure as forbidden.
func (e *impersonationError) Is(target error) bool {
	return target == auth.ErrForbidden
}
