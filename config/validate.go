package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonwraymond/authcore/delegation"
	"github.com/jonwraymond/authcore/identity"
)

// Validate checks the configuration for errors that would otherwise only
// surface at request time. Rule descriptors in particular are fully parsed
// here: the runtime matcher degrades unknown descriptors to non-matches, so
// a typo in a rule would silently deny instead of failing loudly.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateRegistry()...)
	errs = append(errs, c.validateRules()...)

	// Service name and version come from the embedding binary, not from
	// the file; validate only this file's observability sections.
	obs := c.Observe("authcore", "")
	if err := obs.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) validateAuth() []error {
	var errs []error

	if len(c.Auth.Methods) == 0 {
		errs = append(errs, errors.New("auth.methods must list at least one method"))
	}
	seen := map[string]bool{}
	for _, m := range c.Auth.Methods {
		name := strings.ToLower(m)
		switch name {
		case MethodOAuth, MethodCookie, MethodServiceHeader:
		default:
			errs = append(errs, fmt.Errorf("auth.methods: unknown method %q", m))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("auth.methods: %q listed twice", m))
		}
		seen[name] = true
	}

	if c.hasMethod(MethodCookie) {
		switch c.Auth.CookieVariant {
		case CookiePlatform:
		case CookieOpenID:
			if c.Auth.OpenID.Issuer == "" || c.Auth.OpenID.JWKSURL == "" {
				errs = append(errs, errors.New(
					"auth.openid: issuer and jwks_url are required for the openid cookie variant"))
			}
		default:
			errs = append(errs, fmt.Errorf(
				"auth.cookie_variant must be %q or %q, got %q",
				CookiePlatform, CookieOpenID, c.Auth.CookieVariant))
		}
	}

	if c.hasMethod(MethodOAuth) && c.Auth.OAuth.TokenInfoURL == "" {
		errs = append(errs, errors.New("auth.oauth.token_info_url is required when oauth is enabled"))
	}

	return errs
}

func (c *Config) validateRegistry() []error {
	switch c.Registry.Backend {
	case RegistryMemory:
		return nil
	case RegistryPostgres:
		if c.Registry.Postgres.DSN == "" {
			return []error{errors.New("registry.postgres.dsn is required for the postgres backend")}
		}
		return nil
	default:
		return []error{fmt.Errorf("registry.backend must be %q or %q, got %q",
			RegistryMemory, RegistryPostgres, c.Registry.Backend)}
	}
}

func (c *Config) validateRules() []error {
	var errs []error
	names := map[string]bool{}

	for i, r := range c.Delegation.Rules {
		at := func(field string) string {
			return fmt.Sprintf("delegation.rules[%d].%s", i, field)
		}

		if r.Name == "" {
			errs = append(errs, fmt.Errorf("%s is required", at("name")))
		} else if names[r.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate rule name %q", at("name"), r.Name))
		}
		names[r.Name] = true

		if len(r.UserID) == 0 {
			errs = append(errs, fmt.Errorf("%s must not be empty", at("user_id")))
		}
		for _, d := range r.UserID {
			if err := validateDescriptor(d); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", at("user_id"), err))
			}
		}

		if len(r.TargetService) == 0 {
			errs = append(errs, fmt.Errorf("%s must not be empty", at("target_service")))
		}
		for _, s := range r.TargetService {
			if s == "*" {
				continue
			}
			id, err := identity.Parse(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", at("target_service"), err))
			} else if id.Kind != identity.KindService {
				errs = append(errs, fmt.Errorf("%s: %q is not a service identity", at("target_service"), s))
			}
		}

		for _, d := range r.AllowedToImpersonate {
			if err := validateDescriptor(d); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", at("allowed_to_impersonate"), err))
			}
		}

		if r.MaxValidityDuration < delegation.MinValiditySeconds ||
			r.MaxValidityDuration > delegation.MaxValiditySeconds {
			errs = append(errs, fmt.Errorf("%s must be between %d and %d sec",
				at("max_validity_duration"),
				delegation.MinValiditySeconds, delegation.MaxValiditySeconds))
		}
	}

	return errs
}

// validateDescriptor parses one principal descriptor strictly: "*", a group
// reference, an identity glob, or an exact identity.
func validateDescriptor(d string) error {
	if d == "*" {
		return nil
	}
	if name, ok := strings.CutPrefix(d, identity.GroupPrefix); ok {
		if !identity.IsValidGroupName(name) {
			return fmt.Errorf("bad group name %q", d)
		}
		return nil
	}
	if strings.Contains(d, "*") {
		if _, err := identity.ParseGlob(d); err != nil {
			return err
		}
		return nil
	}
	if _, err := identity.Parse(d); err != nil {
		return err
	}
	return nil
}
