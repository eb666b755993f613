// Package config loads and validates the service configuration.
//
// Configuration is a YAML file discovered at startup, layered over built-in
// defaults, with secret references resolved through the secret package so
// signing keys never live in the file itself. The delegation rule list is
// hot-reloadable through a Provider snapshot.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/authcore/delegation"
	"github.com/jonwraymond/authcore/observe"
	"github.com/jonwraymond/authcore/registry"
)

// Auth method names accepted in the auth.methods list.
const (
	MethodOAuth         = "oauth"
	MethodCookie        = "cookie"
	MethodServiceHeader = "service_header"
)

// Cookie variants accepted in auth.cookie_variant.
const (
	CookiePlatform = "platform"
	CookieOpenID   = "openid"
)

// Registry backends accepted in registry.backend.
const (
	RegistryMemory   = "memory"
	RegistryPostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	XSRF          XSRFConfig          `yaml:"xsrf"`
	Delegation    DelegationConfig    `yaml:"delegation"`
	Registry      RegistryConfig      `yaml:"registry"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP listener and response headers.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// FrameOptions is the X-Frame-Options header value, or "" to omit it
	// for API-only deployments.
	FrameOptions string `yaml:"frame_options"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuthConfig selects and configures the authentication method chain. The
// order of Methods is the order the chain consults them.
type AuthConfig struct {
	Methods []string `yaml:"methods"`

	// CookieVariant picks which cookie authentication flavor the chain
	// uses when "cookie" is listed: "platform" or "openid".
	CookieVariant string `yaml:"cookie_variant"`

	OAuth  OAuthConfig  `yaml:"oauth"`
	OpenID OpenIDConfig `yaml:"openid"`

	// ServiceHeader names the trusted header carrying the inbound service
	// identity. Empty uses the default.
	ServiceHeader string `yaml:"service_header"`

	// UseBotsWhitelist enables the anonymous-to-bot IP promotion step.
	UseBotsWhitelist bool `yaml:"use_bots_whitelist"`
}

// OAuthConfig configures bearer access token validation.
type OAuthConfig struct {
	// TokenInfoURL is the endpoint access tokens are validated against.
	TokenInfoURL string `yaml:"token_info_url"`

	// ClientIDs lists OAuth client ids accepted from validated tokens.
	ClientIDs []string `yaml:"client_ids"`
}

// OpenIDConfig configures OpenID session cookie validation.
type OpenIDConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	JWKSURL  string `yaml:"jwks_url"`
}

// XSRFConfig configures anti-forgery token issuance. Secret may be a
// secretref and is resolved at load time.
type XSRFConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// DelegationConfig configures token minting and validation.
type DelegationConfig struct {
	// SigningSecret seals minted subtokens. May be a secretref.
	SigningSecret string `yaml:"signing_secret"`

	// MaxTokenSize bounds sealed tokens, in bytes. Zero uses the default.
	MaxTokenSize int `yaml:"max_token_size"`

	// Rules is the ordered delegation rule list. The synthetic default
	// rule is always appended at evaluation time and must not be listed.
	Rules []delegation.Rule `yaml:"rules"`
}

// RegistryConfig selects the audit record store.
type RegistryConfig struct {
	Backend  string                  `yaml:"backend"`
	Postgres registry.PostgresConfig `yaml:"postgres"`
}

// ObservabilityConfig configures tracing, metrics and logging.
type ObservabilityConfig struct {
	Tracing observe.TracingConfig `yaml:"tracing"`
	Metrics observe.MetricsConfig `yaml:"metrics"`
	Logging observe.LoggingConfig `yaml:"logging"`
}

// Defaults returns the built-in configuration: an API-only deployment with
// OAuth and service header auth, an in-memory registry, and info logging.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:   ":8443",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Methods:       []string{MethodOAuth, MethodServiceHeader},
			CookieVariant: CookieOpenID,
		},
		XSRF: XSRFConfig{
			Expiry: 4 * time.Hour,
		},
		Registry: RegistryConfig{
			Backend: RegistryMemory,
		},
		Observability: ObservabilityConfig{
			Logging: observe.LoggingConfig{Enabled: true, Level: "info"},
		},
	}
}

// Observe converts the observability section to the observe package config.
func (c *Config) Observe(serviceName, version string) observe.Config {
	return observe.Config{
		ServiceName: serviceName,
		Version:     version,
		Tracing:     c.Observability.Tracing,
		Metrics:     c.Observability.Metrics,
		Logging:     c.Observability.Logging,
	}
}

// hasMethod reports whether name is listed in auth.methods.
func (c *Config) hasMethod(name string) bool {
	for _, m := range c.Auth.Methods {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

// String renders a short description for startup logs. Secrets are not
// included.
func (c *Config) String() string {
	return fmt.Sprintf("listen=%s methods=%v registry=%s rules=%d",
		c.Server.ListenAddr, c.Auth.Methods, c.Registry.Backend, len(c.Delegation.Rules))
}
