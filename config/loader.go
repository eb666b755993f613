package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/authcore/secret"
)

// EnvConfigPath names the environment variable that overrides config file
// discovery.
const EnvConfigPath = "AUTHCORE_CONFIG"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, AUTHCORE_CONFIG env, ./config.yaml,
//     /etc/authcore/config.yaml)
//  3. Secret reference resolution (secretref: values)
//  4. Validation
func Load(ctx context.Context, configPath string, resolver *secret.Resolver) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if resolver == nil {
		resolver = secret.NewResolver()
	}
	if err := resolveSecrets(ctx, &cfg, resolver); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
//  1. Explicit configPath argument
//  2. AUTHCORE_CONFIG environment variable
//  3. ./config.yaml in the current directory
//  4. /etc/authcore/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/authcore/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct. Fields
// not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// resolveSecrets replaces secretref values and $VAR expansions with the
// referenced material so handlers only ever see resolved keys.
func resolveSecrets(ctx context.Context, cfg *Config, resolver *secret.Resolver) error {
	fields := []struct {
		name string
		dst  *string
	}{
		{"xsrf.secret", &cfg.XSRF.Secret},
		{"delegation.signing_secret", &cfg.Delegation.SigningSecret},
		{"registry.postgres.dsn", &cfg.Registry.Postgres.DSN},
	}
	for _, f := range fields {
		if *f.dst == "" {
			continue
		}
		resolved, err := resolver.ResolveValue(ctx, *f.dst)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = resolved
	}
	return nil
}
