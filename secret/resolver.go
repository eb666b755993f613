package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolver resolves secret references using registered providers.
//
// Values with the prefix "secretref:" are resolved via providers.
// Other values are returned after strict environment expansion.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver. With no providers given, the env and file
// providers are registered.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider)}
	if len(providers) == 0 {
		providers = []Provider{EnvProvider{}, FileProvider{}}
	}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Register registers an additional provider.
func (r *Resolver) Register(provider Provider) {
	if r == nil || provider == nil {
		return
	}
	r.providers[provider.Name()] = provider
}

// ResolveValue resolves environment variables and secret refs in value.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	providerName, ref, ok := ParseSecretRef(expanded)
	if !ok {
		return expanded, nil
	}
	provider, found := r.providers[providerName]
	if !found {
		return "", fmt.Errorf("secret: provider %q is not registered", providerName)
	}
	resolved, err := provider.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if resolved == "" {
		return "", fmt.Errorf("secret: provider %q returned empty value", providerName)
	}
	return resolved, nil
}

// ResolveKey resolves a signing-key reference to raw key bytes.
func (r *Resolver) ResolveKey(ctx context.Context, value string) ([]byte, error) {
	if strings.TrimSpace(value) == "" {
		return nil, errors.New("secret: key reference is empty")
	}
	s, err := r.ResolveValue(ctx, value)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// ParseSecretRef parses a full secret reference of the form:
//
//	secretref:<provider>:<ref>
func ParseSecretRef(value string) (provider string, ref string, ok bool) {
	const prefix = "secretref:"
	if !strings.HasPrefix(value, prefix) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(value, prefix), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
