package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves references as environment variable names.
type EnvProvider struct{}

// Name returns "env".
func (EnvProvider) Name() string { return "env" }

// Resolve reads the named environment variable. Missing variables error.
func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("secret: environment variable %q is not set", ref)
	}
	return v, nil
}

// Close is a no-op.
func (EnvProvider) Close() error { return nil }

// FileProvider resolves references as file paths.
type FileProvider struct{}

// Name returns "file".
func (FileProvider) Name() string { return "file" }

// Resolve reads the file at ref. Trailing whitespace is stripped so key
// files may end with a newline.
func (FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("secret: reading %q: %w", ref, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Close is a no-op.
func (FileProvider) Close() error { return nil }

// StaticProvider resolves references from a fixed map. Intended for tests.
type StaticProvider struct {
	Values map[string]string
}

// Name returns "static".
func (p *StaticProvider) Name() string { return "static" }

// Resolve looks up the reference in the map.
func (p *StaticProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.Values[ref]
	if !ok {
		return "", fmt.Errorf("secret: no static value for %q", ref)
	}
	return v, nil
}

// Close is a no-op.
func (p *StaticProvider) Close() error { return nil }

// Ensure providers implement Provider.
var (
	_ Provider = EnvProvider{}
	_ Provider = FileProvider{}
	_ Provider = (*StaticProvider)(nil)
)
