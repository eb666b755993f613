package auth

import (
	"context"
	"errors"
)

// ErrKeyNotFound indicates no verification key matched the requested key id.
var ErrKeyNotFound = errors.New("auth: signing key not found")

// KeyProvider retrieves verification keys for id-token validation.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: a failure to reach the key source is transient; callers must not
//   treat it as "no key".
type KeyProvider interface {
	// GetKey returns the key for the given key ID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider provides a single static verification key.
type StaticKeyProvider struct {
	key any
}

// NewStaticKeyProvider creates a static key provider.
func NewStaticKeyProvider(key any) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key regardless of key id.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	return p.key, nil
}

// Ensure StaticKeyProvider implements KeyProvider
var _ KeyProvider = (*StaticKeyProvider)(nil)
