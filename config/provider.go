package config

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/authcore/delegation"
	"github.com/jonwraymond/authcore/observe"
	"github.com/jonwraymond/authcore/secret"
)

// Provider serves immutable configuration snapshots and reloads them from
// the config file without restarting the service. Readers always see a
// complete snapshot: a reload either swaps in a fully validated config or
// leaves the previous one in place.
type Provider struct {
	path     string
	resolver *secret.Resolver
	logger   observe.Logger

	current atomic.Pointer[Config]
	sf      singleflight.Group
	lastMod atomic.Int64
}

// NewProvider loads the initial snapshot and returns a provider bound to
// the discovered config file.
func NewProvider(ctx context.Context, path string, resolver *secret.Resolver, logger observe.Logger) (*Provider, error) {
	cfg, err := Load(ctx, path, resolver)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		path:     discoverConfigFile(path),
		resolver: resolver,
		logger:   logger,
	}
	p.current.Store(cfg)
	p.rememberModTime()
	return p, nil
}

// Snapshot returns the current configuration. The returned value must be
// treated as read-only.
func (p *Provider) Snapshot() *Config {
	return p.current.Load()
}

// Rules returns the current delegation rule list. The signature matches
// delegation.Engine.Rules so the engine picks up reloads immediately.
func (p *Provider) Rules() []delegation.Rule {
	return p.Snapshot().Delegation.Rules
}

// Reload re-reads and validates the config file, swapping the snapshot on
// success. Concurrent callers share one reload. A failed reload keeps the
// previous snapshot and returns the error.
func (p *Provider) Reload(ctx context.Context) error {
	_, err, _ := p.sf.Do("reload", func() (any, error) {
		cfg, err := Load(ctx, p.path, p.resolver)
		if err != nil {
			return nil, err
		}
		p.current.Store(cfg)
		p.rememberModTime()
		if p.logger != nil {
			p.logger.Info(ctx, "configuration reloaded",
				observe.Field{Key: "config", Value: cfg.String()},
			)
		}
		return nil, nil
	})
	return err
}

// Watch polls the config file and reloads when its modification time
// changes. It blocks until ctx is cancelled; run it in its own goroutine.
// Reload failures are logged and the previous snapshot stays active.
func (p *Provider) Watch(ctx context.Context, interval time.Duration) {
	if p.path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.modTimeChanged() {
				continue
			}
			if err := p.Reload(ctx); err != nil && p.logger != nil {
				p.logger.Warn(ctx, "configuration reload failed, keeping previous snapshot",
					observe.Field{Key: "path", Value: p.path},
					observe.Field{Key: "error", Value: err.Error()},
				)
			}
		}
	}
}

func (p *Provider) rememberModTime() {
	if p.path == "" {
		return
	}
	if info, err := os.Stat(p.path); err == nil {
		p.lastMod.Store(info.ModTime().UnixNano())
	}
}

func (p *Provider) modTimeChanged() bool {
	info, err := os.Stat(p.path)
	if err != nil {
		return false
	}
	return info.ModTime().UnixNano() != p.lastMod.Load()
}
