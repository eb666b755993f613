package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig configures the PostgreSQL-backed registry.
type PostgresConfig struct {
	// DSN is the connection string. Required.
	DSN string `yaml:"dsn"`

	// MaxConns bounds the connection pool. Default: 10.
	MaxConns int32 `yaml:"max_conns"`

	// MaxConnLifetime recycles pooled connections. Default: 1 hour.
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`

	// MigrateOnStart applies the schema when true.
	MigrateOnStart bool `yaml:"migrate_on_start"`
}

func (c *PostgresConfig) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
}

// Postgres is a pgx-backed Registry. Ids come from a BIGSERIAL column, so
// they are unique and monotonically increasing across all writers.
type Postgres struct {
	pool *pgxpool.Pool
}

// Ensure Postgres implements Registry at compile time.
var _ Registry = (*Postgres)(nil)

// NewPostgres creates a PostgreSQL registry with the given configuration.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	p := &Postgres{pool: pool}

	if cfg.MigrateOnStart {
		if err := p.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return p, nil
}

// Register inserts the record in a single statement; the row either lands
// fully or not at all.
func (p *Postgres) Register(ctx context.Context, rec *Record) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO delegation_subtokens (
			subtoken, rule, intent, caller_ip, service_version,
			delegated_identity, requestor_identity, services, creation_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		rec.Subtoken, rec.Rule, rec.Intent, rec.CallerIP, rec.ServiceVersion,
		rec.DelegatedIdentity, rec.RequestorIdentity, rec.Services, rec.CreationTime,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnavailable
		}
		return 0, fmt.Errorf("inserting subtoken record: %w", err)
	}
	return id, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS delegation_subtokens (
			id BIGSERIAL PRIMARY KEY,
			subtoken BYTEA NOT NULL,
			rule BYTEA NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			caller_ip TEXT NOT NULL,
			service_version TEXT NOT NULL DEFAULT '',
			delegated_identity TEXT NOT NULL,
			requestor_identity TEXT NOT NULL,
			services TEXT[] NOT NULL,
			creation_time TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS delegation_subtokens_delegated_identity
			ON delegation_subtokens (delegated_identity);
		CREATE INDEX IF NOT EXISTS delegation_subtokens_requestor_identity
			ON delegation_subtokens (requestor_identity);
		CREATE INDEX IF NOT EXISTS delegation_subtokens_creation_time
			ON delegation_subtokens (creation_time);
	`)
	return err
}
