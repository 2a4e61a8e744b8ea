// Package storage provides the Redis snapshot store and the Postgres ledger
// repository, plus their connection handles and schema migrations.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledger-sync/internal/config"
)

const (
	applicationName  = "ledger-sync"
	defaultPoolConns = 10
)

// PostgresDB owns the ledger database pool. It is opened once by the command
// that needs it and passed to repositories.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB opens a pool and verifies it with a ping
func NewPostgresDB(cfg *config.PostgresConfig) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = defaultPoolConns
	}
	poolConfig.MaxConns = int32(maxConns) // #nosec G115 - bounded by config
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database %s@%s:%s: %w", cfg.Database, cfg.Host, cfg.Port, err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping reports whether the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
