// Package postgres implements ports.TradeRepository on PostgreSQL via pgx.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeledger/internal/ports"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ClientConfig holds connection parameters for the PostgreSQL client.
type ClientConfig struct {
	DSN      string
	MaxConns int
	MinConns int
	Logger   ports.Logger
}

// Client wraps a pgxpool.Pool and manages migrations.
type Client struct {
	pool   *pgxpool.Pool
	logger ports.Logger
}

// New creates a Client with a connection pool configured from cfg.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%w: postgres DSN is required", ports.ErrConfigurationError)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = ports.NopLogger{}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: parse config: %v", ports.ErrConfigurationError, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: connect: %v", ports.ErrDBConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres: ping: %v", ports.ErrDBConnection, err)
	}

	logger.Info(ctx, "PostgreSQL connection pool established", map[string]interface{}{"maxConns": poolCfg.MaxConns})
	return &Client{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close shuts down the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// RunMigrations brings the schema up to date. Each embedded file runs once,
// in its own transaction, and is recorded in ledger_schema_version.
func (c *Client) RunMigrations(ctx context.Context) error {
	const versionTable = `
	CREATE TABLE IF NOT EXISTS ledger_schema_version (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`
	if _, err := c.pool.Exec(ctx, versionTable); err != nil {
		return fmt.Errorf("%w: failed to create version table: %v", ports.ErrUpdateFailed, err)
	}

	files, err := migrationFiles()
	if err != nil {
		return err
	}
	applied, err := c.appliedVersions(ctx)
	if err != nil {
		return err
	}

	pending := 0
	for _, name := range files {
		if applied[name] {
			continue
		}
		if err := c.applyMigration(ctx, name); err != nil {
			return err
		}
		pending++
	}
	c.logger.Info(ctx, "PostgreSQL schema up to date", map[string]interface{}{"applied": pending, "known": len(files)})
	return nil
}

// migrationFiles lists the embedded .sql files in apply order.
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := c.pool.Query(ctx, "SELECT version FROM ledger_schema_version")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read schema versions: %v", ports.ErrQueryFailed, err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan schema versions: %v", ports.ErrQueryFailed, err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (c *Client) applyMigration(ctx context.Context, name string) error {
	script, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", name, err)
	}
	err = pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(script)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "INSERT INTO ledger_schema_version (version) VALUES ($1)", name)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: migration %s: %v", ports.ErrUpdateFailed, name, err)
	}
	c.logger.Debug(ctx, "Migration applied", map[string]interface{}{"version": name})
	return nil
}
