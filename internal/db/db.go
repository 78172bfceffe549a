// Package db persists the activation journal: one row per up/down so
// operators can see what the translator last did to the host and with
// which rule set.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const slowQueryThreshold = 100 * time.Millisecond

// DB wraps a sql.DB with logging and query helpers.
type DB struct {
	conn    *sql.DB
	logger  *slog.Logger
	devMode bool
}

// New opens the journal database and configures WAL mode, foreign keys,
// and busy timeout.
func New(ctx context.Context, dsn string, logger *slog.Logger, devMode bool) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", dsn, err)
	}

	// Single writer connection for SQLite.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("db: exec %q: %w", p, err)
		}
	}

	logger.Debug("journal_opened",
		"dsn", dsn,
		"component", "db",
	)

	return &DB{
		conn:    conn,
		logger:  logger,
		devMode: devMode,
	}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// ExecContext executes a query that doesn't return rows.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := d.conn.ExecContext(ctx, query, args...)
	d.logQuery("exec", query, time.Since(start), err)
	return result, err
}

// QueryContext executes a query that returns rows.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.conn.QueryContext(ctx, query, args...)
	d.logQuery("query", query, time.Since(start), err)
	return rows, err
}

// QueryRowContext executes a query that returns at most one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn.QueryRowContext(ctx, query, args...)
}

func (d *DB) logQuery(op, query string, duration time.Duration, err error) {
	if d.devMode {
		d.logger.Debug("sql_"+op,
			"query", query,
			"duration_ms", duration.Milliseconds(),
			"error", err,
			"component", "db",
		)
	}

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		d.logger.Error("sql_"+op+"_failed",
			"query", query,
			"error", err,
			"component", "db",
		)
	}

	if duration > slowQueryThreshold {
		d.logger.Warn("sql_slow_query",
			"query", query,
			"duration_ms", duration.Milliseconds(),
			"component", "db",
		)
	}
}
