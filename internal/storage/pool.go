// Package storage provides the PostgreSQL storage layer for jobwatch.
//
// It manages connection pooling (via pgxpool), an optional dedicated
// connection for LISTEN/NOTIFY run events, the per-key ingest transaction,
// and query methods for the run ledger, audit log, seen tracker, overrides,
// feedback, ML scores, companies and settings.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/jobwatch/internal/telemetry"
)

// DB is the jobwatch database: a pool for queries and, when configured, one
// dedicated connection that LISTENs for run events.
type DB struct {
	pool       *pgxpool.Pool
	notifyConn *pgx.Conn
	logger     *slog.Logger
}

// New connects to poolDSN and, if notifyDSN is set, opens the LISTEN
// connection. notifyDSN must bypass transaction-mode poolers such as
// PgBouncer, which drop LISTEN state.
func New(ctx context.Context, poolDSN, notifyDSN string, logger *slog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(poolDSN)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "jobwatch"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	if notifyDSN != "" {
		if db.notifyConn, err = pgx.Connect(ctx, notifyDSN); err != nil {
			pool.Close()
			return nil, fmt.Errorf("storage: connect notify: %w", err)
		}
	}
	db.registerPoolMetrics()
	return db, nil
}

// registerPoolMetrics exports pool occupancy as observable gauges. With
// telemetry disabled the global meter is a no-op.
func (db *DB) registerPoolMetrics() {
	meter := telemetry.Meter("jobwatch/storage")
	gauge := func(name, desc string, read func(*pgxpool.Stat) int32) {
		_, err := meter.Int64ObservableGauge(name,
			metric.WithDescription(desc),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(read(db.pool.Stat())))
				return nil
			}),
		)
		if err != nil {
			db.logger.Warn("storage: register pool gauge", "name", name, "error", err)
		}
	}
	gauge("jobwatch.db.pool.acquired", "Connections currently checked out", (*pgxpool.Stat).AcquiredConns)
	gauge("jobwatch.db.pool.idle", "Idle connections in the pool", (*pgxpool.Stat).IdleConns)
	gauge("jobwatch.db.pool.total", "Open connections, including ones being established", (*pgxpool.Stat).TotalConns)
}

// Pool exposes the connection pool; tests use it for direct SQL.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// NotifyConn returns the LISTEN connection, or nil.
func (db *DB) NotifyConn() *pgx.Conn {
	return db.notifyConn
}

// Ping checks connectivity to the database; /health uses it.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("storage: ping: %w", err)
	}
	return nil
}

// Close closes the pool and the LISTEN connection.
func (db *DB) Close(ctx context.Context) {
	db.pool.Close()
	if db.notifyConn == nil {
		return
	}
	if err := db.notifyConn.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		db.logger.Warn("storage: close notify connection", "error", err)
	}
}
