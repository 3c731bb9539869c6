package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"

	"github.com/jackc/pgx/v5"
)

// migrationLockID serializes migrations between processes sharing a
// database, e.g. `jobwatch serve` and a `jobwatch run` started by cron.
const migrationLockID = 0x6a6f6277 // "jobw"

// RunMigrations applies the .sql files in fsys that are not yet recorded in
// schema_migrations, in lexical order. Each file and its record commit in one
// transaction, so a failed file leaves nothing half applied.
func (db *DB) RunMigrations(ctx context.Context, fsys fs.FS) error {
	if _, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("storage: list migrations: %w", err)
	}
	slices.Sort(names)

	for _, name := range names {
		sql, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}
		applied, err := db.applyMigration(ctx, path.Base(name), string(sql))
		if err != nil {
			return err
		}
		if applied {
			db.logger.Info("storage: migration applied", "file", name)
		}
	}
	return nil
}

// applyMigration runs sql under the migration lock unless version is
// already recorded. It reports whether the file was executed.
func (db *DB) applyMigration(ctx context.Context, version, sql string) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(migrationLockID)); err != nil {
			return fmt.Errorf("storage: migration lock: %w", err)
		}
		var done bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&done); err != nil {
			return fmt.Errorf("storage: check migration %s: %w", version, err)
		}
		if done {
			return nil
		}
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("storage: record migration %s: %w", version, err)
		}
		applied = true
		return nil
	})
	return applied, err
}
