package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/integrity"
	"github.com/ashita-ai/jobwatch/internal/model"
)

const runColumns = `run_id, status, settings_hash, started_at, finished_at, stats, audit_digest`

// BeginRun canonicalizes the settings, stores the snapshot and its hash, and
// returns a new running run with a time-ordered id.
func (db *DB) BeginRun(ctx context.Context, s model.Settings) (model.Run, error) {
	canonical, err := integrity.CanonicalSettings(s)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: begin run: %w", err)
	}
	hash, err := integrity.SettingsHash(s)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: begin run: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: generate run id: %w", err)
	}
	run := model.Run{
		RunID:        id,
		Status:       model.RunStatusRunning,
		SettingsHash: hash,
		StartedAt:    time.Now().UTC(),
		Stats:        model.RunStats{SourceErrors: map[string]string{}},
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO runs (run_id, status, settings_hash, started_at, stats)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.RunID, string(run.Status), run.SettingsHash, run.StartedAt, run.Stats,
	); err != nil {
		return model.Run{}, fmt.Errorf("storage: insert run: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO run_settings (run_id, settings_hash, settings_json) VALUES ($1, $2, $3)`,
		run.RunID, run.SettingsHash, canonical,
	); err != nil {
		return model.Run{}, fmt.Errorf("storage: insert run settings: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Run{}, fmt.Errorf("storage: commit run: %w", err)
	}
	return run, nil
}

// FinishRun records the final status, stats and audit digest of a run.
// A run can be finished exactly once; afterwards it is immutable.
func (db *DB) FinishRun(ctx context.Context, runID uuid.UUID, status model.RunStatus, stats model.RunStats, auditDigest *string) (model.Run, error) {
	if status == model.RunStatusRunning {
		return model.Run{}, model.Invalid("status", "a run cannot finish as running")
	}
	if stats.SourceErrors == nil {
		stats.SourceErrors = map[string]string{}
	}
	row := db.pool.QueryRow(ctx,
		`UPDATE runs SET status = $1, finished_at = $2, stats = $3, audit_digest = $4
		 WHERE run_id = $5 AND status = 'running'
		 RETURNING `+runColumns,
		string(status), time.Now().UTC(), stats, auditDigest, runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := db.GetRun(ctx, runID); getErr != nil {
			return model.Run{}, getErr
		}
		return model.Run{}, fmt.Errorf("%w: %s", ErrRunFinished, runID)
	}
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: finish run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by id.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (model.Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, fmt.Errorf("storage: run %s: %w", runID, ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently started run. It always reads the
// ledger; there is no cached pointer to go stale.
func (db *DB) LatestRun(ctx context.Context) (model.Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id DESC LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, fmt.Errorf("storage: latest run: %w", ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("storage: latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs ordered newest first, with the total count.
func (db *DB) ListRuns(ctx context.Context, limit, offset int) ([]model.Run, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count runs: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs
		 ORDER BY started_at DESC, run_id DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, total, rows.Err()
}

// GetRunSettings returns the canonical settings snapshot a run started with.
func (db *DB) GetRunSettings(ctx context.Context, runID uuid.UUID) (model.Settings, error) {
	var raw []byte
	err := db.pool.QueryRow(ctx,
		`SELECT settings_json FROM run_settings WHERE run_id = $1`, runID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Settings{}, fmt.Errorf("storage: run settings %s: %w", runID, ErrNotFound)
		}
		return model.Settings{}, fmt.Errorf("storage: get run settings: %w", err)
	}
	s, err := model.ParseSettings(raw)
	if err != nil {
		return model.Settings{}, fmt.Errorf("storage: decode run settings: %w", err)
	}
	return s, nil
}

func scanRun(row pgx.Row) (model.Run, error) {
	var r model.Run
	err := row.Scan(&r.RunID, &r.Status, &r.SettingsHash, &r.StartedAt, &r.FinishedAt, &r.Stats, &r.AuditDigest)
	if r.Stats.SourceErrors == nil {
		r.Stats.SourceErrors = map[string]string{}
	}
	return r, err
}
