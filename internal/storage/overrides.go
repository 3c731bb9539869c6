package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// SetOverride pins the decision for key until it is cleared. Setting it again
// replaces the action and note and keeps created_at.
func (db *DB) SetOverride(ctx context.Context, key string, action model.OverrideAction, note string) (model.Override, error) {
	if strings.TrimSpace(key) == "" {
		return model.Override{}, model.Invalid("dedupe_key", "is required")
	}
	if _, err := model.ParseOverrideAction(string(action)); err != nil {
		return model.Override{}, err
	}
	var o model.Override
	now := time.Now().UTC()
	err := db.pool.QueryRow(ctx,
		`INSERT INTO job_overrides (dedupe_key, action, note, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (dedupe_key) DO UPDATE SET
		     action = EXCLUDED.action, note = EXCLUDED.note, updated_at = EXCLUDED.updated_at
		 RETURNING dedupe_key, action, note, created_at, updated_at`,
		key, string(action), note, now,
	).Scan(&o.DedupeKey, &o.Action, &o.Note, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Override{}, fmt.Errorf("storage: set override: %w", err)
	}
	return o, nil
}

// ClearOverride removes the override for key. Clearing an absent override is
// not an error; the return value reports whether one existed.
func (db *DB) ClearOverride(ctx context.Context, key string) (bool, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM job_overrides WHERE dedupe_key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("storage: clear override: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetOverride returns the override for key, or ErrNotFound.
func (db *DB) GetOverride(ctx context.Context, key string) (model.Override, error) {
	o, err := findOverride(ctx, db.pool, key)
	if err != nil {
		return model.Override{}, err
	}
	if o == nil {
		return model.Override{}, fmt.Errorf("storage: override %s: %w", key, ErrNotFound)
	}
	return *o, nil
}

// ListOverrides returns every override, most recently updated first.
func (db *DB) ListOverrides(ctx context.Context) ([]model.Override, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT dedupe_key, action, note, created_at, updated_at
		 FROM job_overrides ORDER BY updated_at DESC, dedupe_key`)
	if err != nil {
		return nil, fmt.Errorf("storage: list overrides: %w", err)
	}
	defer rows.Close()

	var out []model.Override
	for rows.Next() {
		var o model.Override
		if err := rows.Scan(&o.DedupeKey, &o.Action, &o.Note, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func findOverride(ctx context.Context, q querier, key string) (*model.Override, error) {
	var o model.Override
	err := q.QueryRow(ctx,
		`SELECT dedupe_key, action, note, created_at, updated_at
		 FROM job_overrides WHERE dedupe_key = $1`, key,
	).Scan(&o.DedupeKey, &o.Action, &o.Note, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: get override: %w", err)
	}
	return &o, nil
}
