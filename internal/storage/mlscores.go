package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// LookupMLScore returns the published probability for key. The bool is false
// when the key was never scored.
func (db *DB) LookupMLScore(ctx context.Context, key string) (model.MLScore, bool, error) {
	var s model.MLScore
	err := db.pool.QueryRow(ctx,
		`SELECT dedupe_key, prob, model_id, updated_at FROM job_ml_scores WHERE dedupe_key = $1`, key,
	).Scan(&s.DedupeKey, &s.Prob, &s.ModelID, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MLScore{}, false, nil
		}
		return model.MLScore{}, false, fmt.Errorf("storage: lookup ml score: %w", err)
	}
	return s, true, nil
}

// UpsertMLScores publishes probabilities for many keys under one model id in
// a single batch. Probabilities outside [0, 1] are rejected before any write.
func (db *DB) UpsertMLScores(ctx context.Context, modelID string, scores map[string]float64) (int, error) {
	keys := slices.Sorted(maps.Keys(scores))
	for _, k := range keys {
		if k == "" {
			return 0, model.Invalid("scores", "empty dedupe key")
		}
		if p := scores[k]; p < 0 || p > 1 {
			return 0, model.Invalid("scores", "probability for %s must be within [0, 1], got %v", k, p)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(
			`INSERT INTO job_ml_scores (dedupe_key, prob, model_id, updated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (dedupe_key) DO UPDATE SET
			     prob = EXCLUDED.prob, model_id = EXCLUDED.model_id, updated_at = EXCLUDED.updated_at`,
			k, scores[k], modelID, now,
		)
	}
	if err := db.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("storage: upsert ml scores: %w", err)
	}
	return len(keys), nil
}

// MLScoreSummary returns the number of scored keys and the most recently
// published model id.
func (db *DB) MLScoreSummary(ctx context.Context) (int, string, error) {
	var (
		n       int
		modelID *string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        (SELECT model_id FROM job_ml_scores ORDER BY updated_at DESC, dedupe_key LIMIT 1)
		 FROM job_ml_scores`,
	).Scan(&n, &modelID)
	if err != nil {
		return 0, "", fmt.Errorf("storage: ml score summary: %w", err)
	}
	if modelID == nil {
		return n, "", nil
	}
	return n, *modelID, nil
}
