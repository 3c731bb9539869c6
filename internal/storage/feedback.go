package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/model"
)

const feedbackColumns = `id, dedupe_key, label, reason_category, created_at`

// RecordFeedback appends a label for key. Feedback is never updated in
// place; the latest row per key wins.
func (db *DB) RecordFeedback(ctx context.Context, key string, label model.FeedbackLabel, reasonCategory string) (model.Feedback, error) {
	if strings.TrimSpace(key) == "" {
		return model.Feedback{}, model.Invalid("dedupe_key", "is required")
	}
	if _, err := model.ParseFeedbackLabel(string(label)); err != nil {
		return model.Feedback{}, err
	}
	fb, err := scanFeedback(db.pool.QueryRow(ctx,
		`INSERT INTO job_feedback (dedupe_key, label, reason_category)
		 VALUES ($1, $2, $3)
		 RETURNING `+feedbackColumns,
		key, string(label), strings.TrimSpace(reasonCategory),
	))
	if err != nil {
		return model.Feedback{}, fmt.Errorf("storage: record feedback: %w", err)
	}
	return fb, nil
}

// LatestFeedback returns the newest label for key: greatest created_at, ties
// broken by greatest id. Returns ErrNotFound when key was never labeled.
func (db *DB) LatestFeedback(ctx context.Context, key string) (model.Feedback, error) {
	fb, ok, err := latestFeedback(ctx, db.pool, key)
	if err != nil {
		return model.Feedback{}, err
	}
	if !ok {
		return model.Feedback{}, fmt.Errorf("storage: feedback for %s: %w", key, ErrNotFound)
	}
	return fb, nil
}

// ListFeedback returns feedback rows newest first. An empty key lists all keys.
func (db *DB) ListFeedback(ctx context.Context, key string, limit, offset int) ([]model.Feedback, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM job_feedback WHERE $1 = '' OR dedupe_key = $1`, key,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count feedback: %w", err)
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+feedbackColumns+` FROM job_feedback
		 WHERE $1 = '' OR dedupe_key = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, key, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list feedback: %w", err)
	}
	out, err := collectFeedback(rows)
	return out, total, err
}

// FeedbackRows returns the whole log in insertion order. Used to fingerprint
// the training set.
func (db *DB) FeedbackRows(ctx context.Context) ([]model.Feedback, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+feedbackColumns+` FROM job_feedback ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: feedback rows: %w", err)
	}
	return collectFeedback(rows)
}

// FeedbackStats counts labels across the log and returns the recent newest rows.
func (db *DB) FeedbackStats(ctx context.Context, recent int) (model.FeedbackStats, error) {
	stats := model.FeedbackStats{Counts: map[model.FeedbackLabel]int{}}
	rows, err := db.pool.Query(ctx, `SELECT label, COUNT(*) FROM job_feedback GROUP BY label`)
	if err != nil {
		return stats, fmt.Errorf("storage: feedback counts: %w", err)
	}
	for rows.Next() {
		var (
			label model.FeedbackLabel
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("storage: scan feedback count: %w", err)
		}
		stats.Counts[label] = n
		stats.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("storage: feedback counts: %w", err)
	}

	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT dedupe_key) FROM job_feedback`,
	).Scan(&stats.DistinctJobs); err != nil {
		return stats, fmt.Errorf("storage: feedback distinct jobs: %w", err)
	}

	if recent > 0 {
		stats.Recent, _, err = db.ListFeedback(ctx, "", recent, 0)
		if err != nil {
			return stats, err
		}
	}
	if stats.Recent == nil {
		stats.Recent = []model.Feedback{}
	}
	return stats, nil
}

// DeleteFeedback removes one feedback row by id.
func (db *DB) DeleteFeedback(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM job_feedback WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: feedback %d: %w", id, ErrNotFound)
	}
	return nil
}

func latestFeedback(ctx context.Context, q querier, key string) (model.Feedback, bool, error) {
	fb, err := scanFeedback(q.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM job_feedback
		 WHERE dedupe_key = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Feedback{}, false, nil
		}
		return model.Feedback{}, false, fmt.Errorf("storage: latest feedback: %w", err)
	}
	return fb, true, nil
}

func scanFeedback(row pgx.Row) (model.Feedback, error) {
	var fb model.Feedback
	err := row.Scan(&fb.ID, &fb.DedupeKey, &fb.Label, &fb.ReasonCategory, &fb.CreatedAt)
	return fb, err
}

func collectFeedback(rows pgx.Rows) ([]model.Feedback, error) {
	defer rows.Close()
	out := []model.Feedback{}
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan feedback: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
