package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// Retry policy for the per-key transaction.
const (
	keyTxRetries   = 3
	keyTxBaseDelay = 20 * time.Millisecond
)

// KeyTx is the transaction that records one dedupe key for one run: the
// seen record, the latest snapshot and the audit entry commit together or
// not at all. Reads made through it see the same snapshot as the writes.
type KeyTx struct {
	tx pgx.Tx
}

// InKeyTx runs fn in a fresh transaction and commits it. Serialization
// failures and deadlocks are retried, so fn may run more than once and must
// derive everything it writes from what it reads.
func (db *DB) InKeyTx(ctx context.Context, fn func(ctx context.Context, k *KeyTx) error) error {
	return WithRetry(ctx, keyTxRetries, keyTxBaseDelay, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin key tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(ctx, &KeyTx{tx: tx}); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage: commit key tx: %w", err)
		}
		return nil
	})
}

// Override returns the override for key, or nil when none is set.
func (k *KeyTx) Override(ctx context.Context, key string) (*model.Override, error) {
	return findOverride(ctx, k.tx, key)
}

// LatestFeedbackLabel returns the newest label for key, or "" when unlabeled.
func (k *KeyTx) LatestFeedbackLabel(ctx context.Context, key string) (model.FeedbackLabel, error) {
	fb, ok, err := latestFeedback(ctx, k.tx, key)
	if err != nil || !ok {
		return "", err
	}
	return fb.Label, nil
}

// Touch records that key was seen by runID at now. first_seen is set once;
// seen_count grows only when the key is first seen by a different run, so it
// counts distinct runs rather than fetches.
func (k *KeyTx) Touch(ctx context.Context, key string, runID uuid.UUID, now time.Time) (model.SeenRecord, error) {
	var rec model.SeenRecord
	var lastRun uuid.UUID
	err := k.tx.QueryRow(ctx,
		`INSERT INTO jobs_seen (dedupe_key, first_seen, last_seen, seen_count, last_run_id)
		 VALUES ($1, $2, $2, 1, $3)
		 ON CONFLICT (dedupe_key) DO UPDATE SET
		     last_seen = GREATEST(jobs_seen.last_seen, EXCLUDED.last_seen),
		     seen_count = jobs_seen.seen_count
		         + CASE WHEN jobs_seen.last_run_id = EXCLUDED.last_run_id THEN 0 ELSE 1 END,
		     last_run_id = EXCLUDED.last_run_id
		 RETURNING dedupe_key, first_seen, last_seen, seen_count, last_run_id`,
		key, now, runID,
	).Scan(&rec.DedupeKey, &rec.FirstSeen, &rec.LastSeen, &rec.SeenCount, &lastRun)
	if err != nil {
		return model.SeenRecord{}, fmt.Errorf("storage: touch %s: %w", key, err)
	}
	rec.LastRunID = lastRun.String()
	return rec, nil
}

// PutLatest overwrites the latest snapshot of key.
func (k *KeyTx) PutLatest(ctx context.Context, key string, p model.Posting, now time.Time) error {
	mode := p.WorkMode
	if mode == "" {
		mode = model.WorkModeUnknown
	}
	_, err := k.tx.Exec(ctx,
		`INSERT INTO jobs_latest (dedupe_key, company_name, employer_name, job_id, title, location, url,
		     description, department, team, date_posted, source_type, work_mode, past_h1b_support, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (dedupe_key) DO UPDATE SET
		     company_name = EXCLUDED.company_name, employer_name = EXCLUDED.employer_name,
		     job_id = EXCLUDED.job_id, title = EXCLUDED.title, location = EXCLUDED.location,
		     url = EXCLUDED.url, description = EXCLUDED.description, department = EXCLUDED.department,
		     team = EXCLUDED.team, date_posted = EXCLUDED.date_posted, source_type = EXCLUDED.source_type,
		     work_mode = EXCLUDED.work_mode, past_h1b_support = EXCLUDED.past_h1b_support,
		     updated_at = EXCLUDED.updated_at`,
		key, p.CompanyName, p.EmployerName, p.JobID, p.Title, p.Location, p.URL,
		p.Description, p.Department, p.Team, p.DatePosted, p.SourceType, string(mode), p.PastH1BSupport, now,
	)
	if err != nil {
		return fmt.Errorf("storage: put latest %s: %w", key, err)
	}
	return nil
}

// PutAudit writes the decision for (run, key). A key reported twice in one
// run keeps the last evaluation.
func (k *KeyTx) PutAudit(ctx context.Context, e model.AuditEntry) error {
	if e.Reasons == nil {
		e.Reasons = []model.ReasonToken{}
	}
	if e.WorkMode == "" {
		e.WorkMode = model.WorkModeUnknown
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := k.tx.Exec(ctx,
		`INSERT INTO run_job_audit (run_id, dedupe_key, included, reasons, override_action, feedback_label,
		     settings_hash, source_type, company_name, title, location, url, work_mode, ml_prob, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (run_id, dedupe_key) DO UPDATE SET
		     included = EXCLUDED.included, reasons = EXCLUDED.reasons,
		     override_action = EXCLUDED.override_action, feedback_label = EXCLUDED.feedback_label,
		     settings_hash = EXCLUDED.settings_hash, source_type = EXCLUDED.source_type,
		     company_name = EXCLUDED.company_name, title = EXCLUDED.title, location = EXCLUDED.location,
		     url = EXCLUDED.url, work_mode = EXCLUDED.work_mode, ml_prob = EXCLUDED.ml_prob,
		     created_at = EXCLUDED.created_at`,
		e.RunID, e.DedupeKey, e.Included, e.Reasons, string(e.OverrideAction), string(e.FeedbackLabel),
		e.SettingsHash, e.SourceType, e.CompanyName, e.Title, e.Location, e.URL, string(e.WorkMode), e.MLProb, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: put audit %s: %w", e.DedupeKey, err)
	}
	return nil
}
