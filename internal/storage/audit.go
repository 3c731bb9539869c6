package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// auditSelect reads run_job_audit as a, with the live override and latest
// feedback label joined in. Conditions must qualify columns with a.
const auditSelect = `SELECT a.run_id, a.dedupe_key, a.included, a.reasons, a.override_action, a.feedback_label,
	a.settings_hash, a.source_type, a.company_name, a.title, a.location, a.url, a.work_mode, a.ml_prob, a.created_at,
	COALESCE(o.action, ''),
	CASE WHEN f.label = 'applied' THEN 'include' ELSE COALESCE(f.label, '') END
FROM run_job_audit a
LEFT JOIN job_overrides o ON o.dedupe_key = a.dedupe_key
LEFT JOIN LATERAL (
    SELECT jf.label FROM job_feedback jf
    WHERE jf.dedupe_key = a.dedupe_key
    ORDER BY jf.created_at DESC, jf.id DESC
    LIMIT 1
) f ON true`

// ListAudit returns the audit entries of one run. A nil RunID selects the
// latest run; ErrNotFound is returned when there are no runs at all.
func (db *DB) ListAudit(ctx context.Context, f model.AuditFilters, limit, offset int) ([]model.AuditEntry, int, uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}
	runID := uuid.Nil
	if f.RunID != nil {
		runID = *f.RunID
	} else {
		latest, err := db.LatestRun(ctx)
		if err != nil {
			return nil, 0, uuid.Nil, err
		}
		runID = latest.RunID
	}

	var w whereClause
	w.add("a.run_id = " + w.arg(runID))
	switch f.Outcome {
	case model.AuditOutcomeIncluded:
		w.add("a.included")
	case model.AuditOutcomeExcluded:
		w.add("NOT a.included")
	}
	w.search(f.Query, "a.title", "a.company_name", "a.location", "a.url", "a.dedupe_key", "a.reasons::text")

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM run_job_audit a`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, runID, fmt.Errorf("storage: count audit: %w", err)
	}

	query := auditSelect + w.String() +
		` ORDER BY a.included DESC, a.company_name, a.title, a.dedupe_key` + w.page(limit, offset)
	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, runID, fmt.Errorf("storage: list audit: %w", err)
	}
	entries, err := collectAudit(rows)
	return entries, total, runID, err
}

// AuditForRun returns every audit entry of a run ordered by key.
func (db *DB) AuditForRun(ctx context.Context, runID uuid.UUID) ([]model.AuditEntry, error) {
	rows, err := db.pool.Query(ctx,
		auditSelect+` WHERE a.run_id = $1 ORDER BY a.dedupe_key`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: audit for run: %w", err)
	}
	return collectAudit(rows)
}

// LatestAuditFor returns the most recent decision recorded for key.
func (db *DB) LatestAuditFor(ctx context.Context, key string) (model.AuditEntry, error) {
	e, err := scanAudit(db.pool.QueryRow(ctx,
		auditSelect+`
		 WHERE a.dedupe_key = $1
		 ORDER BY a.created_at DESC, a.run_id DESC
		 LIMIT 1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AuditEntry{}, fmt.Errorf("storage: audit for %s: %w", key, ErrNotFound)
		}
		return model.AuditEntry{}, fmt.Errorf("storage: latest audit: %w", err)
	}
	return e, nil
}

func scanAudit(row pgx.Row) (model.AuditEntry, error) {
	var e model.AuditEntry
	err := row.Scan(
		&e.RunID, &e.DedupeKey, &e.Included, &e.Reasons, &e.OverrideAction, &e.FeedbackLabel, &e.SettingsHash,
		&e.SourceType, &e.CompanyName, &e.Title, &e.Location, &e.URL, &e.WorkMode, &e.MLProb, &e.CreatedAt,
		&e.CurrentOverride, &e.CurrentFeedback,
	)
	return e, err
}

func collectAudit(rows pgx.Rows) ([]model.AuditEntry, error) {
	defer rows.Close()
	out := []model.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan audit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
