package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/model"
)

const inboxColumns = `dedupe_key, first_seen, last_seen, seen_count, last_outcome, last_run_id,
	feedback_label, override_action, company_name, title, location, url, source_type, work_mode, ml_prob`

// activeCTE defines the "active" set of keys for win. It must be built
// before any other argument is added to w.
func activeCTE(w *whereClause, win model.InboxWindow) string {
	limit := "ALL"
	since := w.arg(win.Since)
	if win.MaxActive > 0 {
		limit = w.arg(win.MaxActive)
	}
	return `WITH active AS (
	SELECT dedupe_key FROM job_inbox
	WHERE last_seen >= ` + since + `
	ORDER BY feedback_label = '' DESC, last_seen DESC, dedupe_key
	LIMIT ` + limit + `
) `
}

const isActive = `dedupe_key IN (SELECT dedupe_key FROM active)`

// InboxRollup returns the review state of one key, with Active computed
// against win.
func (db *DB) InboxRollup(ctx context.Context, key string, win model.InboxWindow) (model.InboxRow, error) {
	var w whereClause
	cte := activeCTE(&w, win)
	row, err := scanInbox(db.pool.QueryRow(ctx,
		cte+`SELECT `+inboxColumns+`, `+isActive+` FROM job_inbox WHERE dedupe_key = `+w.arg(key), w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.InboxRow{}, fmt.Errorf("storage: inbox %s: %w", key, ErrNotFound)
		}
		return model.InboxRow{}, fmt.Errorf("storage: inbox rollup: %w", err)
	}
	return row, nil
}

// ListInbox lists the review queue ordered by last_seen then seen_count,
// both descending. Inactive keys are listed only for InboxAll or with
// f.IncludeInactive.
func (db *DB) ListInbox(ctx context.Context, f model.InboxFilters, win model.InboxWindow, limit, offset int) ([]model.InboxRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var w whereClause
	cte := activeCTE(&w, win)
	if f.Status != model.InboxAll && !f.IncludeInactive {
		w.add(isActive)
	}
	switch f.Status {
	case "", model.InboxUnreviewed:
		w.add("feedback_label = ''")
	case model.InboxInclude, model.InboxExclude, model.InboxIgnore:
		w.add("feedback_label = " + w.arg(string(f.Status)))
	case model.InboxAll:
	default:
		return nil, 0, model.Invalid("status", "unknown inbox status %q", f.Status)
	}
	w.search(f.Query, "title", "company_name", "location", "url")

	where := w.String()
	var total int
	if err := db.pool.QueryRow(ctx, cte+`SELECT COUNT(*) FROM job_inbox`+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count inbox: %w", err)
	}

	query := cte + `SELECT ` + inboxColumns + `, ` + isActive + ` FROM job_inbox` + where +
		` ORDER BY last_seen DESC, seen_count DESC, dedupe_key` + w.page(limit, offset)
	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list inbox: %w", err)
	}
	defer rows.Close()

	out := []model.InboxRow{}
	for rows.Next() {
		r, err := scanInbox(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan inbox: %w", err)
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// InboxStats counts the review queue. Label counts cover active keys only.
func (db *DB) InboxStats(ctx context.Context, win model.InboxWindow) (model.InboxStats, error) {
	var w whereClause
	cte := activeCTE(&w, win)
	var s model.InboxStats
	err := db.pool.QueryRow(ctx, cte+
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE act),
		        COUNT(*) FILTER (WHERE act AND feedback_label = ''),
		        COUNT(*) FILTER (WHERE act AND feedback_label = 'include'),
		        COUNT(*) FILTER (WHERE act AND feedback_label = 'exclude'),
		        COUNT(*) FILTER (WHERE act AND feedback_label = 'ignore')
		 FROM (SELECT feedback_label, `+isActive+` AS act FROM job_inbox) i`, w.args...,
	).Scan(&s.Total, &s.Active, &s.Unreviewed, &s.Include, &s.Exclude, &s.Ignore)
	if err != nil {
		return model.InboxStats{}, fmt.Errorf("storage: inbox stats: %w", err)
	}
	return s, nil
}

func scanInbox(row pgx.Row) (model.InboxRow, error) {
	var r model.InboxRow
	err := row.Scan(
		&r.DedupeKey, &r.FirstSeen, &r.LastSeen, &r.SeenCount, &r.LastOutcome, &r.LastRunID,
		&r.FeedbackLabel, &r.OverrideAction, &r.CompanyName, &r.Title, &r.Location, &r.URL,
		&r.SourceType, &r.WorkMode, &r.MLProb, &r.Active,
	)
	return r, err
}
