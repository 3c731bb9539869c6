package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/model"
)

const jobColumns = `l.dedupe_key, l.company_name, l.employer_name, l.job_id, l.title, l.location, l.url,
	l.description, l.department, l.team, l.date_posted, l.source_type, l.work_mode, l.past_h1b_support,
	s.first_seen, s.last_seen, s.seen_count`

// KnownKeys returns every dedupe key seen so far. Read once at run start, it
// is the reference "new" is computed against.
func (db *DB) KnownKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.pool.Query(ctx, `SELECT dedupe_key FROM jobs_seen`)
	if err != nil {
		return nil, fmt.Errorf("storage: known keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("storage: scan key: %w", err)
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

// GetSeen returns the seen record of key.
func (db *DB) GetSeen(ctx context.Context, key string) (model.SeenRecord, error) {
	var (
		rec     model.SeenRecord
		lastRun uuid.UUID
	)
	err := db.pool.QueryRow(ctx,
		`SELECT dedupe_key, first_seen, last_seen, seen_count, last_run_id FROM jobs_seen WHERE dedupe_key = $1`, key,
	).Scan(&rec.DedupeKey, &rec.FirstSeen, &rec.LastSeen, &rec.SeenCount, &lastRun)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SeenRecord{}, fmt.Errorf("storage: seen %s: %w", key, ErrNotFound)
		}
		return model.SeenRecord{}, fmt.Errorf("storage: get seen: %w", err)
	}
	rec.LastRunID = lastRun.String()
	return rec, nil
}

// GetJob returns the latest snapshot of key joined with its seen record.
func (db *DB) GetJob(ctx context.Context, key string) (model.JobRow, error) {
	row, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs_latest l JOIN jobs_seen s ON s.dedupe_key = l.dedupe_key
		 WHERE l.dedupe_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.JobRow{}, fmt.Errorf("storage: job %s: %w", key, ErrNotFound)
		}
		return model.JobRow{}, fmt.Errorf("storage: get job: %w", err)
	}
	return row, nil
}

// ListJobs lists latest snapshots. Scope new and settings are relative to the
// latest run; with no runs recorded they return nothing.
func (db *DB) ListJobs(ctx context.Context, f model.JobFilters, limit, offset int) ([]model.JobRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var w whereClause
	switch f.Scope {
	case model.JobScopeNew, model.JobScopeSettings:
		latest, err := db.LatestRun(ctx)
		if errors.Is(err, ErrNotFound) {
			return []model.JobRow{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		if f.Scope == model.JobScopeNew {
			w.add("s.first_seen >= " + w.arg(latest.StartedAt))
		} else {
			w.add(`EXISTS (SELECT 1 FROM run_job_audit a
			     WHERE a.run_id = ` + w.arg(latest.RunID) + ` AND a.dedupe_key = l.dedupe_key AND a.included)`)
		}
	case "", model.JobScopeAll:
	default:
		return nil, 0, model.Invalid("scope", "must be new, all or settings, got %q", f.Scope)
	}
	if f.Source != "" {
		w.add("l.source_type = " + w.arg(f.Source))
	}
	if f.WorkMode != "" {
		w.add("l.work_mode = " + w.arg(string(f.WorkMode)))
	}
	if f.H1BOnly {
		w.add("l.past_h1b_support")
	}
	w.search(f.Query, "l.title", "l.company_name", "l.location")

	from := ` FROM jobs_latest l JOIN jobs_seen s ON s.dedupe_key = l.dedupe_key` + w.String()
	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*)`+from, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + from +
		` ORDER BY s.last_seen DESC, s.seen_count DESC, l.dedupe_key` + w.page(limit, offset)
	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list jobs: %w", err)
	}
	defer rows.Close()

	out := []model.JobRow{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

func scanJob(row pgx.Row) (model.JobRow, error) {
	var j model.JobRow
	p := &j.Posting
	err := row.Scan(
		&j.DedupeKey, &p.CompanyName, &p.EmployerName, &p.JobID, &p.Title, &p.Location, &p.URL,
		&p.Description, &p.Department, &p.Team, &p.DatePosted, &p.SourceType, &p.WorkMode, &p.PastH1BSupport,
		&j.FirstSeen, &j.LastSeen, &j.SeenCount,
	)
	return j, err
}
