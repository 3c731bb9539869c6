package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ashita-ai/jobwatch/internal/model"
)

const sqliteSchema = `
CREATE TABLE runs (
    run_id        TEXT PRIMARY KEY,
    status        TEXT NOT NULL,
    settings_hash TEXT NOT NULL,
    started_at    TEXT NOT NULL,
    finished_at   TEXT,
    stats_json    TEXT NOT NULL,
    audit_digest  TEXT
);
CREATE TABLE jobs (
    dedupe_key       TEXT PRIMARY KEY,
    first_seen       TEXT NOT NULL,
    last_seen        TEXT NOT NULL,
    seen_count       INTEGER NOT NULL,
    company_name     TEXT NOT NULL,
    title            TEXT NOT NULL,
    location         TEXT NOT NULL,
    url              TEXT NOT NULL,
    source_type      TEXT NOT NULL,
    work_mode        TEXT NOT NULL,
    past_h1b_support INTEGER NOT NULL,
    description      TEXT NOT NULL
);
CREATE TABLE audit (
    run_id          TEXT NOT NULL,
    dedupe_key      TEXT NOT NULL,
    included        INTEGER NOT NULL,
    reasons_json    TEXT NOT NULL,
    override_action TEXT NOT NULL,
    feedback_label  TEXT NOT NULL,
    settings_hash   TEXT NOT NULL,
    ml_prob         REAL,
    created_at      TEXT NOT NULL,
    PRIMARY KEY (run_id, dedupe_key)
);
`

// Snapshot is the data copied into a SQLite export.
type Snapshot struct {
	Runs  []model.Run
	Jobs  []model.JobRow
	Audit []model.AuditEntry
}

// WriteSQLite writes snap to a new SQLite database at path, replacing any
// existing file.
func WriteSQLite(ctx context.Context, path string, snap Snapshot) (err error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("export: remove old snapshot: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("export: open sqlite: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("export: close sqlite: %w", cerr)
		}
	}()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("export: create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range snap.Runs {
		stats, err := json.Marshal(r.Stats)
		if err != nil {
			return fmt.Errorf("export: encode stats: %w", err)
		}
		var finished *string
		if r.FinishedAt != nil {
			s := r.FinishedAt.UTC().Format(time.RFC3339Nano)
			finished = &s
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.RunID.String(), string(r.Status), r.SettingsHash,
			r.StartedAt.UTC().Format(time.RFC3339Nano), finished, string(stats), r.AuditDigest,
		); err != nil {
			return fmt.Errorf("export: insert run: %w", err)
		}
	}

	for _, j := range snap.Jobs {
		p := j.Posting
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.DedupeKey, j.FirstSeen.UTC().Format(time.RFC3339Nano), j.LastSeen.UTC().Format(time.RFC3339Nano),
			j.SeenCount, p.CompanyName, p.Title, p.Location, p.URL, p.SourceType, string(p.WorkMode),
			p.PastH1BSupport, p.Description,
		); err != nil {
			return fmt.Errorf("export: insert job: %w", err)
		}
	}

	for _, a := range snap.Audit {
		reasons, err := json.Marshal(model.ReasonStrings(a.Reasons))
		if err != nil {
			return fmt.Errorf("export: encode reasons: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.RunID.String(), a.DedupeKey, a.Included, string(reasons), string(a.OverrideAction),
			string(a.FeedbackLabel), a.SettingsHash, a.MLProb, a.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("export: insert audit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("export: commit: %w", err)
	}
	return nil
}
