// Package model defines the core domain types for jobwatch.
//
// Types map directly onto the Postgres tables in migrations/ and onto the
// JSON bodies of the HTTP API. They carry no behaviour beyond validation and
// small derived accessors.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of an ingestion run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	// RunStatusAborted marks a run whose context was cancelled mid-way.
	// Its stats are partial; every per-key write that committed stays.
	RunStatusAborted RunStatus = "aborted"
)

// Run is one execution of the ingestion pipeline with a fixed settings snapshot.
// Immutable once finished.
type Run struct {
	RunID        uuid.UUID  `json:"run_id"`
	Status       RunStatus  `json:"status"`
	SettingsHash string     `json:"settings_hash"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Stats        RunStats   `json:"stats"`
	AuditDigest  *string    `json:"audit_digest,omitempty"`
}

// RunStats are the aggregate counters recorded when a run finishes.
type RunStats struct {
	Fetched      int               `json:"fetched"`
	Unique       int               `json:"unique"`
	New          int               `json:"new"`
	Included     int               `json:"included"`
	Excluded     int               `json:"excluded"`
	Overridden   int               `json:"overridden"`
	Rescued      int               `json:"rescued"`
	Skipped      int               `json:"skipped"`
	SourceErrors map[string]string `json:"source_errors"`
	Logs         []string          `json:"logs,omitempty"`
}

// SettingsGroup buckets runs that were started with byte-identical canonical settings.
type SettingsGroup struct {
	SettingsHash        string    `json:"settings_hash"`
	RepresentativeRunID uuid.UUID `json:"representative_run_id"`
	LastRunStartedAt    time.Time `json:"last_run_started_at"`
	RunCount            int       `json:"run_count"`
	Label               string    `json:"label"`
}

// RunEvent is published on the runs notification channel when a run
// reaches a final status.
type RunEvent struct {
	RunID  uuid.UUID `json:"run_id"`
	Status RunStatus `json:"status"`
}
