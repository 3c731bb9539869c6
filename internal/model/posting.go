package model

import "time"

// WorkMode is where the work happens.
type WorkMode string

const (
	WorkModeRemote  WorkMode = "remote"
	WorkModeHybrid  WorkMode = "hybrid"
	WorkModeOnsite  WorkMode = "onsite"
	WorkModeUnknown WorkMode = "unknown"
)

// Posting is a raw job posting as reported by a source for one run.
// It is persisted only through the latest snapshot and the audit log.
type Posting struct {
	CompanyName    string   `json:"company_name"`
	EmployerName   string   `json:"employer_name,omitempty"`
	JobID          string   `json:"job_id,omitempty"`
	Title          string   `json:"title"`
	Location       string   `json:"location"`
	URL            string   `json:"url"`
	Description    string   `json:"description,omitempty"`
	Department     string   `json:"department,omitempty"`
	Team           string   `json:"team,omitempty"`
	DatePosted     string   `json:"date_posted,omitempty"`
	SourceType     string   `json:"source_type"`
	WorkMode       WorkMode `json:"work_mode,omitempty"`
	PastH1BSupport bool     `json:"past_h1b_support"`
}

// Complete reports whether the posting carries enough fields to be identified
// and evaluated. Incomplete postings are skipped and counted as source errors.
func (p Posting) Complete() bool {
	return p.Title != "" && (p.CompanyName != "" || p.URL != "")
}

// SeenRecord is the cross-run first/last seen state of a dedupe key.
type SeenRecord struct {
	DedupeKey string    `json:"dedupe_key"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	SeenCount int       `json:"seen_count"`
	LastRunID string    `json:"last_run_id"`
}

// JobScope selects which latest snapshots a job listing returns.
type JobScope string

const (
	// JobScopeNew lists keys first seen during the latest run.
	JobScopeNew JobScope = "new"
	// JobScopeAll lists every known key.
	JobScopeAll JobScope = "all"
	// JobScopeSettings lists keys included by the latest run's settings.
	JobScopeSettings JobScope = "settings"
)

// JobRow is a latest snapshot joined with its seen record.
type JobRow struct {
	DedupeKey string    `json:"dedupe_key"`
	Posting   Posting   `json:"posting"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	SeenCount int       `json:"seen_count"`
}

// JobFilters narrows a job listing.
type JobFilters struct {
	Scope    JobScope
	Source   string
	WorkMode WorkMode
	H1BOnly  bool
	Query    string
}

// MLScore is an externally computed relevance probability for a dedupe key.
type MLScore struct {
	DedupeKey string    `json:"dedupe_key"`
	Prob      float64   `json:"ml_prob"`
	ModelID   string    `json:"model_id"`
	UpdatedAt time.Time `json:"updated_at"`
}
