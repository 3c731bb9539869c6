package model

import (
	"time"

	"github.com/google/uuid"
)

// OverrideAction pins the inclusion decision of a dedupe key.
type OverrideAction string

const (
	OverrideInclude OverrideAction = "include"
	OverrideExclude OverrideAction = "exclude"
)

// ParseOverrideAction validates an operator-supplied override action.
func ParseOverrideAction(s string) (OverrideAction, error) {
	switch OverrideAction(s) {
	case OverrideInclude, OverrideExclude:
		return OverrideAction(s), nil
	default:
		return "", Invalid("action", "must be include or exclude, got %q", s)
	}
}

// Override is a posting-scoped directive that persists across runs until cleared.
type Override struct {
	DedupeKey string         `json:"dedupe_key"`
	Action    OverrideAction `json:"action"`
	Note      string         `json:"note"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FeedbackLabel is an operator-applied review label.
type FeedbackLabel string

const (
	LabelInclude FeedbackLabel = "include"
	LabelExclude FeedbackLabel = "exclude"
	LabelIgnore  FeedbackLabel = "ignore"
	// LabelApplied means the operator applied to the job; it displays as include.
	LabelApplied FeedbackLabel = "applied"
)

// ParseFeedbackLabel validates an operator-supplied feedback label.
func ParseFeedbackLabel(s string) (FeedbackLabel, error) {
	switch FeedbackLabel(s) {
	case LabelInclude, LabelExclude, LabelIgnore, LabelApplied:
		return FeedbackLabel(s), nil
	default:
		return "", Invalid("label", "must be include, exclude, ignore or applied, got %q", s)
	}
}

// Display folds applied into include.
func (l FeedbackLabel) Display() FeedbackLabel {
	if l == LabelApplied {
		return LabelInclude
	}
	return l
}

// Positive reports whether the label counts as a positive training example.
func (l FeedbackLabel) Positive() bool {
	return l == LabelInclude || l == LabelApplied
}

// Feedback is one append-only operator label row.
type Feedback struct {
	ID             int64         `json:"id"`
	DedupeKey      string        `json:"dedupe_key"`
	Label          FeedbackLabel `json:"label"`
	ReasonCategory string        `json:"reason_category,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// FeedbackStats summarises the feedback log.
type FeedbackStats struct {
	Counts       map[FeedbackLabel]int `json:"counts"`
	Total        int                   `json:"total"`
	DistinctJobs int                   `json:"distinct_jobs"`
	Recent       []Feedback            `json:"recent"`
}

// Positives counts include and applied labels.
func (s FeedbackStats) Positives() int { return s.Counts[LabelInclude] + s.Counts[LabelApplied] }

// Negatives counts exclude and ignore labels.
func (s FeedbackStats) Negatives() int { return s.Counts[LabelExclude] + s.Counts[LabelIgnore] }

// AuditEntry is the decision recorded for one dedupe key in one run.
type AuditEntry struct {
	RunID          uuid.UUID      `json:"run_id"`
	DedupeKey      string         `json:"dedupe_key"`
	Included       bool           `json:"included"`
	Reasons        []ReasonToken  `json:"reasons"`
	OverrideAction OverrideAction `json:"override_action"`
	FeedbackLabel  FeedbackLabel  `json:"feedback_label"`
	SettingsHash   string         `json:"settings_hash"`
	SourceType     string         `json:"source_type"`
	CompanyName    string         `json:"company_name"`
	Title          string         `json:"title"`
	Location       string         `json:"location"`
	URL            string         `json:"url"`
	WorkMode       WorkMode       `json:"work_mode"`
	MLProb         *float64       `json:"ml_prob,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// Read-time state. OverrideAction and FeedbackLabel are what the run
	// saw; these reflect the override and latest label as of the read.
	CurrentOverride OverrideAction `json:"current_override"`
	CurrentFeedback FeedbackLabel  `json:"current_feedback"`
}

// AuditOutcome filters audit listings by verdict.
type AuditOutcome string

const (
	AuditOutcomeAll      AuditOutcome = "all"
	AuditOutcomeIncluded AuditOutcome = "included"
	AuditOutcomeExcluded AuditOutcome = "excluded"
)

// AuditFilters narrows an audit listing. A nil RunID selects the latest run.
type AuditFilters struct {
	RunID   *uuid.UUID
	Outcome AuditOutcome
	Query   string
}

// InboxStatus filters the review queue.
type InboxStatus string

const (
	InboxUnreviewed InboxStatus = "unreviewed"
	InboxInclude    InboxStatus = "include"
	InboxExclude    InboxStatus = "exclude"
	InboxIgnore     InboxStatus = "ignore"
	InboxAll        InboxStatus = "all"
)

// ParseInboxStatus validates an inbox status filter; empty means unreviewed.
func ParseInboxStatus(s string) (InboxStatus, error) {
	switch InboxStatus(s) {
	case "":
		return InboxUnreviewed, nil
	case InboxUnreviewed, InboxInclude, InboxExclude, InboxIgnore, InboxAll:
		return InboxStatus(s), nil
	default:
		return "", Invalid("status", "must be unreviewed, include, exclude, ignore or all, got %q", s)
	}
}

// InboxRow is the cross-run rollup of one dedupe key's review state.
type InboxRow struct {
	DedupeKey      string         `json:"dedupe_key"`
	FirstSeen      time.Time      `json:"first_seen"`
	LastSeen       time.Time      `json:"last_seen"`
	SeenCount      int            `json:"seen_count"`
	LastOutcome    *bool          `json:"last_outcome"`
	LastRunID      *uuid.UUID     `json:"last_run_id,omitempty"`
	FeedbackLabel  FeedbackLabel  `json:"feedback_label"`
	OverrideAction OverrideAction `json:"override_action"`
	Active         bool           `json:"active"`
	CompanyName    string         `json:"company_name"`
	Title          string         `json:"title"`
	Location       string         `json:"location"`
	URL            string         `json:"url"`
	SourceType     string         `json:"source_type"`
	WorkMode       WorkMode       `json:"work_mode"`
	MLProb         *float64       `json:"ml_prob,omitempty"`
}

// InboxFilters narrows an inbox listing.
type InboxFilters struct {
	Status          InboxStatus
	Query           string
	IncludeInactive bool // ignored for InboxAll, which always lists inactive keys
}

// InboxWindow decides which keys are active: last seen at or after Since,
// and, when MaxActive > 0, among the MaxActive keys kept by the cap. The cap
// gives way on reviewed keys first, then on unreviewed ones, oldest first.
type InboxWindow struct {
	Since     time.Time
	MaxActive int
}

// InboxStats counts review queue rows.
type InboxStats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Unreviewed int `json:"unreviewed"`
	Include    int `json:"include"`
	Exclude    int `json:"exclude"`
	Ignore     int `json:"ignore"`
}
