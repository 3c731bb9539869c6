// Package review answers the operator's questions about individual jobs:
// the inbox queue, why a key was decided the way it was, and whether the
// feedback log can support the relevance model. It is shared by the HTTP
// handlers and the MCP tools.
package review

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashita-ai/jobwatch/internal/engine"
	"github.com/ashita-ai/jobwatch/internal/integrity"
	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/relevance"
	"github.com/ashita-ai/jobwatch/internal/storage"
)

// Service wraps the review queries.
type Service struct {
	db        *storage.DB
	activeTTL time.Duration
	maxActive int
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a review Service. Jobs last seen within activeDays are
// active, up to maxActive of them; maxActive <= 0 disables the cap.
func New(db *storage.DB, activeDays, maxActive int, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		activeTTL: time.Duration(activeDays) * 24 * time.Hour,
		maxActive: maxActive,
		logger:    logger,
		now:       time.Now,
	}
}

// Window is the current activity window of the inbox.
func (s *Service) Window() model.InboxWindow {
	return model.InboxWindow{Since: s.now().UTC().Add(-s.activeTTL), MaxActive: s.maxActive}
}

// Inbox lists the review queue.
func (s *Service) Inbox(ctx context.Context, f model.InboxFilters, limit, offset int) (model.PagedResult[model.InboxRow], error) {
	rows, total, err := s.db.ListInbox(ctx, f, s.Window(), limit, offset)
	if err != nil {
		return model.PagedResult[model.InboxRow]{}, err
	}
	return model.PagedResult[model.InboxRow]{Items: rows, Total: total, Limit: limit, Offset: offset}, nil
}

// InboxStats counts the review queue.
func (s *Service) InboxStats(ctx context.Context) (model.InboxStats, error) {
	return s.db.InboxStats(ctx, s.Window())
}

// InboxRow returns the rollup of one key.
func (s *Service) InboxRow(ctx context.Context, key string) (model.InboxRow, error) {
	return s.db.InboxRollup(ctx, key, s.Window())
}

// Explanation is everything known about why a key is where it is.
type Explanation struct {
	DedupeKey string            `json:"dedupe_key"`
	Job       model.InboxRow    `json:"job"`
	Decision  *model.AuditEntry `json:"decision,omitempty"`
	Reasons   []string          `json:"reasons"`
	Override  *model.Override   `json:"override,omitempty"`
	Feedback  []model.Feedback  `json:"feedback"`
}

// Explain gathers the latest decision with humanized reasons, the active
// override and the feedback history of key.
func (s *Service) Explain(ctx context.Context, key string) (Explanation, error) {
	row, err := s.InboxRow(ctx, key)
	if err != nil {
		return Explanation{}, err
	}
	ex := Explanation{DedupeKey: key, Job: row, Reasons: []string{}}

	entry, err := s.db.LatestAuditFor(ctx, key)
	switch {
	case err == nil:
		ex.Decision = &entry
		ex.Reasons = engine.HumanizeAll(entry.Reasons)
	case !errors.Is(err, storage.ErrNotFound):
		return Explanation{}, err
	}

	ov, err := s.db.GetOverride(ctx, key)
	switch {
	case err == nil:
		ex.Override = &ov
	case !errors.Is(err, storage.ErrNotFound):
		return Explanation{}, err
	}

	fb, _, err := s.db.ListFeedback(ctx, key, 20, 0)
	if err != nil {
		return Explanation{}, err
	}
	ex.Feedback = fb
	return ex, nil
}

// MLStatus reports feedback eligibility, the training-set fingerprint and
// the stored score table next to the user's ML settings.
func (s *Service) MLStatus(ctx context.Context, userID string) (model.MLStatus, error) {
	settings, err := s.db.GetSettings(ctx, userID)
	if err != nil {
		return model.MLStatus{}, err
	}
	eff := settings.WithDefaults()

	stats, err := s.db.FeedbackStats(ctx, 0)
	if err != nil {
		return model.MLStatus{}, err
	}
	rows, err := s.db.FeedbackRows(ctx)
	if err != nil {
		return model.MLStatus{}, err
	}
	scored, modelID, err := s.db.MLScoreSummary(ctx)
	if err != nil {
		return model.MLStatus{}, err
	}

	eligible, why := relevance.Eligibility(stats)
	return model.MLStatus{
		Eligible:        eligible,
		Reason:          why,
		Total:           stats.Total,
		Positives:       stats.Positives(),
		Negatives:       stats.Negatives(),
		TrainingSetID:   integrity.TrainingSetID(rows),
		ScoredJobs:      scored,
		ActiveModelID:   modelID,
		MLEnabled:       eff.MLEnabled,
		MLMode:          eff.MLMode,
		RescueThreshold: eff.RescueThreshold(),
	}, nil
}
