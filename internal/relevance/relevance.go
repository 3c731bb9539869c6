// Package relevance defines the consumption contract for learned relevance
// probabilities. Training and feature extraction happen outside jobwatch; a
// trained model publishes per-key probabilities that a Scorer hands to the
// decision engine as a ranking or rescue signal.
package relevance

import (
	"context"
	"fmt"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// Signal is a relevance probability for one posting. A zero Signal (not
// Available) means "no ranking signal" and never causes an error downstream.
type Signal struct {
	Prob      float64
	ModelID   string
	Available bool
}

// None is the absent signal.
func None() Signal { return Signal{} }

// Clamped returns Prob bounded to [0, 1].
func (s Signal) Clamped() float64 {
	switch {
	case s.Prob < 0:
		return 0
	case s.Prob > 1:
		return 1
	default:
		return s.Prob
	}
}

// Scorer produces a relevance probability for a posting. Implementations must
// be safe for concurrent use and pure with respect to a fixed trained model.
type Scorer interface {
	Score(ctx context.Context, dedupeKey string, p model.Posting) (Signal, error)
}

// Noop never has a signal. Used when no model is trained or ML is disabled.
type Noop struct{}

// Score always returns the absent signal.
func (Noop) Score(context.Context, string, model.Posting) (Signal, error) { return None(), nil }

// ScoreStore looks up a published probability by dedupe key.
type ScoreStore interface {
	LookupMLScore(ctx context.Context, dedupeKey string) (model.MLScore, bool, error)
}

// Stored serves probabilities a trainer published to the score table.
type Stored struct {
	store ScoreStore
}

// NewStored creates a Scorer backed by published scores.
func NewStored(store ScoreStore) *Stored {
	return &Stored{store: store}
}

// Score returns the published probability, or no signal when the key was never scored.
func (s *Stored) Score(ctx context.Context, dedupeKey string, _ model.Posting) (Signal, error) {
	score, ok, err := s.store.LookupMLScore(ctx, dedupeKey)
	if err != nil {
		return None(), fmt.Errorf("relevance: lookup score: %w", err)
	}
	if !ok {
		return None(), nil
	}
	return Signal{Prob: score.Prob, ModelID: score.ModelID, Available: true}, nil
}

// Thresholds a feedback log must reach before ml_enabled is honoured.
const (
	MinTotalLabels = 20
	MinPositive    = 5
	MinNegative    = 5
)

// Eligibility reports whether the feedback log is large and balanced enough
// for a trained model to be trusted, with a reason when it is not.
func Eligibility(stats model.FeedbackStats) (bool, string) {
	switch {
	case stats.Total < MinTotalLabels:
		return false, fmt.Sprintf("need at least %d labels, have %d", MinTotalLabels, stats.Total)
	case stats.Positives() < MinPositive:
		return false, fmt.Sprintf("need at least %d include/applied labels, have %d", MinPositive, stats.Positives())
	case stats.Negatives() < MinNegative:
		return false, fmt.Sprintf("need at least %d exclude/ignore labels, have %d", MinNegative, stats.Negatives())
	default:
		return true, ""
	}
}
