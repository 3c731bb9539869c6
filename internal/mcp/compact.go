package mcp

import (
	"fmt"
	"math"
	"strings"

	"github.com/ashita-ai/jobwatch/internal/engine"
	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/service/review"
)

const (
	maxCompactTitle   = 120
	maxCompactReasons = 6
)

// compactInboxRow returns a minimal representation of an inbox row for MCP
// responses. Drops the posting URL's tracking noise and the bookkeeping
// timestamps an assistant does not act on.
func compactInboxRow(r model.InboxRow) map[string]any {
	m := map[string]any{
		"dedupe_key": r.DedupeKey,
		"company":    r.CompanyName,
		"title":      truncate(r.Title, maxCompactTitle),
		"location":   r.Location,
		"work_mode":  r.WorkMode,
		"seen_count": r.SeenCount,
		"url":        r.URL,
	}
	if r.LastOutcome != nil {
		m["included"] = *r.LastOutcome
	}
	if r.FeedbackLabel != "" {
		m["feedback"] = r.FeedbackLabel
	}
	if r.OverrideAction != "" {
		m["override"] = r.OverrideAction
	}
	if r.MLProb != nil {
		m["ml_prob"] = math.Round(*r.MLProb*1000) / 1000
	}
	if !r.Active {
		m["inactive"] = true
	}
	return m
}

// compactExplanation flattens an explanation into the fields an assistant
// needs to judge a decision.
func compactExplanation(ex review.Explanation) map[string]any {
	m := compactInboxRow(ex.Job)
	reasons := ex.Reasons
	if len(reasons) > maxCompactReasons {
		reasons = append(reasons[:maxCompactReasons:maxCompactReasons],
			fmt.Sprintf("(%d more)", len(ex.Reasons)-maxCompactReasons))
	}
	m["reasons"] = reasons
	if ex.Decision != nil {
		m["run_id"] = ex.Decision.RunID
		m["decided_at"] = ex.Decision.CreatedAt
	}
	if ex.Override != nil && ex.Override.Note != "" {
		m["override_note"] = ex.Override.Note
	}
	m["feedback_history"] = len(ex.Feedback)
	m["summary"] = explanationSummary(ex)
	return m
}

// compactAuditEntry returns an audit entry with humanized reasons.
func compactAuditEntry(e model.AuditEntry) map[string]any {
	m := map[string]any{
		"dedupe_key": e.DedupeKey,
		"company":    e.CompanyName,
		"title":      truncate(e.Title, maxCompactTitle),
		"included":   e.Included,
		"reasons":    engine.HumanizeAll(e.Reasons),
	}
	if e.CurrentOverride != "" {
		m["override"] = e.CurrentOverride
	}
	if e.OverrideAction != e.CurrentOverride {
		m["override_at_run"] = e.OverrideAction
	}
	if e.CurrentFeedback != "" {
		m["feedback"] = e.CurrentFeedback
	}
	return m
}

// explanationSummary is a one-sentence, template-based verdict line.
func explanationSummary(ex review.Explanation) string {
	if ex.Decision == nil {
		return "No decision recorded yet for this job."
	}
	verdict := "excluded"
	if ex.Decision.Included {
		verdict = "included"
	}
	var why string
	switch {
	case ex.Override != nil:
		why = fmt.Sprintf("pinned to %s by an override", ex.Override.Action)
	case len(ex.Reasons) > 0:
		why = ex.Reasons[len(ex.Reasons)-1]
	default:
		why = "no rule fired"
	}
	return fmt.Sprintf("Last run %s this job: %s.", verdict, strings.TrimSuffix(why, "."))
}

// generateInboxSummary creates a short human-readable synthesis of the queue.
func generateInboxSummary(stats model.InboxStats) string {
	if stats.Active == 0 {
		return "The inbox is empty."
	}
	parts := []string{fmt.Sprintf("%d active job(s), %d waiting for review.", stats.Active, stats.Unreviewed)}
	if reviewed := stats.Include + stats.Exclude + stats.Ignore; reviewed > 0 {
		parts = append(parts, fmt.Sprintf("Reviewed so far: %d include, %d exclude, %d ignore.",
			stats.Include, stats.Exclude, stats.Ignore))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
