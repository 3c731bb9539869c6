package engine

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// Humanize renders a reason token as a sentence for operators. It is purely
// presentational; audit tooling should use ReasonToken fields or String.
func Humanize(r model.ReasonToken) string {
	switch r.Kind {
	case model.ReasonHardConstraint:
		return humanizeHard(r)
	case model.ReasonKeywordExclude:
		if r.Excepted() {
			return fmt.Sprintf("Excluded keyword %q in %s, allowed by exception %q", r.Matched, r.Field, r.Exception)
		}
		return fmt.Sprintf("Excluded keyword %q found in %s", r.Matched, r.Field)
	case model.ReasonKeywordInclude:
		if r.Matched == "" {
			return fmt.Sprintf("No %s keyword matched", r.Family)
		}
		return fmt.Sprintf("Matched %s keyword %q in %s", r.Family, r.Matched, r.Field)
	case model.ReasonScoreDelta:
		return fmt.Sprintf("%+d %s (%s %q in %s)", r.Delta, r.Family, r.MatchType, r.Matched, r.Field)
	case model.ReasonScoreTotal:
		verdict := "below"
		if r.Total >= r.Threshold {
			verdict = "meets"
		}
		return fmt.Sprintf("Score %d %s threshold %d", r.Total, verdict, r.Threshold)
	case model.ReasonOverride:
		return fmt.Sprintf("Operator forced %s", r.Action)
	case model.ReasonMLRescue:
		return fmt.Sprintf("Rescued by relevance model (p=%.2f, threshold %.2f)", r.Prob, r.ProbThreshold)
	default:
		return r.String()
	}
}

func humanizeHard(r model.ReasonToken) string {
	switch r.Constraint {
	case model.ConstraintLocation:
		if r.Detail == "missing" {
			return "Location missing; US-only is enabled"
		}
		return "Location is outside the US"
	case model.ConstraintRemoteUS:
		if r.Passed {
			return "Remote (US) allowed"
		}
		return "Remote (US) postings are blocked"
	case model.ConstraintWorkMode:
		if r.Passed {
			return fmt.Sprintf("Work mode is %s", r.Detail)
		}
		from, to, _ := strings.Cut(r.Detail, "->")
		return fmt.Sprintf("Work mode %s does not match preference %s", from, to)
	case model.ConstraintState:
		switch {
		case r.Passed:
			return fmt.Sprintf("State %s is preferred", r.Detail)
		case r.Detail == "missing":
			return "No US state found in location"
		default:
			return fmt.Sprintf("State %s is not preferred", strings.TrimPrefix(r.Detail, "not_allowed:"))
		}
	case model.ConstraintVisa:
		return fmt.Sprintf("Visa restriction phrase %q", r.Detail)
	default:
		return r.String()
	}
}

// HumanizeAll renders every reason in order.
func HumanizeAll(reasons []model.ReasonToken) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = Humanize(r)
	}
	return out
}
