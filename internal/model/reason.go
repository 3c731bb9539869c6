package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ReasonKind tags the variant carried by a ReasonToken.
type ReasonKind string

const (
	ReasonHardConstraint ReasonKind = "hard"
	ReasonKeywordExclude ReasonKind = "exclude"
	ReasonKeywordInclude ReasonKind = "include"
	ReasonScoreDelta     ReasonKind = "score_delta"
	ReasonScoreTotal     ReasonKind = "score_total"
	ReasonOverride       ReasonKind = "override"
	ReasonMLRescue       ReasonKind = "ml_rescue"
)

// Constraint names used by HardConstraint reasons.
const (
	ConstraintLocation = "location"
	ConstraintRemoteUS = "remote_us"
	ConstraintWorkMode = "work_mode"
	ConstraintState    = "state"
	ConstraintVisa     = "visa"
)

// Keyword families. Each family is one list in Settings, plus the derived
// families used by score mode.
const (
	FamilyRole      = "role"
	FamilyInclude   = "include"
	FamilyExclude   = "exclude"
	FamilyException = "exception"
	FamilyVisa      = "visa"
	FamilyLocation  = "location"
	FamilyRemote    = "remote_us"
	FamilyWorkMode  = "work_mode"
	FamilyState     = "state"
	FamilyH1B       = "h1b"
)

// Fields a keyword can match in.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldLocation    = "location"
	FieldPosting     = "posting"
)

// Match types recorded per contribution.
const (
	MatchWord   = "word"
	MatchPhrase = "phrase"
	MatchSignal = "signal"
)

// ReasonToken is one structured entry in a decision's ordered reason list.
// Only the fields of the tagged Kind are populated; String renders the
// stable colon-delimited form used by audit tooling.
type ReasonToken struct {
	Kind ReasonKind `json:"kind"`

	// HardConstraint
	Constraint string `json:"constraint,omitempty"`
	Passed     bool   `json:"passed,omitempty"`
	Detail     string `json:"detail,omitempty"`

	// KeywordExclude, KeywordInclude, ScoreDelta
	Family    string `json:"family,omitempty"`
	Field     string `json:"field,omitempty"`
	MatchType string `json:"match_type,omitempty"`
	Matched   string `json:"matched,omitempty"`
	Exception string `json:"exception,omitempty"`
	Delta     int    `json:"delta,omitempty"`

	// ScoreTotal
	Total     int `json:"total,omitempty"`
	Threshold int `json:"threshold,omitempty"`

	// Override
	Action OverrideAction `json:"action,omitempty"`

	// MLRescue
	Prob          float64 `json:"prob,omitempty"`
	ProbThreshold float64 `json:"prob_threshold,omitempty"`
}

// HardConstraintReason records the verdict of one hard constraint.
func HardConstraintReason(constraint string, passed bool, detail string) ReasonToken {
	return ReasonToken{Kind: ReasonHardConstraint, Constraint: constraint, Passed: passed, Detail: detail}
}

// KeywordExcludeReason records an exclude keyword hit, optionally neutralised by exception.
func KeywordExcludeReason(field, matched, exception string) ReasonToken {
	return ReasonToken{Kind: ReasonKeywordExclude, Family: FamilyExclude, Field: field, Matched: matched, Exception: exception}
}

// KeywordIncludeReason records a role or include keyword match. An empty
// matched value records that the family had no match at all.
func KeywordIncludeReason(family, field, matched string) ReasonToken {
	return ReasonToken{Kind: ReasonKeywordInclude, Family: family, Field: field, Matched: matched}
}

// ScoreDeltaReason records one signed score contribution.
func ScoreDeltaReason(family, field, matchType, matched string, delta int) ReasonToken {
	return ReasonToken{Kind: ReasonScoreDelta, Family: family, Field: field, MatchType: matchType, Matched: matched, Delta: delta}
}

// ScoreTotalReason records the final score against the threshold.
func ScoreTotalReason(total, threshold int) ReasonToken {
	return ReasonToken{Kind: ReasonScoreTotal, Total: total, Threshold: threshold}
}

// OverrideReason records that an operator override pinned the verdict.
func OverrideReason(action OverrideAction) ReasonToken {
	return ReasonToken{Kind: ReasonOverride, Action: action}
}

// MLRescueReason records that a relevance probability promoted an automatic exclude.
func MLRescueReason(prob, threshold float64) ReasonToken {
	return ReasonToken{Kind: ReasonMLRescue, Prob: prob, ProbThreshold: threshold}
}

// Excepted reports whether an exclude hit was neutralised by an exception phrase.
func (r ReasonToken) Excepted() bool {
	return r.Kind == ReasonKeywordExclude && r.Exception != ""
}

// String renders the token in its stable colon-delimited form, e.g.
// "hard:location:fail:not_us", "exclude:title:staff:except:staff frontend",
// "score:delta:role:title:word:frontend:+3", "override:force_include".
func (r ReasonToken) String() string {
	switch r.Kind {
	case ReasonHardConstraint:
		verdict := "fail"
		if r.Passed {
			verdict = "pass"
		}
		return joinToken("hard", r.Constraint, verdict, r.Detail)
	case ReasonKeywordExclude:
		if r.Exception != "" {
			return joinToken("exclude", r.Field, r.Matched, "except", r.Exception)
		}
		return joinToken("exclude", r.Field, r.Matched)
	case ReasonKeywordInclude:
		if r.Matched == "" {
			return joinToken(r.Family, "no_match")
		}
		return joinToken(r.Family, r.Field, r.Matched)
	case ReasonScoreDelta:
		return joinToken("score", "delta", r.Family, r.Field, r.MatchType, r.Matched, fmt.Sprintf("%+d", r.Delta))
	case ReasonScoreTotal:
		return joinToken("score", "total", strconv.Itoa(r.Total), "min", strconv.Itoa(r.Threshold))
	case ReasonOverride:
		return joinToken("override", "force_"+string(r.Action))
	case ReasonMLRescue:
		return joinToken("ml", "rescue", strconv.FormatFloat(r.Prob, 'f', 2, 64), "min", strconv.FormatFloat(r.ProbThreshold, 'f', 2, 64))
	default:
		return string(r.Kind)
	}
}

func joinToken(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

// ReasonStrings renders a reason list in order.
func ReasonStrings(reasons []ReasonToken) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.String()
	}
	return out
}
