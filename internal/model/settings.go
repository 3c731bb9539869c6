package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"
)

// FilterMode selects the decision strategy.
type FilterMode string

const (
	FilterModeSmart FilterMode = "smart"
	FilterModeScore FilterMode = "score"
)

// MLMode selects how a relevance probability is used.
type MLMode string

const (
	// MLModeRankOnly attaches the probability as a sort key and never changes the verdict.
	MLModeRankOnly MLMode = "rank_only"
	// MLModeRescue promotes automatic excludes whose probability reaches the threshold.
	MLModeRescue MLMode = "rescue"
)

// WorkModeAny disables the work mode constraint.
const WorkModeAny = "any"

// Defaults applied to absent optional settings fields.
const (
	DefaultMinScoreToInclude = 3
	DefaultMLRescueThreshold = 0.8
)

// DefaultVisaRestrictionPhrases are used when settings leave
// visa_restriction_phrases unset (null). An explicit empty list disables them.
var DefaultVisaRestrictionPhrases = []string{
	"no visa sponsorship",
	"visa sponsorship is not available",
	"sponsorship not available",
	"not eligible for visa sponsorship",
	"will not sponsor",
	"we do not sponsor",
	"no sponsorship",
	"no future sponsorship",
	"without visa sponsorship",
	"cannot sponsor",
	"unable to sponsor",
	"do not provide sponsorship",
	"must be authorized to work in the united states without sponsorship",
	"authorized to work in the us without sponsorship",
	"authorized to work in the u.s. without sponsorship",
	"work authorization without sponsorship",
	"no c2c",
	"no corp to corp",
	"no corp-to-corp",
	"us citizens only",
	"u.s. citizens only",
	"us citizen required",
	"u.s. citizen required",
	"must be a u.s. citizen",
	"must be a us citizen",
	"citizenship required",
	"security clearance",
	"clearance required",
}

// Settings is the per-user configuration consumed by the decision engine.
// Pointer fields distinguish "absent" from an explicit zero value; call
// WithDefaults before evaluating.
type Settings struct {
	RoleKeywords           []string   `json:"role_keywords"`
	IncludeKeywords        []string   `json:"include_keywords"`
	ExcludeKeywords        []string   `json:"exclude_keywords"`
	ExcludeExceptions      []string   `json:"exclude_exceptions"`
	VisaRestrictionPhrases []string   `json:"visa_restriction_phrases"`
	FilterMode             FilterMode `json:"filter_mode"`
	MinScoreToInclude      *int       `json:"min_score_to_include"`
	USOnly                 *bool      `json:"us_only"`
	AllowRemoteUS          *bool      `json:"allow_remote_us"`
	WorkMode               string     `json:"work_mode"`
	PreferredStates        []string   `json:"preferred_states"`
	USCISH1BYears          []int      `json:"uscis_h1b_years"`
	MLEnabled              bool       `json:"ml_enabled"`
	MLMode                 MLMode     `json:"ml_mode"`
	MLRescueThreshold      *float64   `json:"ml_rescue_threshold"`
}

// ParseSettings decodes a settings document. Unknown fields are ignored;
// type mismatches (e.g. a non-numeric threshold) are validation errors.
func ParseSettings(data []byte) (Settings, error) {
	var s Settings
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Settings{}, Invalid(typeErr.Field, "expected %s, got %s", typeErr.Type, typeErr.Value)
		}
		return Settings{}, Invalid("settings", "malformed JSON: %v", err)
	}
	return s, nil
}

// Validate checks enumerations and ranges. It does not apply defaults.
func (s Settings) Validate() error {
	var errs []error
	switch s.FilterMode {
	case "", FilterModeSmart, FilterModeScore:
	default:
		errs = append(errs, Invalid("filter_mode", "must be smart or score, got %q", s.FilterMode))
	}
	switch s.MLMode {
	case "", MLModeRankOnly, MLModeRescue:
	default:
		errs = append(errs, Invalid("ml_mode", "must be rank_only or rescue, got %q", s.MLMode))
	}
	switch strings.ToLower(s.WorkMode) {
	case "", WorkModeAny, string(WorkModeRemote), string(WorkModeHybrid), string(WorkModeOnsite):
	default:
		errs = append(errs, Invalid("work_mode", "must be any, remote, hybrid or onsite, got %q", s.WorkMode))
	}
	if s.MLRescueThreshold != nil && (*s.MLRescueThreshold < 0 || *s.MLRescueThreshold > 1) {
		errs = append(errs, Invalid("ml_rescue_threshold", "must be within [0, 1], got %v", *s.MLRescueThreshold))
	}
	for _, st := range s.PreferredStates {
		st = strings.ToUpper(strings.TrimSpace(st))
		if st == "" {
			continue
		}
		if !IsUSStateCode(st) {
			errs = append(errs, Invalid("preferred_states", "unknown state code %q", st))
		}
	}
	for _, y := range s.USCISH1BYears {
		if y < 2000 || y > 2100 {
			errs = append(errs, Invalid("uscis_h1b_years", "year out of range: %d", y))
		}
	}
	return errors.Join(errs...)
}

// WithDefaults returns the effective settings: defaults filled in, keyword
// lists trimmed, lowercased and deduplicated in order, state codes uppercased.
// Two documents with the same effective meaning produce identical results.
func (s Settings) WithDefaults() Settings {
	out := Settings{
		RoleKeywords:      cleanList(s.RoleKeywords),
		IncludeKeywords:   cleanList(s.IncludeKeywords),
		ExcludeKeywords:   cleanList(s.ExcludeKeywords),
		ExcludeExceptions: cleanList(s.ExcludeExceptions),
		FilterMode:        s.FilterMode,
		WorkMode:          strings.ToLower(strings.TrimSpace(s.WorkMode)),
		MLEnabled:         s.MLEnabled,
		MLMode:            s.MLMode,
	}
	if s.VisaRestrictionPhrases == nil {
		out.VisaRestrictionPhrases = slices.Clone(DefaultVisaRestrictionPhrases)
	} else {
		out.VisaRestrictionPhrases = cleanList(s.VisaRestrictionPhrases)
	}
	if out.FilterMode == "" {
		out.FilterMode = FilterModeSmart
	}
	if out.MLMode == "" {
		out.MLMode = MLModeRankOnly
	}
	if out.WorkMode == "" {
		out.WorkMode = WorkModeAny
	}
	minScore := DefaultMinScoreToInclude
	if s.MinScoreToInclude != nil {
		minScore = *s.MinScoreToInclude
	}
	out.MinScoreToInclude = &minScore

	usOnly, allowRemote := true, true
	if s.USOnly != nil {
		usOnly = *s.USOnly
	}
	if s.AllowRemoteUS != nil {
		allowRemote = *s.AllowRemoteUS
	}
	out.USOnly, out.AllowRemoteUS = &usOnly, &allowRemote

	threshold := DefaultMLRescueThreshold
	if s.MLRescueThreshold != nil {
		threshold = *s.MLRescueThreshold
	}
	out.MLRescueThreshold = &threshold

	states := make([]string, 0, len(s.PreferredStates))
	for _, st := range s.PreferredStates {
		st = strings.ToUpper(strings.TrimSpace(st))
		if st != "" && !slices.Contains(states, st) {
			states = append(states, st)
		}
	}
	out.PreferredStates = states

	years := slices.Clone(s.USCISH1BYears)
	slices.Sort(years)
	out.USCISH1BYears = slices.Compact(years)
	if out.USCISH1BYears == nil {
		out.USCISH1BYears = []int{}
	}
	return out
}

// MinScore returns the effective score threshold.
func (s Settings) MinScore() int {
	if s.MinScoreToInclude == nil {
		return DefaultMinScoreToInclude
	}
	return *s.MinScoreToInclude
}

// RescueThreshold returns the effective ML rescue threshold.
func (s Settings) RescueThreshold() float64 {
	if s.MLRescueThreshold == nil {
		return DefaultMLRescueThreshold
	}
	return *s.MLRescueThreshold
}

// RequireUS reports whether non-US locations are hard excluded.
func (s Settings) RequireUS() bool { return s.USOnly == nil || *s.USOnly }

// RemoteUSAllowed reports whether remote US postings are accepted.
func (s Settings) RemoteUSAllowed() bool { return s.AllowRemoteUS == nil || *s.AllowRemoteUS }

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.Join(strings.Fields(strings.ToLower(v)), " ")
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
