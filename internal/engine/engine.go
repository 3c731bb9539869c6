// Package engine decides whether a posting is relevant under a settings
// snapshot. It is pure: the same posting, settings, override and relevance
// signal always produce the same Decision, including the ordered reasons.
//
// Two strategies are supported. Smart mode applies hard constraints first and
// short-circuits on the first failure, then keyword rules. Score mode turns
// every rule into a signed contribution and compares the total against
// min_score_to_include. Either way an operator override replaces the verdict
// and is appended to the reasons, leaving the automatic rationale visible.
package engine

import (
	"slices"

	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/relevance"
)

// Decision is the outcome of evaluating one posting.
type Decision struct {
	Included bool
	// Automatic is the verdict before ML rescue and overrides.
	Automatic  bool
	Reasons    []model.ReasonToken
	Score      *int
	MLProb     *float64
	Overridden bool
	Rescued    bool
}

// OverrideAction returns the applied override action, or "" when none.
func (d Decision) OverrideAction() model.OverrideAction {
	for _, r := range slices.Backward(d.Reasons) {
		if r.Kind == model.ReasonOverride {
			return r.Action
		}
	}
	return ""
}

// Input bundles everything one evaluation depends on.
type Input struct {
	Posting  model.Posting
	Settings model.Settings
	Override *model.Override
	Signal   relevance.Signal
}

// Evaluate validates the settings, compiles them and evaluates one posting.
// Callers evaluating many postings should Compile once and reuse the Rules.
func Evaluate(in Input) (Decision, error) {
	rules, err := Compile(in.Settings)
	if err != nil {
		return Decision{}, err
	}
	return rules.Evaluate(in.Posting, in.Override, in.Signal), nil
}

// Rules are compiled effective settings, safe for concurrent use.
type Rules struct {
	settings   model.Settings
	role       []matcher
	include    []matcher
	exclude    []matcher
	exceptions []matcher
	visa       []matcher
}

// Compile validates settings and prepares matchers. Malformed settings are
// rejected here so a run fails before any posting is evaluated.
func Compile(s model.Settings) (*Rules, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	eff := s.WithDefaults()
	return &Rules{
		settings:   eff,
		role:       newMatchers(eff.RoleKeywords),
		include:    newMatchers(eff.IncludeKeywords),
		exclude:    newMatchers(eff.ExcludeKeywords),
		exceptions: newMatchers(eff.ExcludeExceptions),
		visa:       newMatchers(eff.VisaRestrictionPhrases),
	}, nil
}

// Settings returns the effective settings the rules were compiled from.
func (r *Rules) Settings() model.Settings { return r.settings }

// Evaluate decides one posting. ov may be nil; an unavailable signal is
// treated as no ranking signal.
func (r *Rules) Evaluate(p model.Posting, ov *model.Override, sig relevance.Signal) Decision {
	var d Decision
	if r.settings.FilterMode == model.FilterModeScore {
		total, reasons := r.score(p)
		d.Score = &total
		d.Automatic = total >= r.settings.MinScore()
		d.Reasons = reasons
	} else {
		d.Automatic, d.Reasons = r.smart(p)
	}
	d.Included = d.Automatic

	if r.settings.MLEnabled && sig.Available {
		prob := sig.Clamped()
		d.MLProb = &prob
		threshold := r.settings.RescueThreshold()
		if r.settings.MLMode == model.MLModeRescue && ov == nil && !d.Automatic && prob >= threshold {
			d.Included = true
			d.Rescued = true
			d.Reasons = append(d.Reasons, model.MLRescueReason(prob, threshold))
		}
	}

	if ov != nil && ov.Action != "" {
		d.Included = ov.Action == model.OverrideInclude
		d.Overridden = true
		d.Reasons = append(d.Reasons, model.OverrideReason(ov.Action))
	}
	return d
}

func postingFields(p model.Posting) []field {
	return []field{
		{name: model.FieldTitle, text: p.Title},
		{name: model.FieldDescription, text: p.Description},
		{name: model.FieldLocation, text: p.Location},
	}
}

// smart applies hard constraints in order, then keyword rules.
func (r *Rules) smart(p model.Posting) (bool, []model.ReasonToken) {
	s := r.settings
	var reasons []model.ReasonToken
	fail := func(constraint, detail string) (bool, []model.ReasonToken) {
		return false, append(reasons, model.HardConstraintReason(constraint, false, detail))
	}

	remote := IsRemoteUS(p.Location)
	if s.RequireUS() && !IsUSLocation(p.Location) {
		detail := "not_us"
		if p.Location == "" {
			detail = "missing"
		}
		return fail(model.ConstraintLocation, detail)
	}

	if remote {
		if !s.RemoteUSAllowed() {
			return fail(model.ConstraintRemoteUS, "blocked")
		}
		reasons = append(reasons, model.HardConstraintReason(model.ConstraintRemoteUS, true, "allowed"))
	}

	if s.WorkMode != model.WorkModeAny {
		mode := EffectiveWorkMode(p)
		if string(mode) != s.WorkMode {
			return fail(model.ConstraintWorkMode, string(mode)+"->"+s.WorkMode)
		}
		reasons = append(reasons, model.HardConstraintReason(model.ConstraintWorkMode, true, s.WorkMode))
	}

	// Remote US postings are not tied to a state.
	if len(s.PreferredStates) > 0 && !remote {
		st := ExtractStateCode(p.Location)
		switch {
		case st == "":
			return fail(model.ConstraintState, "missing")
		case !slices.Contains(s.PreferredStates, st):
			return fail(model.ConstraintState, "not_allowed:"+st)
		default:
			reasons = append(reasons, model.HardConstraintReason(model.ConstraintState, true, st))
		}
	}

	fields := postingFields(p)
	for _, f := range fields[:2] {
		if m, ok := firstIn(r.visa, f.text); ok {
			return fail(model.ConstraintVisa, m.text)
		}
	}

	for _, f := range fields {
		for _, m := range r.exclude {
			if !m.in(f.text) {
				continue
			}
			if exc, ok := firstIn(r.exceptions, f.text); ok {
				reasons = append(reasons, model.KeywordExcludeReason(f.name, m.text, exc.text))
				continue
			}
			return false, append(reasons, model.KeywordExcludeReason(f.name, m.text, ""))
		}
	}

	if len(r.role) > 0 {
		hit, ok := firstKeyword(r.role, fields[:2])
		if !ok {
			return false, append(reasons, model.KeywordIncludeReason(model.FamilyRole, "", ""))
		}
		reasons = append(reasons, model.KeywordIncludeReason(model.FamilyRole, hit.field.name, hit.m.text))
	}

	if hit, ok := firstKeyword(r.include, fields); ok {
		reasons = append(reasons, model.KeywordIncludeReason(model.FamilyInclude, hit.field.name, hit.m.text))
	}
	return true, reasons
}

type keywordHit struct {
	m     matcher
	field field
}

// firstKeyword scans fields in order and, within a field, keywords in settings order.
func firstKeyword(ms []matcher, fields []field) (keywordHit, bool) {
	for _, f := range fields {
		if m, ok := firstIn(ms, f.text); ok {
			return keywordHit{m: m, field: f}, true
		}
	}
	return keywordHit{}, false
}

// score turns every rule into a signed contribution. Nothing short-circuits.
func (r *Rules) score(p model.Posting) (int, []model.ReasonToken) {
	s := r.settings
	var reasons []model.ReasonToken
	total := 0
	add := func(family, fieldName, matchType, matched string, delta int) {
		total += delta
		reasons = append(reasons, model.ScoreDeltaReason(family, fieldName, matchType, matched, delta))
	}

	remote := IsRemoteUS(p.Location)
	if s.RequireUS() && !IsUSLocation(p.Location) {
		add(model.FamilyLocation, model.FieldLocation, model.MatchSignal, "not_us", weightNotUS)
	}
	if remote {
		if s.RemoteUSAllowed() {
			add(model.FamilyRemote, model.FieldLocation, model.MatchSignal, "allowed", weightRemoteAllowed)
		} else {
			add(model.FamilyRemote, model.FieldLocation, model.MatchSignal, "blocked", weightRemoteBlocked)
		}
	}
	if s.WorkMode != model.WorkModeAny {
		mode := string(EffectiveWorkMode(p))
		if mode == s.WorkMode {
			add(model.FamilyWorkMode, model.FieldPosting, model.MatchSignal, mode, weightWorkModeMatch)
		} else {
			add(model.FamilyWorkMode, model.FieldPosting, model.MatchSignal, mode+"->"+s.WorkMode, weightWorkModeMiss)
		}
	}
	if len(s.PreferredStates) > 0 && !remote {
		st := ExtractStateCode(p.Location)
		switch {
		case st == "":
			add(model.FamilyState, model.FieldLocation, model.MatchSignal, "missing", weightStateMissing)
		case !slices.Contains(s.PreferredStates, st):
			add(model.FamilyState, model.FieldLocation, model.MatchSignal, "not_allowed:"+st, weightStateNotAllow)
		default:
			add(model.FamilyState, model.FieldLocation, model.MatchSignal, st, weightStateAllowed)
		}
	}

	fields := postingFields(p)
	for _, m := range r.visa {
		if f, ok := firstField(m, fields[:2]); ok {
			add(model.FamilyVisa, f.name, m.matchType, m.text, weightVisaRestricted)
			break
		}
	}

	for _, m := range r.exclude {
		f, ok := firstField(m, fields)
		if !ok {
			continue
		}
		w := keywordWeights[model.FamilyExclude][f.name]
		add(model.FamilyExclude, f.name, m.matchType, m.text, w)
		if exc, ok := firstIn(r.exceptions, f.text); ok {
			add(model.FamilyException, f.name, exc.matchType, exc.text, -w)
		}
	}

	for _, family := range []string{model.FamilyRole, model.FamilyInclude} {
		ms := r.role
		if family == model.FamilyInclude {
			ms = r.include
		}
		for _, m := range ms {
			f, ok := firstField(m, fields)
			if !ok {
				continue
			}
			if w := keywordWeights[family][f.name]; w != 0 {
				add(family, f.name, m.matchType, m.text, w)
			}
		}
	}

	if p.PastH1BSupport {
		add(model.FamilyH1B, model.FieldPosting, model.MatchSignal, "past_h1b_support", weightPastH1B)
	}

	reasons = append(reasons, model.ScoreTotalReason(total, s.MinScore()))
	return total, reasons
}
