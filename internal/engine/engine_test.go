package engine_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jobwatch/internal/engine"
	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/relevance"
)

func ptr[T any](v T) *T { return &v }

func austin(title string) model.Posting {
	return model.Posting{
		CompanyName: "Acme",
		Title:       title,
		Location:    "Austin, TX",
		URL:         "https://acme.com/jobs/123",
		SourceType:  "greenhouse",
	}
}

func evaluate(t *testing.T, p model.Posting, s model.Settings, ov *model.Override, sig relevance.Signal) engine.Decision {
	t.Helper()
	d, err := engine.Evaluate(engine.Input{Posting: p, Settings: s, Override: ov, Signal: sig})
	require.NoError(t, err)
	return d
}

func TestSmart_ExcludeExceptionScenario(t *testing.T) {
	t.Parallel()
	s := model.Settings{
		FilterMode:        model.FilterModeSmart,
		ExcludeKeywords:   []string{"staff"},
		ExcludeExceptions: []string{"staff frontend"},
	}
	d := evaluate(t, austin("Staff Frontend Engineer"), s, nil, relevance.None())

	assert.True(t, d.Included)
	require.Len(t, d.Reasons, 1)
	r := d.Reasons[0]
	assert.Equal(t, model.ReasonKeywordExclude, r.Kind)
	assert.Equal(t, "staff", r.Matched)
	assert.Equal(t, "staff frontend", r.Exception)
	assert.Equal(t, "exclude:title:staff:except:staff frontend", r.String())
}

func TestSmart_ExcludeWithoutException(t *testing.T) {
	t.Parallel()
	s := model.Settings{ExcludeKeywords: []string{"staff"}, ExcludeExceptions: []string{"staff frontend"}}

	d := evaluate(t, austin("Staff Backend Engineer"), s, nil, relevance.None())
	assert.False(t, d.Included)
	assert.Equal(t, []string{"exclude:title:staff"}, model.ReasonStrings(d.Reasons))

	// The exception must match in the same field as the exclude hit.
	p := austin("Staff Engineer")
	p.Description = "You will own our staff frontend tooling."
	d = evaluate(t, p, s, nil, relevance.None())
	assert.False(t, d.Included)
	assert.Equal(t, "exclude:title:staff", d.Reasons[0].String())
}

func TestSmart_PhrasesTolerateWhitespace(t *testing.T) {
	t.Parallel()
	exception := model.Settings{ExcludeKeywords: []string{"staff"}, ExcludeExceptions: []string{"staff frontend"}}
	tests := []struct {
		name  string
		title string
	}{
		{"single space", "Staff Frontend Engineer"},
		{"double space", "Staff  Frontend Engineer"},
		{"nbsp", "Staff\u00a0Frontend Engineer"},
		{"newline", "Staff\nFrontend Engineer"},
		{"tab", "Staff\tFrontend Engineer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := evaluate(t, austin(tt.title), exception, nil, relevance.None())
			assert.True(t, d.Included)
			assert.Equal(t, []string{"exclude:title:staff:except:staff frontend"}, model.ReasonStrings(d.Reasons))
		})
	}

	visa := []string{
		"We will not\nsponsor visas.",
		"We will  not sponsor visas.",
		"We will\u00a0not\u00a0sponsor visas.",
	}
	for _, desc := range visa {
		p := austin("Engineer")
		p.Description = desc
		d := evaluate(t, p, model.Settings{}, nil, relevance.None())
		assert.False(t, d.Included, "description %q", desc)
		assert.Equal(t, "hard:visa:fail:will not sponsor", d.Reasons[len(d.Reasons)-1].String(), "description %q", desc)
	}

	d := evaluate(t, austin("Staff Frontendish Engineer"), exception, nil, relevance.None())
	assert.False(t, d.Included, "words still end at boundaries")
}

func TestSmart_KeywordsMatchWholeWords(t *testing.T) {
	t.Parallel()
	s := model.Settings{ExcludeKeywords: []string{"intern"}}
	d := evaluate(t, austin("Internal Tools Engineer"), s, nil, relevance.None())
	assert.True(t, d.Included, "intern must not match inside internal")
}

func TestSmart_RoleKeywords(t *testing.T) {
	t.Parallel()
	s := model.Settings{RoleKeywords: []string{"backend", "frontend"}, IncludeKeywords: []string{"react"}}

	p := austin("Frontend Engineer")
	p.Description = "React and TypeScript"
	d := evaluate(t, p, s, nil, relevance.None())
	assert.True(t, d.Included)
	assert.Equal(t, []string{"role:title:frontend", "include:description:react"}, model.ReasonStrings(d.Reasons))

	d = evaluate(t, austin("Data Scientist"), s, nil, relevance.None())
	assert.False(t, d.Included)
	assert.Equal(t, []string{"role:no_match"}, model.ReasonStrings(d.Reasons))
}

func TestSmart_IncludeKeywordsDoNotForceInclusion(t *testing.T) {
	t.Parallel()
	s := model.Settings{RoleKeywords: []string{"backend"}, IncludeKeywords: []string{"frontend"}}
	d := evaluate(t, austin("Frontend Engineer"), s, nil, relevance.None())
	assert.False(t, d.Included)
}

func TestSmart_HardConstraints(t *testing.T) {
	t.Parallel()
	no := false
	tests := []struct {
		name     string
		settings model.Settings
		posting  func() model.Posting
		included bool
		reasons  []string
	}{
		{
			name:     "non US location",
			settings: model.Settings{},
			posting:  func() model.Posting { p := austin("Engineer"); p.Location = "London, UK"; return p },
			reasons:  []string{"hard:location:fail:not_us"},
		},
		{
			name:     "missing location",
			settings: model.Settings{},
			posting:  func() model.Posting { p := austin("Engineer"); p.Location = ""; return p },
			reasons:  []string{"hard:location:fail:missing"},
		},
		{
			name:     "us only disabled",
			settings: model.Settings{USOnly: &no},
			posting:  func() model.Posting { p := austin("Engineer"); p.Location = "London, UK"; return p },
			included: true,
		},
		{
			name:     "remote blocked",
			settings: model.Settings{AllowRemoteUS: &no},
			posting:  func() model.Posting { p := austin("Engineer"); p.Location = "Remote - US"; return p },
			reasons:  []string{"hard:remote_us:fail:blocked"},
		},
		{
			name:     "remote skips state preference",
			settings: model.Settings{PreferredStates: []string{"ca"}},
			posting:  func() model.Posting { p := austin("Engineer"); p.Location = "Remote, United States"; return p },
			included: true,
			reasons:  []string{"hard:remote_us:pass:allowed"},
		},
		{
			name:     "work mode mismatch",
			settings: model.Settings{WorkMode: "remote"},
			posting: func() model.Posting {
				p := austin("Engineer")
				p.WorkMode = model.WorkModeOnsite
				return p
			},
			reasons: []string{"hard:work_mode:fail:onsite->remote"},
		},
		{
			name:     "work mode classified from text",
			settings: model.Settings{WorkMode: "hybrid"},
			posting: func() model.Posting {
				p := austin("Engineer")
				p.Description = "This is a hybrid role, three days in office."
				return p
			},
			included: true,
			reasons:  []string{"hard:work_mode:pass:hybrid"},
		},
		{
			name:     "state not preferred",
			settings: model.Settings{PreferredStates: []string{"WA"}},
			posting:  func() model.Posting { return austin("Engineer") },
			reasons:  []string{"hard:state:fail:not_allowed:TX"},
		},
		{
			name:     "state from city",
			settings: model.Settings{PreferredStates: []string{"WA"}},
			posting:  func() model.Posting { p := austin("Engineer"); p.Location = "Seattle"; return p },
			included: true,
			reasons:  []string{"hard:state:pass:WA"},
		},
		{
			name:     "visa restriction default phrase",
			settings: model.Settings{},
			posting: func() model.Posting {
				p := austin("Engineer")
				p.Description = "Unfortunately we will not sponsor visas for this role."
				return p
			},
			reasons: []string{"hard:visa:fail:will not sponsor"},
		},
		{
			name:     "visa phrases disabled by explicit empty list",
			settings: model.Settings{VisaRestrictionPhrases: []string{}},
			posting: func() model.Posting {
				p := austin("Engineer")
				p.Description = "Unfortunately we will not sponsor visas for this role."
				return p
			},
			included: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := evaluate(t, tt.posting(), tt.settings, nil, relevance.None())
			assert.Equal(t, tt.included, d.Included)
			if tt.reasons == nil {
				assert.Empty(t, d.Reasons)
			} else {
				assert.Equal(t, tt.reasons, model.ReasonStrings(d.Reasons))
			}
		})
	}
}

func TestScore_BoundaryIsInclusive(t *testing.T) {
	t.Parallel()
	s := model.Settings{
		FilterMode:        model.FilterModeScore,
		MinScoreToInclude: ptr(3),
		RoleKeywords:      []string{"frontend"},
		IncludeKeywords:   []string{"react"},
	}

	exactlyThree := evaluate(t, austin("Frontend Engineer"), s, nil, relevance.None())
	require.NotNil(t, exactlyThree.Score)
	assert.Equal(t, 3, *exactlyThree.Score)
	assert.True(t, exactlyThree.Included)
	assert.Equal(t, []string{
		"score:delta:role:title:word:frontend:+3",
		"score:total:3:min:3",
	}, model.ReasonStrings(exactlyThree.Reasons))

	p := austin("Web Engineer")
	p.Description = "Frontend work with React"
	two := evaluate(t, p, s, nil, relevance.None())
	require.NotNil(t, two.Score)
	assert.Equal(t, 2, *two.Score)
	assert.False(t, two.Included)
}

func TestScore_EveryRuleContributes(t *testing.T) {
	t.Parallel()
	s := model.Settings{
		FilterMode:        model.FilterModeScore,
		RoleKeywords:      []string{"frontend"},
		ExcludeKeywords:   []string{"staff"},
		ExcludeExceptions: []string{"staff frontend"},
		PreferredStates:   []string{"WA"},
	}
	p := austin("Staff Frontend Engineer")
	p.PastH1BSupport = true
	d := evaluate(t, p, s, nil, relevance.None())

	// -3 state, -4 exclude, +4 exception, +3 role, +1 h1b
	require.NotNil(t, d.Score)
	assert.Equal(t, 1, *d.Score)
	assert.False(t, d.Included)
	assert.Equal(t, []string{
		"score:delta:state:location:signal:not_allowed:TX:-3",
		"score:delta:exclude:title:word:staff:-4",
		"score:delta:exception:title:phrase:staff frontend:+4",
		"score:delta:role:title:word:frontend:+3",
		"score:delta:h1b:posting:signal:past_h1b_support:+1",
		"score:total:1:min:3",
	}, model.ReasonStrings(d.Reasons))
}

func TestOverride_ReplacesVerdictAndKeepsReasons(t *testing.T) {
	t.Parallel()
	s := model.Settings{RoleKeywords: []string{"backend"}}
	p := austin("Frontend Engineer")

	auto := evaluate(t, p, s, nil, relevance.None())
	require.False(t, auto.Included)

	ov := &model.Override{DedupeKey: "k", Action: model.OverrideInclude}
	d := evaluate(t, p, s, ov, relevance.None())
	assert.True(t, d.Included)
	assert.False(t, d.Automatic)
	assert.True(t, d.Overridden)
	assert.Equal(t, model.OverrideInclude, d.OverrideAction())
	assert.Equal(t, []string{"role:no_match", "override:force_include"}, model.ReasonStrings(d.Reasons))

	s.RoleKeywords = []string{"frontend"}
	ov.Action = model.OverrideExclude
	d = evaluate(t, p, s, ov, relevance.None())
	assert.False(t, d.Included)
	assert.True(t, d.Automatic)
	assert.Equal(t, []string{"role:title:frontend", "override:force_exclude"}, model.ReasonStrings(d.Reasons))
}

func TestML_DisabledNeverChangesVerdict(t *testing.T) {
	t.Parallel()
	base := model.Settings{RoleKeywords: []string{"backend"}, MLMode: model.MLModeRescue, MLRescueThreshold: ptr(0.5)}
	p := austin("Frontend Engineer")
	for _, prob := range []float64{0, 0.49, 0.5, 0.99, 1} {
		d := evaluate(t, p, base, nil, relevance.Signal{Prob: prob, Available: true})
		assert.False(t, d.Included, "prob %v", prob)
		assert.Nil(t, d.MLProb)
		assert.False(t, d.Rescued)
	}
}

func TestML_RankOnlyAttachesProbability(t *testing.T) {
	t.Parallel()
	s := model.Settings{RoleKeywords: []string{"backend"}, MLEnabled: true}
	d := evaluate(t, austin("Frontend Engineer"), s, nil, relevance.Signal{Prob: 0.95, Available: true})
	assert.False(t, d.Included)
	require.NotNil(t, d.MLProb)
	assert.InDelta(t, 0.95, *d.MLProb, 1e-9)

	d = evaluate(t, austin("Frontend Engineer"), s, nil, relevance.None())
	assert.Nil(t, d.MLProb, "unavailable scorer is no signal")
}

func TestML_Rescue(t *testing.T) {
	t.Parallel()
	s := model.Settings{
		RoleKeywords:      []string{"backend"},
		MLEnabled:         true,
		MLMode:            model.MLModeRescue,
		MLRescueThreshold: ptr(0.8),
	}
	p := austin("Frontend Engineer")

	d := evaluate(t, p, s, nil, relevance.Signal{Prob: 0.9, Available: true})
	assert.True(t, d.Included)
	assert.True(t, d.Rescued)
	assert.False(t, d.Automatic)
	assert.Equal(t, []string{"role:no_match", "ml:rescue:0.90:min:0.80"}, model.ReasonStrings(d.Reasons))

	d = evaluate(t, p, s, nil, relevance.Signal{Prob: 0.79, Available: true})
	assert.False(t, d.Included)

	// Rescue never flips an operator exclude.
	ov := &model.Override{Action: model.OverrideExclude}
	d = evaluate(t, p, s, ov, relevance.Signal{Prob: 0.99, Available: true})
	assert.False(t, d.Included)
	assert.False(t, d.Rescued)
	assert.Equal(t, []string{"role:no_match", "override:force_exclude"}, model.ReasonStrings(d.Reasons))
}

func TestEvaluate_MalformedSettings(t *testing.T) {
	t.Parallel()
	_, err := engine.Evaluate(engine.Input{
		Posting:  austin("Engineer"),
		Settings: model.Settings{FilterMode: "fuzzy"},
	})
	require.Error(t, err)
	var verr *model.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "filter_mode", verr.Field)

	_, err = model.ParseSettings([]byte(`{"min_score_to_include": "three"}`))
	require.Error(t, err)
	assert.True(t, errors.As(err, &verr))
}

func TestHumanize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Location is outside the US",
		engine.Humanize(model.HardConstraintReason(model.ConstraintLocation, false, "not_us")))
	assert.Equal(t, `Excluded keyword "staff" in title, allowed by exception "staff frontend"`,
		engine.Humanize(model.KeywordExcludeReason(model.FieldTitle, "staff", "staff frontend")))
	assert.Equal(t, "Score 3 meets threshold 3", engine.Humanize(model.ScoreTotalReason(3, 3)))
	assert.Equal(t, "Operator forced include", engine.Humanize(model.OverrideReason(model.OverrideInclude)))
	assert.Equal(t, "Work mode onsite does not match preference remote",
		engine.Humanize(model.HardConstraintReason(model.ConstraintWorkMode, false, "onsite->remote")))
}
