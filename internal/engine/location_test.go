package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/jobwatch/internal/model"
)

func TestExtractStateCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		location string
		want     string
	}{
		{"Austin, TX", "TX"},
		{"New York, New York", "NY"},
		{"Charleston, West Virginia", "WV"},
		{"South San Francisco", "CA"},
		{"Seattle", "WA"},
		{"London, UK", ""},
		{"Remote", ""},
		{"Toronto, ON or Austin, TX", "TX"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractStateCode(tt.location), tt.location)
	}
}

func TestIsUSLocation(t *testing.T) {
	t.Parallel()
	assert.True(t, IsUSLocation("Denver, CO"))
	assert.True(t, IsUSLocation("Remote - USA"))
	assert.True(t, IsUSLocation("United States"))
	assert.False(t, IsUSLocation("Berlin, Germany"))
	assert.False(t, IsUSLocation(""))
	assert.False(t, IsUSLocation("   "))
}

func TestIsRemoteUS(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRemoteUS("Remote (US)"))
	assert.True(t, IsRemoteUS("remote, united states"))
	assert.False(t, IsRemoteUS("Remote - EMEA"))
	assert.False(t, IsRemoteUS("Austin, TX"))
}

func TestEffectiveWorkMode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, model.WorkModeOnsite, EffectiveWorkMode(model.Posting{WorkMode: model.WorkModeOnsite, Description: "hybrid"}))
	assert.Equal(t, model.WorkModeHybrid, EffectiveWorkMode(model.Posting{Title: "Engineer (Hybrid)", Location: "Remote"}))
	assert.Equal(t, model.WorkModeRemote, EffectiveWorkMode(model.Posting{Location: "Remote - US"}))
	assert.Equal(t, model.WorkModeOnsite, EffectiveWorkMode(model.Posting{Description: "This role is on-site in Austin."}))
	assert.Equal(t, model.WorkModeUnknown, EffectiveWorkMode(model.Posting{Title: "Engineer"}))
}

func TestMatcherPhraseAndWord(t *testing.T) {
	t.Parallel()
	m := newMatcher("c++")
	assert.Equal(t, model.MatchWord, m.matchType)
	assert.True(t, m.in("Senior C++ Engineer"))

	p := newMatcher("full-stack")
	assert.Equal(t, model.MatchPhrase, p.matchType)
	assert.True(t, p.in("Full-Stack Developer"))
	assert.False(t, p.in("full stack developer"))
}
