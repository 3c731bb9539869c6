package engine

import (
	"regexp"
	"strings"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// matcher finds one keyword or phrase at word boundaries, case-insensitively.
type matcher struct {
	text      string
	matchType string
	re        *regexp.Regexp
}

func newMatcher(keyword string) matcher {
	mt := model.MatchWord
	if strings.ContainsAny(keyword, " -") {
		mt = model.MatchPhrase
	}
	pattern := `(?i)(?:^|[^\p{L}\p{N}])` + phrasePattern(keyword) + `(?:$|[^\p{L}\p{N}])`
	return matcher{text: keyword, matchType: mt, re: regexp.MustCompile(pattern)}
}

// phrasePattern quotes the words of keyword and lets any run of whitespace,
// including NBSP and line breaks, separate them in the text.
func phrasePattern(keyword string) string {
	words := strings.Fields(keyword)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `[\s\p{Zs}]+`)
}

func newMatchers(keywords []string) []matcher {
	out := make([]matcher, 0, len(keywords))
	for _, k := range keywords {
		out = append(out, newMatcher(k))
	}
	return out
}

func (m matcher) in(text string) bool {
	return text != "" && m.re.MatchString(text)
}

// field is one searchable part of a posting.
type field struct {
	name string
	text string
}

// firstIn returns the first matcher that hits text, in settings order.
func firstIn(ms []matcher, text string) (matcher, bool) {
	for _, m := range ms {
		if m.in(text) {
			return m, true
		}
	}
	return matcher{}, false
}

// firstField returns the first field, in the given order, that m hits.
func firstField(m matcher, fields []field) (field, bool) {
	for _, f := range fields {
		if m.in(f.text) {
			return f, true
		}
	}
	return field{}, false
}
