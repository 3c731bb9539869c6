package engine

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ashita-ai/jobwatch/internal/model"
)

var (
	usHintRe      = regexp.MustCompile(`(?i)\b(united states|usa|us)\b|\bu\.s\.(a\.)?`)
	stateCodeRe   = regexp.MustCompile(`(?:,\s*|\s+)([A-Z]{2})\b`)
	locationSplit = regexp.MustCompile(`(?i)\bor\b|/|\||;|•`)
	nonAlphaRe    = regexp.MustCompile(`[^A-Z\s]`)
	remoteWordRe  = regexp.MustCompile(`(?i)\bremote\b`)
)

// cityToState is a fallback for locations that name a city but no state.
var cityToState = map[string]string{
	"SEATTLE":             "WA",
	"BELLEVUE":            "WA",
	"REDMOND":             "WA",
	"SAN FRANCISCO":       "CA",
	"SOUTH SAN FRANCISCO": "CA",
	"MOUNTAIN VIEW":       "CA",
	"SUNNYVALE":           "CA",
	"PALO ALTO":           "CA",
	"SAN JOSE":            "CA",
	"LOS ANGELES":         "CA",
	"SANTA MONICA":        "CA",
	"SAN DIEGO":           "CA",
	"IRVINE":              "CA",
	"SACRAMENTO":          "CA",
	"PORTLAND":            "OR",
	"BOULDER":             "CO",
	"DENVER":              "CO",
	"AUSTIN":              "TX",
	"DALLAS":              "TX",
	"HOUSTON":             "TX",
	"SAN ANTONIO":         "TX",
	"CHICAGO":             "IL",
	"MINNEAPOLIS":         "MN",
	"NEW YORK":            "NY",
	"BROOKLYN":            "NY",
	"JERSEY CITY":         "NJ",
	"BOSTON":              "MA",
	"CAMBRIDGE":           "MA",
	"WASHINGTON":          "DC",
	"ARLINGTON":           "VA",
	"ALEXANDRIA":          "VA",
	"ATLANTA":             "GA",
	"MIAMI":               "FL",
	"PHILADELPHIA":        "PA",
	"RALEIGH":             "NC",
	"CHARLOTTE":           "NC",
}

// Longest names first so "SOUTH SAN FRANCISCO" wins over "SAN FRANCISCO"
// and "WEST VIRGINIA" over "VIRGINIA".
var (
	citiesByLength     = keysByLength(cityToState)
	stateNamesByLength = keysByLength(model.USStateNames)
)

func keysByLength(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// ExtractStateCode returns the US state code a location names, or "" when
// none can be found. Multi-location strings ("Austin, TX or Remote") are
// split and the first part that yields a state wins.
func ExtractStateCode(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}
	for _, part := range locationSplit.Split(location, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		for _, m := range stateCodeRe.FindAllStringSubmatch(part, -1) {
			if model.IsUSStateCode(m[1]) {
				return m[1]
			}
		}
		upper := strings.ToUpper(part)
		for _, name := range stateNamesByLength {
			if containsWord(upper, name) {
				return model.USStateNames[name]
			}
		}
		cleaned := strings.Join(strings.Fields(nonAlphaRe.ReplaceAllString(upper, " ")), " ")
		for _, city := range citiesByLength {
			if containsWord(cleaned, city) {
				return cityToState[city]
			}
		}
	}
	return ""
}

// containsWord reports whether needle occurs in haystack at word boundaries.
func containsWord(haystack, needle string) bool {
	for i := 0; ; {
		j := strings.Index(haystack[i:], needle)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(needle)
		if (start == 0 || !isLetter(haystack[start-1])) && (end == len(haystack) || !isLetter(haystack[end])) {
			return true
		}
		i = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// IsRemoteUS reports whether a location describes remote work within the US.
func IsRemoteUS(location string) bool {
	return remoteWordRe.MatchString(location) && usHintRe.MatchString(location)
}

// IsUSLocation reports whether a location is in the US. An empty location is not.
func IsUSLocation(location string) bool {
	if strings.TrimSpace(location) == "" {
		return false
	}
	return IsRemoteUS(location) || ExtractStateCode(location) != "" || usHintRe.MatchString(location)
}

// ClassifyWorkMode infers a work mode from free text: hybrid wins over
// remote, remote over onsite.
func ClassifyWorkMode(text string) model.WorkMode {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "hybrid"):
		return model.WorkModeHybrid
	case strings.Contains(t, "remote"):
		return model.WorkModeRemote
	case strings.Contains(t, "on-site"), strings.Contains(t, "onsite"), strings.Contains(t, "on site"):
		return model.WorkModeOnsite
	default:
		return model.WorkModeUnknown
	}
}

// EffectiveWorkMode returns the reported work mode, or one classified from
// the title, location and the head of the description when none was reported.
func EffectiveWorkMode(p model.Posting) model.WorkMode {
	if p.WorkMode != "" && p.WorkMode != model.WorkModeUnknown {
		return p.WorkMode
	}
	desc := p.Description
	if len(desc) > 500 {
		desc = desc[:500]
	}
	return ClassifyWorkMode(p.Title + " " + p.Location + " " + desc)
}
