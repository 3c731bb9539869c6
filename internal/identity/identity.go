// Package identity derives the stable keys jobwatch uses to recognise the
// same thing across runs and write paths: dedupe keys for postings, source
// keys for company sources, and the generic keyed upsert built on them.
package identity

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/ashita-ai/jobwatch/internal/integrity"
	"github.com/ashita-ai/jobwatch/internal/model"
)

// KeyVersion prefixes every dedupe key so a future change to normalization
// can coexist with stored keys.
const KeyVersion = "v1:"

var (
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}+#&]+`)
	spaceRe = regexp.MustCompile(`\s+`)

	// Legal-entity suffixes dropped from company names so "Acme, Inc." and
	// "Acme" reported by two ATSes resolve alike.
	companySuffixes = map[string]bool{
		"inc": true, "incorporated": true, "llc": true, "ltd": true, "limited": true,
		"corp": true, "corporation": true, "co": true, "gmbh": true, "plc": true,
	}

	trackingParams = map[string]bool{
		"utm": true, "gclid": true, "fbclid": true, "msclkid": true, "mc_cid": true, "mc_eid": true,
		"ref": true, "referrer": true, "source": true, "src": true, "gh_src": true,
		"lever-source": true, "lever-origin": true, "trk": true, "trackingid": true,
	}
)

// Resolve computes the dedupe key of a posting. It is pure and total.
//
// The key hashes normalized company, title and location. The canonical URL
// only breaks ties: it is folded in when the location is empty, and it is the
// whole identity when both company and title are empty. Source type never
// participates, so the same role reported by two ATSes collapses to one key.
func Resolve(p model.Posting) string {
	company := NormalizeCompany(p.CompanyName)
	if company == "" {
		company = NormalizeCompany(p.EmployerName)
	}
	title := NormalizeTitle(p.Title)
	location := NormalizeLocation(p.Location)
	canonical := CanonicalURL(p.URL)

	switch {
	case company == "" && title == "":
		return KeyVersion + integrity.FieldDigest("url", canonical)
	case location == "":
		return KeyVersion + integrity.FieldDigest("ctl", company, title, location, canonical)
	default:
		return KeyVersion + integrity.FieldDigest("ctl", company, title, location)
	}
}

// NormalizeCompany case-folds, strips punctuation and legal suffixes, and
// collapses whitespace.
func NormalizeCompany(s string) string {
	words := strings.Fields(punctRe.ReplaceAllString(strings.ToLower(s), " "))
	for len(words) > 1 && companySuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// NormalizeTitle case-folds, strips punctuation noise and collapses whitespace.
// '+' and '#' survive so "C++" and "C#" stay distinct from "C".
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(punctRe.ReplaceAllString(strings.ToLower(s), " ")), " ")
}

// NormalizeLocation case-folds and collapses whitespace only; punctuation in
// locations ("Austin, TX" vs "Austin TX") is left to distinguish them loosely.
func NormalizeLocation(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(strings.ToLower(s), " "))
}

// CanonicalURL reduces a URL to a scheme-insensitive form: lowercase host
// without "www." or default port, no fragment, no trailing slash, tracking
// parameters removed and the remaining parameters sorted.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		lk := strings.ToLower(k)
		if trackingParams[lk] || strings.HasPrefix(lk, "utm_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(host)
	b.WriteString(path)
	for i, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for j, v := range vals {
			if i == 0 && j == 0 {
				b.WriteByte('?')
			} else {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
