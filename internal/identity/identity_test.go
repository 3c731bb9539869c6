package identity_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jobwatch/internal/identity"
	"github.com/ashita-ai/jobwatch/internal/model"
)

func acmePosting() model.Posting {
	return model.Posting{
		CompanyName: "Acme",
		Title:       "Frontend Engineer",
		Location:    "Austin, TX",
		URL:         "https://acme.com/jobs/123?utm=x",
		SourceType:  "greenhouse",
	}
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()
	p := acmePosting()
	k1 := identity.Resolve(p)
	k2 := identity.Resolve(p)
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, identity.KeyVersion))
}

func TestResolve_TrackingParamStripped(t *testing.T) {
	t.Parallel()
	first := acmePosting()
	later := acmePosting()
	later.URL = "https://acme.com/jobs/123"
	assert.Equal(t, identity.Resolve(first), identity.Resolve(later))

	// Without a location the URL participates as a tie-breaker, and the
	// tracking parameter still must not split the key.
	first.Location, later.Location = "", ""
	assert.Equal(t, identity.Resolve(first), identity.Resolve(later))
}

func TestResolve_SameRoleAcrossSources(t *testing.T) {
	t.Parallel()
	gh := acmePosting()
	lever := acmePosting()
	lever.SourceType = "lever"
	lever.CompanyName = "ACME, Inc."
	lever.Title = "Frontend  Engineer"
	lever.URL = "https://jobs.lever.co/acme/abc-def"
	assert.Equal(t, identity.Resolve(gh), identity.Resolve(lever))
}

func TestResolve_DifferentRolesDoNotCollide(t *testing.T) {
	t.Parallel()
	base := acmePosting()
	cases := map[string]func(p *model.Posting){
		"title":    func(p *model.Posting) { p.Title = "Backend Engineer" },
		"company":  func(p *model.Posting) { p.CompanyName = "Globex" },
		"location": func(p *model.Posting) { p.Location = "Seattle, WA" },
		"cpp":      func(p *model.Posting) { p.Title = "C++ Engineer" },
	}
	for name, mutate := range cases {
		p := base
		mutate(&p)
		assert.NotEqual(t, identity.Resolve(base), identity.Resolve(p), name)
	}
	cpp, c := base, base
	cpp.Title, c.Title = "C++ Engineer", "C Engineer"
	assert.NotEqual(t, identity.Resolve(cpp), identity.Resolve(c))
}

func TestResolve_MissingLocationUsesURL(t *testing.T) {
	t.Parallel()
	a := acmePosting()
	b := acmePosting()
	a.Location, b.Location = "", ""
	b.URL = "https://acme.com/jobs/456"
	assert.NotEqual(t, identity.Resolve(a), identity.Resolve(b))
}

func TestResolve_URLOnlyIdentity(t *testing.T) {
	t.Parallel()
	a := model.Posting{URL: "http://www.acme.com/jobs/9/?gclid=1"}
	b := model.Posting{URL: "https://acme.com/jobs/9"}
	assert.Equal(t, identity.Resolve(a), identity.Resolve(b))
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"https://acme.com/jobs/123?utm=x", "acme.com/jobs/123"},
		{"HTTP://WWW.Acme.com/jobs/123/", "acme.com/jobs/123"},
		{"https://acme.com/jobs?utm_source=li&id=7&b=2", "acme.com/jobs?b=2&id=7"},
		{"https://acme.com:443/jobs#apply", "acme.com/jobs"},
		{"https://acme.com:8443/jobs", "acme.com:8443/jobs"},
		{"acme.com/jobs/1", "acme.com/jobs/1"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, identity.CanonicalURL(tt.in), tt.in)
	}
}

func TestNormalizeCompany(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "acme", identity.NormalizeCompany("  ACME, Inc. "))
	assert.Equal(t, "at&t", identity.NormalizeCompany("AT&T"))
	// A suffix alone is still a name.
	assert.Equal(t, "co", identity.NormalizeCompany("Co"))
}

func TestSourceKeyAndUpsert(t *testing.T) {
	t.Parallel()
	existing := []model.Source{
		{Type: model.SourceGreenhouse, Slug: "acme", Notes: "old"},
		{Type: model.SourceCareerURL, URL: "https://acme.com/careers"},
		{Type: model.SourceLever, Slug: "acme"},
	}
	incoming := []model.Source{
		{Type: model.SourceGreenhouse, Slug: "ACME", Notes: "new"},
		{Type: model.SourceCareerURL, URL: "https://www.acme.com/careers/?utm_source=x", Mode: "playwright"},
		{Type: model.SourceCareerURL, URL: "https://acme.com/jobs"},
	}
	merged := identity.MergeSources(existing, incoming)
	require.Len(t, merged, 4)
	assert.Equal(t, "new", merged[0].Notes, "greenhouse replaced in place")
	assert.Equal(t, "playwright", merged[1].Mode, "career url replaced in place")
	assert.Equal(t, model.SourceLever, merged[2].Type, "untouched order kept")
	assert.Equal(t, "https://acme.com/jobs", merged[3].URL, "new key appended")
	assert.Equal(t, "old", existing[0].Notes, "input not modified")

	remaining, removed := identity.RemoveBy(merged, "lever:acme", identity.SourceKey)
	assert.True(t, removed)
	assert.Len(t, remaining, 3)
	_, removed = identity.RemoveBy(remaining, "lever:acme", identity.SourceKey)
	assert.False(t, removed)
}
