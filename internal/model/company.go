package model

import (
	"strings"
	"time"
)

// SourceType names a kind of job source adapter.
type SourceType string

const (
	SourceCareerURL  SourceType = "career_url"
	SourceGreenhouse SourceType = "greenhouse"
	SourceLever      SourceType = "lever"
)

// DefaultSourcePriority is the fetch order used when a company sets none.
var DefaultSourcePriority = []SourceType{SourceCareerURL, SourceGreenhouse, SourceLever}

// FetchMode controls how many of a company's sources are fetched per run.
type FetchMode string

const (
	// FetchAll fetches every source.
	FetchAll FetchMode = "all"
	// FetchFallback walks sources in priority order and stops at the first
	// one that yields postings.
	FetchFallback FetchMode = "fallback"
)

// Source is one typed job source of a company.
type Source struct {
	Type  SourceType `json:"type" yaml:"type"`
	URL   string     `json:"url,omitempty" yaml:"url,omitempty"`
	Slug  string     `json:"slug,omitempty" yaml:"slug,omitempty"`
	Mode  string     `json:"mode,omitempty" yaml:"mode,omitempty"`
	Notes string     `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Validate checks that the source carries the identifier its type needs.
func (s Source) Validate() error {
	switch s.Type {
	case SourceCareerURL:
		if strings.TrimSpace(s.URL) == "" {
			return Invalid("sources.url", "career_url source requires a url")
		}
	case SourceGreenhouse, SourceLever:
		if strings.TrimSpace(s.Slug) == "" {
			return Invalid("sources.slug", "%s source requires a slug", s.Type)
		}
	default:
		return Invalid("sources.type", "unsupported source type %q", s.Type)
	}
	return nil
}

// Company is a tracked employer with its ordered, deduplicated sources.
type Company struct {
	ID             int64        `json:"id"`
	UserID         string       `json:"user_id"`
	CompanyName    string       `json:"company_name"`
	EmployerName   string       `json:"employer_name"`
	Sources        []Source     `json:"sources"`
	SourcePriority []SourceType `json:"source_priority"`
	FetchMode      FetchMode    `json:"fetch_mode"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Validate checks the company fields and every source.
func (c Company) Validate() error {
	if strings.TrimSpace(c.CompanyName) == "" {
		return Invalid("company_name", "is required")
	}
	switch c.FetchMode {
	case "", FetchAll, FetchFallback:
	default:
		return Invalid("fetch_mode", "must be all or fallback, got %q", c.FetchMode)
	}
	for _, st := range c.SourcePriority {
		switch st {
		case SourceCareerURL, SourceGreenhouse, SourceLever:
		default:
			return Invalid("source_priority", "unsupported source type %q", st)
		}
	}
	for _, s := range c.Sources {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Label is the name used for per-source error keys and logs.
func (c Company) Label() string {
	if c.CompanyName != "" {
		return c.CompanyName
	}
	return c.EmployerName
}

// OrderedSources returns sources sorted by the company's priority list;
// sources of types missing from the list keep their relative order at the end.
func (c Company) OrderedSources() []Source {
	priority := c.SourcePriority
	if len(priority) == 0 {
		priority = DefaultSourcePriority
	}
	out := make([]Source, 0, len(c.Sources))
	used := make([]bool, len(c.Sources))
	for _, t := range priority {
		for i, s := range c.Sources {
			if !used[i] && s.Type == t {
				out = append(out, s)
				used[i] = true
			}
		}
	}
	for i, s := range c.Sources {
		if !used[i] {
			out = append(out, s)
		}
	}
	return out
}
