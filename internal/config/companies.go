package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// companyFile is the on-disk layout read by LoadCompanies:
//
//	companies:
//	  - name: Acme
//	    employer: Acme Inc
//	    fetch_mode: fallback
//	    source_priority: [greenhouse, lever]
//	    sources:
//	      - type: greenhouse
//	        slug: acme
type companyFile struct {
	Companies []companyEntry `yaml:"companies"`
}

type companyEntry struct {
	Name           string             `yaml:"name"`
	Employer       string             `yaml:"employer"`
	FetchMode      model.FetchMode    `yaml:"fetch_mode"`
	SourcePriority []model.SourceType `yaml:"source_priority"`
	Sources        []model.Source     `yaml:"sources"`
}

// LoadCompanies reads a YAML company list for userID. Every entry is
// validated; all problems are reported together.
func LoadCompanies(path, userID string) ([]model.Company, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read companies: %w", err)
	}
	return ParseCompanies(raw, userID)
}

// ParseCompanies decodes a YAML company list. Unknown keys are rejected so
// a typo never silently drops a source.
func ParseCompanies(raw []byte, userID string) ([]model.Company, error) {
	var doc companyFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse companies: %w", err)
	}

	var errs []error
	out := make([]model.Company, 0, len(doc.Companies))
	for i, e := range doc.Companies {
		c := model.Company{
			UserID:         userID,
			CompanyName:    e.Name,
			EmployerName:   e.Employer,
			FetchMode:      e.FetchMode,
			SourcePriority: e.SourcePriority,
			Sources:        e.Sources,
		}
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("companies[%d] %q: %w", i, e.Name, err))
			continue
		}
		out = append(out, c)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return out, nil
}
