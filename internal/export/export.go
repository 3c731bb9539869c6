// Package export writes job snapshots to files: the JSON and CSV outputs
// refreshed after every run, and an on-demand SQLite snapshot of the store.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// Output file names written by WriteRunFiles.
const (
	JobsJSON    = "jobs.json"
	JobsCSV     = "jobs.csv"
	NewJobsJSON = "new_jobs.json"
	NewJobsCSV  = "new_jobs.csv"
)

// Columns is the CSV header, in order.
var Columns = []string{
	"dedupe_key", "first_seen", "past_h1b_support", "source_type", "company_name",
	"job_id", "title", "location", "department", "team", "date_posted", "url", "description",
}

// Row is one exported job.
type Row struct {
	DedupeKey      string    `json:"dedupe_key"`
	FirstSeen      time.Time `json:"first_seen"`
	PastH1BSupport bool      `json:"past_h1b_support"`
	SourceType     string    `json:"source_type"`
	CompanyName    string    `json:"company_name"`
	JobID          string    `json:"job_id"`
	Title          string    `json:"title"`
	Location       string    `json:"location"`
	Department     string    `json:"department"`
	Team           string    `json:"team"`
	DatePosted     string    `json:"date_posted"`
	URL            string    `json:"url"`
	Description    string    `json:"description"`
	WorkMode       string    `json:"work_mode"`
}

// NewRow builds a Row from a posting and its first-seen time.
func NewRow(key string, firstSeen time.Time, p model.Posting) Row {
	return Row{
		DedupeKey:      key,
		FirstSeen:      firstSeen.UTC(),
		PastH1BSupport: p.PastH1BSupport,
		SourceType:     p.SourceType,
		CompanyName:    p.CompanyName,
		JobID:          p.JobID,
		Title:          p.Title,
		Location:       p.Location,
		Department:     p.Department,
		Team:           p.Team,
		DatePosted:     p.DatePosted,
		URL:            p.URL,
		Description:    p.Description,
		WorkMode:       string(p.WorkMode),
	}
}

func (r Row) record() []string {
	h1b := "no"
	if r.PastH1BSupport {
		h1b = "yes"
	}
	return []string{
		r.DedupeKey, r.FirstSeen.Format(time.RFC3339), h1b, r.SourceType, r.CompanyName,
		r.JobID, r.Title, r.Location, r.Department, r.Team, r.DatePosted, r.URL, r.Description,
	}
}

// SortRows orders rows with past H1B sponsors first, then oldest first seen.
func SortRows(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		if a.PastH1BSupport != b.PastH1BSupport {
			if a.PastH1BSupport {
				return -1
			}
			return 1
		}
		if c := a.FirstSeen.Compare(b.FirstSeen); c != 0 {
			return c
		}
		return strings.Compare(a.DedupeKey, b.DedupeKey)
	})
}

// WriteJSON writes rows as an indented JSON array, replacing path atomically.
func WriteJSON(path string, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(rows)
	})
}

// WriteCSV writes rows with the Columns header, replacing path atomically.
func WriteCSV(path string, rows []Row) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Columns); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write(r.record()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteRunFiles refreshes the four per-run output files in dir.
func WriteRunFiles(dir string, all, fresh []Row) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: create output dir: %w", err)
	}
	SortRows(all)
	SortRows(fresh)
	writes := []struct {
		name string
		fn   func(string, []Row) error
		rows []Row
	}{
		{JobsJSON, WriteJSON, all},
		{JobsCSV, WriteCSV, all},
		{NewJobsJSON, WriteJSON, fresh},
		{NewJobsCSV, WriteCSV, fresh},
	}
	for _, w := range writes {
		if err := w.fn(filepath.Join(dir, w.name), w.rows); err != nil {
			return err
		}
	}
	return nil
}

// writeAtomic writes to a temp file next to path and renames it into place,
// so readers never observe a partial file.
func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("export: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("export: write %s: %w", filepath.Base(path), err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("export: flush %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("export: sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
