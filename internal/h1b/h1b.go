// Package h1b answers whether an employer filed H-1B petitions in the past.
//
// The registry is built from the USCIS H-1B employer data hub exports, one
// CSV per fiscal year. Exports are downloaded once and kept in a cache
// directory; a file already present there is never fetched again, so a cache
// seeded by hand works offline.
package h1b

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBaseURL is where USCIS publishes the yearly exports.
const DefaultBaseURL = "https://www.uscis.gov/sites/default/files/document/data"

const maxExportBytes = 256 << 20

// Registry is a set of canonical employer names. The zero value and a nil
// *Registry are empty.
type Registry struct {
	employers map[string]struct{}
}

// Has reports whether employer canonicalizes to a known petitioner.
func (r *Registry) Has(employer string) bool {
	if r == nil || len(r.employers) == 0 {
		return false
	}
	canon := Canonicalize(employer)
	if canon == "" {
		return false
	}
	_, ok := r.employers[canon]
	return ok
}

// Len is the number of distinct canonical employers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.employers)
}

func (r *Registry) add(name string) {
	if canon := Canonicalize(name); canon != "" {
		if r.employers == nil {
			r.employers = make(map[string]struct{})
		}
		r.employers[canon] = struct{}{}
	}
}

var legalSuffixes = map[string]bool{
	"incorporated": true, "inc": true, "llc": true, "ltd": true, "limited": true,
	"corp": true, "corporation": true, "co": true, "company": true, "pllc": true,
}

// Canonicalize upper-cases name, drops legal-form words wherever they occur
// and keeps only letters and digits: "Acme Widgets, Inc." and "ACME WIDGETS
// LLC" both become "ACMEWIDGETS".
func Canonicalize(name string) string {
	// Dotted forms such as "L.L.C." and "Inc." collapse before splitting.
	name = strings.ReplaceAll(strings.ToLower(name), ".", "")
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var b strings.Builder
	for _, w := range words {
		if !legalSuffixes[w] {
			b.WriteString(strings.ToUpper(w))
		}
	}
	return b.String()
}

// ReadCSV adds every employer of one export to r. The employer column is the
// header named "Employer", or failing that the first header containing
// "employer" ("Employer (Petitioner) Name" in recent years).
func (r *Registry) ReadCSV(src io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(src, maxExportBytes))
	if err != nil {
		return fmt.Errorf("h1b: read export: %w", err)
	}
	text := strings.TrimPrefix(string(raw), "\ufeff")

	reader := csv.NewReader(strings.NewReader(text))
	// Some years are published tab-separated under a .csv name.
	if first, _, _ := strings.Cut(text, "\n"); strings.Count(first, "\t") > strings.Count(first, ",") {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return errors.New("h1b: export has no header")
	}
	if err != nil {
		return fmt.Errorf("h1b: read header: %w", err)
	}
	col := employerColumn(header)
	if col < 0 {
		return errors.New("h1b: export has no employer column")
	}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("h1b: read row: %w", err)
		}
		if col < len(rec) {
			r.add(rec[col])
		}
	}
}

func employerColumn(header []string) int {
	if i := slices.IndexFunc(header, func(h string) bool {
		return strings.EqualFold(strings.TrimSpace(h), "employer")
	}); i >= 0 {
		return i
	}
	return slices.IndexFunc(header, func(h string) bool {
		return strings.Contains(strings.ToLower(h), "employer")
	})
}

// LoadFile builds a registry from one export on disk.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("h1b: %w", err)
	}
	defer func() { _ = f.Close() }()
	r := &Registry{}
	if err := r.ReadCSV(f); err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return r, nil
}

// Loader builds registries for sets of fiscal years and remembers them for
// the life of the process.
type Loader struct {
	cacheDir   string
	baseURL    string
	file       string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	built map[string]*Registry
}

// Option configures a Loader.
type Option func(*Loader)

// WithBaseURL overrides the export root, mainly for tests.
func WithBaseURL(u string) Option { return func(l *Loader) { l.baseURL = strings.TrimRight(u, "/") } }

// WithFile adds the employers of a local export to every registry, whatever
// the years asked for.
func WithFile(path string) Option { return func(l *Loader) { l.file = path } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(l *Loader) { l.httpClient = c } }

// NewLoader creates a Loader caching exports under cacheDir. Downloads are
// traced like the board fetches.
func NewLoader(cacheDir string, logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{
		cacheDir:   cacheDir,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:     logger,
		built:      make(map[string]*Registry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the union of the exports for years and the WithFile
// export. A year that cannot be
// downloaded or read is skipped and reported in the joined error; the
// registry of the remaining years is still returned. Only fully loaded
// registries are remembered, so a failed year is retried on the next call.
func (l *Loader) Registry(ctx context.Context, years []int) (*Registry, error) {
	if len(years) == 0 && l.file == "" {
		return &Registry{}, nil
	}
	key := yearsKey(years)

	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.built[key]; ok {
		return r, nil
	}

	r := &Registry{}
	var errs []error
	for _, year := range years {
		path, err := l.cached(ctx, year)
		if err == nil {
			err = l.readInto(r, path)
		}
		if err != nil {
			l.logger.Warn("h1b: export unavailable", "year", year, "error", err)
			errs = append(errs, fmt.Errorf("year %d: %w", year, err))
		}
	}
	if l.file != "" {
		if err := l.readInto(r, l.file); err != nil {
			l.logger.Warn("h1b: employer file unreadable", "path", l.file, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		l.built[key] = r
	}
	return r, errors.Join(errs...)
}

func (l *Loader) readInto(r *Registry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("h1b: %w", err)
	}
	defer func() { _ = f.Close() }()
	return r.ReadCSV(f)
}

// CachePath is where the export for year lives in the cache directory.
func (l *Loader) CachePath(year int) string {
	return filepath.Join(l.cacheDir, fmt.Sprintf("h1b_datahubexport-%d.csv", year))
}

// cached returns the export for year, downloading it when the cache has no
// non-empty copy. The file is renamed into place so a partial download is
// never read as a complete one.
func (l *Loader) cached(ctx context.Context, year int) (string, error) {
	path := l.CachePath(year)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}
	if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("h1b: create cache dir: %w", err)
	}

	url := fmt.Sprintf("%s/h1b_datahubexport-%d.csv", l.baseURL, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("h1b: build request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("h1b: download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("h1b: download %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(l.cacheDir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("h1b: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxExportBytes)); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("h1b: save %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("h1b: save %s: %w", url, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("h1b: save %s: %w", url, err)
	}
	l.logger.Info("h1b: export cached", "year", year, "path", path)
	return path, nil
}

func yearsKey(years []int) string {
	sorted := slices.Clone(years)
	slices.Sort(sorted)
	parts := make([]string, 0, len(sorted))
	for _, y := range slices.Compact(sorted) {
		parts = append(parts, strconv.Itoa(y))
	}
	return strings.Join(parts, ",")
}
