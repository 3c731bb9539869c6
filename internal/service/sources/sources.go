// Package sources fetches raw postings from a company's configured job
// sources. Greenhouse and Lever boards are read through their public JSON
// APIs; career pages require a scraper, which jobwatch does not ship, and
// report ErrUnsupportedSource so the run records a per-source error.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// ErrUnsupportedSource is returned for source types the fetcher cannot read.
var ErrUnsupportedSource = errors.New("sources: unsupported source type")

// Fetcher returns the current postings of one company source.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, c model.Company, src model.Source) ([]model.Posting, error)
}

// Default API roots.
const (
	DefaultGreenhouseURL = "https://boards-api.greenhouse.io"
	DefaultLeverURL      = "https://api.lever.co"
)

const (
	userAgent    = "jobwatch/1.0 (+https://github.com/ashita-ai/jobwatch)"
	maxAttempts  = 3
	retryBackoff = 600 * time.Millisecond
	maxBodyBytes = 32 << 20
)

// HTTPFetcher reads Greenhouse and Lever boards over HTTP.
type HTTPFetcher struct {
	greenhouseURL string
	leverURL      string
	httpClient    *http.Client
	logger        *slog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithGreenhouseURL overrides the Greenhouse API root.
func WithGreenhouseURL(u string) Option { return func(f *HTTPFetcher) { f.greenhouseURL = u } }

// WithLeverURL overrides the Lever API root.
func WithLeverURL(u string) Option { return func(f *HTTPFetcher) { f.leverURL = u } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(f *HTTPFetcher) { f.httpClient = c } }

// NewHTTPFetcher creates a fetcher with a 30s per-request timeout. Requests
// are traced and carry the caller's trace context.
func NewHTTPFetcher(logger *slog.Logger, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		greenhouseURL: DefaultGreenhouseURL,
		leverURL:      DefaultLeverURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:        logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch dispatches on the source type.
func (f *HTTPFetcher) Fetch(ctx context.Context, c model.Company, src model.Source) ([]model.Posting, error) {
	switch src.Type {
	case model.SourceGreenhouse:
		return f.fetchGreenhouse(ctx, c, src.Slug)
	case model.SourceLever:
		return f.fetchLever(ctx, c, src.Slug)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src.Type)
	}
}

// getJSON issues a GET and decodes the JSON body into out, retrying
// transport failures and 5xx responses with exponential backoff.
func (f *HTTPFetcher) getJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			delay := retryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		retry, err := f.getOnce(ctx, url, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		f.logger.Debug("sources: retrying request", "url", url, "attempt", attempt+1, "error", err)
	}
	return lastErr
}

func (f *HTTPFetcher) getOnce(ctx context.Context, url string, out any) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("sources: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("sources: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode >= 500, fmt.Errorf("sources: status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return false, fmt.Errorf("sources: decode response: %w", err)
	}
	return false, nil
}
