package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// fetchAll fetches every company of the user, one goroutine per company,
// bounded by MaxWorkers. Batches come back in company order regardless of
// which fetch finishes first.
func (s *Service) fetchAll(ctx context.Context, userID string) ([]SourceBatch, error) {
	companies, err := s.db.ListCompanies(ctx, userID)
	if err != nil {
		return nil, err
	}

	perCompany := make([][]SourceBatch, len(companies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)
	for i, c := range companies {
		g.Go(func() error {
			perCompany[i] = s.fetchCompany(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	batches := []SourceBatch{}
	for _, bs := range perCompany {
		batches = append(batches, bs...)
	}
	return batches, ctx.Err()
}

// fetchCompany walks the company's sources in priority order. In fallback
// mode it stops at the first source that yields postings; a failed source
// never stops the walk.
func (s *Service) fetchCompany(ctx context.Context, c model.Company) []SourceBatch {
	label := c.Label()
	var out []SourceBatch
	for _, src := range c.OrderedSources() {
		if ctx.Err() != nil {
			break
		}
		b := SourceBatch{Label: label, SourceType: string(src.Type)}
		postings, err := s.fetcher.Fetch(ctx, c, src)
		if err != nil {
			b.Error = err.Error()
			s.logger.Warn("ingest: source fetch failed", "company", label, "source_type", src.Type, "error", err)
		}
		b.Postings = postings
		out = append(out, b)
		if c.FetchMode == model.FetchFallback && len(postings) > 0 {
			break
		}
	}
	return out
}
