// Package ingest runs the ingestion pipeline shared by the HTTP API, the MCP
// server, the scheduler and the CLI.
//
// A run snapshots the user's settings, fetches every company concurrently,
// resolves each posting to a dedupe key and records one transaction per key:
// the seen record, the latest snapshot and the audit entry. Source failures
// are recorded in the run's stats and never abort the run. A cancelled run
// keeps every key it already committed and finishes as aborted.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/jobwatch/internal/engine"
	"github.com/ashita-ai/jobwatch/internal/h1b"
	"github.com/ashita-ai/jobwatch/internal/identity"
	"github.com/ashita-ai/jobwatch/internal/integrity"
	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/relevance"
	"github.com/ashita-ai/jobwatch/internal/service/sources"
	"github.com/ashita-ai/jobwatch/internal/storage"
	"github.com/ashita-ai/jobwatch/internal/telemetry"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still executing in this process.
var ErrRunInProgress = errors.New("ingest: a run is already in progress")

// Config tunes the pipeline.
type Config struct {
	// MaxWorkers bounds concurrent company fetches and key writes.
	MaxWorkers int
	// RetainRuns is how many runs are kept after each run; see storage.MinRetainedRuns.
	RetainRuns int
	// OutputDir, when set, receives jobs.json, jobs.csv, new_jobs.json and
	// new_jobs.csv after every completed run.
	OutputDir string
	// Sponsors, when set, marks postings whose employer filed H-1B petitions
	// in the settings' uscis_h1b_years.
	Sponsors *h1b.Loader
}

// Service executes runs.
type Service struct {
	db      *storage.DB
	fetcher sources.Fetcher
	scorer  relevance.Scorer
	cfg     Config
	logger  *slog.Logger

	running sync.Mutex

	runDuration metric.Float64Histogram
	decisions   metric.Int64Counter
	sourceErrs  metric.Int64Counter
}

// New creates an ingest Service. scorer may be nil, in which case no
// relevance signal is ever available.
func New(db *storage.DB, fetcher sources.Fetcher, scorer relevance.Scorer, cfg Config, logger *slog.Logger) *Service {
	if scorer == nil {
		scorer = relevance.Noop{}
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 6
	}
	meter := telemetry.Meter("jobwatch/ingest")
	runDur, _ := meter.Float64Histogram("jobwatch.run.duration",
		metric.WithDescription("Wall-clock duration of ingestion runs (ms)"),
		metric.WithUnit("ms"),
	)
	decisions, _ := meter.Int64Counter("jobwatch.decisions",
		metric.WithDescription("Postings evaluated, by verdict"),
	)
	sourceErrs, _ := meter.Int64Counter("jobwatch.source.errors",
		metric.WithDescription("Company sources that failed to fetch"),
	)
	return &Service{
		db:          db,
		fetcher:     fetcher,
		scorer:      scorer,
		cfg:         cfg,
		logger:      logger,
		runDuration: runDur,
		decisions:   decisions,
		sourceErrs:  sourceErrs,
	}
}

// SourceBatch is the output of one company source. Pushed batches come from
// an external collector; fetched batches are built by the Service.
type SourceBatch struct {
	Label      string          `json:"label"`
	SourceType string          `json:"source_type"`
	Postings   []model.Posting `json:"postings"`
	// Error reports a fetch failure; Postings may still carry partial results.
	Error string `json:"error,omitempty"`
}

func (b SourceBatch) errorKey() string {
	return b.Label + ":" + b.SourceType
}

// RunInput selects what a run ingests.
type RunInput struct {
	UserID string
	// Batches, when non-nil, are ingested instead of fetching the user's companies.
	Batches []SourceBatch
}

// RunResult is the finished run plus the keys it saw for the first time.
type RunResult struct {
	Run     model.Run `json:"run"`
	NewKeys []string  `json:"new_keys"`
}

// keyed is one unique posting of a run.
type keyed struct {
	key     string
	posting model.Posting
	isNew   bool
}

// outcome is what one key contributed to the run.
type outcome struct {
	keyed
	decision  engine.Decision
	firstSeen time.Time
	leaf      string
}

// Run executes one ingestion run. Settings are validated before the run is
// recorded, so malformed settings leave no trace in the ledger.
func (s *Service) Run(ctx context.Context, in RunInput) (RunResult, error) {
	if !s.running.TryLock() {
		return RunResult{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	ctx, span := telemetry.Tracer("jobwatch/ingest").Start(ctx, "ingest.run")
	defer span.End()
	start := time.Now()

	settings, err := s.db.GetSettings(ctx, in.UserID)
	if err != nil {
		return RunResult{}, err
	}
	rules, err := engine.Compile(settings)
	if err != nil {
		return RunResult{}, err
	}
	known, err := s.db.KnownKeys(ctx)
	if err != nil {
		return RunResult{}, err
	}

	run, err := s.db.BeginRun(ctx, settings)
	if err != nil {
		return RunResult{}, err
	}
	span.SetAttributes(attribute.String("jobwatch.run_id", run.RunID.String()))
	log := s.logger.With("run_id", run.RunID)
	log.Info("ingest: run started", "settings_hash", run.SettingsHash)

	stats := model.RunStats{SourceErrors: map[string]string{}}
	scorer := s.scorerFor(ctx, rules.Settings(), &stats)
	sponsors := s.sponsorsFor(ctx, rules.Settings().USCISH1BYears, &stats)

	batches := in.Batches
	if batches == nil {
		batches, err = s.fetchAll(ctx, in.UserID)
	}

	var outcomes []outcome
	if err == nil {
		unique := s.collect(batches, known, sponsors, &stats)
		outcomes, err = s.record(ctx, run, rules, scorer, unique)
	}

	status := model.RunStatusCompleted
	switch {
	case ctx.Err() != nil:
		status = model.RunStatusAborted
	case err != nil:
		status = model.RunStatusFailed
		stats.Logs = append(stats.Logs, "run failed: "+err.Error())
	}

	leaves := make([]string, 0, len(outcomes))
	var newKeys []string
	for _, o := range outcomes {
		leaves = append(leaves, o.leaf)
		if o.isNew {
			newKeys = append(newKeys, o.key)
		}
		if o.decision.Included {
			stats.Included++
		} else {
			stats.Excluded++
		}
		if o.decision.Overridden {
			stats.Overridden++
		}
		if o.decision.Rescued {
			stats.Rescued++
		}
	}
	stats.New = len(newKeys)

	var digest *string
	if root := integrity.BuildMerkleRoot(leaves); root != "" {
		digest = &root
	}

	// The finish must land even when the caller cancelled the run.
	finishCtx := context.WithoutCancel(ctx)
	finished, ferr := s.db.FinishRun(finishCtx, run.RunID, status, stats, digest)
	if ferr != nil {
		return RunResult{}, errors.Join(err, ferr)
	}

	s.runDuration.Record(finishCtx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("status", string(status))))
	log.Info("ingest: run finished",
		"status", status,
		"fetched", stats.Fetched,
		"unique", stats.Unique,
		"new", stats.New,
		"included", stats.Included,
		"source_errors", len(stats.SourceErrors),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	s.afterRun(finishCtx, finished, outcomes)

	result := RunResult{Run: finished, NewKeys: newKeys}
	if result.NewKeys == nil {
		result.NewKeys = []string{}
	}
	switch status {
	case model.RunStatusAborted:
		return result, ctx.Err()
	case model.RunStatusFailed:
		return result, err
	}
	return result, nil
}

// sponsorsFor loads the H-1B registry for years. A partial registry is still
// used; what could not be loaded is noted in the run's logs.
func (s *Service) sponsorsFor(ctx context.Context, years []int, stats *model.RunStats) *h1b.Registry {
	if s.cfg.Sponsors == nil {
		return nil
	}
	reg, err := s.cfg.Sponsors.Registry(ctx, years)
	if err != nil {
		stats.Logs = append(stats.Logs, "h1b registry incomplete: "+err.Error())
	}
	return reg
}

// scorerFor returns the scorer the run may use. ml_enabled is only honoured
// once the feedback log is large and balanced enough.
func (s *Service) scorerFor(ctx context.Context, st model.Settings, stats *model.RunStats) relevance.Scorer {
	if !st.MLEnabled {
		return relevance.Noop{}
	}
	fs, err := s.db.FeedbackStats(ctx, 0)
	if err != nil {
		s.logger.Warn("ingest: feedback stats unavailable, ml disabled for run", "error", err)
		return relevance.Noop{}
	}
	if ok, why := relevance.Eligibility(fs); !ok {
		stats.Logs = append(stats.Logs, "ml not eligible: "+why)
		return relevance.Noop{}
	}
	return s.scorer
}

// collect validates and deduplicates postings across batches. Batch order is
// preserved, so the first report of a key within a run wins.
func (s *Service) collect(batches []SourceBatch, known map[string]struct{}, sponsors *h1b.Registry, stats *model.RunStats) []keyed {
	seen := make(map[string]struct{})
	var out []keyed
	for _, b := range batches {
		if b.Error != "" {
			stats.SourceErrors[b.errorKey()] = b.Error
			s.sourceErrs.Add(context.Background(), 1, metric.WithAttributes(attribute.String("source_type", b.SourceType)))
		}
		skipped := 0
		for _, p := range b.Postings {
			stats.Fetched++
			if !p.Complete() {
				skipped++
				continue
			}
			if p.SourceType == "" {
				p.SourceType = b.SourceType
			}
			p.WorkMode = engine.EffectiveWorkMode(p)
			if sponsors.Has(p.EmployerName) || sponsors.Has(p.CompanyName) {
				p.PastH1BSupport = true
			}
			key := identity.Resolve(p)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			_, wasKnown := known[key]
			out = append(out, keyed{key: key, posting: p, isNew: !wasKnown})
		}
		if skipped > 0 {
			stats.Skipped += skipped
			if _, ok := stats.SourceErrors[b.errorKey()]; !ok {
				stats.SourceErrors[b.errorKey()] = fmt.Sprintf("skipped %d incomplete postings", skipped)
			}
		}
	}
	stats.Unique = len(out)
	return out
}

// record evaluates and writes every key. Keys are independent, so they are
// written concurrently; each key commits in its own transaction.
func (s *Service) record(ctx context.Context, run model.Run, rules *engine.Rules, scorer relevance.Scorer, unique []keyed) ([]outcome, error) {
	results := make([]*outcome, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)
	for i, k := range unique {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o, err := s.recordKey(gctx, run, rules, scorer, k)
			if err != nil {
				return err
			}
			results[i] = &o
			return nil
		})
	}
	err := g.Wait()

	out := make([]outcome, 0, len(results))
	for _, o := range results {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out, err
}

func (s *Service) recordKey(ctx context.Context, run model.Run, rules *engine.Rules, scorer relevance.Scorer, k keyed) (outcome, error) {
	sig, err := scorer.Score(ctx, k.key, k.posting)
	if err != nil {
		s.logger.Debug("ingest: relevance signal unavailable", "dedupe_key", k.key, "error", err)
		sig = relevance.None()
	}

	now := time.Now().UTC()
	var o outcome
	err = s.db.InKeyTx(ctx, func(ctx context.Context, tx *storage.KeyTx) error {
		ov, err := tx.Override(ctx, k.key)
		if err != nil {
			return err
		}
		label, err := tx.LatestFeedbackLabel(ctx, k.key)
		if err != nil {
			return err
		}
		d := rules.Evaluate(k.posting, ov, sig)

		rec, err := tx.Touch(ctx, k.key, run.RunID, now)
		if err != nil {
			return err
		}
		if err := tx.PutLatest(ctx, k.key, k.posting, now); err != nil {
			return err
		}
		entry := model.AuditEntry{
			RunID:          run.RunID,
			DedupeKey:      k.key,
			Included:       d.Included,
			Reasons:        d.Reasons,
			OverrideAction: d.OverrideAction(),
			FeedbackLabel:  label,
			SettingsHash:   run.SettingsHash,
			SourceType:     k.posting.SourceType,
			CompanyName:    k.posting.CompanyName,
			Title:          k.posting.Title,
			Location:       k.posting.Location,
			URL:            k.posting.URL,
			WorkMode:       k.posting.WorkMode,
			MLProb:         d.MLProb,
			CreatedAt:      now,
		}
		if err := tx.PutAudit(ctx, entry); err != nil {
			return err
		}
		o = outcome{keyed: k, decision: d, firstSeen: rec.FirstSeen, leaf: integrity.AuditLeafHash(entry)}
		return nil
	})
	if err != nil {
		return outcome{}, fmt.Errorf("ingest: record %s: %w", k.key, err)
	}
	s.decisions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("included", o.decision.Included)))
	return o, nil
}

// afterRun performs the best-effort follow-ups of a finished run.
func (s *Service) afterRun(ctx context.Context, run model.Run, outcomes []outcome) {
	if err := s.db.NotifyRunFinished(ctx, model.RunEvent{RunID: run.RunID, Status: run.Status}); err != nil {
		s.logger.Warn("ingest: notify run finished failed", "run_id", run.RunID, "error", err)
	}
	if _, err := s.db.PruneRuns(ctx, s.cfg.RetainRuns); err != nil {
		s.logger.Warn("ingest: prune runs failed", "error", err)
	}
	// A partial run must not replace the files of the last good one.
	if s.cfg.OutputDir != "" && run.Status == model.RunStatusCompleted {
		if err := writeOutputs(s.cfg.OutputDir, outcomes); err != nil {
			s.logger.Warn("ingest: write output files failed", "dir", s.cfg.OutputDir, "error", err)
		}
	}
}
