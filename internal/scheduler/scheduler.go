// Package scheduler triggers ingestion runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ashita-ai/jobwatch/internal/service/ingest"
)

// Runner executes one ingestion run. *ingest.Service satisfies it.
type Runner interface {
	Run(ctx context.Context, in ingest.RunInput) (ingest.RunResult, error)
}

// Scheduler fires a fetch run for one user on every tick. A tick that
// arrives while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	spec    string
	userID  string
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New creates a Scheduler. timeout bounds each run; zero means no bound.
func New(runner Runner, spec, userID string, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLogger{logger: logger})),
		runner:  runner,
		spec:    spec,
		userID:  userID,
		timeout: timeout,
		logger:  logger,
	}
}

// Start registers the job, starts the cron loop and runs once immediately
// so a fresh deployment does not wait for the first tick. Runs stop when
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	// The startup run and the ticks share one chain, so they never overlap.
	cl := cronLogger{logger: s.logger}
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		s.tick(ctx)
	}))
	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		return fmt.Errorf("scheduler: add job %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler: started", "spec", s.spec, "user_id", s.userID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job.Run()
	}()
	return nil
}

// Stop halts the cron loop and waits for a run in flight to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler: stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.runner.Run(runCtx, ingest.RunInput{UserID: s.userID})
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		s.logger.Info("scheduler: run skipped, another run is in progress")
	case err != nil:
		s.logger.Error("scheduler: run failed", "run_id", res.Run.RunID, "status", res.Run.Status, "error", err)
	default:
		s.logger.Info("scheduler: run finished",
			"run_id", res.Run.RunID,
			"new", res.Run.Stats.New,
			"included", res.Run.Stats.Included,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
