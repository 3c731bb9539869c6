// Command jobwatch watches company job boards, filters new postings with the
// operator's settings and keeps an auditable record of every decision.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/jobwatch/internal/config"
	"github.com/ashita-ai/jobwatch/internal/h1b"
	"github.com/ashita-ai/jobwatch/internal/relevance"
	"github.com/ashita-ai/jobwatch/internal/service/ingest"
	"github.com/ashita-ai/jobwatch/internal/service/sources"
	"github.com/ashita-ai/jobwatch/internal/storage"
	"github.com/ashita-ai/jobwatch/internal/telemetry"
	"github.com/ashita-ai/jobwatch/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		cancel()
		os.Exit(1)
	}
}

// app carries what every subcommand needs once the environment is loaded.
type app struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "jobwatch",
		Short:         "Watch company job boards and keep an auditable inbox of new postings",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env file is optional; production passes real environment variables.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = newLogger(cfg.LogLevel)
			slog.SetDefault(a.logger)
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newExportCmd(a),
		newCompaniesCmd(a),
		newGenkeyCmd(),
	)
	return root
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openDB connects to Postgres and applies pending migrations.
func (a *app) openDB(ctx context.Context, withNotify bool) (*storage.DB, error) {
	notifyURL := ""
	if withNotify {
		notifyURL = a.cfg.NotifyURL
	}
	db, err := storage.New(ctx, a.cfg.DatabaseURL, notifyURL, a.logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

// initTelemetry starts the OTEL exporters; the returned func flushes them.
func (a *app) initTelemetry(ctx context.Context) (telemetry.Shutdown, error) {
	shutdown, err := telemetry.Init(ctx, a.cfg.OTELEndpoint, a.cfg.ServiceName, version, a.cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return shutdown, nil
}

// newIngest builds the ingestion service over the public board fetcher.
func (a *app) newIngest(db *storage.DB) *ingest.Service {
	fetcher := sources.NewHTTPFetcher(a.logger,
		sources.WithGreenhouseURL(a.cfg.GreenhouseURL),
		sources.WithLeverURL(a.cfg.LeverURL),
	)
	var sponsorOpts []h1b.Option
	if a.cfg.H1BEmployersFile != "" {
		sponsorOpts = append(sponsorOpts, h1b.WithFile(a.cfg.H1BEmployersFile))
	}
	return ingest.New(db, fetcher, relevance.NewStored(db), ingest.Config{
		MaxWorkers: a.cfg.FetchMaxWorkers,
		RetainRuns: a.cfg.RetainRuns,
		OutputDir:  a.cfg.OutputDir,
		Sponsors:   h1b.NewLoader(a.cfg.H1BCacheDir, a.logger, sponsorOpts...),
	}, a.logger)
}
