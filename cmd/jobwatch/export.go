package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/jobwatch/internal/export"
	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/storage"
)

const exportPageSize = 500

func newExportCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy runs, jobs and the audit log into a standalone SQLite file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx, false)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			snap, err := buildSnapshot(ctx, db)
			if err != nil {
				return err
			}
			if err := export.WriteSQLite(ctx, path, snap); err != nil {
				return err
			}
			a.logger.Info("export written", "path", path,
				"runs", len(snap.Runs), "jobs", len(snap.Jobs), "audit", len(snap.Audit))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "sqlite", "jobwatch.db", "destination SQLite file (replaced if it exists)")
	return cmd
}

func buildSnapshot(ctx context.Context, db *storage.DB) (export.Snapshot, error) {
	var snap export.Snapshot

	for offset := 0; ; offset += exportPageSize {
		runs, total, err := db.ListRuns(ctx, exportPageSize, offset)
		if err != nil {
			return snap, fmt.Errorf("export: list runs: %w", err)
		}
		snap.Runs = append(snap.Runs, runs...)
		if len(runs) == 0 || offset+len(runs) >= total {
			break
		}
	}

	for offset := 0; ; offset += exportPageSize {
		jobs, total, err := db.ListJobs(ctx, model.JobFilters{Scope: model.JobScopeAll}, exportPageSize, offset)
		if err != nil {
			return snap, fmt.Errorf("export: list jobs: %w", err)
		}
		snap.Jobs = append(snap.Jobs, jobs...)
		if len(jobs) == 0 || offset+len(jobs) >= total {
			break
		}
	}

	for _, r := range snap.Runs {
		entries, err := db.AuditForRun(ctx, r.RunID)
		if err != nil {
			return snap, fmt.Errorf("export: audit for run %s: %w", r.RunID, err)
		}
		snap.Audit = append(snap.Audit, entries...)
	}
	return snap, nil
}
