package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/service/ingest"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch every configured company once and print the run record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx, false)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			res, err := a.newIngest(db).Run(ctx, ingest.RunInput{UserID: a.cfg.UserID})
			if err != nil && res.Run.RunID == uuid.Nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return fmt.Errorf("encode run: %w", encErr)
			}
			if err != nil {
				return err
			}
			if res.Run.Status != model.RunStatusCompleted {
				return fmt.Errorf("run %s finished %s", res.Run.RunID, res.Run.Status)
			}
			return nil
		},
	}
}
