package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/jobwatch/internal/config"
)

func newCompaniesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "companies",
		Short: "Manage the companies whose boards are watched",
	}
	cmd.AddCommand(newCompaniesImportCmd(a), newCompaniesListCmd(a))
	return cmd
}

func newCompaniesImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Create or update companies from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			companies, err := config.LoadCompanies(args[0], a.cfg.UserID)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := a.openDB(ctx, false)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			for _, c := range companies {
				saved, err := db.UpsertCompany(ctx, c)
				if err != nil {
					return fmt.Errorf("import %s: %w", c.Label(), err)
				}
				a.logger.Info("company imported", "company", saved.Label(), "id", saved.ID, "sources", len(saved.Sources))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d companies\n", len(companies))
			return nil
		},
	}
}

func newCompaniesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List watched companies and their sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx, false)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			companies, err := db.ListCompanies(ctx, a.cfg.UserID)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMPANY\tMODE\tSOURCES")
			for _, c := range companies {
				var srcs []string
				for _, s := range c.OrderedSources() {
					srcs = append(srcs, string(s.Type))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Label(), c.FetchMode, strings.Join(srcs, ","))
			}
			return tw.Flush()
		},
	}
}
