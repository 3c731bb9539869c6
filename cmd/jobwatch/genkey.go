package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/jobwatch/internal/auth"
)

// genkey does not need configuration, so it skips the root pre-run.
func newGenkeyCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate a persistent Ed25519 key pair for JWT signing",
		Long: "Writes jwt_private.pem and jwt_public.pem into --dir. Without persistent keys the\n" +
			"server signs with an ephemeral key and every restart invalidates issued tokens.",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			privPath, pubPath, err := auth.WriteKeyPair(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nwrote %s\n", privPath, pubPath)
			fmt.Fprintf(cmd.OutOrStdout(), "set JOBWATCH_JWT_PRIVATE_KEY=%s JOBWATCH_JWT_PUBLIC_KEY=%s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data", "directory for the key files")
	return cmd
}
