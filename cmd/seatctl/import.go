package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltfish/seatscope/go-backend/internal/config"
	"github.com/saltfish/seatscope/go-backend/internal/loader"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Copy the CSV datasets into PostgreSQL",
		Long: `import reads both CSV datasets from --data-dir, --base-url or the
configured file/http source and replaces the stored tables. The server reads
them back with data.source set to postgres.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if cfg.Data.Source == config.SourcePostgres {
				return fmt.Errorf("import needs a file or http source, got %q", cfg.Data.Source)
			}
			logger := opts.logger()
			defer logger.Sync()

			ctx := cmd.Context()
			source, closeSource, err := loader.FromConfig(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeSource()

			repo, closeRepo, err := loader.OpenRepository(ctx, &cfg.Database, logger)
			if err != nil {
				return err
			}
			defer closeRepo()

			result, err := loader.Import(ctx, source, repo, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d market rows (%s)\n", result.Market.Rows, result.Market.ID)
			fmt.Fprintf(out, "imported %d equilibrium rows (%s)\n", result.Equilibrium.Rows, result.Equilibrium.ID)
			if len(result.Warnings) > 0 {
				fmt.Fprintf(out, "skipped %d malformed rows\n", len(result.Warnings))
			}
			return nil
		},
	}
}
