// seatctl inspects the dashboard datasets from the command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saltfish/seatscope/go-backend/internal/config"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/loader"
	"github.com/saltfish/seatscope/go-backend/internal/metrics"
)

type rootOptions struct {
	configPath string
	dataDir    string
	baseURL    string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "seatctl",
		Short: "Inspect seat-ticket simulation datasets",
		Long: `seatctl loads the market and equilibrium datasets the dashboard uses
and prints what the dashboard would show.

Examples:
  seatctl validate --data-dir ./data
  seatctl index --zone Premium
  seatctl project --zone Standard --day 14 --profiles balanced,guaranteed_sale
  seatctl import --config config.yaml`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Read the CSV files from this directory")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "Fetch the CSV files relative to this URL")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	cmd.AddCommand(
		newValidateCmd(opts),
		newIndexCmd(opts),
		newProjectCmd(opts),
		newImportCmd(opts),
	)
	return cmd
}

// config loads the configuration and applies the data flags.
func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	switch {
	case o.dataDir != "":
		cfg.Data.Source = config.SourceFile
		cfg.Data.Dir = o.dataDir
	case o.baseURL != "":
		cfg.Data.Source = config.SourceHTTP
		cfg.Data.BaseURL = o.baseURL
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// logger writes to stderr so that command output stays machine readable.
func (o *rootOptions) logger() *zap.Logger {
	level := zapcore.WarnLevel
	if o.verbose {
		level = zapcore.DebugLevel
	}
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stderr"}
	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// load reads both datasets the way the server does.
func (o *rootOptions) load(ctx context.Context) (*domain.Datasets, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	logger := o.logger()
	defer logger.Sync()

	source, closeSource, err := loader.FromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeSource()

	ds, err := loader.NewLoader(source, cfg.Data.FetchTimeoutDuration(), metrics.New(), logger).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load datasets: %w", err)
	}
	return ds, nil
}
