package loader

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/config"
	"github.com/saltfish/seatscope/go-backend/internal/db"
	"github.com/saltfish/seatscope/go-backend/internal/db/repository"
	"github.com/saltfish/seatscope/go-backend/internal/parser"
)

// FromConfig builds the source selected by cfg.Data.Source. The returned
// function releases whatever the source holds open.
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Source, func(), error) {
	d := &cfg.Data
	switch d.Source {
	case config.SourceFile:
		return NewCSVSource(FileFetcher{Dir: d.Dir}, parser.NewParser(logger), d.MarketFile, d.EquilibriumFile), func() {}, nil
	case config.SourceHTTP:
		fetcher := HTTPFetcher{
			BaseURL: d.BaseURL,
			Client:  &http.Client{Timeout: d.FetchTimeoutDuration()},
		}
		return NewCSVSource(fetcher, parser.NewParser(logger), d.MarketFile, d.EquilibriumFile), func() {}, nil
	case config.SourcePostgres:
		repo, closeFn, err := OpenRepository(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresSource(repo), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown data source %q", d.Source)
	}
}

// OpenRepository connects to PostgreSQL and makes sure the dataset tables exist.
func OpenRepository(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (repository.DatasetRepository, func(), error) {
	pool, err := db.NewPool(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repos := repository.NewRepositories(pool)
	if err := repos.Dataset.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to create dataset schema: %w", err)
	}
	return repos.Dataset, pool.Close, nil
}
