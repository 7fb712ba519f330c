package loader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/db/repository"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

// ImportResult summarizes one Import call.
type ImportResult struct {
	Market      *repository.Import
	Equilibrium *repository.Import
	Warnings    []domain.RowError
}

// Import loads both datasets from src and replaces the stored ones. Only
// valid records are stored. Nothing is written when either dataset fails.
func Import(ctx context.Context, src Source, repo repository.DatasetRepository, logger *zap.Logger) (*ImportResult, error) {
	market, marketWarnings, err := src.LoadMarket(ctx)
	if err != nil {
		return nil, err
	}
	equilibrium, equilibriumWarnings, err := src.LoadEquilibrium(ctx)
	if err != nil {
		return nil, err
	}

	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	marketRows := make([]repository.MarketRow, 0, len(market))
	for _, r := range market {
		marketRows = append(marketRows, repository.MarketRow{
			Zone:        r.Zone.String(),
			DaysToEvent: r.DaysToEvent,
			MedianPrice: r.MedianPrice,
		})
	}
	equilibriumRows := make([]repository.EquilibriumRow, 0, len(equilibrium))
	for _, r := range equilibrium {
		equilibriumRows = append(equilibriumRows, repository.EquilibriumRow{
			SellerType:       r.SellerType,
			Zone:             r.Zone.String(),
			DaysToEvent:      r.DaysToEvent,
			EquilibriumPrice: r.EquilibriumPrice,
			BuyProbability:   r.BuyProbability,
		})
	}

	result := &ImportResult{Warnings: append(marketWarnings, equilibriumWarnings...)}
	if result.Market, err = repo.ReplaceMarket(ctx, marketRows, src.Name()); err != nil {
		return nil, fmt.Errorf("failed to import market data: %w", err)
	}
	if result.Equilibrium, err = repo.ReplaceEquilibrium(ctx, equilibriumRows, src.Name()); err != nil {
		return nil, fmt.Errorf("failed to import equilibrium data: %w", err)
	}

	logger.Info("Datasets imported",
		zap.String("source", src.Name()),
		zap.String("market_import_id", result.Market.ID.String()),
		zap.Int("market_rows", result.Market.Rows),
		zap.String("equilibrium_import_id", result.Equilibrium.ID.String()),
		zap.Int("equilibrium_rows", result.Equilibrium.Rows),
		zap.Int("warnings", len(result.Warnings)),
	)

	return result, nil
}
