package loader

import (
	"context"

	"github.com/saltfish/seatscope/go-backend/internal/db/repository"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

// PostgresSource reads the datasets from the dataset tables. Rows are
// validated like parsed CSV rows; the row id stands in for the line number.
type PostgresSource struct {
	repo repository.DatasetRepository
}

// NewPostgresSource creates a PostgresSource.
func NewPostgresSource(repo repository.DatasetRepository) *PostgresSource {
	return &PostgresSource{repo: repo}
}

func (s *PostgresSource) Name() string { return "postgres" }

// HealthCheck reports whether the database is reachable.
func (s *PostgresSource) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

func (s *PostgresSource) LoadMarket(ctx context.Context) ([]domain.MarketRecord, []domain.RowError, error) {
	rows, err := s.repo.ListMarket(ctx)
	if err != nil {
		return nil, nil, domain.NewLoadError(domain.DatasetMarket, "querying", err)
	}

	var (
		records  []domain.MarketRecord
		warnings []domain.RowError
	)
	for _, row := range rows {
		rec, err := domain.NewMarketRecord(row.Zone, row.DaysToEvent, row.MedianPrice)
		if err != nil {
			warnings = append(warnings, rowWarning(domain.DatasetMarket, row.ID, err))
			continue
		}
		records = append(records, rec)
	}
	return records, warnings, nil
}

func (s *PostgresSource) LoadEquilibrium(ctx context.Context) ([]domain.EquilibriumRecord, []domain.RowError, error) {
	rows, err := s.repo.ListEquilibrium(ctx)
	if err != nil {
		return nil, nil, domain.NewLoadError(domain.DatasetEquilibrium, "querying", err)
	}

	var (
		records  []domain.EquilibriumRecord
		warnings []domain.RowError
	)
	for _, row := range rows {
		rec, err := domain.NewEquilibriumRecord(row.SellerType, row.Zone, row.DaysToEvent, row.EquilibriumPrice, row.BuyProbability)
		if err != nil {
			warnings = append(warnings, rowWarning(domain.DatasetEquilibrium, row.ID, err))
			continue
		}
		records = append(records, rec)
	}
	return records, warnings, nil
}

func rowWarning(dataset string, id int64, err error) domain.RowError {
	return domain.RowError{Dataset: dataset, Line: int(id), Message: err.Error()}
}
