package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saltfish/seatscope/go-backend/internal/db"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS market_prices (
		id            BIGSERIAL PRIMARY KEY,
		zone          TEXT NOT NULL,
		days_to_event INTEGER NOT NULL,
		median_price  DOUBLE PRECISION NOT NULL
	);

	CREATE TABLE IF NOT EXISTS equilibrium_outcomes (
		id                BIGSERIAL PRIMARY KEY,
		seller_type       TEXT NOT NULL,
		zone              TEXT NOT NULL,
		days_to_event     INTEGER NOT NULL,
		equilibrium_price DOUBLE PRECISION,
		buy_probability   DOUBLE PRECISION NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dataset_imports (
		id          UUID PRIMARY KEY,
		dataset     TEXT NOT NULL,
		source      TEXT NOT NULL,
		row_count   INTEGER NOT NULL,
		imported_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dataset_imports_dataset ON dataset_imports (dataset, imported_at DESC);
`

// datasetRepo implements DatasetRepository using PostgreSQL.
type datasetRepo struct {
	pool *db.Pool
}

// NewDatasetRepository creates a new PostgreSQL dataset repository.
func NewDatasetRepository(pool *db.Pool) DatasetRepository {
	return &datasetRepo{pool: pool}
}

func (r *datasetRepo) HealthCheck(ctx context.Context) error {
	return r.pool.HealthCheck(ctx)
}

func (r *datasetRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create dataset schema: %w", err)
	}
	return nil
}

func (r *datasetRepo) ListMarket(ctx context.Context) ([]MarketRow, error) {
	query := `
		SELECT id, zone, days_to_event, median_price
		FROM market_prices
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list market rows: %w", err)
	}
	defer rows.Close()

	var result []MarketRow
	for rows.Next() {
		var row MarketRow
		if err := rows.Scan(&row.ID, &row.Zone, &row.DaysToEvent, &row.MedianPrice); err != nil {
			return nil, fmt.Errorf("failed to scan market row: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate market rows: %w", err)
	}

	return result, nil
}

func (r *datasetRepo) ListEquilibrium(ctx context.Context) ([]EquilibriumRow, error) {
	query := `
		SELECT id, seller_type, zone, days_to_event, equilibrium_price, buy_probability
		FROM equilibrium_outcomes
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list equilibrium rows: %w", err)
	}
	defer rows.Close()

	var result []EquilibriumRow
	for rows.Next() {
		var row EquilibriumRow
		if err := rows.Scan(
			&row.ID, &row.SellerType, &row.Zone, &row.DaysToEvent,
			&row.EquilibriumPrice, &row.BuyProbability,
		); err != nil {
			return nil, fmt.Errorf("failed to scan equilibrium row: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate equilibrium rows: %w", err)
	}

	return result, nil
}

func (r *datasetRepo) ReplaceMarket(ctx context.Context, rows []MarketRow, source string) (*Import, error) {
	imp := newImport(domain.DatasetMarket, source, len(rows))

	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM market_prices`); err != nil {
			return fmt.Errorf("failed to clear market rows: %w", err)
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"market_prices"},
			[]string{"zone", "days_to_event", "median_price"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				return []any{rows[i].Zone, rows[i].DaysToEvent, rows[i].MedianPrice}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy market rows: %w", err)
		}

		return insertImport(ctx, tx, imp)
	})
	if err != nil {
		return nil, err
	}

	return imp, nil
}

func (r *datasetRepo) ReplaceEquilibrium(ctx context.Context, rows []EquilibriumRow, source string) (*Import, error) {
	imp := newImport(domain.DatasetEquilibrium, source, len(rows))

	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM equilibrium_outcomes`); err != nil {
			return fmt.Errorf("failed to clear equilibrium rows: %w", err)
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"equilibrium_outcomes"},
			[]string{"seller_type", "zone", "days_to_event", "equilibrium_price", "buy_probability"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				row := rows[i]
				return []any{row.SellerType, row.Zone, row.DaysToEvent, row.EquilibriumPrice, row.BuyProbability}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy equilibrium rows: %w", err)
		}

		return insertImport(ctx, tx, imp)
	})
	if err != nil {
		return nil, err
	}

	return imp, nil
}

func (r *datasetRepo) LatestImport(ctx context.Context, dataset string) (*Import, error) {
	query := `
		SELECT id, dataset, source, row_count, imported_at
		FROM dataset_imports
		WHERE dataset = $1
		ORDER BY imported_at DESC
		LIMIT 1
	`

	imp := &Import{}
	err := r.pool.QueryRow(ctx, query, dataset).Scan(
		&imp.ID, &imp.Dataset, &imp.Source, &imp.Rows, &imp.ImportedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("dataset import", dataset)
		}
		return nil, fmt.Errorf("failed to get latest import: %w", err)
	}

	return imp, nil
}

func newImport(dataset, source string, rows int) *Import {
	return &Import{
		ID:         uuid.New(),
		Dataset:    dataset,
		Source:     source,
		Rows:       rows,
		ImportedAt: time.Now().UTC(),
	}
}

func insertImport(ctx context.Context, tx pgx.Tx, imp *Import) error {
	query := `
		INSERT INTO dataset_imports (id, dataset, source, row_count, imported_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, query, imp.ID, imp.Dataset, imp.Source, imp.Rows, imp.ImportedAt); err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}
