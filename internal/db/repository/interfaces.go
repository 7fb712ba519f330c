// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saltfish/seatscope/go-backend/internal/db"
)

// MarketRow is a stored market observation. Rows are validated by the loader,
// not by the database.
type MarketRow struct {
	ID          int64
	Zone        string
	DaysToEvent int
	MedianPrice float64
}

// EquilibriumRow is a stored simulation outcome.
type EquilibriumRow struct {
	ID               int64
	SellerType       string
	Zone             string
	DaysToEvent      int
	EquilibriumPrice *float64
	BuyProbability   float64
}

// Import records one replacement of a dataset.
type Import struct {
	ID         uuid.UUID
	Dataset    string
	Source     string
	Rows       int
	ImportedAt time.Time
}

// DatasetRepository defines the interface for dataset storage.
type DatasetRepository interface {
	// EnsureSchema creates the dataset tables when missing.
	EnsureSchema(ctx context.Context) error

	// ListMarket returns every market row ordered by id.
	ListMarket(ctx context.Context) ([]MarketRow, error)

	// ListEquilibrium returns every equilibrium row ordered by id.
	ListEquilibrium(ctx context.Context) ([]EquilibriumRow, error)

	// ReplaceMarket atomically replaces the market rows and records the import.
	ReplaceMarket(ctx context.Context, rows []MarketRow, source string) (*Import, error)

	// ReplaceEquilibrium atomically replaces the equilibrium rows and records the import.
	ReplaceEquilibrium(ctx context.Context, rows []EquilibriumRow, source string) (*Import, error)

	// LatestImport returns the most recent import of the dataset.
	LatestImport(ctx context.Context, dataset string) (*Import, error)

	// HealthCheck verifies the database answers queries.
	HealthCheck(ctx context.Context) error
}

// Repositories aggregates all repository interfaces.
type Repositories struct {
	Dataset DatasetRepository
}

// NewRepositories creates a new Repositories instance with all PostgreSQL implementations.
func NewRepositories(pool *db.Pool) *Repositories {
	return &Repositories{
		Dataset: NewDatasetRepository(pool),
	}
}
