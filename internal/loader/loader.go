package loader

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/metrics"
)

const tracerName = "github.com/saltfish/seatscope/go-backend/internal/loader"

// maxLoggedWarnings caps the row warnings logged individually per dataset.
const maxLoggedWarnings = 5

// Loader loads both datasets from a Source concurrently.
type Loader struct {
	source  Source
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewLoader creates a Loader. A zero timeout disables the per-load deadline.
func NewLoader(source Source, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Loader {
	return &Loader{
		source:  source,
		timeout: timeout,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// Source returns the underlying source.
func (l *Loader) Source() Source {
	return l.source
}

// Load fetches and parses both datasets. Either dataset failing fails the
// whole load with a *domain.LoadError; malformed rows only add warnings.
func (l *Loader) Load(ctx context.Context) (*domain.Datasets, error) {
	ctx, span := l.tracer.Start(ctx, "loader.Load",
		trace.WithAttributes(attribute.String("source", l.source.Name())),
	)
	defer span.End()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	ds := &domain.Datasets{Source: l.source.Name()}
	var marketWarnings, equilibriumWarnings []domain.RowError

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ds.Market, marketWarnings, err = loadDataset(gctx, l, domain.DatasetMarket, l.source.LoadMarket)
		return err
	})
	g.Go(func() error {
		var err error
		ds.Equilibrium, equilibriumWarnings, err = loadDataset(gctx, l, domain.DatasetEquilibrium, l.source.LoadEquilibrium)
		return err
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Error("Failed to load datasets",
			zap.String("source", l.source.Name()),
			zap.Error(err),
		)
		return nil, err
	}

	if ds.Market == nil {
		ds.Market = []domain.MarketRecord{}
	}
	if ds.Equilibrium == nil {
		ds.Equilibrium = []domain.EquilibriumRecord{}
	}
	ds.Warnings = append(marketWarnings, equilibriumWarnings...)
	ds.LoadedAt = l.now().UTC()

	span.SetAttributes(
		attribute.Int("market.records", len(ds.Market)),
		attribute.Int("equilibrium.records", len(ds.Equilibrium)),
		attribute.Int("warnings", len(ds.Warnings)),
	)
	l.logger.Info("Datasets loaded",
		zap.String("source", l.source.Name()),
		zap.Int("market_records", len(ds.Market)),
		zap.Int("equilibrium_records", len(ds.Equilibrium)),
		zap.Int("warnings", len(ds.Warnings)),
	)

	return ds, nil
}

func loadDataset[T any](
	ctx context.Context,
	l *Loader,
	dataset string,
	load func(context.Context) ([]T, []domain.RowError, error),
) ([]T, []domain.RowError, error) {
	ctx, span := l.tracer.Start(ctx, "loader.LoadDataset",
		trace.WithAttributes(attribute.String("dataset", dataset)),
	)
	defer span.End()

	start := time.Now()
	records, warnings, err := load(ctx)
	l.metrics.DatasetLoad(dataset, time.Since(start), err)

	if err != nil {
		var le *domain.LoadError
		if !errors.As(err, &le) {
			err = domain.NewLoadError(dataset, "loading", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	l.metrics.RowWarnings(dataset, len(warnings))
	for i, w := range warnings {
		if i == maxLoggedWarnings {
			l.logger.Warn("Further row warnings omitted",
				zap.String("dataset", dataset),
				zap.Int("omitted", len(warnings)-maxLoggedWarnings),
			)
			break
		}
		l.logger.Warn("Skipped malformed row",
			zap.String("dataset", dataset),
			zap.Int("line", w.Line),
			zap.String("column", w.Column),
			zap.String("message", w.Message),
		)
	}

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("warnings", len(warnings)),
	)
	return records, warnings, nil
}
