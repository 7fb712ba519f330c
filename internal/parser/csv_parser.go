// Package parser turns header-delimited tabular text into typed dataset records.
package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

// Parser parses the market and equilibrium datasets.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a new Parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseMarket parses market_data.csv content.
func (p *Parser) ParseMarket(r io.Reader) ([]domain.MarketRecord, []domain.RowError, error) {
	records, warnings, err := Ingest(r, MarketSchema)
	p.logResult(MarketSchema.Dataset, len(records), warnings, err)
	return records, warnings, err
}

// ParseEquilibrium parses equilibrium_data.csv content.
func (p *Parser) ParseEquilibrium(r io.Reader) ([]domain.EquilibriumRecord, []domain.RowError, error) {
	records, warnings, err := Ingest(r, EquilibriumSchema)
	p.logResult(EquilibriumSchema.Dataset, len(records), warnings, err)
	return records, warnings, err
}

func (p *Parser) logResult(dataset string, count int, warnings []domain.RowError, err error) {
	if err != nil {
		p.logger.Error("Failed to parse dataset",
			zap.String("dataset", dataset),
			zap.Error(err),
		)
		return
	}
	if len(warnings) > 0 {
		p.logger.Warn("Some rows could not be parsed",
			zap.String("dataset", dataset),
			zap.Int("skipped_rows", len(warnings)),
			zap.String("first_error", warnings[0].Error()),
		)
	}
	p.logger.Info("Parsed dataset",
		zap.String("dataset", dataset),
		zap.Int("records", count),
	)
}

// Ingest reads header-delimited CSV and builds one record per valid row.
// Malformed rows are reported as warnings and skipped; a missing header or
// required column, or an unreadable stream, fails the whole ingest.
func Ingest[T any](r io.Reader, schema Schema[T]) ([]T, []domain.RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, width, err := readHeader(cr)
	if err != nil {
		return nil, nil, domain.NewLoadError(schema.Dataset, "parsing", err)
	}
	for _, col := range schema.Required {
		if _, ok := header[col]; !ok {
			return nil, nil, domain.NewLoadError(schema.Dataset, "parsing",
				fmt.Errorf("missing required column %q", col))
		}
	}

	var (
		records  []T
		warnings []domain.RowError
	)

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				warnings = append(warnings, domain.RowError{
					Dataset: schema.Dataset,
					Line:    pe.StartLine,
					Message: pe.Err.Error(),
				})
				continue
			}
			return nil, nil, domain.NewLoadError(schema.Dataset, "reading", err)
		}

		line, _ := cr.FieldPos(0)
		if blank(fields) {
			continue
		}
		if len(fields) != width {
			warnings = append(warnings, domain.RowError{
				Dataset: schema.Dataset,
				Line:    line,
				Message: fmt.Sprintf("expected %d fields, got %d", width, len(fields)),
			})
			continue
		}

		row := Row{
			Line:  line,
			cells: make(map[string]any, len(header)),
			raw:   make(map[string]string, len(header)),
		}
		for name, idx := range header {
			row.raw[name] = strings.TrimSpace(fields[idx])
			row.cells[name] = typeCell(fields[idx])
		}

		rec, err := schema.Build(row)
		if err != nil {
			warnings = append(warnings, rowError(schema.Dataset, line, err))
			continue
		}
		records = append(records, rec)
	}

	return records, warnings, nil
}

// readHeader reads the header row and maps normalized column names to positions.
// It also returns the number of header fields.
func readHeader(cr *csv.Reader) (map[string]int, int, error) {
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, 0, errors.New("missing header row")
		}
		if err != nil {
			return nil, 0, fmt.Errorf("invalid header row: %w", err)
		}
		if blank(fields) {
			continue
		}

		header := make(map[string]int, len(fields))
		for i, f := range fields {
			name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(f, "\ufeff")))
			if name == "" {
				continue
			}
			if _, dup := header[name]; !dup {
				header[name] = i
			}
		}
		return header, len(fields), nil
	}
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func rowError(dataset string, line int, err error) domain.RowError {
	re := domain.RowError{Dataset: dataset, Line: line, Message: err.Error()}
	var ce *CellError
	if errors.As(err, &ce) {
		re.Column = ce.Column
		re.Message = ce.Message
	}
	return re
}
