package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

// Column names of the two datasets.
const (
	ColumnZone             = "zone"
	ColumnDaysToEvent      = "days_to_event"
	ColumnMedianPrice      = "median_price"
	ColumnSellerType       = "seller_type"
	ColumnEquilibriumPrice = "equilibrium_price"
	ColumnBuyProbability   = "buy_probability"
)

// Schema describes how header-delimited rows become records of type T.
type Schema[T any] struct {
	Dataset  string
	Required []string
	Build    func(row Row) (T, error)
}

// MarketSchema builds MarketRecords from market_data.csv.
var MarketSchema = Schema[domain.MarketRecord]{
	Dataset:  domain.DatasetMarket,
	Required: []string{ColumnZone, ColumnDaysToEvent, ColumnMedianPrice},
	Build: func(row Row) (domain.MarketRecord, error) {
		zone, err := row.String(ColumnZone)
		if err != nil {
			return domain.MarketRecord{}, err
		}
		days, err := row.Int(ColumnDaysToEvent)
		if err != nil {
			return domain.MarketRecord{}, err
		}
		price, err := row.Float(ColumnMedianPrice)
		if err != nil {
			return domain.MarketRecord{}, err
		}
		return domain.NewMarketRecord(zone, days, price)
	},
}

// EquilibriumSchema builds EquilibriumRecords from equilibrium_data.csv.
// equilibrium_price may be empty; the record then carries no price.
var EquilibriumSchema = Schema[domain.EquilibriumRecord]{
	Dataset:  domain.DatasetEquilibrium,
	Required: []string{ColumnSellerType, ColumnZone, ColumnDaysToEvent, ColumnEquilibriumPrice, ColumnBuyProbability},
	Build: func(row Row) (domain.EquilibriumRecord, error) {
		sellerType, err := row.String(ColumnSellerType)
		if err != nil {
			return domain.EquilibriumRecord{}, err
		}
		zone, err := row.String(ColumnZone)
		if err != nil {
			return domain.EquilibriumRecord{}, err
		}
		days, err := row.Int(ColumnDaysToEvent)
		if err != nil {
			return domain.EquilibriumRecord{}, err
		}
		price, err := row.OptionalFloat(ColumnEquilibriumPrice)
		if err != nil {
			return domain.EquilibriumRecord{}, err
		}
		probability, err := row.Float(ColumnBuyProbability)
		if err != nil {
			return domain.EquilibriumRecord{}, err
		}
		return domain.NewEquilibriumRecord(sellerType, zone, days, price, probability)
	},
}

// Row is one data row with dynamically typed cells keyed by column name.
type Row struct {
	Line  int
	cells map[string]any
	raw   map[string]string
}

// CellError is a row failure attributed to a single column.
type CellError struct {
	Column  string
	Message string
}

func (e *CellError) Error() string {
	return e.Column + ": " + e.Message
}

// Value returns the typed cell: nil when empty, float64 for numbers, bool for
// true/false, string otherwise.
func (r Row) Value(column string) any {
	return r.cells[column]
}

// String returns the trimmed text of a required cell.
func (r Row) String(column string) (string, error) {
	if r.cells[column] == nil {
		return "", &CellError{Column: column, Message: "is required"}
	}
	return r.raw[column], nil
}

// Float returns a required numeric cell.
func (r Row) Float(column string) (float64, error) {
	switch v := r.cells[column].(type) {
	case nil:
		return 0, &CellError{Column: column, Message: "is required"}
	case float64:
		return v, nil
	default:
		return 0, &CellError{Column: column, Message: fmt.Sprintf("must be a number, got %q", r.raw[column])}
	}
}

// OptionalFloat returns a numeric cell, or nil when the cell is empty.
func (r Row) OptionalFloat(column string) (*float64, error) {
	if r.cells[column] == nil {
		return nil, nil
	}
	v, err := r.Float(column)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Int returns a required integral numeric cell.
func (r Row) Int(column string) (int, error) {
	v, err := r.Float(column)
	if err != nil {
		return 0, err
	}
	if math.Trunc(v) != v || math.Abs(v) > math.MaxInt32 {
		return 0, &CellError{Column: column, Message: fmt.Sprintf("must be an integer, got %q", r.raw[column])}
	}
	return int(v), nil
}

// numberRe matches the numeric literals that are typed as numbers.
var numberRe = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

// typeCell converts a raw cell into nil, float64, bool or string.
func typeCell(s string) any {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil
	case numberRe.MatchString(s):
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
		return s
	case strings.EqualFold(s, "true"):
		return true
	case strings.EqualFold(s, "false"):
		return false
	default:
		return s
	}
}
