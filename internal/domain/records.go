package domain

import (
	"fmt"
	"math"
	"time"
)

// Dataset names.
const (
	DatasetMarket      = "market"
	DatasetEquilibrium = "equilibrium"
)

// MarketRecord is one observed market median price.
type MarketRecord struct {
	Zone        ZoneID  `json:"zone"`
	DaysToEvent int     `json:"days_to_event"`
	MedianPrice float64 `json:"median_price"`
}

// EquilibriumRecord is one simulated strategy outcome.
type EquilibriumRecord struct {
	SellerType       string   `json:"seller_type"`
	Zone             ZoneID   `json:"zone"`
	DaysToEvent      int      `json:"days_to_event"`
	EquilibriumPrice *float64 `json:"equilibrium_price"`
	BuyProbability   float64  `json:"buy_probability"`
}

// HasPrice reports whether the record carries an equilibrium price.
func (r EquilibriumRecord) HasPrice() bool {
	return r.EquilibriumPrice != nil
}

// Price returns the equilibrium price, or zero when absent.
func (r EquilibriumRecord) Price() float64 {
	if r.EquilibriumPrice == nil {
		return 0
	}
	return *r.EquilibriumPrice
}

// NewMarketRecord validates and builds a MarketRecord.
func NewMarketRecord(zone string, daysToEvent int, medianPrice float64) (MarketRecord, error) {
	z, ok := ZoneIDFromString(zone)
	if !ok {
		return MarketRecord{}, fmt.Errorf("%w: unknown zone %q", ErrInvalidInput, zone)
	}
	if daysToEvent < 0 {
		return MarketRecord{}, fmt.Errorf("%w: days_to_event must be non-negative, got %d", ErrInvalidInput, daysToEvent)
	}
	if medianPrice < 0 || math.IsNaN(medianPrice) || math.IsInf(medianPrice, 0) {
		return MarketRecord{}, fmt.Errorf("%w: median_price must be a non-negative number, got %v", ErrInvalidInput, medianPrice)
	}
	return MarketRecord{Zone: z, DaysToEvent: daysToEvent, MedianPrice: medianPrice}, nil
}

// NewEquilibriumRecord validates and builds an EquilibriumRecord.
// A nil price is kept as absent.
func NewEquilibriumRecord(sellerType, zone string, daysToEvent int, price *float64, buyProbability float64) (EquilibriumRecord, error) {
	z, ok := ZoneIDFromString(zone)
	if !ok {
		return EquilibriumRecord{}, fmt.Errorf("%w: unknown zone %q", ErrInvalidInput, zone)
	}
	if sellerType == "" {
		return EquilibriumRecord{}, fmt.Errorf("%w: seller_type is required", ErrInvalidInput)
	}
	if daysToEvent < 0 {
		return EquilibriumRecord{}, fmt.Errorf("%w: days_to_event must be non-negative, got %d", ErrInvalidInput, daysToEvent)
	}
	if price != nil && (*price < 0 || math.IsNaN(*price) || math.IsInf(*price, 0)) {
		return EquilibriumRecord{}, fmt.Errorf("%w: equilibrium_price must be a non-negative number, got %v", ErrInvalidInput, *price)
	}
	if buyProbability < 0 || buyProbability > 1 || math.IsNaN(buyProbability) {
		return EquilibriumRecord{}, fmt.Errorf("%w: buy_probability must be within [0,1], got %v", ErrInvalidInput, buyProbability)
	}

	var p *float64
	if price != nil {
		v := *price
		p = &v
	}
	return EquilibriumRecord{
		SellerType:       sellerType,
		Zone:             z,
		DaysToEvent:      daysToEvent,
		EquilibriumPrice: p,
		BuyProbability:   buyProbability,
	}, nil
}

// SellerTypesPresent returns the distinct normalized seller types in the records, in first-seen order.
func SellerTypesPresent(records []EquilibriumRecord) []SellerType {
	seen := make(map[SellerType]bool)
	var types []SellerType
	for _, r := range records {
		st := Normalize(r.SellerType)
		if !seen[st] {
			seen[st] = true
			types = append(types, st)
		}
	}
	return types
}

// Datasets is one complete, successfully loaded pair of datasets.
// It is never modified after the load that produced it.
type Datasets struct {
	Market      []MarketRecord      `json:"market"`
	Equilibrium []EquilibriumRecord `json:"equilibrium"`
	Warnings    []RowError          `json:"warnings"`
	Source      string              `json:"source"`
	LoadedAt    time.Time           `json:"loaded_at"`
}
