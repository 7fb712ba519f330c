// Package projection derives the per-profile series and the current-day
// snapshot shown for a view state. Everything here is pure.
package projection

import (
	"slices"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

// Input is everything a projection depends on.
type Input struct {
	Market      []domain.MarketRecord
	Equilibrium []domain.EquilibriumRecord
	Zone        domain.ZoneID
	Day         int
	// HasDay is false while no day can be resolved for the zone; the view is then empty.
	HasDay   bool
	Profiles []domain.ProfileID
	Compare  bool
}

// Point is one (day, value) sample of a series.
type Point struct {
	Day   int     `json:"day"`
	Value float64 `json:"value"`
}

// MarketSeries is the observed market median price of a zone over every day.
type MarketSeries struct {
	Zone    domain.ZoneID         `json:"zone"`
	Records []domain.MarketRecord `json:"records"`
}

// Points returns the median prices as points.
func (s *MarketSeries) Points() []Point {
	points := make([]Point, 0, len(s.Records))
	for _, r := range s.Records {
		points = append(points, Point{Day: r.DaysToEvent, Value: r.MedianPrice})
	}
	return points
}

// ProfileSeries is the projection of one selected profile.
type ProfileSeries struct {
	Profile    domain.ProfileID           `json:"profile"`
	SellerType domain.SellerType          `json:"seller_type"`
	Name       string                     `json:"name"`
	Color      string                     `json:"color"`
	Trajectory []domain.EquilibriumRecord `json:"trajectory"`
	Current    *domain.EquilibriumRecord  `json:"current,omitempty"`
}

// PricePoints returns the trajectory's equilibrium prices. Records without a
// price are skipped.
func (s ProfileSeries) PricePoints() []Point {
	points := make([]Point, 0, len(s.Trajectory))
	for _, r := range s.Trajectory {
		if r.HasPrice() {
			points = append(points, Point{Day: r.DaysToEvent, Value: r.Price()})
		}
	}
	return points
}

// ProbabilityPoints returns the trajectory's buy probabilities.
func (s ProfileSeries) ProbabilityPoints() []Point {
	points := make([]Point, 0, len(s.Trajectory))
	for _, r := range s.Trajectory {
		points = append(points, Point{Day: r.DaysToEvent, Value: r.BuyProbability})
	}
	return points
}

// Recommendation is the current-day outcome of one profile.
type Recommendation struct {
	Profile     domain.ProfileID `json:"profile"`
	Price       float64          `json:"price"`
	Probability float64          `json:"probability"`
}

// View is the derived view of one view state.
type View struct {
	Zone            domain.ZoneID    `json:"zone"`
	Day             int              `json:"day"`
	HasDay          bool             `json:"has_day"`
	Market          *MarketSeries    `json:"market,omitempty"`
	Series          []ProfileSeries  `json:"series"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Project computes the view for in. Series follow the order of in.Profiles.
// Missing data is never an error: it yields empty series, no marker, or an
// omitted recommendation.
func Project(in Input) View {
	view := View{
		Zone:            in.Zone,
		Day:             in.Day,
		HasDay:          in.HasDay,
		Series:          []ProfileSeries{},
		Recommendations: []Recommendation{},
	}
	if !in.HasDay {
		return view
	}

	if in.Compare {
		view.Market = marketSeries(in.Market, in.Zone)
	}

	for _, p := range in.Profiles {
		series := profileSeries(in.Equilibrium, in.Zone, in.Day, p)
		view.Series = append(view.Series, series)

		if series.Current != nil && series.Current.HasPrice() {
			view.Recommendations = append(view.Recommendations, Recommendation{
				Profile:     p,
				Price:       series.Current.Price(),
				Probability: series.Current.BuyProbability,
			})
		}
	}

	return view
}

func marketSeries(records []domain.MarketRecord, zone domain.ZoneID) *MarketSeries {
	return &MarketSeries{Zone: zone, Records: MarketFor(records, zone)}
}

// MarketFor returns the zone's market records sorted by days_to_event
// descending. The market series is never clipped to the selected day.
func MarketFor(records []domain.MarketRecord, zone domain.ZoneID) []domain.MarketRecord {
	matched := make([]domain.MarketRecord, 0)
	for _, r := range records {
		if r.Zone == zone {
			matched = append(matched, r)
		}
	}
	slices.SortStableFunc(matched, func(a, b domain.MarketRecord) int {
		return b.DaysToEvent - a.DaysToEvent
	})
	return matched
}

func profileSeries(records []domain.EquilibriumRecord, zone domain.ZoneID, day int, p domain.ProfileID) ProfileSeries {
	info := p.Info()
	series := ProfileSeries{
		Profile:    p,
		SellerType: p.SellerType(),
		Name:       info.Name,
		Color:      info.Color,
		Trajectory: []domain.EquilibriumRecord{},
	}

	for _, r := range Matching(records, zone, p) {
		if r.DaysToEvent < day {
			continue
		}
		series.Trajectory = append(series.Trajectory, r)
		if r.DaysToEvent == day && series.Current == nil {
			current := r
			series.Current = &current
		}
	}
	return series
}

// Matching returns the zone's records whose normalized seller type is the
// profile's, sorted by days_to_event descending.
func Matching(records []domain.EquilibriumRecord, zone domain.ZoneID, p domain.ProfileID) []domain.EquilibriumRecord {
	want := p.SellerType()
	matched := make([]domain.EquilibriumRecord, 0)
	for _, r := range records {
		if r.Zone == zone && domain.Normalize(r.SellerType) == want {
			matched = append(matched, r)
		}
	}
	slices.SortStableFunc(matched, func(a, b domain.EquilibriumRecord) int {
		return b.DaysToEvent - a.DaysToEvent
	})
	return matched
}
