package http

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saltfish/seatscope/go-backend/internal/dashboard"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/projection"
	"github.com/saltfish/seatscope/go-backend/internal/timeline"
)

var hundred = decimal.NewFromInt(100)

// FormatPrice renders a price with two decimals, e.g. "140.00".
func FormatPrice(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatProbability renders a probability as a percentage with one decimal,
// e.g. 0.45 becomes "45.0".
func FormatProbability(p float64) string {
	return decimal.NewFromFloat(p).Mul(hundred).StringFixed(1)
}

// PlaybackResponse is the playback control surface.
type PlaybackResponse struct {
	State      domain.PlaybackState `json:"state"`
	Index      int                  `json:"index"`
	Day        int                  `json:"day"`
	IntervalMS int64                `json:"interval_ms"`
}

// RecommendationResponse is one formatted current-day recommendation.
type RecommendationResponse struct {
	Profile     domain.ProfileID `json:"profile"`
	Name        string           `json:"name"`
	Color       string           `json:"color"`
	Price       string           `json:"price"`
	Probability string           `json:"probability"`
}

// SeriesResponse is the chart data of one selected profile.
type SeriesResponse struct {
	Profile       domain.ProfileID          `json:"profile"`
	SellerType    domain.SellerType         `json:"seller_type"`
	Name          string                    `json:"name"`
	Color         string                    `json:"color"`
	Prices        []projection.Point        `json:"prices"`
	Probabilities []projection.Point        `json:"probabilities"`
	Current       *domain.EquilibriumRecord `json:"current,omitempty"`
}

// ViewResponse is the derived view of the current state.
type ViewResponse struct {
	Market          []projection.Point       `json:"market,omitempty"`
	Series          []SeriesResponse         `json:"series"`
	Recommendations []RecommendationResponse `json:"recommendations"`
}

// StateResponse is returned by every state endpoint and pushed to websocket clients.
type StateResponse struct {
	Version           uint64             `json:"version"`
	Loading           bool               `json:"loading"`
	Error             string             `json:"error,omitempty"`
	Loaded            bool               `json:"loaded"`
	LoadedAt          *time.Time         `json:"loaded_at,omitempty"`
	Warnings          int                `json:"warnings"`
	State             domain.ViewState   `json:"state"`
	HasDay            bool               `json:"has_day"`
	DayLabel          string             `json:"day_label,omitempty"`
	DayIndex          int                `json:"day_index"`
	Index             []int              `json:"index"`
	AvailableProfiles []domain.ProfileID `json:"available_profiles"`
	AllSelected       bool               `json:"all_selected"`
	Playback          PlaybackResponse   `json:"playback"`
	View              ViewResponse       `json:"view"`
}

// NewStateResponse converts a controller snapshot.
func NewStateResponse(s dashboard.Snapshot) StateResponse {
	resp := StateResponse{
		Version:           s.Version,
		Loading:           s.Loading,
		Error:             s.Error,
		Loaded:            s.Loaded,
		Warnings:          s.Warnings,
		State:             s.State,
		HasDay:            s.HasDay,
		DayIndex:          s.DayIndex,
		Index:             s.Index,
		AvailableProfiles: s.AvailableProfiles,
		AllSelected:       s.AllSelected,
		Playback: PlaybackResponse{
			State:      s.Playback.State,
			Index:      s.Playback.Index,
			Day:        s.Playback.Day,
			IntervalMS: s.Playback.Interval.Milliseconds(),
		},
		View: newViewResponse(s.View),
	}
	if s.HasDay {
		resp.DayLabel = timeline.Label(s.State.SelectedDay)
	}
	if s.Loaded {
		loadedAt := s.LoadedAt
		resp.LoadedAt = &loadedAt
	}
	return resp
}

func newViewResponse(v projection.View) ViewResponse {
	resp := ViewResponse{
		Series:          make([]SeriesResponse, 0, len(v.Series)),
		Recommendations: make([]RecommendationResponse, 0, len(v.Recommendations)),
	}
	if v.Market != nil {
		resp.Market = v.Market.Points()
	}
	for _, s := range v.Series {
		resp.Series = append(resp.Series, SeriesResponse{
			Profile:       s.Profile,
			SellerType:    s.SellerType,
			Name:          s.Name,
			Color:         s.Color,
			Prices:        s.PricePoints(),
			Probabilities: s.ProbabilityPoints(),
			Current:       s.Current,
		})
	}
	for _, r := range v.Recommendations {
		info := r.Profile.Info()
		resp.Recommendations = append(resp.Recommendations, RecommendationResponse{
			Profile:     r.Profile,
			Name:        info.Name,
			Color:       info.Color,
			Price:       FormatPrice(r.Price),
			Probability: FormatProbability(r.Probability),
		})
	}
	return resp
}

// MarketSummary describes the market dataset.
type MarketSummary struct {
	Total   int             `json:"total"`
	Zones   []domain.ZoneID `json:"zones"`
	MaxDay  *int            `json:"max_day,omitempty"`
	Zone    domain.ZoneID   `json:"zone"`
	Day     int             `json:"day"`
	HasData bool            `json:"has_data"`
}

// EquilibriumSummary describes the equilibrium dataset.
type EquilibriumSummary struct {
	Total            int      `json:"total"`
	SellerTypes      []string `json:"seller_types"`
	SelectedProfiles []string `json:"selected_profiles"`
	Zone             string   `json:"zone"`
	HasData          bool     `json:"has_data"`
}

// SummaryResponse is the dataset summary panel.
type SummaryResponse struct {
	Market      MarketSummary      `json:"market"`
	Equilibrium EquilibriumSummary `json:"equilibrium"`
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// NewSummaryResponse summarizes the datasets behind a snapshot. ds may be nil.
func NewSummaryResponse(s dashboard.Snapshot, ds *domain.Datasets) SummaryResponse {
	resp := SummaryResponse{
		Market: MarketSummary{
			Zones: []domain.ZoneID{},
			Zone:  s.State.SelectedZone,
			Day:   s.State.SelectedDay,
		},
		Equilibrium: EquilibriumSummary{
			SellerTypes:      []string{},
			SelectedProfiles: make([]string, 0, len(s.State.SelectedProfiles)),
			Zone:             s.State.SelectedZone.String(),
		},
	}
	for _, p := range s.State.SelectedProfiles {
		resp.Equilibrium.SelectedProfiles = append(resp.Equilibrium.SelectedProfiles, humanize(string(p)))
	}
	if ds == nil {
		return resp
	}

	resp.Market.Total = len(ds.Market)
	resp.Market.HasData = len(ds.Market) > 0
	for _, r := range ds.Market {
		if !slices.Contains(resp.Market.Zones, r.Zone) {
			resp.Market.Zones = append(resp.Market.Zones, r.Zone)
		}
		if resp.Market.MaxDay == nil || r.DaysToEvent > *resp.Market.MaxDay {
			day := r.DaysToEvent
			resp.Market.MaxDay = &day
		}
	}

	resp.Equilibrium.Total = len(ds.Equilibrium)
	resp.Equilibrium.HasData = len(ds.Equilibrium) > 0
	for _, r := range ds.Equilibrium {
		st := humanize(r.SellerType)
		if !slices.Contains(resp.Equilibrium.SellerTypes, st) {
			resp.Equilibrium.SellerTypes = append(resp.Equilibrium.SellerTypes, st)
		}
	}
	return resp
}
