package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/saltfish/seatscope/go-backend/internal/dashboard"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/metrics"
	"github.com/saltfish/seatscope/go-backend/internal/scheduler"
)

type fakeLoader struct {
	mu  sync.Mutex
	ds  *domain.Datasets
	err error
}

func (l *fakeLoader) Load(ctx context.Context) (*domain.Datasets, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ds, l.err
}

func (l *fakeLoader) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func ptr(v float64) *float64 { return &v }

func testDatasets() *domain.Datasets {
	return &domain.Datasets{
		Source: "test",
		Market: []domain.MarketRecord{
			{Zone: domain.ZoneStandard, DaysToEvent: 10, MedianPrice: 150},
			{Zone: domain.ZoneStandard, DaysToEvent: 5, MedianPrice: 155},
			{Zone: domain.ZonePremium, DaysToEvent: 10, MedianPrice: 300},
		},
		Equilibrium: []domain.EquilibriumRecord{
			{SellerType: "balanced", Zone: domain.ZoneStandard, DaysToEvent: 10, EquilibriumPrice: ptr(120), BuyProbability: 0.62},
			{SellerType: "balanced", Zone: domain.ZoneStandard, DaysToEvent: 5, EquilibriumPrice: ptr(140), BuyProbability: 0.45},
			{SellerType: "profit_maximizer", Zone: domain.ZoneStandard, DaysToEvent: 5, EquilibriumPrice: ptr(180), BuyProbability: 0.2},
			{SellerType: "balanced", Zone: domain.ZonePremium, DaysToEvent: 10, EquilibriumPrice: ptr(310), BuyProbability: 0.3},
			{SellerType: "balanced", Zone: domain.ZoneLuxury, DaysToEvent: 10, EquilibriumPrice: ptr(900), BuyProbability: 0.1},
		},
		LoadedAt: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}
}

type testServer struct {
	t          *testing.T
	handler    http.Handler
	controller *dashboard.Controller
	loader     *fakeLoader
}

func newTestServer(t *testing.T, load bool) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	loader := &fakeLoader{ds: testDatasets()}
	m := metrics.New()

	c := dashboard.NewController(loader, dashboard.Options{
		InitialView: domain.ViewState{SelectedZone: domain.ZoneStandard, SelectedDay: 5},
		Clock:       scheduler.NewManualClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		Metrics:     m,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	if load {
		require.NoError(t, c.Reload(context.Background()))
	}

	hub := NewHub([]string{"*"}, m, logger)
	go hub.Run()
	t.Cleanup(hub.Shutdown)
	c.Subscribe(hub.Listen)

	srv := NewServer(Options{Address: ":0", AllowedOrigins: []string{"*"}, Metrics: m}, c, hub, logger)
	return &testServer{t: t, handler: srv.Handler(), controller: c, loader: loader}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) StateResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetState(t *testing.T) {
	s := newTestServer(t, true)

	state := decodeState(t, s.do(http.MethodGet, "/api/v1/state", nil))
	assert.False(t, state.Loading)
	assert.True(t, state.Loaded)
	assert.Equal(t, domain.ZoneStandard, state.State.SelectedZone)
	assert.Equal(t, 5, state.State.SelectedDay)
	assert.Equal(t, []int{10, 5}, state.Index)
	assert.Equal(t, 1, state.DayIndex)
	assert.Equal(t, "5 Days Before Event", state.DayLabel)
	assert.Equal(t, []domain.ProfileID{domain.ProfileBalanced, domain.ProfileProfitMaximizer}, state.State.SelectedProfiles)

	require.Len(t, state.View.Recommendations, 2)
	rec := state.View.Recommendations[0]
	assert.Equal(t, domain.ProfileBalanced, rec.Profile)
	assert.Equal(t, "140.00", rec.Price)
	assert.Equal(t, "45.0", rec.Probability)
	assert.Equal(t, "Balanced", rec.Name)
}

func TestGetState_BeforeLoad(t *testing.T) {
	s := newTestServer(t, false)

	state := decodeState(t, s.do(http.MethodGet, "/api/v1/state", nil))
	assert.True(t, state.Loading)
	assert.False(t, state.Loaded)
	assert.Nil(t, state.LoadedAt)
	assert.Empty(t, state.DayLabel)
	assert.Empty(t, state.View.Series)
	assert.NotNil(t, state.View.Recommendations)

	rec := s.do(http.MethodGet, "/api/v1/data/market", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSelectZone(t *testing.T) {
	s := newTestServer(t, true)

	state := decodeState(t, s.do(http.MethodPut, "/api/v1/zone", SelectZoneRequest{Zone: "premium"}))
	assert.Equal(t, domain.ZonePremium, state.State.SelectedZone)
	// Day 5 is not in Premium's index, so it snaps to 10.
	assert.Equal(t, 10, state.State.SelectedDay)

	tests := []struct {
		name string
		body any
	}{
		{"luxury is not selectable", SelectZoneRequest{Zone: "Luxury"}},
		{"unknown zone", SelectZoneRequest{Zone: "Bleachers"}},
		{"unknown field", map[string]string{"area": "Standard"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPut, "/api/v1/zone", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestSelectDayAndScrub(t *testing.T) {
	s := newTestServer(t, true)

	state := decodeState(t, s.do(http.MethodPut, "/api/v1/day", map[string]int{"day": 10}))
	assert.Equal(t, 10, state.State.SelectedDay)
	assert.Equal(t, 0, state.DayIndex)

	state = decodeState(t, s.do(http.MethodPut, "/api/v1/scrub", map[string]int{"index": 1}))
	assert.Equal(t, 5, state.State.SelectedDay)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/v1/day", map[string]int{"day": 7}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/v1/day", map[string]any{}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/v1/scrub", map[string]int{"index": 2}).Code)
}

func TestProfiles(t *testing.T) {
	s := newTestServer(t, true)

	state := decodeState(t, s.do(http.MethodPost, "/api/v1/profiles/toggle", ToggleProfileRequest{Profile: "balanced"}))
	assert.Equal(t, []domain.ProfileID{domain.ProfileProfitMaximizer}, state.State.SelectedProfiles)

	state = decodeState(t, s.do(http.MethodPut, "/api/v1/profiles", SetProfilesRequest{Profiles: []string{"guaranteed_sale", "balanced"}}))
	assert.Equal(t, []domain.ProfileID{domain.ProfileGuaranteedSale, domain.ProfileBalanced}, state.State.SelectedProfiles)
	assert.False(t, state.AllSelected)

	state = decodeState(t, s.do(http.MethodPut, "/api/v1/profiles/all", SelectAllRequest{Selected: true}))
	assert.Equal(t, []domain.ProfileID{domain.ProfileProfitMaximizer, domain.ProfileBalanced}, state.State.SelectedProfiles)
	assert.True(t, state.AllSelected)

	state = decodeState(t, s.do(http.MethodPut, "/api/v1/profiles/all", SelectAllRequest{Selected: false}))
	assert.Empty(t, state.State.SelectedProfiles)
	assert.Empty(t, state.View.Series)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/profiles/toggle", ToggleProfileRequest{Profile: "yolo"}).Code)

	rec := s.do(http.MethodGet, "/api/v1/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Profiles []ProfileResponse `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Profiles, 5)
	assert.Equal(t, domain.ProfileProfitMaximizer, list.Profiles[0].ID)
	assert.True(t, list.Profiles[0].Available)
	assert.False(t, list.Profiles[1].Available)
}

func TestCompare(t *testing.T) {
	s := newTestServer(t, true)

	state := decodeState(t, s.do(http.MethodPut, "/api/v1/compare", CompareRequest{Enabled: true}))
	assert.True(t, state.State.CompareWithMarket)
	// The market series covers every day of the zone.
	require.Len(t, state.View.Market, 2)
	assert.Equal(t, 10, state.View.Market[0].Day)

	state = decodeState(t, s.do(http.MethodPut, "/api/v1/compare", CompareRequest{Enabled: false}))
	assert.Empty(t, state.View.Market)
}

func TestPlayback(t *testing.T) {
	s := newTestServer(t, true)
	decodeState(t, s.do(http.MethodPut, "/api/v1/day", map[string]int{"day": 10}))

	state := decodeState(t, s.do(http.MethodPost, "/api/v1/playback/start", nil))
	assert.Equal(t, domain.PlaybackPlaying, state.Playback.State)
	assert.Equal(t, int64(1000), state.Playback.IntervalMS)

	rec := s.do(http.MethodPost, "/api/v1/playback/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	state = decodeState(t, s.do(http.MethodPost, "/api/v1/playback/stop", nil))
	assert.Equal(t, domain.PlaybackStopped, state.Playback.State)
	assert.Equal(t, 10, state.Playback.Day)

	// Stopping twice is a no-op.
	decodeState(t, s.do(http.MethodPost, "/api/v1/playback/stop", nil))
}

func TestReload(t *testing.T) {
	s := newTestServer(t, true)

	decodeState(t, s.do(http.MethodPost, "/api/v1/reload", nil))

	s.loader.fail(domain.NewLoadError(domain.DatasetEquilibrium, "fetching", errors.New("connection refused")))
	rec := s.do(http.MethodPost, "/api/v1/reload", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "error fetching equilibrium data: connection refused", errResp.Error)

	// The previous data stays and the error is reported.
	state := decodeState(t, s.do(http.MethodGet, "/api/v1/state", nil))
	assert.True(t, state.Loaded)
	assert.Equal(t, "error fetching equilibrium data: connection refused", state.Error)
	assert.NotEmpty(t, state.View.Series)
}

func TestData(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(http.MethodGet, "/api/v1/data/market?zone=Standard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var market MarketDataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &market))
	assert.Equal(t, 2, market.Total)

	rec = s.do(http.MethodGet, "/api/v1/data/equilibrium?zone=Standard&profile=balanced", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var eq EquilibriumDataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eq))
	require.Equal(t, 2, eq.Total)
	assert.Equal(t, 10, eq.Records[0].DaysToEvent)

	rec = s.do(http.MethodGet, "/api/v1/data/equilibrium", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eq))
	assert.Equal(t, 5, eq.Total)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/data/market?zone=Bleachers", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/data/equilibrium?profile=balanced", nil).Code)
}

func TestSummary(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(http.MethodGet, "/api/v1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))

	assert.Equal(t, 3, summary.Market.Total)
	assert.Equal(t, []domain.ZoneID{domain.ZoneStandard, domain.ZonePremium}, summary.Market.Zones)
	require.NotNil(t, summary.Market.MaxDay)
	assert.Equal(t, 10, *summary.Market.MaxDay)
	assert.Equal(t, 5, summary.Equilibrium.Total)
	assert.Equal(t, []string{"balanced", "profit maximizer"}, summary.Equilibrium.SellerTypes)
	assert.Equal(t, []string{"balanced", "profit maximizer"}, summary.Equilibrium.SelectedProfiles)
}

func TestZones(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(http.MethodGet, "/api/v1/zones", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Zones []domain.ZoneInfo `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Zones, 3)
	assert.True(t, list.Zones[0].Selectable)
	assert.False(t, list.Zones[2].Selectable)
}

func TestHealth(t *testing.T) {
	t.Run("not ready before load", func(t *testing.T) {
		s := newTestServer(t, false)
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", nil).Code)
		assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/health/ready", nil).Code)
		assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/health", nil).Code)
	})

	t.Run("ready after load", func(t *testing.T) {
		s := newTestServer(t, true)
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/ready", nil).Code)

		rec := s.do(http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var health HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, "healthy", health.Status)
		assert.Equal(t, "loaded", health.Services["datasets"])
	})
}

func TestMetricsAndRouting(t *testing.T) {
	s := newTestServer(t, true)

	s.do(http.MethodGet, "/api/v1/state", nil)
	rec := s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "seatscope_http_requests_total")
	assert.Contains(t, rec.Body.String(), "seatscope_view_recomputes_total")

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/nope", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(http.MethodDelete, "/api/v1/state", nil).Code)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "140.00", FormatPrice(140))
	assert.Equal(t, "99.99", FormatPrice(99.985))
	assert.Equal(t, "45.0", FormatProbability(0.45))
	assert.Equal(t, "62.5", FormatProbability(0.625))
	assert.Equal(t, "100.0", FormatProbability(1))
}

func TestAssets(t *testing.T) {
	logger := zaptest.NewLogger(t)
	c := dashboard.NewController(&fakeLoader{ds: testDatasets()}, dashboard.Options{}, logger)
	hub := NewHub(nil, nil, logger)
	assets := fstest.MapFS{
		"index.html": {Data: []byte("<h1>Seatscope</h1>")},
	}

	h := NewServer(Options{Assets: assets}, c, hub, logger).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Seatscope")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHealth_Checks(t *testing.T) {
	logger := zaptest.NewLogger(t)
	loader := &fakeLoader{ds: testDatasets()}
	c := dashboard.NewController(loader, dashboard.Options{}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	require.NoError(t, c.Reload(context.Background()))

	hub := NewHub(nil, nil, logger)
	h := NewServer(Options{Checks: map[string]func(context.Context) error{
		"postgres": func(context.Context) error { return errors.New("connection reset") },
	}}, c, hub, logger).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy: connection reset", health.Services["postgres"])
	assert.Equal(t, "loaded", health.Services["datasets"])
}
