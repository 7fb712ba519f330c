package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/scheduler"
)

type stubLoader struct {
	mu    sync.Mutex
	ds    *domain.Datasets
	err   error
	gate  chan struct{}
	calls int
}

func (l *stubLoader) Load(ctx context.Context) (*domain.Datasets, error) {
	l.mu.Lock()
	l.calls++
	gate := l.gate
	ds, err := l.ds, l.err
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return ds, err
}

func (l *stubLoader) set(ds *domain.Datasets, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ds, l.err = ds, err
}

func price(v float64) *float64 { return &v }

func eq(seller string, zone domain.ZoneID, day int, p float64, prob float64) domain.EquilibriumRecord {
	return domain.EquilibriumRecord{SellerType: seller, Zone: zone, DaysToEvent: day, EquilibriumPrice: price(p), BuyProbability: prob}
}

// fixture has seller types {profit_maximizer, Balanced, guaranteed}; Standard
// days {30, 20, 10, 0}, Premium days {14, 7}.
func fixture() *domain.Datasets {
	var records []domain.EquilibriumRecord
	for _, day := range []int{30, 20, 10, 0} {
		records = append(records,
			eq("profit_maximizer", domain.ZoneStandard, day, 200-float64(day), 0.2),
			eq("Balanced", domain.ZoneStandard, day, 150-float64(day), 0.5),
			eq("guaranteed", domain.ZoneStandard, day, 100-float64(day), 0.9),
		)
	}
	records = append(records,
		eq("balanced", domain.ZonePremium, 14, 300, 0.4),
		eq("balanced", domain.ZonePremium, 7, 320, 0.35),
	)
	return &domain.Datasets{
		Market: []domain.MarketRecord{
			{Zone: domain.ZoneStandard, DaysToEvent: 30, MedianPrice: 180},
			{Zone: domain.ZoneStandard, DaysToEvent: 0, MedianPrice: 210},
		},
		Equilibrium: records,
		LoadedAt:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

type harness struct {
	t       *testing.T
	ctrl    *Controller
	loader  *stubLoader
	clock   *scheduler.ManualClock
	updates chan Update
}

func newHarness(t *testing.T, initial domain.ViewState) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		loader:  &stubLoader{ds: fixture()},
		clock:   scheduler.NewManualClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
		updates: make(chan Update, 256),
	}
	h.ctrl = NewController(h.loader, Options{
		InitialView:      initial,
		PlaybackInterval: time.Second,
		Clock:            h.clock,
	}, zaptest.NewLogger(t))
	h.ctrl.Subscribe(func(u Update) { h.updates <- u })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.ctrl.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) reload() {
	require.NoError(h.t, h.ctrl.Reload(h.ctx()))
}

// waitFor returns the first update with the trigger.
func (h *harness) waitFor(trigger Trigger) Update {
	h.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u := <-h.updates:
			if u.Trigger == trigger {
				return u
			}
		case <-timeout:
			h.t.Fatalf("no %s update", trigger)
			return Update{}
		}
	}
}

func TestController_InitialSnapshot(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedDay: 25})

	snap := h.ctrl.Snapshot()
	assert.True(t, snap.Loading)
	assert.False(t, snap.Loaded)
	assert.False(t, snap.HasDay)
	assert.Equal(t, domain.ZoneStandard, snap.State.SelectedZone)
	assert.Empty(t, snap.View.Series)
	assert.False(t, h.ctrl.Ready())
}

func TestController_LoadSeedsDefaultsAndResolvesDay(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedZone: domain.ZoneStandard, SelectedDay: 25})
	h.reload()

	snap := h.ctrl.Snapshot()
	assert.False(t, snap.Loading)
	assert.True(t, snap.Loaded)
	assert.Empty(t, snap.Error)
	assert.True(t, h.ctrl.Ready())
	assert.Equal(t, []int{30, 20, 10, 0}, snap.Index)

	// 25 is equally far from 30 and 20; the farther day wins.
	assert.True(t, snap.HasDay)
	assert.Equal(t, 30, snap.State.SelectedDay)
	assert.Equal(t, 0, snap.DayIndex)

	// "guaranteed" counts for select-all but does not name guaranteed_sale.
	assert.Equal(t, []domain.ProfileID{
		domain.ProfileBalanced,
		domain.ProfileProfitMaximizer,
	}, snap.State.SelectedProfiles)
	assert.False(t, snap.AllSelected)
	require.Len(t, snap.View.Series, 2)
	assert.Len(t, snap.View.Recommendations, 2)
	assert.Equal(t, domain.ProfileBalanced, snap.View.Recommendations[0].Profile)
}

func TestController_SeedingRespectsExistingSelection(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedProfiles: []domain.ProfileID{domain.ProfileLowRisk}})
	h.reload()

	snap := h.ctrl.Snapshot()
	assert.Equal(t, []domain.ProfileID{domain.ProfileLowRisk}, snap.State.SelectedProfiles)
	require.Len(t, snap.View.Series, 1)
	assert.Empty(t, snap.View.Series[0].Trajectory, "profile absent from data yields an empty series")
	assert.Empty(t, snap.View.Recommendations)
}

func TestController_SeedingHappensOnce(t *testing.T) {
	h := newHarness(t, domain.ViewState{})
	h.reload()
	require.NoError(t, h.ctrl.SelectAll(h.ctx(), false))
	h.reload()

	snap := h.ctrl.Snapshot()
	assert.Empty(t, snap.State.SelectedProfiles)
	assert.Empty(t, snap.View.Series)
	assert.Empty(t, snap.View.Recommendations)
}

func TestController_SelectAllUsesProfilesPresentInData(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedProfiles: []domain.ProfileID{domain.ProfileBalanced}})
	h.reload()

	assert.False(t, h.ctrl.Snapshot().AllSelected)

	require.NoError(t, h.ctrl.SelectAll(h.ctx(), true))
	snap := h.ctrl.Snapshot()
	assert.Equal(t, []domain.ProfileID{
		domain.ProfileProfitMaximizer,
		domain.ProfileBalanced,
		domain.ProfileGuaranteedSale,
	}, snap.State.SelectedProfiles)
	assert.Equal(t, snap.State.SelectedProfiles, snap.AvailableProfiles)
	assert.True(t, snap.AllSelected)

	require.NoError(t, h.ctrl.ToggleProfile(h.ctx(), domain.ProfileBalanced))
	snap = h.ctrl.Snapshot()
	assert.False(t, snap.AllSelected)
	assert.Equal(t, []domain.ProfileID{domain.ProfileProfitMaximizer, domain.ProfileGuaranteedSale}, snap.State.SelectedProfiles)

	require.NoError(t, h.ctrl.ToggleProfile(h.ctx(), domain.ProfileBalanced))
	snap = h.ctrl.Snapshot()
	assert.True(t, snap.AllSelected)
	assert.Equal(t, domain.ProfileBalanced, snap.State.SelectedProfiles[2], "toggled profiles are appended")
}

func TestController_ZoneChangeSnapsDay(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedDay: 10})
	h.reload()
	require.Equal(t, 10, h.ctrl.Snapshot().State.SelectedDay)

	require.NoError(t, h.ctrl.SelectZone(h.ctx(), domain.ZonePremium))
	snap := h.ctrl.Snapshot()
	assert.Equal(t, []int{14, 7}, snap.Index)
	assert.Equal(t, 7, snap.State.SelectedDay)

	require.NoError(t, h.ctrl.SelectZone(h.ctx(), domain.ZoneLuxury))
	snap = h.ctrl.Snapshot()
	assert.Empty(t, snap.Index)
	assert.False(t, snap.HasDay)
	assert.Empty(t, snap.View.Series)

	err := h.ctrl.SelectZone(h.ctx(), domain.ZoneID("Bleachers"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestController_SelectDayAndScrub(t *testing.T) {
	h := newHarness(t, domain.ViewState{})
	h.reload()

	require.NoError(t, h.ctrl.SelectDay(h.ctx(), 10))
	snap := h.ctrl.Snapshot()
	assert.Equal(t, 10, snap.State.SelectedDay)
	assert.Equal(t, 2, snap.DayIndex)

	err := h.ctrl.SelectDay(h.ctx(), 11)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 10, h.ctrl.Snapshot().State.SelectedDay)

	require.NoError(t, h.ctrl.ScrubTo(h.ctx(), 3))
	assert.Equal(t, 0, h.ctrl.Snapshot().State.SelectedDay)

	assert.ErrorIs(t, h.ctrl.ScrubTo(h.ctx(), 4), domain.ErrInvalidInput)
	assert.ErrorIs(t, h.ctrl.ScrubTo(h.ctx(), -1), domain.ErrInvalidInput)
}

func TestController_Compare(t *testing.T) {
	h := newHarness(t, domain.ViewState{})
	h.reload()
	assert.Nil(t, h.ctrl.Snapshot().View.Market)

	require.NoError(t, h.ctrl.SetCompare(h.ctx(), true))
	snap := h.ctrl.Snapshot()
	require.NotNil(t, snap.View.Market)
	assert.Len(t, snap.View.Market.Records, 2)
	assert.True(t, snap.State.CompareWithMarket)
}

func TestController_SetProfilesValidates(t *testing.T) {
	h := newHarness(t, domain.ViewState{})
	err := h.ctrl.SetProfiles(h.ctx(), []domain.ProfileID{"balanced", "yolo"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, h.ctrl.ToggleProfile(h.ctx(), "yolo"), domain.ErrInvalidInput)

	require.NoError(t, h.ctrl.SetProfiles(h.ctx(), []domain.ProfileID{"low_risk", "balanced", "low_risk"}))
	assert.Equal(t, []domain.ProfileID{"low_risk", "balanced"}, h.ctrl.Snapshot().State.SelectedProfiles)
}

func TestController_LoadFailure(t *testing.T) {
	h := newHarness(t, domain.ViewState{})
	loadErr := domain.NewLoadError(domain.DatasetEquilibrium, "fetching", errors.New("connection refused"))
	h.loader.set(nil, loadErr)

	err := h.ctrl.Reload(h.ctx())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoad)

	snap := h.ctrl.Snapshot()
	assert.False(t, snap.Loading)
	assert.False(t, snap.Loaded)
	assert.Equal(t, "error fetching equilibrium data: connection refused", snap.Error)

	// Retrying clears the error.
	h.loader.set(fixture(), nil)
	h.reload()
	snap = h.ctrl.Snapshot()
	assert.Empty(t, snap.Error)
	assert.True(t, snap.Loaded)
}

func TestController_ReloadInProgress(t *testing.T) {
	h := newHarness(t, domain.ViewState{})
	gate := make(chan struct{})
	h.loader.mu.Lock()
	h.loader.gate = gate
	h.loader.mu.Unlock()

	first := make(chan error, 1)
	go func() { first <- h.ctrl.Reload(context.Background()) }()
	h.waitFor(TriggerLoadStarted)

	assert.ErrorIs(t, h.ctrl.Reload(h.ctx()), domain.ErrLoadInProgress)
	assert.True(t, h.ctrl.Snapshot().Loading)

	close(gate)
	require.NoError(t, <-first)
	assert.False(t, h.ctrl.Snapshot().Loading)
}

func TestController_PlaybackRunsToLastDay(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedDay: 30})
	h.reload()

	require.NoError(t, h.ctrl.StartPlayback(h.ctx()))
	started := h.waitFor(TriggerPlaybackStarted)
	assert.Equal(t, domain.PlaybackPlaying, started.Snapshot.Playback.State)
	assert.ErrorIs(t, h.ctrl.StartPlayback(h.ctx()), domain.ErrAlreadyPlaying)

	var days []int
	for _, want := range []Trigger{TriggerTick, TriggerTick, TriggerPlaybackFinished} {
		h.clock.Advance(time.Second)
		u := h.waitFor(want)
		days = append(days, u.Snapshot.State.SelectedDay)
		assert.Equal(t, u.Snapshot.DayIndex, u.Snapshot.Playback.Index)
	}
	assert.Equal(t, []int{20, 10, 0}, days)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.PlaybackStopped, snap.Playback.State)
	assert.Equal(t, 3, snap.Playback.Index)
	assert.Equal(t, 0, snap.Playback.Day)
	assert.Equal(t, 0, h.clock.Tickers())

	// Nothing moves once stopped.
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 0, h.ctrl.Snapshot().State.SelectedDay)
}

func TestController_StopPlayback(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedDay: 30})
	h.reload()

	require.NoError(t, h.ctrl.StartPlayback(h.ctx()))
	h.clock.Advance(time.Second)
	h.waitFor(TriggerTick)

	require.NoError(t, h.ctrl.StopPlayback(h.ctx()))
	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.PlaybackStopped, snap.Playback.State)
	assert.Equal(t, 20, snap.State.SelectedDay)
	assert.Equal(t, 0, h.clock.Tickers())

	// Idempotent.
	require.NoError(t, h.ctrl.StopPlayback(h.ctx()))
}

func TestController_ZoneChangeDuringPlayback(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedDay: 30})
	h.reload()

	require.NoError(t, h.ctrl.StartPlayback(h.ctx()))
	require.NoError(t, h.ctrl.SelectZone(h.ctx(), domain.ZonePremium))
	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.PlaybackPlaying, snap.Playback.State, "zone change does not stop playback")
	assert.False(t, snap.HasDay)
	assert.Equal(t, -1, snap.DayIndex)
	assert.Empty(t, snap.View.Series)

	h.clock.Advance(time.Second)
	u := h.waitFor(TriggerTick)
	assert.True(t, u.Snapshot.HasDay)
	assert.Equal(t, 14, u.Snapshot.State.SelectedDay)

	h.clock.Advance(time.Second)
	u = h.waitFor(TriggerPlaybackFinished)
	assert.Equal(t, 7, u.Snapshot.State.SelectedDay)
	assert.Equal(t, domain.PlaybackStopped, u.Snapshot.Playback.State)
}

func TestController_ZoneChangeMidPlaybackRestartsIndex(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedDay: 30})
	h.reload()

	require.NoError(t, h.ctrl.StartPlayback(h.ctx()))
	for _, want := range []int{20, 10} {
		h.clock.Advance(time.Second)
		assert.Equal(t, want, h.waitFor(TriggerTick).Snapshot.State.SelectedDay)
	}

	require.NoError(t, h.ctrl.SelectZone(h.ctx(), domain.ZonePremium))
	assert.False(t, h.ctrl.Snapshot().HasDay, "10 is not a Premium day")

	h.clock.Advance(time.Second)
	u := h.waitFor(TriggerTick)
	assert.Equal(t, 14, u.Snapshot.State.SelectedDay)
	assert.Equal(t, 0, u.Snapshot.DayIndex)
	assert.Equal(t, domain.PlaybackPlaying, u.Snapshot.Playback.State)
}

func TestController_StopAfterZoneChangeSnapsDay(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedDay: 10})
	h.reload()

	require.NoError(t, h.ctrl.StartPlayback(h.ctx()))
	require.NoError(t, h.ctrl.SelectZone(h.ctx(), domain.ZonePremium))
	require.False(t, h.ctrl.Snapshot().HasDay)

	require.NoError(t, h.ctrl.StopPlayback(h.ctx()))
	snap := h.ctrl.Snapshot()
	assert.True(t, snap.HasDay)
	assert.Equal(t, 7, snap.State.SelectedDay)
}

func TestController_Unsubscribe(t *testing.T) {
	h := newHarness(t, domain.ViewState{})

	var mu sync.Mutex
	count := 0
	unsubscribe := h.ctrl.Subscribe(func(Update) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, h.ctrl.SetCompare(h.ctx(), true))
	unsubscribe()
	require.NoError(t, h.ctrl.SetCompare(h.ctx(), false))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestController_CommandsAfterStop(t *testing.T) {
	ctrl := NewController(&stubLoader{ds: fixture()}, Options{}, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.ErrorIs(t, ctrl.SetCompare(context.Background(), true), ErrStopped)
}

func TestController_PlaybackStatusJSON(t *testing.T) {
	h := newHarness(t, domain.ViewState{SelectedDay: 20})
	h.reload()

	raw, err := json.Marshal(h.ctrl.Snapshot().Playback)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"stopped","index":1,"day":20,"interval_ms":1000}`, string(raw))
}
