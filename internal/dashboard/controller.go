// Package dashboard owns the view state and keeps every derived view in sync with it.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/metrics"
	"github.com/saltfish/seatscope/go-backend/internal/projection"
	"github.com/saltfish/seatscope/go-backend/internal/scheduler"
	"github.com/saltfish/seatscope/go-backend/internal/timeline"
)

// ErrStopped is returned by commands sent after Run has returned.
var ErrStopped = errors.New("dashboard controller stopped")

// preferredProfiles seeds the selection after the first successful load.
var preferredProfiles = []domain.ProfileID{
	domain.ProfileBalanced,
	domain.ProfileProfitMaximizer,
	domain.ProfileGuaranteedSale,
}

// Loader loads both datasets.
type Loader interface {
	Load(ctx context.Context) (*domain.Datasets, error)
}

// Trigger names the change that caused a recompute.
type Trigger string

const (
	TriggerInit             Trigger = "init"
	TriggerZone             Trigger = "zone"
	TriggerDay              Trigger = "day"
	TriggerScrub            Trigger = "scrub"
	TriggerTick             Trigger = "tick"
	TriggerProfiles         Trigger = "profiles"
	TriggerCompare          Trigger = "compare"
	TriggerPlaybackStarted  Trigger = "playback_started"
	TriggerPlaybackStopped  Trigger = "playback_stopped"
	TriggerPlaybackFinished Trigger = "playback_finished"
	TriggerLoadStarted      Trigger = "load_started"
	TriggerLoaded           Trigger = "loaded"
	TriggerLoadFailed       Trigger = "load_failed"
)

// PlaybackStatus is the scheduler control surface as seen by consumers.
type PlaybackStatus struct {
	State      domain.PlaybackState `json:"state"`
	Index      int                  `json:"index"`
	Day        int                  `json:"day"`
	Interval   time.Duration        `json:"-"`
	IntervalMS int64                `json:"interval_ms"`
}

// Snapshot is an immutable picture of the controller after one recompute.
type Snapshot struct {
	Version            uint64             `json:"version"`
	Loading            bool               `json:"loading"`
	Error              string             `json:"error,omitempty"`
	Loaded             bool               `json:"loaded"`
	Source             string             `json:"source,omitempty"`
	LoadedAt           time.Time          `json:"loaded_at"`
	MarketRecords      int                `json:"market_records"`
	EquilibriumRecords int                `json:"equilibrium_records"`
	Warnings           int                `json:"warnings"`
	State              domain.ViewState   `json:"state"`
	HasDay             bool               `json:"has_day"`
	DayIndex           int                `json:"day_index"`
	Index              []int              `json:"index"`
	AvailableProfiles  []domain.ProfileID `json:"available_profiles"`
	AllSelected        bool               `json:"all_selected"`
	Playback           PlaybackStatus     `json:"playback"`
	View               projection.View    `json:"view"`
}

// Update is delivered to listeners after every recompute.
type Update struct {
	Trigger  Trigger
	Snapshot Snapshot
}

// Listener receives updates on the controller goroutine and must not block.
type Listener func(Update)

// Options configures a Controller.
type Options struct {
	InitialView      domain.ViewState
	PlaybackInterval time.Duration
	Clock            scheduler.Clock
	Metrics          *metrics.Metrics
}

type command struct {
	apply func() (Trigger, error)
	reply chan error
}

// Controller serializes every view state change through a single goroutine.
// Each applied command is followed by a full recompute of the temporal index
// and the projection.
type Controller struct {
	loader   Loader
	playback *scheduler.Playback
	metrics  *metrics.Metrics
	logger   *zap.Logger

	cmds chan command
	done chan struct{}
	wg   sync.WaitGroup

	// Owned by the Run goroutine.
	ctx      context.Context
	view     domain.ViewState
	hasDay   bool
	index    []int
	datasets *domain.Datasets
	inFlight bool
	loadErr  error
	seeded   bool
	version  uint64

	mu        sync.RWMutex
	snapshot  Snapshot
	published *domain.Datasets

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// NewController creates a Controller. Nothing happens until Run is called.
func NewController(loader Loader, opts Options, logger *zap.Logger) *Controller {
	view := opts.InitialView.Clone()
	if view.SelectedZone == "" {
		view.SelectedZone = domain.ZoneStandard
	}

	c := &Controller{
		loader:    loader,
		playback:  scheduler.NewPlayback(opts.PlaybackInterval, opts.Clock, logger.Named("playback")),
		metrics:   opts.Metrics,
		logger:    logger,
		cmds:      make(chan command),
		done:      make(chan struct{}),
		view:      view,
		listeners: make(map[int]Listener),
	}
	c.recompute(TriggerInit)
	return c
}

// Run processes commands until ctx is cancelled. Playback is stopped and
// in-flight loads are awaited before it returns.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	defer close(c.done)

	c.logger.Info("Dashboard controller started",
		zap.String("zone", c.view.SelectedZone.String()),
		zap.Int("day", c.view.SelectedDay),
	)

	for {
		select {
		case <-ctx.Done():
			c.playback.Stop()
			c.metrics.SetPlaying(false)
			c.wg.Wait()
			c.logger.Info("Dashboard controller stopped")
			return
		case cmd := <-c.cmds:
			trigger, err := cmd.apply()
			if err == nil && trigger != "" {
				c.recompute(trigger)
			}
			if cmd.reply != nil {
				cmd.reply <- err
			}
		}
	}
}

// do sends fn to the Run goroutine and waits for it to be applied.
func (c *Controller) do(ctx context.Context, fn func() (Trigger, error)) error {
	cmd := command{apply: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectZone changes the zone. The day is kept when the new zone has it,
// otherwise it snaps to the nearest available day, or is left unselected
// until the next tick when playback is running.
func (c *Controller) SelectZone(ctx context.Context, zone domain.ZoneID) error {
	if !zone.IsValid() {
		return fmt.Errorf("%w: unknown zone %q", domain.ErrInvalidInput, zone)
	}
	return c.do(ctx, func() (Trigger, error) {
		c.view.SelectedZone = zone
		return TriggerZone, nil
	})
}

// SelectDay selects a day of the current zone's index.
func (c *Controller) SelectDay(ctx context.Context, day int) error {
	return c.do(ctx, func() (Trigger, error) {
		if len(c.index) > 0 && !timeline.Contains(c.index, day) {
			return "", fmt.Errorf("%w: day %d is not available for zone %s", domain.ErrInvalidInput, day, c.view.SelectedZone)
		}
		c.view.SelectedDay = day
		return TriggerDay, nil
	})
}

// ScrubTo selects the day at position i of the current zone's index.
func (c *Controller) ScrubTo(ctx context.Context, i int) error {
	return c.do(ctx, func() (Trigger, error) {
		if i < 0 || i >= len(c.index) {
			return "", fmt.Errorf("%w: index %d out of range [0,%d)", domain.ErrInvalidInput, i, len(c.index))
		}
		c.view.SelectedDay = c.index[i]
		return TriggerScrub, nil
	})
}

// ToggleProfile adds the profile to the selection, or removes it.
func (c *Controller) ToggleProfile(ctx context.Context, p domain.ProfileID) error {
	if !p.IsValid() {
		return fmt.Errorf("%w: unknown profile %q", domain.ErrInvalidInput, p)
	}
	return c.do(ctx, func() (Trigger, error) {
		c.view.ToggleProfile(p)
		return TriggerProfiles, nil
	})
}

// SetProfiles replaces the selection.
func (c *Controller) SetProfiles(ctx context.Context, profiles []domain.ProfileID) error {
	for _, p := range profiles {
		if !p.IsValid() {
			return fmt.Errorf("%w: unknown profile %q", domain.ErrInvalidInput, p)
		}
	}
	return c.do(ctx, func() (Trigger, error) {
		c.view.SetProfiles(profiles)
		return TriggerProfiles, nil
	})
}

// SelectAll selects every profile present in the loaded data, or clears the selection.
func (c *Controller) SelectAll(ctx context.Context, all bool) error {
	return c.do(ctx, func() (Trigger, error) {
		if all {
			c.view.SetProfiles(c.available())
		} else {
			c.view.SetProfiles(nil)
		}
		return TriggerProfiles, nil
	})
}

// SetCompare toggles the market comparison series.
func (c *Controller) SetCompare(ctx context.Context, compare bool) error {
	return c.do(ctx, func() (Trigger, error) {
		c.view.CompareWithMarket = compare
		return TriggerCompare, nil
	})
}

// StartPlayback starts advancing the day on every tick.
func (c *Controller) StartPlayback(ctx context.Context) error {
	return c.do(ctx, func() (Trigger, error) {
		c.playback.Seek(timeline.IndexOf(c.index, c.view.SelectedDay), c.view.SelectedDay)
		if err := c.playback.Start(c.ctx, c.onTick); err != nil {
			return "", err
		}
		c.metrics.SetPlaying(true)
		return TriggerPlaybackStarted, nil
	})
}

// StopPlayback stops playback. Stopping a stopped playback is a no-op.
func (c *Controller) StopPlayback(ctx context.Context) error {
	return c.do(ctx, func() (Trigger, error) {
		if c.playback.State() != domain.PlaybackPlaying {
			return "", nil
		}
		c.playback.Stop()
		c.metrics.SetPlaying(false)
		return TriggerPlaybackStopped, nil
	})
}

func (c *Controller) onTick(ctx context.Context) {
	cmd := command{apply: c.applyTick}
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
	}
}

func (c *Controller) applyTick() (Trigger, error) {
	step, ok := c.playback.Advance(c.index, c.view.SelectedDay)
	if !ok {
		return "", nil
	}
	c.metrics.PlaybackTick()
	if step.Index >= 0 {
		c.view.SelectedDay = step.Day
	}
	if step.Done {
		c.metrics.SetPlaying(false)
		return TriggerPlaybackFinished, nil
	}
	return TriggerTick, nil
}

// Reload fetches both datasets again and waits for the result. The previous
// datasets stay in place when the load fails.
func (c *Controller) Reload(ctx context.Context) error {
	var result chan error
	err := c.do(ctx, func() (Trigger, error) {
		if c.inFlight {
			return "", domain.ErrLoadInProgress
		}
		c.inFlight = true
		result = make(chan error, 1)
		c.wg.Add(1)
		go c.load(c.ctx, result)
		return TriggerLoadStarted, nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) load(ctx context.Context, result chan<- error) {
	defer c.wg.Done()

	ds, loadErr := c.loader.Load(ctx)
	cmd := command{apply: func() (Trigger, error) {
		c.inFlight = false
		if loadErr != nil {
			c.loadErr = loadErr
			return TriggerLoadFailed, nil
		}
		c.datasets = ds
		c.loadErr = nil
		c.seed()
		return TriggerLoaded, nil
	}}

	select {
	case c.cmds <- cmd:
		result <- loadErr
	case <-ctx.Done():
		result <- ctx.Err()
	}
}

// seed selects the preferred profiles present in the data, once, and only
// when nothing is selected yet.
func (c *Controller) seed() {
	if c.seeded {
		return
	}
	c.seeded = true
	if len(c.view.SelectedProfiles) > 0 {
		return
	}

	var seeded []domain.ProfileID
	for _, p := range preferredProfiles {
		for _, r := range c.datasets.Equilibrium {
			if matchesPreferred(r.SellerType, p) {
				seeded = append(seeded, p)
				break
			}
		}
	}
	c.view.SetProfiles(seeded)
	c.logger.Info("Seeded default profile selection", zap.Any("profiles", seeded))
}

// matchesPreferred reports whether a raw seller type names the profile id.
// Short tokens such as "profit" count for select-all but not for seeding.
func matchesPreferred(raw string, p domain.ProfileID) bool {
	return strings.Contains(strings.ToLower(raw), string(p))
}

// available returns the profiles whose seller type occurs in the loaded data,
// in canonical order.
func (c *Controller) available() []domain.ProfileID {
	if c.datasets == nil {
		return []domain.ProfileID{}
	}
	present := domain.SellerTypesPresent(c.datasets.Equilibrium)
	profiles := make([]domain.ProfileID, 0, len(domain.Profiles))
	for _, p := range domain.Profiles {
		if slices.Contains(present, p.SellerType()) {
			profiles = append(profiles, p)
		}
	}
	return profiles
}

// recompute rebuilds the index and the projection, publishes the snapshot and
// notifies listeners.
func (c *Controller) recompute(trigger Trigger) {
	start := time.Now()

	var (
		market      []domain.MarketRecord
		equilibrium []domain.EquilibriumRecord
	)
	if c.datasets != nil {
		market = c.datasets.Market
		equilibrium = c.datasets.Equilibrium
	}

	c.index = timeline.Build(equilibrium, c.view.SelectedZone)
	c.resolveDay()

	view := projection.Project(projection.Input{
		Market:      market,
		Equilibrium: equilibrium,
		Zone:        c.view.SelectedZone,
		Day:         c.view.SelectedDay,
		HasDay:      c.hasDay,
		Profiles:    c.view.SelectedProfiles,
		Compare:     c.view.CompareWithMarket,
	})

	available := c.available()
	c.version++

	snap := Snapshot{
		Version:           c.version,
		Loading:           c.inFlight || (c.datasets == nil && c.loadErr == nil),
		Loaded:            c.datasets != nil,
		State:             c.view.Clone(),
		HasDay:            c.hasDay,
		DayIndex:          timeline.IndexOf(c.index, c.view.SelectedDay),
		Index:             slices.Clone(c.index),
		AvailableProfiles: available,
		AllSelected:       sameSet(c.view.SelectedProfiles, available),
		View:              view,
	}
	if c.loadErr != nil {
		snap.Error = c.loadErr.Error()
	}
	if c.datasets != nil {
		snap.Source = c.datasets.Source
		snap.LoadedAt = c.datasets.LoadedAt
		snap.MarketRecords = len(c.datasets.Market)
		snap.EquilibriumRecords = len(c.datasets.Equilibrium)
		snap.Warnings = len(c.datasets.Warnings)
	}

	pbIndex, pbDay := c.playback.Position()
	if c.playback.State() == domain.PlaybackStopped {
		pbIndex, pbDay = snap.DayIndex, c.view.SelectedDay
	}
	snap.Playback = PlaybackStatus{
		State:      c.playback.State(),
		Index:      pbIndex,
		Day:        pbDay,
		Interval:   c.playback.Interval(),
		IntervalMS: c.playback.Interval().Milliseconds(),
	}

	c.mu.Lock()
	c.snapshot = snap
	c.published = c.datasets
	c.mu.Unlock()

	c.metrics.Recompute(string(trigger), time.Since(start))
	c.logger.Debug("Recomputed view",
		zap.String("trigger", string(trigger)),
		zap.String("zone", c.view.SelectedZone.String()),
		zap.Int("day", c.view.SelectedDay),
		zap.Bool("has_day", c.hasDay),
		zap.Int("series", len(view.Series)),
	)

	c.notify(Update{Trigger: trigger, Snapshot: snap})
}

// resolveDay keeps the selected day when the index has it and snaps to the
// nearest day otherwise. An empty index leaves no day selected. While playing,
// an absent day stays unresolved so that the next tick starts the new index
// from its first day.
func (c *Controller) resolveDay() {
	if timeline.Contains(c.index, c.view.SelectedDay) {
		c.hasDay = true
		return
	}
	if c.playback.State() == domain.PlaybackPlaying {
		c.hasDay = false
		return
	}
	day, ok := timeline.Nearest(c.index, c.view.SelectedDay)
	if !ok {
		c.hasDay = false
		return
	}
	c.view.SelectedDay = day
	c.hasDay = true
}

// Snapshot returns the latest published snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Datasets returns the datasets behind the latest snapshot, or nil before the
// first successful load.
func (c *Controller) Datasets() *domain.Datasets {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published
}

// Ready reports whether equilibrium data has been loaded.
func (c *Controller) Ready() bool {
	return c.Datasets() != nil
}

// Subscribe registers a listener and returns a function that removes it.
func (c *Controller) Subscribe(l Listener) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = l

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Controller) notify(u Update) {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, l := range c.listeners {
		l(u)
	}
}

func sameSet(a, b []domain.ProfileID) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for _, p := range a {
		if !slices.Contains(b, p) {
			return false
		}
	}
	return true
}
