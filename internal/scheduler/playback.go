package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/timeline"
)

// DefaultPlaybackInterval is the tick cadence used when none is configured.
const DefaultPlaybackInterval = time.Second

// Step is the outcome of one playback tick.
type Step struct {
	Index int  `json:"index"`
	Day   int  `json:"day"`
	Done  bool `json:"done"`
}

// NextStep computes the position after one tick. A day missing from the index
// counts as position -1, so the next tick resumes at index 0. Reaching the last
// index, or an empty index, is terminal; the day is clamped and never wraps.
func NextStep(index []int, day int) Step {
	if len(index) == 0 {
		return Step{Index: -1, Day: day, Done: true}
	}
	last := len(index) - 1
	next := timeline.IndexOf(index, day) + 1
	if next >= last {
		return Step{Index: last, Day: index[last], Done: true}
	}
	return Step{Index: next, Day: index[next]}
}

// Playback is the Stopped/Playing state machine that advances the selected day.
// Ticks only signal; the owner applies them through Advance so that tick
// handling is serialized with every other state change.
type Playback struct {
	interval time.Duration
	clock    Clock
	logger   *zap.Logger

	mu     sync.Mutex
	state  domain.PlaybackState
	index  int
	day    int
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlayback creates a stopped Playback.
func NewPlayback(interval time.Duration, clock Clock, logger *zap.Logger) *Playback {
	if interval <= 0 {
		interval = DefaultPlaybackInterval
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Playback{
		interval: interval,
		clock:    clock,
		logger:   logger,
		state:    domain.PlaybackStopped,
		index:    -1,
	}
}

// Start moves Stopped to Playing and calls onTick on every tick until stopped.
// onTick must return promptly once its context is cancelled and must not call
// Advance or Stop itself.
func (p *Playback) Start(ctx context.Context, onTick func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == domain.PlaybackPlaying {
		return domain.ErrAlreadyPlaying
	}

	tickCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := p.clock.NewTicker(p.interval)

	p.state = domain.PlaybackPlaying
	p.cancel = cancel
	p.done = done

	go p.run(tickCtx, ticker, onTick, done)

	p.logger.Info("Playback started",
		zap.Duration("interval", p.interval),
		zap.Int("index", p.index),
		zap.Int("day", p.day),
	)
	return nil
}

func (p *Playback) run(ctx context.Context, ticker Ticker, onTick func(ctx context.Context), done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.done == done {
				// Parent context cancelled without an explicit Stop.
				p.halt()
			}
			p.mu.Unlock()
			return
		case <-ticker.C():
			onTick(ctx)
		}
	}
}

// Stop moves Playing to Stopped and waits for the tick goroutine to exit.
// Stopping an already stopped Playback is a no-op.
func (p *Playback) Stop() {
	p.mu.Lock()
	done := p.halt()
	p.mu.Unlock()

	if done != nil {
		<-done
		p.logger.Info("Playback stopped", zap.Int("index", p.index), zap.Int("day", p.day))
	}
}

// halt must be called with mu held. It returns the channel closed once the
// tick goroutine has exited, or nil when already stopped.
func (p *Playback) halt() chan struct{} {
	if p.state != domain.PlaybackPlaying {
		return nil
	}
	p.cancel()
	done := p.done
	p.state = domain.PlaybackStopped
	p.cancel = nil
	p.done = nil
	return done
}

// Advance applies one tick against the current index and day. It reports
// false when the Playback is not playing, which discards ticks that arrive
// after a stop. A terminal step stops the Playback before returning.
func (p *Playback) Advance(index []int, day int) (Step, bool) {
	p.mu.Lock()
	if p.state != domain.PlaybackPlaying {
		p.mu.Unlock()
		return Step{}, false
	}

	step := NextStep(index, day)
	if step.Index >= 0 {
		p.index, p.day = step.Index, step.Day
	}

	var done chan struct{}
	if step.Done {
		done = p.halt()
	}
	p.mu.Unlock()

	if done != nil {
		<-done
		p.logger.Info("Playback reached the last day",
			zap.Int("index", step.Index),
			zap.Int("day", step.Day),
		)
	}
	return step, true
}

// Seek records the current position without changing the state.
func (p *Playback) Seek(index, day int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index, p.day = index, day
}

// State returns the current playback state.
func (p *Playback) State() domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Position returns the current (index, day) pair. Index is -1 when unknown.
func (p *Playback) Position() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index, p.day
}

// Interval returns the tick cadence.
func (p *Playback) Interval() time.Duration {
	return p.interval
}
