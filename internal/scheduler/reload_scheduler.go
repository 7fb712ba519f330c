package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultReloadPollInterval is how often the reload scheduler checks its cron schedule.
const DefaultReloadPollInterval = 30 * time.Second

// Reloader reloads the datasets.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloaderFunc adapts a function to the Reloader interface.
type ReloaderFunc func(ctx context.Context) error

// Reload calls f(ctx).
func (f ReloaderFunc) Reload(ctx context.Context) error { return f(ctx) }

// ReloadScheduler triggers dataset reloads on a cron schedule.
type ReloadScheduler struct {
	reloader     Reloader
	clock        Clock
	logger       *zap.Logger
	expression   string
	spec         cron.Schedule
	pollInterval time.Duration

	mu      sync.RWMutex
	nextRun time.Time
	lastRun time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ParseCron parses a standard 5-field cron expression or a descriptor such as @hourly.
func ParseCron(expression string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	spec, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron expression %q: %w", expression, err)
	}
	return spec, nil
}

// NewReloadScheduler creates a new reload scheduler for the cron expression.
func NewReloadScheduler(
	expression string,
	pollInterval time.Duration,
	reloader Reloader,
	clock Clock,
	logger *zap.Logger,
) (*ReloadScheduler, error) {
	spec, err := ParseCron(expression)
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = DefaultReloadPollInterval
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &ReloadScheduler{
		reloader:     reloader,
		clock:        clock,
		logger:       logger,
		expression:   expression,
		spec:         spec,
		pollInterval: pollInterval,
	}, nil
}

// Start starts the poll loop.
func (s *ReloadScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.mu.Lock()
	s.nextRun = s.spec.Next(s.clock.Now())
	next := s.nextRun
	s.mu.Unlock()

	ticker := s.clock.NewTicker(s.pollInterval)
	s.wg.Add(1)
	go s.loop(ctx, ticker)

	s.logger.Info("Reload scheduler started",
		zap.String("cron_expression", s.expression),
		zap.Duration("poll_interval", s.pollInterval),
		zap.Time("next_run", next),
	)
}

// Stop stops the poll loop and waits for a running reload to return.
func (s *ReloadScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Reload scheduler stopped")
}

func (s *ReloadScheduler) loop(ctx context.Context, ticker Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.checkSchedule(ctx)
		}
	}
}

// checkSchedule runs the reload when it is due.
func (s *ReloadScheduler) checkSchedule(ctx context.Context) {
	now := s.clock.Now()

	s.mu.RLock()
	due := !s.nextRun.After(now)
	s.mu.RUnlock()
	if !due {
		return
	}

	s.logger.Info("Executing scheduled reload", zap.String("cron_expression", s.expression))
	if err := s.reloader.Reload(ctx); err != nil {
		s.logger.Error("Scheduled reload failed", zap.Error(err))
	}

	s.mu.Lock()
	s.lastRun = now
	s.nextRun = s.spec.Next(now)
	next := s.nextRun
	s.mu.Unlock()

	s.logger.Debug("Updated next run time", zap.Time("next_run", next))
}

// NextRun returns the time of the next scheduled reload.
func (s *ReloadScheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

// LastRun returns the time of the last scheduled reload, or zero.
func (s *ReloadScheduler) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}
