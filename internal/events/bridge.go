package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/dashboard"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/metrics"
	"github.com/saltfish/seatscope/go-backend/internal/scheduler"
)

const (
	defaultBridgeBuffer   = 64
	defaultPublishTimeout = 5 * time.Second
)

type outgoing struct {
	routingKey string
	eventType  string
	event      any
}

// Bridge publishes dashboard lifecycle changes. Listen runs on the
// controller goroutine, so it only enqueues; Run does the publishing. Events
// are dropped when the queue is full.
type Bridge struct {
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	queue     chan outgoing
	timeout   time.Duration
}

// NewBridge creates a Bridge. A non-positive buffer uses the default size.
func NewBridge(publisher Publisher, m *metrics.Metrics, logger *zap.Logger, buffer int) *Bridge {
	if buffer <= 0 {
		buffer = defaultBridgeBuffer
	}
	return &Bridge{
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		queue:     make(chan outgoing, buffer),
		timeout:   defaultPublishTimeout,
	}
}

// Listen is a dashboard.Listener.
func (b *Bridge) Listen(u dashboard.Update) {
	msg, ok := eventFor(u)
	if !ok {
		return
	}
	select {
	case b.queue <- msg:
	default:
		b.metrics.EventPublished(msg.eventType, errDropped)
		b.logger.Warn("Event queue full, dropping event",
			zap.String("routing_key", msg.routingKey),
		)
	}
}

var errDropped = errors.New("event dropped")

// Run publishes queued events until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			pubCtx, cancel := context.WithTimeout(ctx, b.timeout)
			err := b.publisher.Publish(pubCtx, msg.routingKey, msg.event)
			cancel()

			b.metrics.EventPublished(msg.eventType, err)
			if err != nil {
				b.logger.Error("Failed to publish event",
					zap.String("routing_key", msg.routingKey),
					zap.Error(err),
				)
			}
		}
	}
}

// eventFor maps an update to the event it announces, if any.
func eventFor(u dashboard.Update) (outgoing, bool) {
	snap := u.Snapshot
	zone := snap.State.SelectedZone
	switch u.Trigger {
	case dashboard.TriggerLoaded:
		return outgoing{RoutingKeyDatasetLoaded, EventTypeDatasetLoaded, NewDatasetLoadedEvent(
			snap.Source, snap.MarketRecords, snap.EquilibriumRecords, snap.Warnings, snap.LoadedAt,
		)}, true
	case dashboard.TriggerLoadFailed:
		return outgoing{RoutingKeyDatasetLoadFailed, EventTypeDatasetLoadFailed, NewDatasetLoadFailedEvent(snap.Error)}, true
	case dashboard.TriggerPlaybackStarted:
		return outgoing{RoutingKeyPlaybackStarted, EventTypePlaybackStarted, NewPlaybackStartedEvent(
			zone, snap.Playback.Index, snap.Playback.Day,
		)}, true
	case dashboard.TriggerPlaybackStopped:
		return outgoing{RoutingKeyPlaybackStopped, EventTypePlaybackStopped, NewPlaybackStoppedEvent(
			zone, snap.Playback.Index, snap.Playback.Day, StopReasonRequested,
		)}, true
	case dashboard.TriggerPlaybackFinished:
		return outgoing{RoutingKeyPlaybackStopped, EventTypePlaybackStopped, NewPlaybackStoppedEvent(
			zone, snap.Playback.Index, snap.Playback.Day, StopReasonFinished,
		)}, true
	default:
		return outgoing{}, false
	}
}

// ReloadHandler returns an EventHandler that reloads the datasets on
// dataset.updated. Load failures are acknowledged; they surface on the
// dashboard and are not retried.
func ReloadHandler(ctx context.Context, reloader scheduler.Reloader, timeout time.Duration, logger *zap.Logger) EventHandler {
	return func(routingKey string, body []byte) error {
		if routingKey != RoutingKeyDatasetUpdated {
			logger.Debug("Ignoring event", zap.String("routing_key", routingKey))
			return nil
		}
		event, err := ParseDatasetUpdated(body)
		if err != nil {
			return err
		}

		reloadCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			reloadCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		logger.Info("Dataset update announced, reloading",
			zap.String("event_id", event.EventID),
			zap.String("dataset", event.Dataset),
		)
		err = reloader.Reload(reloadCtx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrLoadInProgress):
			logger.Info("Reload already in progress", zap.String("event_id", event.EventID))
			return nil
		case errors.Is(err, domain.ErrLoad):
			logger.Warn("Reload after dataset update failed", zap.Error(err))
			return nil
		default:
			return err
		}
	}
}
