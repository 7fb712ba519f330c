// Package events bridges the dashboard to RabbitMQ.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

// Routing keys for events.
const (
	// Published by the dashboard.
	RoutingKeyDatasetLoaded     = "dataset.loaded"
	RoutingKeyDatasetLoadFailed = "dataset.load_failed"
	RoutingKeyPlaybackStarted   = "playback.started"
	RoutingKeyPlaybackStopped   = "playback.stopped"

	// Published by the simulation pipeline when new output is available.
	RoutingKeyDatasetUpdated = "dataset.updated"
)

// Event types.
const (
	EventTypeDatasetLoaded     = "dataset.loaded"
	EventTypeDatasetLoadFailed = "dataset.load_failed"
	EventTypePlaybackStarted   = "playback.started"
	EventTypePlaybackStopped   = "playback.stopped"
	EventTypeDatasetUpdated    = "dataset.updated"
)

// Playback stop reasons.
const (
	StopReasonRequested = "requested"
	StopReasonFinished  = "finished"
)

// eventSource identifies this service in published events.
const eventSource = "seatscope"

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// NewBaseEvent creates a new BaseEvent with auto-generated event_id.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
	}
}

// DatasetLoadedEvent is published after a successful load.
type DatasetLoadedEvent struct {
	BaseEvent
	DataSource         string    `json:"data_source"`
	MarketRecords      int       `json:"market_records"`
	EquilibriumRecords int       `json:"equilibrium_records"`
	Warnings           int       `json:"warnings"`
	LoadedAt           time.Time `json:"loaded_at"`
}

// DatasetLoadFailedEvent is published when a load fails.
type DatasetLoadFailedEvent struct {
	BaseEvent
	Error string `json:"error"`
}

// PlaybackEvent is published when playback starts or stops.
type PlaybackEvent struct {
	BaseEvent
	Zone   domain.ZoneID `json:"zone"`
	Index  int           `json:"index"`
	Day    int           `json:"day"`
	Reason string        `json:"reason,omitempty"`
}

// DatasetUpdatedEvent announces new simulation output. Dataset is empty
// when both datasets changed.
type DatasetUpdatedEvent struct {
	BaseEvent
	Dataset string `json:"dataset,omitempty"`
}

// NewDatasetLoadedEvent creates a DatasetLoadedEvent.
func NewDatasetLoadedEvent(source string, market, equilibrium, warnings int, loadedAt time.Time) *DatasetLoadedEvent {
	return &DatasetLoadedEvent{
		BaseEvent:          NewBaseEvent(EventTypeDatasetLoaded),
		DataSource:         source,
		MarketRecords:      market,
		EquilibriumRecords: equilibrium,
		Warnings:           warnings,
		LoadedAt:           loadedAt,
	}
}

// NewDatasetLoadFailedEvent creates a DatasetLoadFailedEvent.
func NewDatasetLoadFailedEvent(errMsg string) *DatasetLoadFailedEvent {
	return &DatasetLoadFailedEvent{
		BaseEvent: NewBaseEvent(EventTypeDatasetLoadFailed),
		Error:     errMsg,
	}
}

// NewPlaybackStartedEvent creates a playback.started PlaybackEvent.
func NewPlaybackStartedEvent(zone domain.ZoneID, index, day int) *PlaybackEvent {
	return &PlaybackEvent{
		BaseEvent: NewBaseEvent(EventTypePlaybackStarted),
		Zone:      zone,
		Index:     index,
		Day:       day,
	}
}

// NewPlaybackStoppedEvent creates a playback.stopped PlaybackEvent.
func NewPlaybackStoppedEvent(zone domain.ZoneID, index, day int, reason string) *PlaybackEvent {
	return &PlaybackEvent{
		BaseEvent: NewBaseEvent(EventTypePlaybackStopped),
		Zone:      zone,
		Index:     index,
		Day:       day,
		Reason:    reason,
	}
}

// ParseDatasetUpdated decodes a dataset.updated message. The dataset name,
// when present, must be one of the two known datasets.
func ParseDatasetUpdated(body []byte) (*DatasetUpdatedEvent, error) {
	var e DatasetUpdatedEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", EventTypeDatasetUpdated, err)
	}
	switch e.Dataset {
	case "", domain.DatasetMarket, domain.DatasetEquilibrium:
		return &e, nil
	default:
		return nil, fmt.Errorf("%w: unknown dataset %q", domain.ErrInvalidInput, e.Dataset)
	}
}
