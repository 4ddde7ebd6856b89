package service

import (
	"context"
	"time"
)

type EventType string

const (
	EventJoined          EventType = "joined"
	EventPositionChanged EventType = "position_changed"
	EventCalled          EventType = "called"
	EventCompleted       EventType = "completed"
	EventCancelled       EventType = "cancelled"
	EventNoShow          EventType = "no_show"
)

// EntryEvent is the delta emitted after a mutation. Delivery is
// fire-and-forget: the notifier is outside the transition's atomicity and a
// failed publish never fails the operation.
type EntryEvent struct {
	EntryID    string    `json:"entry_id"`
	CenterID   string    `json:"center_id"`
	ProviderID string    `json:"provider_id"`
	Type       EventType `json:"event"`
	Position   int       `json:"position"`
	ETASeconds int64     `json:"eta_seconds"`
	Timestamp  time.Time `json:"timestamp"`
}

type Notifier interface {
	Notify(ctx context.Context, ev EntryEvent) error
}

// NopNotifier drops every event. Used when Kafka is disabled and in tests.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, ev EntryEvent) error { return nil }
