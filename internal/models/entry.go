package models

import "time"

type EntryKind string

const (
	KindScheduled EntryKind = "scheduled"
	KindWalkIn    EntryKind = "walk_in"
)

type EntryStatus string

const (
	StatusPendingCheckIn EntryStatus = "pending_check_in"
	StatusWaiting        EntryStatus = "waiting"
	StatusCalled         EntryStatus = "called"
	StatusInService      EntryStatus = "in_service"
	StatusCompleted      EntryStatus = "completed"
	StatusCancelled      EntryStatus = "cancelled"
	StatusNoShow         EntryStatus = "no_show"
)

// QueueEntry is one customer's presence in a provider's queue. Ordering is
// always computed per (CenterID, ProviderID) pair.
type QueueEntry struct {
	ID         string    `json:"id"`
	CenterID   string    `json:"center_id"`
	ProviderID string    `json:"provider_id"`
	CustomerID string    `json:"customer_id"`
	ServiceID  string    `json:"service_id"`
	Kind       EntryKind `json:"kind"`

	// ScheduledTime is the booked slot start; set only for scheduled entries.
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	// JoinedAt is booking creation time for scheduled entries and arrival
	// time for walk-ins.
	JoinedAt time.Time `json:"joined_at"`
	// CheckedInAt is nil until the customer physically arrives.
	CheckedInAt      *time.Time `json:"checked_in_at,omitempty"`
	CalledAt         *time.Time `json:"called_at,omitempty"`
	ServiceStartedAt *time.Time `json:"service_started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	Status        EntryStatus `json:"status"`
	PriorityBoost int         `json:"priority_boost"`

	// Version increments on every mutation; stale writers fail with a
	// version conflict.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnchorTime ranks the entry in the hybrid order: the booked slot for
// scheduled entries, check-in time plus the grace period for walk-ins.
// Scheduled entries keep their slot even when checked in early.
func (e *QueueEntry) AnchorTime(grace time.Duration) time.Time {
	if e.Kind == KindScheduled && e.ScheduledTime != nil {
		return *e.ScheduledTime
	}
	if e.CheckedInAt != nil {
		return e.CheckedInAt.Add(grace)
	}
	return e.JoinedAt.Add(grace)
}

func (e *QueueEntry) IsTerminal() bool {
	return e.Status == StatusCompleted ||
		e.Status == StatusCancelled ||
		e.Status == StatusNoShow
}

// IsActive reports whether the entry occupies or is eligible to occupy a
// queue slot for its provider.
func (e *QueueEntry) IsActive() bool {
	switch e.Status {
	case StatusWaiting, StatusCalled, StatusInService:
		return true
	case StatusPendingCheckIn:
		return e.CheckedInAt != nil
	default:
		return false
	}
}

// HoldsServingSlot reports whether the entry occupies the provider's single
// serving slot.
func (e *QueueEntry) HoldsServingSlot() bool {
	return e.Status == StatusCalled || e.Status == StatusInService
}
