package service

import (
	"time"

	"github.com/carelinehq/hybrid-queue/internal/models"
)

type JoinInput struct {
	Kind          models.EntryKind `json:"kind" validate:"required,oneof=scheduled walk_in"`
	CenterID      string           `json:"center_id" validate:"required"`
	ProviderID    string           `json:"provider_id" validate:"required"`
	CustomerID    string           `json:"customer_id" validate:"required"`
	ServiceID     string           `json:"service_id" validate:"required"`
	ScheduledTime *time.Time       `json:"scheduled_time,omitempty"`
	PriorityBoost int              `json:"priority_boost" validate:"gte=0,lte=10"`
}

// SnapshotEntry is one row of the live queue view.
type SnapshotEntry struct {
	EntryID    string             `json:"entry_id"`
	CustomerID string             `json:"customer_id"`
	ServiceID  string             `json:"service_id"`
	Kind       models.EntryKind   `json:"kind"`
	Status     models.EntryStatus `json:"status"`
	Position   int                `json:"position"`
	ETASeconds int64              `json:"eta_seconds"`
}

type QueueSnapshot struct {
	CenterID    string          `json:"center_id"`
	ProviderID  string          `json:"provider_id"`
	Entries     []SnapshotEntry `json:"entries"`
	WaitingLen  int             `json:"waiting_len"`
	GeneratedAt time.Time       `json:"generated_at"`
}
