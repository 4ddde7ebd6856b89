package kafka

import (
	"time"

	"github.com/carelinehq/hybrid-queue/internal/service"
)

// Topics published by the queue engine, one per entry event.
const (
	TopicQueueJoined          = "queue.joined"
	TopicQueuePositionChanged = "queue.position_changed"
	TopicQueueCalled          = "queue.called"
	TopicQueueCompleted       = "queue.completed"
	TopicQueueCancelled       = "queue.cancelled"
	TopicQueueNoShow          = "queue.noshow"
)

// Topics consumed from the external appointments service.
const (
	TopicAppointmentBooked    = "appointment.booked"
	TopicAppointmentCancelled = "appointment.cancelled"
)

var eventTopics = map[service.EventType]string{
	service.EventJoined:          TopicQueueJoined,
	service.EventPositionChanged: TopicQueuePositionChanged,
	service.EventCalled:          TopicQueueCalled,
	service.EventCompleted:       TopicQueueCompleted,
	service.EventCancelled:       TopicQueueCancelled,
	service.EventNoShow:          TopicQueueNoShow,
}

func TopicFor(t service.EventType) (string, bool) {
	topic, ok := eventTopics[t]
	return topic, ok
}

// AppointmentBookedEvent materializes a booking made in the appointments
// service as a scheduled queue entry.
type AppointmentBookedEvent struct {
	CenterID      string    `json:"center_id"`
	ProviderID    string    `json:"provider_id"`
	CustomerID    string    `json:"customer_id"`
	ServiceID     string    `json:"service_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	PriorityBoost int       `json:"priority_boost"`
	Timestamp     time.Time `json:"timestamp"`
}

type AppointmentCancelledEvent struct {
	EntryID   string    `json:"entry_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
