package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"

	"github.com/carelinehq/hybrid-queue/internal/delivery/kafka"
	"github.com/carelinehq/hybrid-queue/internal/models"
	"github.com/carelinehq/hybrid-queue/internal/service"
)

func (c *Consumer) HandleAppointmentBooked(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.AppointmentBookedEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleAppointmentBooked: %v", err)
		return err
	}

	scheduled := e.ScheduledTime
	entry, err := c.ctrl.Join(ctx, service.JoinInput{
		Kind:          models.KindScheduled,
		CenterID:      e.CenterID,
		ProviderID:    e.ProviderID,
		CustomerID:    e.CustomerID,
		ServiceID:     e.ServiceID,
		ScheduledTime: &scheduled,
		PriorityBoost: e.PriorityBoost,
	})
	if err != nil {
		// A double-booked slot is the booking service's bug, not a
		// reason to stall the partition.
		if errors.Is(err, service.ErrInvalidState) {
			c.l.Warnf(ctx, "delivery.kafka.consumer.handlers.HandleAppointmentBooked: rejected: %v", err)
			return nil
		}

		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleAppointmentBooked: %v", err)
		return err
	}

	c.l.Infof(ctx, "Appointment materialized as entry: id=%s provider=%s", entry.ID, entry.ProviderID)
	return nil
}

func (c *Consumer) HandleAppointmentCancelled(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.AppointmentCancelledEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		c.l.Errorf(ctx, "delivery.kafka.consumer.handlers.HandleAppointmentCancelled: %v", err)
		return err
	}

	// Cancel needs the current version; retry a couple of times if staff
	// actions race the cancellation.
	for attempt := 0; attempt < 3; attempt++ {
		entry, err := c.ctrl.GetEntry(ctx, e.EntryID)
		if err != nil {
			if errors.Is(err, service.ErrEntryNotFound) {
				c.l.Warnf(ctx, "delivery.kafka.consumer.handlers.HandleAppointmentCancelled: entry %s not found", e.EntryID)
				return nil
			}
			return err
		}

		_, err = c.ctrl.Cancel(ctx, e.EntryID, entry.Version)
		if err == nil {
			c.l.Infof(ctx, "Appointment cancellation applied: id=%s", e.EntryID)
			return nil
		}
		if errors.Is(err, service.ErrVersionConflict) {
			continue
		}
		if errors.Is(err, service.ErrInvalidTransition) {
			// Already called, served or terminal; cancellation no longer applies.
			c.l.Warnf(ctx, "delivery.kafka.consumer.handlers.HandleAppointmentCancelled: entry %s not cancellable", e.EntryID)
			return nil
		}
		return err
	}

	return service.ErrVersionConflict
}
