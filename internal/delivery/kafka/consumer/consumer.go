package consumer

import (
	"context"
	"sync"

	"github.com/IBM/sarama"

	"github.com/carelinehq/hybrid-queue/internal/delivery/kafka"
	"github.com/carelinehq/hybrid-queue/internal/service"
	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

// Consumer turns appointment lifecycle events from the external booking
// service into queue entries.
type Consumer struct {
	consGr sarama.ConsumerGroup
	ctrl   service.QueueController
	l      logger.Logger
	wg     sync.WaitGroup
}

func NewConsumer(
	consGr sarama.ConsumerGroup,
	ctrl service.QueueController,
	l logger.Logger,
) *Consumer {
	return &Consumer{
		consGr: consGr,
		ctrl:   ctrl,
		l:      l,
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	switch msg.Topic {
	case kafka.TopicAppointmentBooked:
		return c.HandleAppointmentBooked(ctx, msg)
	case kafka.TopicAppointmentCancelled:
		return c.HandleAppointmentCancelled(ctx, msg)
	default:
		c.l.Warnf(ctx, "Unknown topic: %s", msg.Topic)
		return nil
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	topics := []string{kafka.TopicAppointmentBooked, kafka.TopicAppointmentCancelled}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.consGr.Consume(ctx, topics, c); err != nil {
				c.l.Errorf(ctx, "delivery.kafka.consumer.Consumer.Start: %v", err)
			}

			if ctx.Err() != nil {
				c.l.Infof(ctx, "delivery.kafka.consumer.Consumer.Start: %v", ctx.Err())
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consGr.Errors() {
			c.l.Errorf(ctx, "delivery.kafka.consumer.Consumer.Start: %v", err)
		}
	}()

	c.l.Infof(ctx, "Consumer is consuming topics: %v", topics)
	return nil
}

func (c *Consumer) Close() error {
	if err := c.consGr.Close(); err != nil {
		return err
	}

	c.wg.Wait()
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	c.l.Debug(context.Background(), "Consumer group session started")
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.l.Debug(context.Background(), "Consumer group session ended")
	return nil
}

func (c *Consumer) ConsumeClaim(ss sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := c.processMessage(ss.Context(), message); err != nil {
				c.l.Errorf(ss.Context(), "delivery.kafka.consumer.Consumer.ConsumeClaim: %v (topic=%s offset=%d)",
					err, message.Topic, message.Offset)
				continue
			}

			ss.MarkMessage(message, "")

		case <-ss.Context().Done():
			return nil
		}
	}
}
