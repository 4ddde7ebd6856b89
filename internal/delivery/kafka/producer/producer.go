package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	kafka "github.com/carelinehq/hybrid-queue/internal/delivery/kafka"
	"github.com/carelinehq/hybrid-queue/internal/service"
	"github.com/carelinehq/hybrid-queue/pkg/logger"
	"github.com/carelinehq/hybrid-queue/pkg/util"
)

// Notifier publishes entry events to Kafka, one topic per event type,
// keyed by provider id so each provider's stream stays ordered per
// partition.
type Notifier struct {
	l    logger.Logger
	prod sarama.SyncProducer
}

func NewNotifier(prod sarama.SyncProducer, l logger.Logger) *Notifier {
	return &Notifier{
		l:    l,
		prod: prod,
	}
}

func (n *Notifier) Notify(ctx context.Context, ev service.EntryEvent) error {
	topic, ok := kafka.TopicFor(ev.Type)
	if !ok {
		n.l.Warnf(ctx, "delivery.kafka.producer.Notifier.Notify: unknown event type %q", ev.Type)
		return nil
	}

	val, err := json.Marshal(ev)
	if err != nil {
		n.l.Errorf(ctx, "delivery.kafka.producer.Notifier.Notify: %v", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.ProviderID), // Partition by provider for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(util.TimeToISO8601Str(time.Now())),
			},
		},
	}

	_, _, err = n.prod.SendMessage(msg)
	return err
}

func (n *Notifier) Close() error {
	return n.prod.Close()
}
