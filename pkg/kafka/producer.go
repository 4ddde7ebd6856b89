package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

type ProducerConfig struct {
	Brokers      []string
	RetryMax     int
	RequiredAcks int
}

func NewProducer(ctx context.Context, cfg ProducerConfig, l logger.Logger) (sarama.SyncProducer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	saramaCfg.Producer.Retry.Max = cfg.RetryMax
	saramaCfg.Producer.Return.Successes = true

	prod, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	l.Infof(ctx, "Kafka producer connected to brokers: %v", cfg.Brokers)

	return prod, nil
}
