// Package kafka provides a Kafka-backed ingress source and publisher.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"redline-go/internal/config"
	"redline-go/internal/ingress"
)

// Consumer implements ingress.Source using a Kafka consumer group.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(cfg *config.KafkaConfig, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{
		reader: reader,
		logger: logger,
	}
}

// Start reads records and hands each one to handler. A record is committed
// only after handler accepted it.
func (c *Consumer) Start(ctx context.Context, handler ingress.Handler) error {
	c.logger.Info("starting kafka consumer",
		"topic", c.reader.Config().Topic,
		"group", c.reader.Config().GroupID,
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka consumer stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to fetch record", "error", err)
			continue
		}

		if err := handler(ctx, toRecord(msg)); err != nil {
			c.logger.Error("failed to handle record",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit record",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			return fmt.Errorf("failed to commit record: %w", err)
		}
	}
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

func toRecord(msg kafka.Message) *ingress.Record {
	rec := &ingress.Record{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: make(map[string]string, len(msg.Headers)),
	}
	for _, h := range msg.Headers {
		rec.Headers[h.Key] = string(h.Value)
	}
	return rec
}
