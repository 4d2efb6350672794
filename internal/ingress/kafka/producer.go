package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"redline-go/internal/config"
	"redline-go/internal/ingress"
)

// Producer implements ingress.Publisher using Kafka.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer writing to the ingress topic.
func NewProducer(cfg *config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // Use key-based partitioning
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{
		writer: writer,
	}
}

// Publish sends a record to Kafka.
func (p *Producer) Publish(ctx context.Context, rec *ingress.Record) error {
	if err := p.writer.WriteMessages(ctx, toMessage(rec)); err != nil {
		return fmt.Errorf("failed to write record to kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka writer.
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func toMessage(rec *ingress.Record) kafka.Message {
	msg := kafka.Message{
		Key:   rec.Key,
		Value: rec.Value,
	}
	if len(rec.Headers) > 0 {
		msg.Headers = make([]kafka.Header, 0, len(rec.Headers))
		for k, v := range rec.Headers {
			msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return msg
}
