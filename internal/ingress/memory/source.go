// Package memory provides an in-memory ingress source.
// This is useful for testing and development without a Kafka cluster.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"redline-go/internal/ingress"
)

// ErrSourceClosed is returned when publishing to a closed source.
var ErrSourceClosed = errors.New("ingress source is closed")

// Source is an in-memory implementation of both ingress.Source and ingress.Publisher.
// Records are buffered in a channel. It is safe for concurrent use.
type Source struct {
	records   chan *ingress.Record
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewSource creates a new in-memory source with the specified buffer size.
// Publish blocks once the buffer is full until space is available,
// the context is canceled or the source is closed.
func NewSource(bufferSize int, logger *slog.Logger) *Source {
	return &Source{
		records: make(chan *ingress.Record, bufferSize),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Publish buffers a record.
func (s *Source) Publish(ctx context.Context, rec *ingress.Record) error {
	select {
	case <-s.done:
		return ErrSourceClosed
	default:
	}

	select {
	case s.records <- rec:
		return nil
	case <-s.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start hands buffered records to handler until the context is canceled
// or the source is closed. Records the handler rejects are logged and
// not redelivered.
func (s *Source) Start(ctx context.Context, handler ingress.Handler) error {
	s.wg.Add(1)
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case rec := <-s.records:
			if err := handler(ctx, rec); err != nil {
				s.logger.Error("failed to handle record",
					"error", err,
					"key", string(rec.Key),
				)
			}
		}
	}
}

// Close shuts down the source, stopping all consumers and releasing
// blocked publishers. Records still buffered are dropped.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

// Len returns the number of buffered records.
func (s *Source) Len() int {
	return len(s.records)
}
