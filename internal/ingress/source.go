// Package ingress feeds records from external message sources into the queue.
// This abstraction allows swapping sources (Kafka, in-memory) without changing
// how records are turned into queued messages.
package ingress

import (
	"context"
)

// SegmentHeader names the record header that pins a record to a segment.
const SegmentHeader = "segment"

// Record represents one record read from a source.
type Record struct {
	// Key is the partition key assigned by the producer.
	Key []byte

	// Value is the JSON payload to queue.
	Value []byte

	// Headers contains optional metadata.
	Headers map[string]string
}

// Handler is a callback function for processing consumed records.
// Returning an error leaves the record uncommitted at the source.
type Handler func(ctx context.Context, rec *Record) error

// Source defines the interface for consuming records.
type Source interface {
	// Start begins consuming records and calls the handler for each one.
	// This is a blocking call that runs until the context is canceled
	// or an unrecoverable error occurs.
	Start(ctx context.Context, handler Handler) error

	// Close stops consuming and releases any resources.
	Close() error
}

// Publisher writes records to a source. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, rec *Record) error
	Close() error
}
