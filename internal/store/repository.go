// Package store defines interfaces for data persistence outside the queue store.
// These abstractions allow swapping implementations (PostgreSQL, in-memory)
// without changing queue logic.
package store

import (
	"context"

	"redline-go/internal/domain"
)

// DeadLetterRepository archives messages that exhausted their requeue budget.
// This is typically backed by PostgreSQL for production use.
// All methods must be safe for concurrent use.
type DeadLetterRepository interface {
	// Archive stores a dead letter. Archiving the same key twice keeps the latest copy.
	Archive(ctx context.Context, dl *domain.DeadLetter) error

	// List returns dead letters, newest first, matching the filter.
	List(ctx context.Context, filter domain.DeadLetterFilter) ([]*domain.DeadLetter, error)

	// Count returns the number of archived dead letters.
	Count(ctx context.Context) (int, error)
}
