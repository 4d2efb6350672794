// Package memory provides in-memory implementations of the store interfaces.
// This is useful for testing and development without external dependencies.
package memory

import (
	"context"
	"sort"
	"sync"

	"redline-go/internal/domain"
)

// DeadLetterRepository is an in-memory implementation of store.DeadLetterRepository.
type DeadLetterRepository struct {
	mu sync.RWMutex

	// letters stores dead letters by their encoded message key
	letters map[string]*domain.DeadLetter
}

// NewDeadLetterRepository creates a new in-memory dead-letter repository.
func NewDeadLetterRepository() *DeadLetterRepository {
	return &DeadLetterRepository{
		letters: make(map[string]*domain.DeadLetter),
	}
}

// Archive stores a copy of dl, replacing any previous copy with the same key.
func (r *DeadLetterRepository) Archive(ctx context.Context, dl *domain.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dlCopy := *dl
	r.letters[dl.Key.String()] = &dlCopy
	return nil
}

// List returns dead letters matching filter, newest first.
func (r *DeadLetterRepository) List(ctx context.Context, filter domain.DeadLetterFilter) ([]*domain.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.DeadLetter, 0, len(r.letters))
	for _, dl := range r.letters {
		if filter.Segment != "" && dl.Key.Segment != filter.Segment {
			continue
		}
		dlCopy := *dl
		result = append(result, &dlCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ArchivedAt.After(result[j].ArchivedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Count returns the number of archived dead letters.
func (r *DeadLetterRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.letters), nil
}
