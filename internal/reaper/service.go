// Package reaper returns delayed messages to their pending lists once their
// delivery time has passed.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"redline-go/internal/domain"
	"redline-go/internal/metrics"
)

// Releaser moves due delayed messages back to their pending lists.
// *queue.Server satisfies it.
type Releaser interface {
	ReleaseDue(ctx context.Context, limit int) ([]domain.MessageKey, error)
}

// Service periodically scans the delayed set.
type Service struct {
	releaser  Releaser
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewService creates a new reaper service.
func NewService(releaser Releaser, interval time.Duration, batchSize int, logger *slog.Logger) *Service {
	return &Service{
		releaser:  releaser,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// RunOnce relocates every due message, one batch at a time, and returns how
// many were moved.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		released, err := s.releaser.ReleaseDue(ctx, s.batchSize)
		if err != nil {
			metrics.ReaperRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
			return total, err
		}

		total += len(released)
		metrics.ReaperRelocationsTotal.Add(float64(len(released)))
		for _, key := range released {
			s.logger.Debug("delayed message released", "messageId", key.ID, "segment", key.Segment)
		}

		if len(released) < s.batchSize || ctx.Err() != nil {
			break
		}
	}

	metrics.ReaperRunsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return total, nil
}

// Start scans the delayed set every interval until ctx is canceled.
// This is a blocking call. Scan errors are logged and the loop keeps going.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting reaper", "interval", s.interval, "batchSize", s.batchSize)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			moved, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("failed to release delayed messages", "error", err)
				continue
			}
			if moved > 0 {
				s.logger.Info("released delayed messages", "count", moved)
			}
		}
	}
}
