package ingress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"redline-go/internal/domain"
	"redline-go/internal/metrics"
)

// Enqueuer queues a payload. *queue.Server satisfies it.
type Enqueuer interface {
	QueueMessage(ctx context.Context, payload any, segment string) (domain.MessageKey, error)
}

// SegmentPicker assigns segments to records that do not name one.
// *pool.Pool satisfies it.
type SegmentPicker interface {
	NextSegment(ctx context.Context) (string, error)
}

// Service consumes a source and queues every record it reads.
type Service struct {
	name   string
	source Source
	queue  Enqueuer
	picker SegmentPicker
	logger *slog.Logger
}

// NewService creates a new ingress service. picker may be nil, in which case
// records without a segment header go to the global pending list.
func NewService(name string, source Source, queue Enqueuer, picker SegmentPicker, logger *slog.Logger) *Service {
	return &Service{
		name:   name,
		source: source,
		queue:  queue,
		picker: picker,
		logger: logger,
	}
}

// Start consumes the source until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting ingress", "source", s.name)
	return s.source.Start(ctx, s.Handle)
}

// Handle queues one record. Records that are not valid JSON are dropped
// and reported as handled so the source does not redeliver them.
func (s *Service) Handle(ctx context.Context, rec *Record) error {
	if !json.Valid(rec.Value) {
		metrics.IngressRecordsTotal.WithLabelValues(s.name, "invalid").Inc()
		s.logger.Warn("dropping record with invalid payload", "source", s.name, "key", string(rec.Key))
		return nil
	}

	segment, err := s.segmentFor(ctx, rec)
	if err != nil {
		metrics.IngressRecordsTotal.WithLabelValues(s.name, metrics.ResultFailure).Inc()
		return fmt.Errorf("failed to pick segment: %w", err)
	}

	key, err := s.queue.QueueMessage(ctx, json.RawMessage(rec.Value), segment)
	if err != nil {
		metrics.IngressRecordsTotal.WithLabelValues(s.name, metrics.ResultFailure).Inc()
		return fmt.Errorf("failed to queue record: %w", err)
	}

	metrics.IngressRecordsTotal.WithLabelValues(s.name, metrics.ResultSuccess).Inc()
	s.logger.Debug("record queued", "source", s.name, "messageId", key.ID, "segment", key.Segment)

	return nil
}

func (s *Service) segmentFor(ctx context.Context, rec *Record) (string, error) {
	if seg := rec.Headers[SegmentHeader]; seg != "" {
		return seg, nil
	}
	if s.picker == nil {
		return "", nil
	}
	return s.picker.NextSegment(ctx)
}
