// Package queue implements the Redline queue server on top of a shared Redis store.
// Every mutation is a single server-side script, so concurrent clients never
// observe a message half-enqueued, half-delayed or half-requeued.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"redline-go/internal/domain"
	"redline-go/internal/metrics"
	"redline-go/internal/store"
)

const storeLabel = "redis"

// Keys names the store structures of one queue namespace.
// *config.QueueConfig satisfies it.
type Keys interface {
	ValuesTableName() string
	PendingListName() string
	MessageStatsTableName() string
	DelayedSetName() string
	SegmentsSetName() string
}

// segmentListName returns the pending list of segment, or the global list when unsharded.
func segmentListName(keys Keys, segment string) string {
	if segment == "" {
		return keys.PendingListName()
	}
	return keys.PendingListName() + ":" + segment
}

// Server performs queue operations against the shared store.
// It holds no message state of its own and is safe for concurrent use.
type Server struct {
	client      redis.UniversalClient
	keys        Keys
	deadLetters store.DeadLetterRepository
	maxRequeues int
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces the wall clock used for queue and delivery times.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithDeadLetters archives messages to repo once they were requeued max times.
// A max of 0 disables the limit.
func WithDeadLetters(repo store.DeadLetterRepository, max int) Option {
	return func(s *Server) {
		s.deadLetters = repo
		s.maxRequeues = max
	}
}

// WithIDGenerator replaces the UUID generator used for new messages.
func WithIDGenerator(newID func() string) Option {
	return func(s *Server) {
		s.newID = newID
	}
}

// NewServer creates a queue server bound to one namespace.
func NewServer(client redis.UniversalClient, keys Keys, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		client: client,
		keys:   keys,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueueMessage stores payload under a fresh id and appends it to the global
// pending list, or to the pending list of segment when one is given.
// Payloads are encoded as JSON; a json.RawMessage must already be valid JSON.
func (s *Server) QueueMessage(ctx context.Context, payload any, segment string) (domain.MessageKey, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.MessageKey{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	key := domain.MessageKey{ID: s.newID(), Segment: segment}
	if _, _, err := s.commit(ctx, "queue", key, data, false); err != nil {
		return domain.MessageKey{}, err
	}

	metrics.MessagesQueuedTotal.WithLabelValues(segment).Inc()
	s.logger.Debug("message queued", "messageId", key.ID, "segment", segment)

	return key, nil
}

// DequeueMessage removes the oldest message of segment and returns it.
// An empty segment takes from the global list first, then from every
// segment list in name order. It returns nil, nil when nothing is pending.
func (s *Server) DequeueMessage(ctx context.Context, segment string) (*domain.Message, error) {
	return s.take(ctx, "dequeue", segment, "head")
}

// RemoveMostRecentlyQueuedMessage removes the newest message of segment and returns it.
func (s *Server) RemoveMostRecentlyQueuedMessage(ctx context.Context, segment string) (*domain.Message, error) {
	return s.take(ctx, "pop_latest", segment, "tail")
}

func (s *Server) take(ctx context.Context, op, segment, end string) (msg *domain.Message, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, op, time.Since(start).Seconds(), err) }()

	keys := []string{
		s.keys.ValuesTableName(),
		s.keys.MessageStatsTableName(),
		s.keys.SegmentsSetName(),
		s.keys.PendingListName(),
	}

	res, err := dequeueScript.Run(ctx, s.client, keys, segment, end).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewConnectivityError(op, err)
	}

	msg, err = decodeTaken(res)
	if err != nil {
		return nil, domain.NewConnectivityError(op, err)
	}

	metrics.MessagesDequeuedTotal.WithLabelValues(msg.Key.Segment, end).Inc()
	s.logger.Debug("message dequeued", "messageId", msg.Key.ID, "segment", msg.Key.Segment, "end", end)

	return msg, nil
}

// decodeTaken converts {id, segment, payload, requeues, queued_at} into a Message.
func decodeTaken(res []interface{}) (*domain.Message, error) {
	if len(res) != 5 {
		return nil, fmt.Errorf("unexpected dequeue reply of %d fields", len(res))
	}

	fields := make([]string, len(res))
	for i, v := range res {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected dequeue field %d of type %T", i, v)
		}
		fields[i] = str
	}

	requeues, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("invalid requeue count %q: %w", fields[3], err)
	}
	queuedAt, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid queued_at %q: %w", fields[4], err)
	}

	msg := &domain.Message{
		Key:          domain.MessageKey{ID: fields[0], Segment: fields[1]},
		RequeueCount: requeues,
		Status:       domain.StatusPending,
	}
	if fields[2] != "" {
		msg.Payload = []byte(fields[2])
	}
	if queuedAt > 0 {
		msg.QueuedAt = time.UnixMilli(queuedAt)
	}

	return msg, nil
}

// GetMessageCount returns the length of the global pending list.
func (s *Server) GetMessageCount(ctx context.Context) (int64, error) {
	count, err := s.listLen(ctx, "count", s.keys.PendingListName())
	if err != nil {
		return 0, err
	}
	metrics.PendingMessages.Set(float64(count))
	return count, nil
}

// SegmentMessageCount returns the length of the pending list of segment.
func (s *Server) SegmentMessageCount(ctx context.Context, segment string) (int64, error) {
	return s.listLen(ctx, "segment_count", segmentListName(s.keys, segment))
}

func (s *Server) listLen(ctx context.Context, op, list string) (count int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, op, time.Since(start).Seconds(), err) }()

	count, err = s.client.LLen(ctx, list).Result()
	if err != nil {
		return 0, domain.NewConnectivityError(op, err)
	}
	return count, nil
}

// Purge deletes every structure of the namespace. Purging an empty namespace is a no-op.
func (s *Server) Purge(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, "purge", time.Since(start).Seconds(), err) }()

	keys := []string{
		s.keys.ValuesTableName(),
		s.keys.PendingListName(),
		s.keys.MessageStatsTableName(),
		s.keys.DelayedSetName(),
		s.keys.SegmentsSetName(),
	}

	segments, err := purgeScript.Run(ctx, s.client, keys).Int()
	if err != nil {
		return domain.NewConnectivityError("purge", err)
	}

	metrics.PurgesTotal.Inc()
	metrics.PendingMessages.Set(0)
	s.logger.Info("queue purged", "segmentLists", segments)

	return nil
}

// RequeueMessage puts msg back at the end of its pending list and returns
// the updated message. The id and segment never change: a key naming another
// segment than the one the message was queued to yields ErrSegmentMismatch.
// A message parked in the delayed set is taken out of it.
//
// Once a dead-letter limit is configured and msg was already requeued that
// many times, msg is archived, removed from the store and
// ErrRequeueLimitExceeded is returned.
func (s *Server) RequeueMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg == nil || msg.Key.ID == "" {
		return nil, domain.ErrEmptyMessageID
	}

	status, requeues, err := s.commit(ctx, "requeue", msg.Key, msg.Payload, true)
	if err != nil {
		return nil, err
	}

	switch status {
	case "NOT_FOUND":
		return nil, domain.ErrMessageNotFound
	case "SEGMENT":
		return nil, domain.ErrSegmentMismatch
	case "LIMIT":
		limited := *msg
		limited.RequeueCount = requeues
		if err := s.deadLetter(ctx, &limited); err != nil {
			return nil, err
		}
		return nil, domain.ErrRequeueLimitExceeded
	}

	requeued := *msg
	requeued.RequeueCount = requeues
	requeued.Status = domain.StatusQueued
	requeued.QueuedAt = time.UnixMilli(s.now().UnixMilli())

	metrics.MessagesRequeuedTotal.WithLabelValues(msg.Key.Segment).Inc()
	s.logger.Debug("message requeued",
		"messageId", msg.Key.ID,
		"segment", msg.Key.Segment,
		"requeueCount", requeues,
	)

	return &requeued, nil
}

// commit runs the atomic enqueue script and returns its status and requeue count.
func (s *Server) commit(ctx context.Context, op string, key domain.MessageKey, payload []byte, requeue bool) (status string, requeues int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, op, time.Since(start).Seconds(), err) }()

	keys := []string{
		s.keys.ValuesTableName(),
		segmentListName(s.keys, key.Segment),
		s.keys.MessageStatsTableName(),
		s.keys.SegmentsSetName(),
		s.keys.DelayedSetName(),
	}

	flag := "0"
	if requeue {
		flag = "1"
	}

	res, err := enqueueScript.Run(ctx, s.client, keys,
		key.ID,
		string(payload),
		s.now().UnixMilli(),
		key.Segment,
		flag,
		key.String(),
		s.maxRequeues,
	).Slice()
	if err != nil {
		return "", 0, domain.NewConnectivityError(op, err)
	}

	if len(res) != 2 {
		return "", 0, domain.NewConnectivityError(op, fmt.Errorf("unexpected enqueue reply of %d fields", len(res)))
	}
	status, _ = res[0].(string)
	count, _ := res[1].(int64)

	return status, int(count), nil
}

// deadLetter archives msg and then removes it from the store.
// The archive is written first so a failure leaves the message in place.
func (s *Server) deadLetter(ctx context.Context, msg *domain.Message) error {
	if s.deadLetters != nil {
		if len(msg.Payload) == 0 {
			stored, err := s.client.HGet(ctx, s.keys.ValuesTableName(), msg.Key.ID).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return domain.NewConnectivityError("dead_letter", err)
			}
			msg.Payload = stored
		}
		dl := domain.NewDeadLetter(msg, domain.ErrRequeueLimitExceeded.Error(), s.now())
		if err := s.deadLetters.Archive(ctx, dl); err != nil {
			return fmt.Errorf("failed to archive dead letter: %w", err)
		}
	}

	if err := s.discard(ctx, "dead_letter", msg.Key); err != nil {
		return err
	}

	metrics.MessagesDeadLetteredTotal.WithLabelValues(msg.Key.Segment).Inc()
	s.logger.Warn("message dead-lettered",
		"messageId", msg.Key.ID,
		"segment", msg.Key.Segment,
		"requeueCount", msg.RequeueCount,
	)

	return nil
}

// DequeueMessageWithDelay takes msg off its pending list and parks it in the
// delayed set until now+delay. The reaper returns it to its pending list.
// msg.Key must name the segment the message was queued to.
func (s *Server) DequeueMessageWithDelay(ctx context.Context, msg *domain.Message, delay time.Duration) (err error) {
	if msg == nil || msg.Key.ID == "" {
		return domain.ErrEmptyMessageID
	}
	if delay < 0 {
		return domain.ErrInvalidDelay
	}

	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, "delay", time.Since(start).Seconds(), err) }()

	keys := []string{
		s.keys.ValuesTableName(),
		segmentListName(s.keys, msg.Key.Segment),
		s.keys.DelayedSetName(),
		s.keys.MessageStatsTableName(),
	}

	deliverAt := s.now().Add(delay)

	found, err := delayScript.Run(ctx, s.client, keys,
		msg.Key.ID,
		msg.Key.String(),
		deliverAt.UnixMilli(),
		string(msg.Payload),
		msg.Key.Segment,
	).Int()
	if err != nil {
		return domain.NewConnectivityError("delay", err)
	}
	switch found {
	case 0:
		return domain.ErrMessageNotFound
	case -1:
		return domain.ErrSegmentMismatch
	}

	msg.Status = domain.StatusDelayed
	metrics.MessagesDelayedTotal.WithLabelValues(msg.Key.Segment).Inc()
	s.logger.Debug("message delayed",
		"messageId", msg.Key.ID,
		"segment", msg.Key.Segment,
		"deliverAt", deliverAt,
	)

	return nil
}

// Acknowledge marks the message behind key as consumed and drops what the
// store still holds for it.
func (s *Server) Acknowledge(ctx context.Context, key domain.MessageKey) error {
	if key.ID == "" {
		return domain.ErrEmptyMessageID
	}
	return s.discard(ctx, "ack", key)
}

// discard removes the values, stats, delayed and pending entries of key.
func (s *Server) discard(ctx context.Context, op string, key domain.MessageKey) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, op, time.Since(start).Seconds(), err) }()

	keys := []string{
		s.keys.ValuesTableName(),
		s.keys.MessageStatsTableName(),
		s.keys.DelayedSetName(),
		segmentListName(s.keys, key.Segment),
	}

	removed, err := discardScript.Run(ctx, s.client, keys, key.ID, key.String(), key.Segment).Int()
	if err != nil {
		return domain.NewConnectivityError(op, err)
	}
	switch removed {
	case 0:
		return domain.ErrMessageNotFound
	case -1:
		return domain.ErrSegmentMismatch
	}
	return nil
}

// DelayedMessages lists the delayed set in delivery order.
func (s *Server) DelayedMessages(ctx context.Context) (entries []domain.DelayedEntry, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, "delayed", time.Since(start).Seconds(), err) }()

	members, err := s.client.ZRangeWithScores(ctx, s.keys.DelayedSetName(), 0, -1).Result()
	if err != nil {
		return nil, domain.NewConnectivityError("delayed", err)
	}

	entries = make([]domain.DelayedEntry, 0, len(members))
	for _, z := range members {
		member, _ := z.Member.(string)
		entries = append(entries, domain.DelayedEntry{
			Key:       domain.ParseMessageKey(member),
			DeliverAt: time.UnixMilli(int64(z.Score)),
		})
	}

	return entries, nil
}

// RequeueCount returns how many times the message behind key was requeued.
func (s *Server) RequeueCount(ctx context.Context, key domain.MessageKey) (count int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, "requeue_count", time.Since(start).Seconds(), err) }()

	count, err = s.client.HGet(ctx, s.keys.MessageStatsTableName(), key.ID+":requeues").Int()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrMessageNotFound
	}
	if err != nil {
		return 0, domain.NewConnectivityError("requeue_count", err)
	}
	return count, nil
}

// Stats returns the namespace-wide counters kept next to the per-message entries.
func (s *Server) Stats(ctx context.Context) (queued, requeued int64, err error) {
	vals, err := s.client.HMGet(ctx, s.keys.MessageStatsTableName(), "queued_total", "requeued_total").Result()
	if err != nil {
		return 0, 0, domain.NewConnectivityError("stats", err)
	}

	parse := func(v interface{}) int64 {
		str, _ := v.(string)
		n, _ := strconv.ParseInt(str, 10, 64)
		return n
	}

	return parse(vals[0]), parse(vals[1]), nil
}

// ReleaseDue moves up to limit delayed messages whose deliver-at time has
// passed back to the end of their pending lists, and returns their keys.
// Each message is relocated at most once even with several callers.
func (s *Server) ReleaseDue(ctx context.Context, limit int) (released []domain.MessageKey, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, "release_due", time.Since(start).Seconds(), err) }()

	keys := []string{
		s.keys.DelayedSetName(),
		s.keys.ValuesTableName(),
		s.keys.MessageStatsTableName(),
		s.keys.SegmentsSetName(),
		s.keys.PendingListName(),
	}

	members, err := reapScript.Run(ctx, s.client, keys, s.now().UnixMilli(), limit).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, domain.NewConnectivityError("release_due", err)
	}

	released = make([]domain.MessageKey, 0, len(members))
	for _, member := range members {
		released = append(released, domain.ParseMessageKey(member))
	}

	return released, nil
}
