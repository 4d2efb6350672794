package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"redline-go/internal/domain"
)

// Queue is the subset of the queue server exposed over HTTP.
// *queue.Server satisfies it.
type Queue interface {
	QueueMessage(ctx context.Context, payload any, segment string) (domain.MessageKey, error)
	DequeueMessage(ctx context.Context, segment string) (*domain.Message, error)
	RemoveMostRecentlyQueuedMessage(ctx context.Context, segment string) (*domain.Message, error)
	GetMessageCount(ctx context.Context) (int64, error)
	SegmentMessageCount(ctx context.Context, segment string) (int64, error)
	Purge(ctx context.Context) error
	RequeueMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	DequeueMessageWithDelay(ctx context.Context, msg *domain.Message, delay time.Duration) error
	Acknowledge(ctx context.Context, key domain.MessageKey) error
	DelayedMessages(ctx context.Context) ([]domain.DelayedEntry, error)
	Stats(ctx context.Context) (queued, requeued int64, err error)
}

// MessageHandler handles HTTP requests for queue operations.
type MessageHandler struct {
	queue  Queue
	logger *slog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(queue Queue, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		queue:  queue,
		logger: logger,
	}
}

// QueueRequest is the body of POST /v1/messages.
type QueueRequest struct {
	Payload json.RawMessage `json:"payload"`
	Segment string          `json:"segment"`
}

// MessageRequest identifies a message handed back by a consumer.
type MessageRequest struct {
	ID           string          `json:"id"`
	Segment      string          `json:"segment"`
	Payload      json.RawMessage `json:"payload"`
	RequeueCount int             `json:"requeue_count"`

	// Delay is a duration string such as "30s"; only used by the delay route.
	Delay string `json:"delay"`
}

func (r *MessageRequest) message() *domain.Message {
	return &domain.Message{
		Key:          domain.MessageKey{ID: r.ID, Segment: r.Segment},
		Payload:      []byte(r.Payload),
		RequeueCount: r.RequeueCount,
	}
}

// Queue handles POST /v1/messages
func (h *MessageHandler) Queue(c *fiber.Ctx) error {
	var req QueueRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("failed to parse queue body", "error", err)
		return BadRequest(c, "invalid request body")
	}
	if len(req.Payload) == 0 {
		return ValidationError(c, "payload is required")
	}

	key, err := h.queue.QueueMessage(c.Context(), req.Payload, req.Segment)
	if err != nil {
		h.logger.Error("failed to queue message", "error", err, "segment", req.Segment)
		return respondError(c, err)
	}

	return Created(c, key)
}

// Count handles GET /v1/messages/count
// Without a segment query the global pending list and namespace totals are reported.
func (h *MessageHandler) Count(c *fiber.Ctx) error {
	if segment := c.Query("segment"); segment != "" {
		count, err := h.queue.SegmentMessageCount(c.Context(), segment)
		if err != nil {
			return respondError(c, err)
		}
		return Success(c, fiber.Map{"segment": segment, "count": count})
	}

	count, err := h.queue.GetMessageCount(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	queued, requeued, err := h.queue.Stats(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	return Success(c, fiber.Map{
		"count":          count,
		"queued_total":   queued,
		"requeued_total": requeued,
	})
}

// Dequeue handles POST /v1/messages/dequeue
// Returns 204 when nothing is pending.
func (h *MessageHandler) Dequeue(c *fiber.Ctx) error {
	msg, err := h.queue.DequeueMessage(c.Context(), c.Query("segment"))
	if err != nil {
		return respondError(c, err)
	}
	if msg == nil {
		return NoContent(c)
	}
	return Success(c, msg)
}

// PopLatest handles POST /v1/messages/pop-latest
func (h *MessageHandler) PopLatest(c *fiber.Ctx) error {
	msg, err := h.queue.RemoveMostRecentlyQueuedMessage(c.Context(), c.Query("segment"))
	if err != nil {
		return respondError(c, err)
	}
	if msg == nil {
		return NoContent(c)
	}
	return Success(c, msg)
}

// Purge handles DELETE /v1/messages
func (h *MessageHandler) Purge(c *fiber.Ctx) error {
	if err := h.queue.Purge(c.Context()); err != nil {
		h.logger.Error("failed to purge queue", "error", err)
		return respondError(c, err)
	}
	return NoContent(c)
}

// Requeue handles POST /v1/messages/requeue
func (h *MessageHandler) Requeue(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}

	msg, err := h.queue.RequeueMessage(c.Context(), req.message())
	if err != nil {
		return respondError(c, err)
	}
	return Success(c, msg)
}

// Delay handles POST /v1/messages/delay
func (h *MessageHandler) Delay(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}

	delay, err := time.ParseDuration(req.Delay)
	if err != nil {
		return ValidationError(c, "delay must be a duration such as 30s")
	}

	msg := req.message()
	if err := h.queue.DequeueMessageWithDelay(c.Context(), msg, delay); err != nil {
		return respondError(c, err)
	}

	return Accepted(c, fiber.Map{
		"key":    msg.Key,
		"status": msg.Status,
		"delay":  delay.String(),
	})
}

// Acknowledge handles POST /v1/messages/ack
func (h *MessageHandler) Acknowledge(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}

	if err := h.queue.Acknowledge(c.Context(), domain.MessageKey{ID: req.ID, Segment: req.Segment}); err != nil {
		return respondError(c, err)
	}
	return NoContent(c)
}

// Delayed handles GET /v1/messages/delayed
func (h *MessageHandler) Delayed(c *fiber.Ctx) error {
	entries, err := h.queue.DelayedMessages(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return Success(c, entries)
}
