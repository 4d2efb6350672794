package api

import (
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"redline-go/internal/ingress"
)

// IngressHandler publishes records to the ingress source.
type IngressHandler struct {
	publisher ingress.Publisher
	logger    *slog.Logger
}

// NewIngressHandler creates a new ingress handler.
func NewIngressHandler(publisher ingress.Publisher, logger *slog.Logger) *IngressHandler {
	return &IngressHandler{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishRequest is the body of POST /v1/ingress/records.
type PublishRequest struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
	Segment string          `json:"segment"`
}

// Publish handles POST /v1/ingress/records
// The record is queued asynchronously by the ingress service.
func (h *IngressHandler) Publish(c *fiber.Ctx) error {
	var req PublishRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if len(req.Payload) == 0 {
		return ValidationError(c, "payload is required")
	}

	rec := &ingress.Record{
		Key:     []byte(req.Key),
		Value:   []byte(req.Payload),
		Headers: map[string]string{},
	}
	if req.Segment != "" {
		rec.Headers[ingress.SegmentHeader] = req.Segment
	}

	if err := h.publisher.Publish(c.Context(), rec); err != nil {
		h.logger.Error("failed to publish ingress record", "error", err)
		return InternalError(c, "failed to publish record")
	}

	return Accepted(c, map[string]string{"status": "accepted"})
}
