package api

import (
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"redline-go/internal/pool"
)

// PoolHandler handles HTTP requests for distribution pools.
type PoolHandler struct {
	registry *pool.Registry
	queue    Queue
	logger   *slog.Logger
}

// NewPoolHandler creates a new pool handler.
func NewPoolHandler(registry *pool.Registry, queue Queue, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		registry: registry,
		queue:    queue,
		logger:   logger,
	}
}

// SavePoolRequest is the body of PUT /v1/pools/:name.
type SavePoolRequest struct {
	Segments []string `json:"segments"`
}

// Save handles PUT /v1/pools/:name
func (h *PoolHandler) Save(c *fiber.Ctx) error {
	var req SavePoolRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}

	cfg := pool.Config{Name: c.Params("name"), Segments: req.Segments}
	if _, err := h.registry.Save(c.Context(), cfg); err != nil {
		h.logger.Debug("failed to save pool", "error", err, "pool", cfg.Name)
		return respondError(c, err)
	}

	h.logger.Info("pool saved", "pool", cfg.Name, "segments", len(cfg.Segments))
	return Success(c, cfg)
}

// Get handles GET /v1/pools/:name
func (h *PoolHandler) Get(c *fiber.Ctx) error {
	name := c.Params("name")

	segments, err := h.registry.Pool(name).LoadSegments(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	return Success(c, fiber.Map{
		"name":     name,
		"segments": segments,
		"size":     len(segments),
	})
}

// Next handles POST /v1/pools/:name/next
func (h *PoolHandler) Next(c *fiber.Ctx) error {
	segment, err := h.registry.Pool(c.Params("name")).NextSegment(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return Success(c, fiber.Map{"segment": segment})
}

// PoolMessageRequest is the body of POST /v1/pools/:name/messages.
type PoolMessageRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// QueueMessage handles POST /v1/pools/:name/messages
// The message goes to the next segment of the pool.
func (h *PoolHandler) QueueMessage(c *fiber.Ctx) error {
	var req PoolMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if len(req.Payload) == 0 {
		return ValidationError(c, "payload is required")
	}

	segment, err := h.registry.Pool(c.Params("name")).NextSegment(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	key, err := h.queue.QueueMessage(c.Context(), req.Payload, segment)
	if err != nil {
		return respondError(c, err)
	}

	return Created(c, key)
}
