package api

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"redline-go/internal/domain"
	"redline-go/internal/store"
)

// Reaper runs a single delayed set scan. *reaper.Service satisfies it.
type Reaper interface {
	RunOnce(ctx context.Context) (int, error)
}

// AdminHandler handles operational endpoints.
type AdminHandler struct {
	reaper      Reaper
	deadLetters store.DeadLetterRepository
	logger      *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(reaper Reaper, deadLetters store.DeadLetterRepository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		reaper:      reaper,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

// RunReaper handles POST /v1/reaper/run
func (h *AdminHandler) RunReaper(c *fiber.Ctx) error {
	released, err := h.reaper.RunOnce(c.Context())
	if err != nil {
		h.logger.Error("manual reaper run failed", "error", err)
		return respondError(c, err)
	}
	return Success(c, fiber.Map{"released": released})
}

// ListDeadLetters handles GET /v1/dead-letters
func (h *AdminHandler) ListDeadLetters(c *fiber.Ctx) error {
	filter := domain.DeadLetterFilter{
		Segment: c.Query("segment"),
	}

	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = l
		}
	}

	// Default limit if not specified
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	letters, err := h.deadLetters.List(c.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list dead letters", "error", err)
		return InternalError(c, "failed to list dead letters")
	}

	total, err := h.deadLetters.Count(c.Context())
	if err != nil {
		h.logger.Error("failed to count dead letters", "error", err)
		return InternalError(c, "failed to count dead letters")
	}

	return Success(c, fiber.Map{
		"total":        total,
		"dead_letters": letters,
	})
}
