package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"redline-go/internal/domain"
)

// respondError maps queue errors onto the response envelope.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return NotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidDelay),
		errors.Is(err, domain.ErrInvalidPool),
		errors.Is(err, domain.ErrEmptyMessageID):
		return ValidationError(c, err.Error())
	case errors.Is(err, domain.ErrRequeueLimitExceeded),
		errors.Is(err, domain.ErrSegmentMismatch):
		return Conflict(c, err.Error())
	case domain.IsConnectivity(err):
		return Unavailable(c, "queue store unavailable")
	default:
		return InternalError(c, "unexpected error")
	}
}
