// Package api provides HTTP handlers and routing for the Redline admin API.
package api

import (
	"github.com/gofiber/fiber/v2"
)

// Response is the envelope every route answers with, except 204s.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Failure    `json:"error,omitempty"`
}

// Failure describes why a request was not served.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Failure codes.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnavailable      = "STORE_UNAVAILABLE"
)

// codeForStatus picks the failure code for errors raised by fiber itself,
// such as unknown routes or oversized bodies.
func codeForStatus(status int) string {
	switch {
	case status == fiber.StatusNotFound:
		return ErrCodeNotFound
	case status == fiber.StatusConflict:
		return ErrCodeConflict
	case status == fiber.StatusServiceUnavailable:
		return ErrCodeUnavailable
	case status >= 400 && status < 500:
		return ErrCodeBadRequest
	default:
		return ErrCodeInternalError
	}
}

func reply(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(Response{Success: true, Data: data})
}

func fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Response{
		Success: false,
		Error:   &Failure{Code: code, Message: message},
	})
}

// Success answers 200 with data.
func Success(c *fiber.Ctx, data interface{}) error {
	return reply(c, fiber.StatusOK, data)
}

// Created answers 201 with the key of a queued message.
func Created(c *fiber.Ctx, data interface{}) error {
	return reply(c, fiber.StatusCreated, data)
}

// Accepted answers 202 for work that completes later, like a delay or an ingress publish.
func Accepted(c *fiber.Ctx, data interface{}) error {
	return reply(c, fiber.StatusAccepted, data)
}

// NoContent answers 204, used for empty dequeues and deletions.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// BadRequest answers 400 for bodies that cannot be parsed.
func BadRequest(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadRequest, ErrCodeBadRequest, message)
}

// ValidationError answers 400 for well-formed requests the queue refuses.
func ValidationError(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadRequest, ErrCodeValidationFailed, message)
}

func NotFound(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusNotFound, ErrCodeNotFound, message)
}

// Conflict answers 409 when the message cannot move the way it was asked to.
func Conflict(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusConflict, ErrCodeConflict, message)
}

// Unavailable answers 503 while the store cannot be reached.
func Unavailable(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

func InternalError(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusInternalServerError, ErrCodeInternalError, message)
}
