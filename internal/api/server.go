package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"redline-go/internal/config"
)

// Server represents the HTTP server with all configured routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	// Handlers
	messageHandler *MessageHandler
	poolHandler    *PoolHandler
	adminHandler   *AdminHandler
	ingressHandler *IngressHandler

	// ping probes the queue store; nil means always healthy.
	ping func(ctx context.Context) error
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config         *config.ServerConfig
	Logger         *slog.Logger
	MessageHandler *MessageHandler
	PoolHandler    *PoolHandler
	AdminHandler   *AdminHandler
	IngressHandler *IngressHandler // optional
	Ping           func(ctx context.Context) error
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	// Create Fiber app with optimized settings for high throughput
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable strict routing for consistency
		StrictRouting: true,
		// Case sensitive routing
		CaseSensitive: true,
		// Read timeout from config
		ReadTimeout: deps.Config.ReadTimeout,
		// Write timeout from config
		WriteTimeout: deps.Config.WriteTimeout,
		// Idle timeout from config
		IdleTimeout: deps.Config.IdleTimeout,
		// Custom error handler
		ErrorHandler: customErrorHandler,
		// Payloads are passed through as raw JSON
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	s := &Server{
		app:            app,
		config:         deps.Config,
		logger:         deps.Logger,
		messageHandler: deps.MessageHandler,
		poolHandler:    deps.PoolHandler,
		adminHandler:   deps.AdminHandler,
		ingressHandler: deps.IngressHandler,
		ping:           deps.Ping,
	}

	// Register middleware
	s.registerMiddleware()

	// Register routes
	s.registerRoutes()

	return s
}

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware() {
	// Recovery middleware to handle panics
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware for tracing
	s.app.Use(requestid.New())

	// Logger middleware for request logging
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// Health check endpoint (outside versioned API)
	s.app.Get("/healthz", s.healthCheck)

	// Prometheus metrics endpoint
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.app.Group("/v1")

	// Queue operations
	v1.Post("/messages", s.messageHandler.Queue)
	v1.Get("/messages/count", s.messageHandler.Count)
	v1.Post("/messages/dequeue", s.messageHandler.Dequeue)
	v1.Post("/messages/pop-latest", s.messageHandler.PopLatest)
	v1.Delete("/messages", s.messageHandler.Purge)
	v1.Post("/messages/requeue", s.messageHandler.Requeue)
	v1.Post("/messages/delay", s.messageHandler.Delay)
	v1.Post("/messages/ack", s.messageHandler.Acknowledge)
	v1.Get("/messages/delayed", s.messageHandler.Delayed)

	// Distribution pools
	v1.Put("/pools/:name", s.poolHandler.Save)
	v1.Get("/pools/:name", s.poolHandler.Get)
	v1.Post("/pools/:name/next", s.poolHandler.Next)
	v1.Post("/pools/:name/messages", s.poolHandler.QueueMessage)

	// Operations
	v1.Post("/reaper/run", s.adminHandler.RunReaper)
	v1.Get("/dead-letters", s.adminHandler.ListDeadLetters)

	// Ingress is only routed when a source is configured
	if s.ingressHandler != nil {
		v1.Post("/ingress/records", s.ingressHandler.Publish)
	}
}

// healthCheck returns the health status of the service.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	if s.ping != nil {
		if err := s.ping(c.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			return Unavailable(c, "queue store unreachable")
		}
	}
	return Success(c, map[string]string{
		"status": "healthy",
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler answers errors that escaped the handlers, including
// the ones fiber raises for unknown routes.
func customErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return fail(c, e.Code, codeForStatus(e.Code), e.Message)
	}
	return InternalError(c, fmt.Sprintf("unexpected error: %v", err))
}
