// Package main is the entry point for the Redline queue engine.
// It wires the queue server, distribution pools, delayed message reaper,
// optional Kafka ingress and the admin HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"redline-go/internal/api"
	"redline-go/internal/banner"
	"redline-go/internal/config"
	"redline-go/internal/ingress"
	kafkaingress "redline-go/internal/ingress/kafka"
	memoryingress "redline-go/internal/ingress/memory"
	"redline-go/internal/logging"
	"redline-go/internal/pool"
	"redline-go/internal/queue"
	"redline-go/internal/reaper"
	"redline-go/internal/store"
	memorystor "redline-go/internal/store/memory"
	postgresstor "redline-go/internal/store/postgres"
	redisstor "redline-go/internal/store/redis"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/redline.yaml", "path to configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with REDLINE_* overrides")
	flag.Parse()

	banner.Print(os.Stdout)

	// A missing dotenv file is not an error
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load env file", "error", err, "path", *envFile)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	// Initialize logger
	logger, logCloser, err := logging.New(cfg.Logger)
	if err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
		"namespace", cfg.Queue.Namespace,
	)

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize dependencies based on storage mode
	deps, cleanup, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Start reaper in background
	if deps.reaper != nil {
		go func() {
			if err := deps.reaper.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("reaper error", "error", err)
				cancel()
			}
		}()
	}

	// Start ingress in background
	if deps.ingress != nil {
		go func() {
			if err := deps.ingress.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("ingress error", "error", err)
				cancel()
			}
		}()
	}

	// Start HTTP server
	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("Redline started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
	)

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("Redline stopped")
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	server  *api.Server
	reaper  *reaper.Service
	ingress *ingress.Service
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		client       *redis.Client
		deadLetters  store.DeadLetterRepository
		source       ingress.Source
		publisher    ingress.Publisher
		cleanupFuncs []func()
	)

	// Build cleanup function
	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	if cfg.Storage.UseMemory() {
		// Initialize in-memory implementations
		logger.Info("initializing embedded storage")

		embedded, err := redisstor.NewEmbedded()
		if err != nil {
			return nil, nil, err
		}
		client = embedded.Client()
		cleanupFuncs = append(cleanupFuncs, func() { _ = embedded.Close() })
		logger.Info("embedded store listening", "address", embedded.Addr())

		deadLetters = memorystor.NewDeadLetterRepository()

		if cfg.Kafka.Enabled {
			memSource := memoryingress.NewSource(10000, logger)
			source = memSource
			publisher = memSource
			cleanupFuncs = append(cleanupFuncs, func() { _ = memSource.Close() })
		}
	} else {
		// Initialize real storage implementations
		logger.Info("initializing production storage (Redis, PostgreSQL, Kafka)")

		// Initialize PostgreSQL
		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)

		// Run migrations
		if err := db.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("database migrations completed")

		deadLetters = postgresstor.NewDeadLetterRepository(db)

		// Initialize Redis
		client, err = redisstor.NewClient(&cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, func() { _ = client.Close() })

		// Initialize Kafka
		if cfg.Kafka.Enabled {
			consumer := kafkaingress.NewConsumer(&cfg.Kafka, logger)
			source = consumer
			cleanupFuncs = append(cleanupFuncs, func() { _ = consumer.Close() })

			producer := kafkaingress.NewProducer(&cfg.Kafka)
			publisher = producer
			cleanupFuncs = append(cleanupFuncs, func() { _ = producer.Close() })
		}
	}

	// Initialize queue server
	queueServer := queue.NewServer(client, &cfg.Queue, logger,
		queue.WithDeadLetters(deadLetters, cfg.Queue.MaxRequeues),
	)

	// Save configured distribution pools
	registry := pool.NewRegistry(client, &cfg.Queue)
	for _, p := range cfg.Pools {
		if _, err := registry.Save(ctx, pool.Config{Name: p.Name, Segments: p.Segments}); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("distribution pool saved", "pool", p.Name, "segments", len(p.Segments))
	}

	// Initialize reaper
	reaperService := reaper.NewService(queueServer, cfg.Reaper.Interval, cfg.Reaper.BatchSize, logger)

	// Initialize ingress
	var ingressService *ingress.Service
	if source != nil {
		var picker ingress.SegmentPicker
		if cfg.Kafka.Pool != "" {
			picker = registry.Pool(cfg.Kafka.Pool)
		}
		ingressService = ingress.NewService("kafka", source, queueServer, picker, logger)
	}

	// Initialize API handlers
	messageHandler := api.NewMessageHandler(queueServer, logger)
	poolHandler := api.NewPoolHandler(registry, queueServer, logger)
	adminHandler := api.NewAdminHandler(reaperService, deadLetters, logger)

	var ingressHandler *api.IngressHandler
	if publisher != nil {
		ingressHandler = api.NewIngressHandler(publisher, logger)
	}

	// Initialize HTTP server
	server := api.NewServer(api.ServerDeps{
		Config:         &cfg.Server,
		Logger:         logger,
		MessageHandler: messageHandler,
		PoolHandler:    poolHandler,
		AdminHandler:   adminHandler,
		IngressHandler: ingressHandler,
		Ping: func(ctx context.Context) error {
			return redisstor.Ping(ctx, client)
		},
	})

	deps := &dependencies{
		server:  server,
		ingress: ingressService,
	}
	if !cfg.Reaper.Disabled {
		deps.reaper = reaperService
	}

	return deps, cleanup, nil
}
