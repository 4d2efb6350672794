// Package redis provides the connection to the shared store backing every queue.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"redline-go/internal/config"
)

// pingTimeout bounds the connection check performed on startup.
const pingTimeout = 5 * time.Second

// NewClient creates a go-redis client for cfg and verifies the connection.
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := Ping(context.Background(), client); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// Embedded is an in-process store used by the memory storage mode.
type Embedded struct {
	server *miniredis.Miniredis
	client *redis.Client
}

// NewEmbedded starts an in-process store listening on a random local port
// and returns a client connected to it.
func NewEmbedded() (*Embedded, error) {
	server, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded store: %w", err)
	}

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	if err := Ping(context.Background(), client); err != nil {
		_ = client.Close()
		server.Close()
		return nil, err
	}

	return &Embedded{server: server, client: client}, nil
}

// Client returns the client connected to the embedded store.
func (e *Embedded) Client() *redis.Client {
	return e.client
}

// Addr returns the address the embedded store listens on.
func (e *Embedded) Addr() string {
	return e.server.Addr()
}

// Close disconnects the client and stops the embedded store.
func (e *Embedded) Close() error {
	err := e.client.Close()
	e.server.Close()
	return err
}

// Ping verifies the store answers within pingTimeout.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}
