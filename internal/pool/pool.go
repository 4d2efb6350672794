// Package pool implements distribution pools: named, ordered sets of segments
// handed out round-robin to producers across any number of processes.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"redline-go/internal/domain"
	"redline-go/internal/metrics"
)

const storeLabel = "redis"

// Keys names the store structures of a pool.
// *config.QueueConfig satisfies it.
type Keys interface {
	PoolSegmentsName(pool string) string
	PoolCursorName(pool string) string
}

// nextSegmentScript advances the pool cursor and returns the segment it lands on.
//
// KEYS: segments list, cursor
// Returns the segment, or nil when the pool holds no segments.
var nextSegmentScript = redis.NewScript(`
local size = redis.call('LLEN', KEYS[1])
if size == 0 then
  return nil
end
local cursor = redis.call('INCR', KEYS[2])
return redis.call('LINDEX', KEYS[1], (cursor - 1) % size)
`)

// Config declares the segments of one pool.
type Config struct {
	Name     string   `json:"name"`
	Segments []string `json:"segments"`
}

// Validate checks the pool name and its segments.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidPool)
	}
	if len(c.Segments) == 0 {
		return fmt.Errorf("%w: pool %q needs at least one segment", domain.ErrInvalidPool, c.Name)
	}

	seen := make(map[string]struct{}, len(c.Segments))
	for _, seg := range c.Segments {
		if seg == "" {
			return fmt.Errorf("%w: pool %q has an empty segment", domain.ErrInvalidPool, c.Name)
		}
		if _, dup := seen[seg]; dup {
			return fmt.Errorf("%w: pool %q lists segment %q twice", domain.ErrInvalidPool, c.Name, seg)
		}
		seen[seg] = struct{}{}
	}

	return nil
}

// Save replaces the stored segments of the pool and resets its cursor.
// Readers see either the old list or the new one, never a mix.
func (c Config) Save(ctx context.Context, client redis.UniversalClient, keys Keys) (err error) {
	if err := c.Validate(); err != nil {
		return err
	}

	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, "pool_save", time.Since(start).Seconds(), err) }()

	segments := make([]interface{}, len(c.Segments))
	for i, seg := range c.Segments {
		segments[i] = seg
	}

	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys.PoolSegmentsName(c.Name))
		pipe.RPush(ctx, keys.PoolSegmentsName(c.Name), segments...)
		pipe.Del(ctx, keys.PoolCursorName(c.Name))
		return nil
	})
	if err != nil {
		return domain.NewConnectivityError("pool_save", err)
	}

	return nil
}

// Pool reads and rotates a saved distribution pool.
type Pool struct {
	name   string
	client redis.UniversalClient
	keys   Keys
}

// New returns a handle on the pool called name. Nothing is read until a method is called.
func New(name string, client redis.UniversalClient, keys Keys) *Pool {
	return &Pool{name: name, client: client, keys: keys}
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// LoadSegments returns the segments in the order they were saved.
func (p *Pool) LoadSegments(ctx context.Context) (segments []string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, "pool_load", time.Since(start).Seconds(), err) }()

	segments, err = p.client.LRange(ctx, p.keys.PoolSegmentsName(p.name), 0, -1).Result()
	if err != nil {
		return nil, domain.NewConnectivityError("pool_load", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrPoolNotFound, p.name)
	}
	return segments, nil
}

// Size returns the number of segments in the pool.
func (p *Pool) Size(ctx context.Context) (int, error) {
	segments, err := p.LoadSegments(ctx)
	if err != nil {
		return 0, err
	}
	return len(segments), nil
}

// NextSegment returns the next segment in rotation. Over k*n calls against a
// pool of n segments every segment is returned exactly k times, no matter
// how many processes share the pool.
func (p *Pool) NextSegment(ctx context.Context) (segment string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage(storeLabel, "pool_next", time.Since(start).Seconds(), err) }()

	keys := []string{p.keys.PoolSegmentsName(p.name), p.keys.PoolCursorName(p.name)}

	segment, err = nextSegmentScript.Run(ctx, p.client, keys).Text()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", domain.ErrPoolNotFound, p.name)
	}
	if err != nil {
		return "", domain.NewConnectivityError("pool_next", err)
	}

	metrics.SegmentSelectionsTotal.WithLabelValues(p.name, segment).Inc()
	return segment, nil
}
