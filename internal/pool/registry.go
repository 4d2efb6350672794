package pool

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Registry hands out pool handles that share one client and key layout.
type Registry struct {
	client redis.UniversalClient
	keys   Keys
}

// NewRegistry creates a registry over client.
func NewRegistry(client redis.UniversalClient, keys Keys) *Registry {
	return &Registry{client: client, keys: keys}
}

// Pool returns the handle for name.
func (r *Registry) Pool(name string) *Pool {
	return New(name, r.client, r.keys)
}

// Save stores cfg and returns its handle.
func (r *Registry) Save(ctx context.Context, cfg Config) (*Pool, error) {
	if err := cfg.Save(ctx, r.client, r.keys); err != nil {
		return nil, err
	}
	return r.Pool(cfg.Name), nil
}

// SaveAll stores every pool in cfgs, stopping at the first failure.
func (r *Registry) SaveAll(ctx context.Context, cfgs []Config) error {
	for _, cfg := range cfgs {
		if _, err := r.Save(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}
