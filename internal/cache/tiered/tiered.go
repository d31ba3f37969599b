// Package tiered stacks several cache clients, fastest first. Lookups walk
// the tiers in order and back-fill faster tiers on a hit; stores go to every
// tier.
package tiered

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/vk/texturesets/internal/hasher"
)

// Tier is one named layer.
type Tier struct {
	Name   string
	Client cache.Client
}

// Cache is a cache.Client over an ordered list of tiers.
type Cache struct {
	tiers []Tier
}

// New builds a tiered cache. At least one tier is required.
func New(tiers ...Tier) (*Cache, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tiered: at least one tier is required")
	}
	for i, t := range tiers {
		if t.Client == nil {
			return nil, fmt.Errorf("tiered: tier %d (%s) has no client", i, t.Name)
		}
	}
	return &Cache{tiers: tiers}, nil
}

// Names returns the tier names in lookup order.
func (c *Cache) Names() []string {
	names := make([]string, len(c.tiers))
	for i, t := range c.tiers {
		names[i] = t.Name
	}
	return names
}

// TryGet returns the first hit. Tier failures are logged and skipped; the
// lookup only fails as unavailable when every tier failed.
func (c *Cache) TryGet(ctx context.Context, key hasher.Key) (*cache.Artifact, error) {
	logger := ctxlog.FromContext(ctx)
	var failures []error
	for i, t := range c.tiers {
		a, err := t.Client.TryGet(ctx, key)
		switch {
		case err == nil:
			c.backfill(ctx, i, key, a)
			return a, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case cache.IsMiss(err):
			continue
		default:
			logger.Warn("Cache tier lookup failed, trying next tier.", "tier", t.Name, "key", key.Short(), "error", err)
			failures = append(failures, err)
		}
	}
	if len(failures) == len(c.tiers) {
		return nil, cache.Unavailable("tiered", "get", key, errors.Join(failures...))
	}
	return nil, cache.ErrMiss
}

// backfill copies a hit into the tiers in front of the one that served it.
func (c *Cache) backfill(ctx context.Context, hitTier int, key hasher.Key, a *cache.Artifact) {
	logger := ctxlog.FromContext(ctx)
	for i := 0; i < hitTier; i++ {
		if err := c.tiers[i].Client.Put(ctx, key, a); err != nil {
			logger.Debug("Cache back-fill failed.", "tier", c.tiers[i].Name, "key", key.Short(), "error", err)
		}
	}
}

// Put writes every tier and reports the joined failures.
func (c *Cache) Put(ctx context.Context, key hasher.Key, artifact *cache.Artifact) error {
	var errs []error
	for _, t := range c.tiers {
		if err := t.Client.Put(ctx, key, artifact); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	if len(errs) > 0 {
		return cache.Unavailable("tiered", "put", key, errors.Join(errs...))
	}
	return nil
}
