package cache

import (
	"context"
	"errors"
	"time"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/common/metrics"
	"query-enrichment/internal/models"
)

// Store is one cache tier.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Prefix string
	Policy Policy
	// TierTimeout bounds each remote tier call so a slow tier reads as a
	// miss instead of holding the request.
	TierTimeout time.Duration
}

// Cache reads tiers in order and promotes a lower-tier hit into the tiers
// above it. A failing tier degrades to a miss and never fails the caller.
type Cache struct {
	cfg   Config
	tiers []Store
	now   func() time.Time
	log   logger.Logger
}

func New(cfg Config, log logger.Logger, tiers ...Store) *Cache {
	if cfg.Policy.BaseTTL == nil {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.TierTimeout <= 0 {
		cfg.TierTimeout = 250 * time.Millisecond
	}
	live := make([]Store, 0, len(tiers))
	for _, t := range tiers {
		if t != nil {
			live = append(live, t)
		}
	}
	return &Cache{
		cfg:   cfg,
		tiers: live,
		now:   time.Now,
		log:   logger.Component(log, "cache"),
	}
}

// WithClock replaces the wall clock, for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Key is the cache key for q in domain.
func (c *Cache) Key(domain models.Domain, normalizedText string) string {
	return Key(c.cfg.Prefix, domain, normalizedText)
}

// Get returns the cached entry for key, or (nil, false).
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool) {
	for i, tier := range c.tiers {
		e, err := c.tierGet(ctx, tier, key)
		if err != nil {
			if !errors.Is(err, ErrMiss) {
				metrics.CacheOperations.WithLabelValues(tier.Name(), "get", "error").Inc()
				c.log.Warn("Cache tier read failed, treating as miss", map[string]interface{}{
					"tier":      tier.Name(),
					"errorCode": string(apperrors.GetErrorCode(err)),
					"error":     err.Error(),
				})
				continue
			}
			metrics.CacheOperations.WithLabelValues(tier.Name(), "get", "miss").Inc()
			continue
		}

		metrics.CacheOperations.WithLabelValues(tier.Name(), "get", "hit").Inc()
		if i > 0 {
			c.promote(ctx, e, c.tiers[:i])
		}
		return e, true
	}
	return nil, false
}

// Put stores payload under key with the given ttl in every tier. A
// non-positive ttl stores nothing.
func (c *Cache) Put(ctx context.Context, key string, payload models.EnrichmentPayload, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	e := &Entry{
		Key:       key,
		Domain:    payload.Domain,
		Payload:   payload,
		CreatedAt: c.now(),
		TTL:       ttl,
	}
	for _, tier := range c.tiers {
		c.tierPut(ctx, tier, e)
	}
}

// TTLFor applies the policy to payload at the cache's current time.
func (c *Cache) TTLFor(payload *models.EnrichmentPayload) time.Duration {
	return c.cfg.Policy.TTL(payload, c.now())
}

// Invalidate drops key from every tier.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	for _, tier := range c.tiers {
		if err := c.withTimeout(ctx, tier, func(ctx context.Context) error {
			return tier.Delete(ctx, key)
		}); err != nil {
			c.log.Warn("Cache tier delete failed", map[string]interface{}{
				"tier":  tier.Name(),
				"error": err.Error(),
			})
		}
	}
}

// Tiers names the configured tiers in lookup order.
func (c *Cache) Tiers() []string {
	out := make([]string, len(c.tiers))
	for i, t := range c.tiers {
		out[i] = t.Name()
	}
	return out
}

func (c *Cache) promote(ctx context.Context, e *Entry, upper []Store) {
	remaining := e.Remaining(c.now())
	if remaining <= 0 {
		return
	}
	promoted := *e
	promoted.CreatedAt = c.now()
	promoted.TTL = remaining
	for _, tier := range upper {
		c.tierPut(ctx, tier, &promoted)
	}
}

func (c *Cache) tierGet(ctx context.Context, tier Store, key string) (*Entry, error) {
	var e *Entry
	err := c.withTimeout(ctx, tier, func(ctx context.Context) error {
		var err error
		e, err = tier.Get(ctx, key)
		return err
	})
	return e, err
}

func (c *Cache) tierPut(ctx context.Context, tier Store, e *Entry) {
	err := c.withTimeout(ctx, tier, func(ctx context.Context) error {
		return tier.Put(ctx, e)
	})
	if err != nil {
		metrics.CacheOperations.WithLabelValues(tier.Name(), "put", "error").Inc()
		c.log.Warn("Cache tier write failed", map[string]interface{}{
			"tier":      tier.Name(),
			"errorCode": string(apperrors.GetErrorCode(err)),
			"error":     err.Error(),
		})
		return
	}
	metrics.CacheOperations.WithLabelValues(tier.Name(), "put", "ok").Inc()
}

// withTimeout bounds remote tiers only; the memory tier never blocks.
func (c *Cache) withTimeout(ctx context.Context, tier Store, fn func(ctx context.Context) error) error {
	if _, local := tier.(*MemoryStore); local {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TierTimeout)
	defer cancel()
	return fn(ctx)
}
