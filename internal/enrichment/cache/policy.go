package cache

import (
	"time"

	"query-enrichment/internal/models"
)

// Policy decides how long a payload may be served from cache.
type Policy struct {
	BaseTTL     map[models.Domain]time.Duration
	DefaultTTL  time.Duration
	NegativeTTL time.Duration
	// MinTTL floors adaptive shortening and caps payloads tagged breaking.
	MinTTL time.Duration
	// Items published within FreshWindow count as very fresh. When their
	// share reaches FreshRatio the TTL is cut by FreshDivisor.
	FreshWindow  time.Duration
	FreshRatio   float64
	FreshDivisor int
}

func DefaultPolicy() Policy {
	return Policy{
		BaseTTL: map[models.Domain]time.Duration{
			models.DomainLocationTime:  6 * time.Hour,
			models.DomainCrawledNews:   30 * time.Minute,
			models.DomainGenericSearch: time.Hour,
		},
		DefaultTTL:   time.Hour,
		NegativeTTL:  5 * time.Minute,
		MinTTL:       2 * time.Minute,
		FreshWindow:  time.Hour,
		FreshRatio:   0.5,
		FreshDivisor: 4,
	}
}

// TTL returns the lifetime for p. Payloads with no genuine data, including
// those made only of synthetic placeholders, use NegativeTTL. Otherwise the
// domain base is only ever shortened, never lengthened.
func (p Policy) TTL(payload *models.EnrichmentPayload, now time.Time) time.Duration {
	if payload == nil || payload.Domain == models.DomainNone || !hasGenuine(payload.Items) {
		return p.NegativeTTL
	}

	base, ok := p.BaseTTL[payload.Domain]
	if !ok {
		base = p.DefaultTTL
	}
	ttl := base

	if p.freshShare(payload.Items, now) >= p.FreshRatio && p.FreshRatio > 0 {
		divisor := p.FreshDivisor
		if divisor < 1 {
			divisor = 1
		}
		ttl = base / time.Duration(divisor)
		if ttl < p.MinTTL {
			ttl = p.MinTTL
		}
	}

	for _, item := range payload.Items {
		if item.HasTag(models.TagBreaking) && ttl > p.MinTTL {
			ttl = p.MinTTL
			break
		}
	}

	if ttl > base {
		ttl = base
	}
	return ttl
}

func hasGenuine(items []models.ResultItem) bool {
	for _, item := range items {
		if !item.Synthetic {
			return true
		}
	}
	return false
}

func (p Policy) freshShare(items []models.ResultItem, now time.Time) float64 {
	if len(items) == 0 || p.FreshWindow <= 0 {
		return 0
	}
	fresh := 0
	for _, item := range items {
		if item.PublishedAt == nil {
			continue
		}
		if age := now.Sub(*item.PublishedAt); age >= 0 && age <= p.FreshWindow {
			fresh++
		}
	}
	return float64(fresh) / float64(len(items))
}
