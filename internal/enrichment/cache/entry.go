// Package cache memoizes enrichment payloads per normalized query and
// domain, in a bounded in-memory LRU with an optional Redis tier behind it.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"query-enrichment/internal/models"
)

// ErrMiss is returned by a Store when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Entry is one memoized payload.
type Entry struct {
	Key       string                   `json:"key"`
	Domain    models.Domain            `json:"domain"`
	Payload   models.EnrichmentPayload `json:"payload"`
	CreatedAt time.Time                `json:"createdAt"`
	TTL       time.Duration            `json:"ttl"`
}

func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Remaining is the TTL left at now, never negative.
func (e *Entry) Remaining(now time.Time) time.Duration {
	if d := e.ExpiresAt().Sub(now); d > 0 {
		return d
	}
	return 0
}

// Key derives the cache key for a normalized query in a domain. The domain
// is part of both the readable prefix and the hashed material, so equal
// text in two domains never collides.
func Key(prefix string, domain models.Domain, normalizedText string) string {
	sum := sha256.Sum256([]byte(string(domain) + "\x00" + normalizedText))
	if prefix == "" {
		return fmt.Sprintf("%s:%s", domain, hex.EncodeToString(sum[:]))
	}
	return fmt.Sprintf("%s:%s:%s", prefix, domain, hex.EncodeToString(sum[:]))
}

// clonePayload copies p deeply enough that callers may modify the result
// without touching the cached value.
func clonePayload(p models.EnrichmentPayload) models.EnrichmentPayload {
	out := p
	if p.Items != nil {
		out.Items = make([]models.ResultItem, len(p.Items))
		for i, item := range p.Items {
			out.Items[i] = item.Clone()
		}
	}
	if p.Sources != nil {
		out.Sources = append([]models.SourceAttribution(nil), p.Sources...)
	}
	if p.ProviderErrors != nil {
		out.ProviderErrors = append([]models.ProviderError(nil), p.ProviderErrors...)
	}
	return out
}

func cloneEntry(e *Entry) *Entry {
	out := *e
	out.Payload = clonePayload(e.Payload)
	return &out
}
