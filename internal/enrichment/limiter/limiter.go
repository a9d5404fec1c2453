// Package limiter bounds the number of outbound provider calls in flight
// across all concurrent enrich requests.
package limiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"query-enrichment/internal/common/metrics"
)

const DefaultCapacity = 6

// Token is a held slot. Releasing a token more than once is a no-op.
type Token struct {
	l    *Limiter
	once sync.Once
}

type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight *atomic.Int64
	peak     *atomic.Int64
	acquired *atomic.Int64
}

func New(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		inFlight: atomic.NewInt64(0),
		peak:     atomic.NewInt64(0),
		acquired: atomic.NewInt64(0),
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) (*Token, error) {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	metrics.LimiterWait.Observe(time.Since(start).Seconds())

	n := l.inFlight.Inc()
	l.acquired.Inc()
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	metrics.LimiterInFlight.Inc()
	return &Token{l: l}, nil
}

// Release returns the slot held by t.
func (l *Limiter) Release(t *Token) {
	if t == nil || t.l != l {
		return
	}
	t.once.Do(func() {
		l.inFlight.Dec()
		metrics.LimiterInFlight.Dec()
		l.sem.Release(1)
	})
}

// Do runs fn while holding a slot.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	tok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer l.Release(tok)
	return fn(ctx)
}

func (l *Limiter) Capacity() int { return l.capacity }

// InFlight is the number of currently held slots.
func (l *Limiter) InFlight() int64 { return l.inFlight.Load() }

// Peak is the highest InFlight observed since construction.
func (l *Limiter) Peak() int64 { return l.peak.Load() }

// Acquired counts successful acquisitions since construction.
func (l *Limiter) Acquired() int64 { return l.acquired.Load() }
