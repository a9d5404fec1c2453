package limiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	httpclient "query-enrichment/internal/common/http"
)

func TestLimiter_BoundsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := New(2)
	var current, maxSeen atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(ctx context.Context) error {
				n := current.Inc()
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(30 * time.Millisecond)
				current.Dec()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int64(2))
	assert.LessOrEqual(t, l.Peak(), int64(2))
	assert.Equal(t, int64(5), l.Acquired())
	assert.Equal(t, int64(0), l.InFlight())
}

func TestLimiter_AcquireRespectsContext(t *testing.T) {
	l := New(1)
	tok, err := l.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	l.Release(tok)
	tok2, err := l.Acquire(context.Background())
	require.NoError(t, err)
	l.Release(tok2)
}

func TestLimiter_DoubleReleaseIsNoop(t *testing.T) {
	l := New(1)
	tok, err := l.Acquire(context.Background())
	require.NoError(t, err)

	l.Release(tok)
	l.Release(tok)
	l.Release(nil)

	assert.Equal(t, int64(0), l.InFlight())

	// A second release must not have freed an extra slot.
	first, err := l.Acquire(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.Error(t, err)
	l.Release(first)
}

func TestLimiter_ForeignTokenIgnored(t *testing.T) {
	a, b := New(1), New(1)
	tok, err := a.Acquire(context.Background())
	require.NoError(t, err)

	b.Release(tok)
	assert.Equal(t, int64(1), a.InFlight())
	a.Release(tok)
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, 3, New(3).Capacity())
}

func TestLimitedFetcher_BoundsServerConcurrency(t *testing.T) {
	var current, maxSeen atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Inc()
		defer current.Dec()
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(40 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := WrapFetcher(httpclient.NewClient(5*time.Second), New(2))
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.Fetch(context.Background(), server.URL, httpclient.FetchOptions{})
			if assert.NoError(t, err) {
				assert.True(t, resp.OK())
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int64(2))
	assert.GreaterOrEqual(t, maxSeen.Load(), int64(1))
}
