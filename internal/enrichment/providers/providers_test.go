package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "query-enrichment/internal/common/errors"
	httpclient "query-enrichment/internal/common/http"
	"query-enrichment/internal/models"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

// ==========================
// Attempt state machine
// ==========================

func TestAttempt_SuccessPath(t *testing.T) {
	a := NewAttempt()
	assert.Equal(t, StatePending, a.State())

	require.NoError(t, a.Start())
	require.NoError(t, a.Succeed())

	assert.Equal(t, StateSuccess, a.State())
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, []State{StatePending, StateInFlight, StateSuccess}, a.History())
}

func TestAttempt_RetryThenPermanent(t *testing.T) {
	a := NewAttempt()
	require.NoError(t, a.Start())
	require.NoError(t, a.Fail(true))
	require.NoError(t, a.Start())
	require.NoError(t, a.Fail(false))

	assert.Equal(t, StatePermanentFailure, a.State())
	assert.Equal(t, 2, a.Count())
	assert.True(t, a.State().Terminal())
}

func TestAttempt_InvalidTransitions(t *testing.T) {
	a := NewAttempt()
	assert.ErrorIs(t, a.Succeed(), ErrInvalidTransition)

	require.NoError(t, a.Start())
	require.NoError(t, a.Succeed())
	assert.ErrorIs(t, a.Start(), ErrInvalidTransition)
	assert.ErrorIs(t, a.Fail(true), ErrInvalidTransition)
}

func TestAttempt_ExhaustClosesPending(t *testing.T) {
	a := NewAttempt()
	a.Exhaust()
	assert.Equal(t, StatePermanentFailure, a.State())

	done := NewAttempt()
	require.NoError(t, done.Start())
	require.NoError(t, done.Succeed())
	done.Exhaust()
	assert.Equal(t, StateSuccess, done.State())
}

// ==========================
// RunAttempts
// ==========================

func TestRunAttempts_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	attempt, err := RunAttempts(context.Background(), fastPolicy(), nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.NewProviderHTTPError("p", 503, "http://x")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateSuccess, attempt.State())
	assert.Equal(t, 3, attempt.Count())
}

func TestRunAttempts_StopsOnPermanentError(t *testing.T) {
	calls := 0
	attempt, err := RunAttempts(context.Background(), fastPolicy(), nil, func(ctx context.Context) error {
		calls++
		return apperrors.NewProviderHTTPError("p", 404, "http://x")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, apperrors.ErrCodeProviderHTTPError, apperrors.GetErrorCode(err))
	assert.Equal(t, StatePermanentFailure, attempt.State())
}

func TestRunAttempts_StopsOnUnrecoverable(t *testing.T) {
	calls := 0
	_, err := RunAttempts(context.Background(), fastPolicy(), nil, func(ctx context.Context) error {
		calls++
		return retry.Unrecoverable(apperrors.NewProviderTimeoutError("p", nil))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunAttempts_ExhaustsBudget(t *testing.T) {
	calls := 0
	attempt, err := RunAttempts(context.Background(), fastPolicy(), nil, func(ctx context.Context) error {
		calls++
		return apperrors.NewProviderTimeoutError("p", context.DeadlineExceeded)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, StatePermanentFailure, attempt.State())
	assert.Equal(t, apperrors.ErrCodeProviderTimeout, apperrors.GetErrorCode(err))
}

func TestRunAttempts_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	attempt, err := RunAttempts(ctx, fastPolicy(), nil, func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, StatePermanentFailure, attempt.State())
}

// ==========================
// Results
// ==========================

func TestSucceeded_AssignsIDs(t *testing.T) {
	res := Succeeded("p", []models.ResultItem{{Title: "a", SourceURL: "https://x.test/a"}}, 1)

	assert.True(t, res.Success)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, models.ItemID("https://x.test/a", "a"), res.Items[0].ID)
}

func TestFailed_CarriesErrorKind(t *testing.T) {
	res := Failed("p", apperrors.NewProviderParseError("p", errors.New("bad json")), 2)

	assert.False(t, res.Success)
	assert.Equal(t, apperrors.ErrCodeProviderParseError, res.ErrorKind)
	assert.Equal(t, 2, res.Attempts)

	pe := res.ProviderError()
	assert.Equal(t, "p", pe.Provider)
	assert.Equal(t, "PROVIDER_PARSE_ERROR", pe.ErrorKind)
	assert.Contains(t, pe.Message, "bad json")

	assert.Equal(t, apperrors.ErrCodeInternal, Failed("p", nil, 0).ErrorKind)
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }
func (panicky) Fetch(context.Context, models.Query, Params) Result {
	panic("boom")
}

func TestGuard_RecoversPanic(t *testing.T) {
	res := Guard(context.Background(), panicky{}, models.NewQuery("x", "", ""), Params{})

	assert.False(t, res.Success)
	assert.Equal(t, "panicky", res.Provider)
	assert.Equal(t, apperrors.ErrCodeInternal, res.ErrorKind)
}

func TestParams_Clock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Params{Now: fixed}.Clock())
	assert.WithinDuration(t, time.Now(), Params{}.Clock(), time.Second)
}

// ==========================
// Get
// ==========================

func TestGet_MapsStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("fine"))
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := httpclient.NewClient(time.Second)

	resp, err := Get(context.Background(), client, "p", server.URL+"/ok", httpclient.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fine", string(resp.Body))

	_, err = Get(context.Background(), client, "p", server.URL+"/down", httpclient.FetchOptions{})
	assert.True(t, apperrors.IsRetryable(err))

	_, err = Get(context.Background(), client, "p", server.URL+"/missing", httpclient.FetchOptions{})
	assert.Equal(t, apperrors.ErrCodeProviderHTTPError, apperrors.GetErrorCode(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestGet_TimeoutMapsToProviderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Get(ctx, httpclient.NewClient(5*time.Second), "p", server.URL, httpclient.FetchOptions{})
	assert.Equal(t, apperrors.ErrCodeProviderTimeout, apperrors.GetErrorCode(err))
}
