package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/models"
)

// RetryPolicy bounds how often and how fast a failing call is retried.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Delay:    200 * time.Millisecond,
		MaxDelay: 2 * time.Second,
	}
}

// RunAttempts calls fn until it succeeds, fails permanently, or the
// policy's budget is spent. Errors that are not retryable per
// apperrors.IsRetryable (or wrapped with retry.Unrecoverable) end the
// loop at once.
func RunAttempts(ctx context.Context, policy RetryPolicy, log logger.Logger, fn func(ctx context.Context) error) (*Attempt, error) {
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	attempt := NewAttempt()
	err := retry.Do(
		func() error {
			if err := attempt.Start(); err != nil {
				return retry.Unrecoverable(err)
			}
			err := fn(ctx)
			if err == nil {
				return attempt.Succeed()
			}
			retryable := retry.IsRecoverable(err) && apperrors.IsRetryable(err) &&
				uint(attempt.Count()) < policy.Attempts && ctx.Err() == nil
			_ = attempt.Fail(retryable)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(policy.Attempts),
		retry.Delay(policy.Delay),
		retry.MaxDelay(policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && apperrors.IsRetryable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Debug("Retrying call", map[string]interface{}{
				"attempt": n + 1,
				"error":   err.Error(),
			})
		}),
	)
	if err != nil {
		attempt.Exhaust()
	}
	return attempt, err
}

// Guard runs p.Fetch, converting a panic into an INTERNAL_ERROR result.
func Guard(ctx context.Context, p Provider, q models.Query, params Params) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Failed(p.Name(), apperrors.NewInternalError(fmt.Errorf("provider panic: %v", r)), 1)
		}
		res.Duration = time.Since(start)
		if res.Provider == "" {
			res.Provider = p.Name()
		}
	}()
	return p.Fetch(ctx, q, params)
}
