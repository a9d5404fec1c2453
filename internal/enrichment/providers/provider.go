// Package providers defines the contract shared by every provider adapter
// and the attempt bookkeeping they use to reach a terminal state.
package providers

import (
	"context"
	"time"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/models"
)

// Provider names used in routing tables, metrics and attribution.
const (
	NameLocationTime   = "location-time"
	NameCrawledContent = "crawled-content"
	NameGenericSearch  = "generic-search"
)

// Params is everything a provider may need beyond the query itself.
type Params struct {
	Verdict models.Verdict
	Context models.EnrichContext
	// Now pins "today" for time-based providers. Zero means time.Now().
	Now time.Time
}

// Clock returns p.Now or the wall clock.
func (p Params) Clock() time.Time {
	if p.Now.IsZero() {
		return time.Now()
	}
	return p.Now
}

// Result is the outcome of one provider fetch. A failed fetch carries an
// ErrorKind and never panics or returns a Go error to the caller.
type Result struct {
	Provider  string
	Items     []models.ResultItem
	Success   bool
	ErrorKind apperrors.ErrorCode
	Err       error
	Attempts  int
	State     State
	Duration  time.Duration
}

// Provider is implemented by the location-time, crawled-content and
// generic-search adapters.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q models.Query, p Params) Result
}

// Succeeded builds a successful result. Items get their IDs assigned.
func Succeeded(name string, items []models.ResultItem, attempts int) Result {
	for i := range items {
		if items[i].ID == "" {
			items[i].AssignID()
		}
	}
	return Result{
		Provider: name,
		Items:    items,
		Success:  true,
		Attempts: attempts,
		State:    StateSuccess,
	}
}

// Failed reduces err to a typed failure result.
func Failed(name string, err error, attempts int) Result {
	if err == nil {
		err = apperrors.NewInternalError(errNilFailure)
	}
	return Result{
		Provider:  name,
		Success:   false,
		ErrorKind: apperrors.GetErrorCode(err),
		Err:       err,
		Attempts:  attempts,
		State:     StatePermanentFailure,
	}
}

// ProviderError converts a failed result into its payload summary.
func (r Result) ProviderError() models.ProviderError {
	msg := ""
	if r.Err != nil {
		msg = r.Err.Error()
		if stdErr, ok := apperrors.AsStandardError(r.Err); ok {
			msg = stdErr.Message
			if stdErr.Details != "" {
				msg += ": " + stdErr.Details
			}
		}
	}
	return models.ProviderError{
		Provider:  r.Provider,
		ErrorKind: string(r.ErrorKind),
		Message:   msg,
	}
}
