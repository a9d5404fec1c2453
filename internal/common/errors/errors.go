// Package errors provides standardized error handling for the enrichment
// engine and its BPMN workflow integration.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeClassificationAmbiguous ErrorCode = "CLASSIFICATION_AMBIGUOUS"

	ErrCodeProviderTimeout     ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeProviderHTTPError   ErrorCode = "PROVIDER_HTTP_ERROR"
	ErrCodeProviderParseError  ErrorCode = "PROVIDER_PARSE_ERROR"
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeLocationUnresolved  ErrorCode = "LOCATION_UNRESOLVED"

	ErrCodeCacheUnavailable   ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeAllProvidersFailed ErrorCode = "ALL_PROVIDERS_FAILED"

	ErrCodeValidationFailed ErrorCode = "VALIDATION_ERROR"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewClassificationAmbiguousError is informational only. The classifier
// resolves ambiguity itself and the code is only logged.
func NewClassificationAmbiguousError(details string) *StandardError {
	return newError(ErrCodeClassificationAmbiguous, "Query classification ambiguous", details, false, nil)
}

func NewProviderTimeoutError(provider string, err error) *StandardError {
	details := fmt.Sprintf("provider: %s", provider)
	if err != nil {
		details = fmt.Sprintf("provider: %s, error: %s", provider, err.Error())
	}
	return newError(ErrCodeProviderTimeout, "Provider call timed out", details, true, err).
		WithMetadata("provider", provider)
}

func NewProviderHTTPError(provider string, status int, url string) *StandardError {
	// 5xx and 429 are worth another attempt, other statuses are not.
	retryable := status >= 500 || status == 429
	return newError(ErrCodeProviderHTTPError,
		fmt.Sprintf("Provider returned HTTP %d", status),
		fmt.Sprintf("provider: %s, url: %s", provider, url),
		retryable, nil).
		WithMetadata("provider", provider).
		WithMetadata("status", status)
}

func NewProviderTransportError(provider string, err error) *StandardError {
	return newError(ErrCodeProviderHTTPError, "Provider request failed",
		fmt.Sprintf("provider: %s, error: %s", provider, err.Error()), true, err).
		WithMetadata("provider", provider)
}

func NewProviderParseError(provider string, err error) *StandardError {
	return newError(ErrCodeProviderParseError, "Provider response could not be parsed",
		fmt.Sprintf("provider: %s, error: %s", provider, err.Error()), false, err).
		WithMetadata("provider", provider)
}

func NewProviderUnavailableError(provider, details string) *StandardError {
	return newError(ErrCodeProviderUnavailable, "Provider has no reachable backend", details, false, nil).
		WithMetadata("provider", provider)
}

func NewLocationUnresolvedError(details string) *StandardError {
	return newError(ErrCodeLocationUnresolved, "Location could not be resolved", details, false, nil)
}

func NewCacheUnavailableError(tier string, err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Cache tier unavailable",
		fmt.Sprintf("tier: %s, error: %s", tier, err.Error()), true, err).
		WithMetadata("tier", tier)
}

func NewAllProvidersFailedError(details string) *StandardError {
	return newError(ErrCodeAllProvidersFailed, "All providers failed", details, false, nil)
}

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", details, false, nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// FromContextError maps a context cancellation or deadline to a provider
// timeout, and anything else to a transport error.
func FromContextError(provider string, err error) *StandardError {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return NewProviderTimeoutError(provider, err)
	}
	return NewProviderTransportError(provider, err)
}

// ==========================
// 4. Inspection Helpers
// ==========================

// AsStandardError unwraps err to a StandardError, if it is one.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// GetErrorCode returns the code of err, or INTERNAL_ERROR.
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Code
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ErrCodeProviderTimeout
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Retryable
	}
	return false
}

// ==========================
// 5. BPMN Mapping
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeProviderTimeout:     "ENRICHMENT_PROVIDER_TIMEOUT",
	ErrCodeProviderHTTPError:   "ENRICHMENT_PROVIDER_HTTP_ERROR",
	ErrCodeProviderParseError:  "ENRICHMENT_PROVIDER_PARSE_ERROR",
	ErrCodeProviderUnavailable: "ENRICHMENT_PROVIDER_UNAVAILABLE",
	ErrCodeLocationUnresolved:  "ENRICHMENT_LOCATION_UNRESOLVED",
	ErrCodeCacheUnavailable:    "ENRICHMENT_CACHE_UNAVAILABLE",
	ErrCodeAllProvidersFailed:  "ENRICHMENT_NO_DATA",
	ErrCodeValidationFailed:    "ENRICHMENT_INVALID_INPUT",
	ErrCodeInternal:            "ENRICHMENT_INTERNAL_ERROR",
}

// GetRetryCount returns the job retry budget for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProviderHTTPError,
		ErrCodeCacheUnavailable:
		return 3

	case ErrCodeProviderTimeout:
		return 2

	case ErrCodeInternal:
		return 1

	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CLASSIFICATION"):
		return "CLASSIFIER"
	case strings.Contains(codeStr, "LOCATION"):
		return "LOCATION"
	case strings.Contains(codeStr, "PROVIDER"):
		return "PROVIDER"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
