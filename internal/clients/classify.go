package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Renal37/fulfillment-connector/internal/models"
)

// ErrorClass is assigned once, at the client boundary. Pipeline steps carry the
// classified error unchanged and never re-interpret raw provider responses.
type ErrorClass string

const (
	ErrorClassValidation ErrorClass = "validation"
	ErrorClassAuth       ErrorClass = "auth"
	ErrorClassRateLimit  ErrorClass = "rate_limit"
	ErrorClassServer     ErrorClass = "server"
	ErrorClassNetwork    ErrorClass = "network"
	ErrorClassUnknown    ErrorClass = "unknown"
)

var errorCodes = map[ErrorClass]string{
	ErrorClassValidation: "validation_error",
	ErrorClassAuth:       "auth_error",
	ErrorClassRateLimit:  "rate_limited",
	ErrorClassServer:     "server_error",
	ErrorClassNetwork:    "network_error",
	ErrorClassUnknown:    "unknown_error",
}

// APIError is a provider error after classification.
type APIError struct {
	Provider   string
	Class      ErrorClass
	Message    string
	StatusCode int
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Class)
}

func (e *APIError) Retryable() bool {
	return e.Class == ErrorClassRateLimit || e.Class == ErrorClassServer || e.Class == ErrorClassNetwork
}

func (e *APIError) Code() string {
	return errorCodes[e.Class]
}

// EventError converts the classified error into the lifecycle-event shape.
func (e *APIError) EventError() models.EventError {
	return models.EventError{
		Code:      e.Code(),
		Message:   e.Message,
		Retryable: e.Retryable(),
	}
}

// AsAPIError unwraps a classified error from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

const defaultRetryAfterDuration = 60 * time.Second

// classifyResponse maps an HTTP status to an error class.
// Unrecognized statuses are treated as non-retryable so a new provider failure
// mode surfaces instead of being retried blindly.
func classifyResponse(provider string, res *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   provider,
		StatusCode: res.StatusCode,
		Message:    fmt.Sprintf("unexpected status %d: %s", res.StatusCode, truncate(body, 256)),
	}

	switch {
	case res.StatusCode == http.StatusBadRequest ||
		res.StatusCode == http.StatusNotFound ||
		res.StatusCode == http.StatusUnprocessableEntity:
		apiErr.Class = ErrorClassValidation
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		apiErr.Class = ErrorClassAuth
	case res.StatusCode == http.StatusTooManyRequests:
		apiErr.Class = ErrorClassRateLimit
		apiErr.RetryAfter = parseRetryAfter(res.Header.Get("Retry-After"))
	case res.StatusCode >= http.StatusInternalServerError:
		apiErr.Class = ErrorClassServer
	default:
		apiErr.Class = ErrorClassUnknown
	}

	return apiErr
}

// classifyTransport maps a transport-level failure. Timeouts are retryable
// network errors, never silently ignored.
func classifyTransport(provider string, err error) *APIError {
	apiErr := &APIError{
		Provider: provider,
		Class:    ErrorClassNetwork,
		Message:  err.Error(),
	}

	var netErr net.Error
	if !errors.As(err, &netErr) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, context.Canceled) {
		// Not a recognizable transport problem (bad URL, marshaling bug).
		apiErr.Class = ErrorClassUnknown
	}

	return apiErr
}

func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return defaultRetryAfterDuration
	}
	return time.Duration(seconds) * time.Second
}

func truncate(body []byte, limit int) string {
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
