package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Renal37/fulfillment-connector/internal/logger"
)

// maxResponseSize caps provider response bodies (10MB).
const maxResponseSize = 10 * 1024 * 1024

// RetryPolicy is the connector-wide retry configuration for external calls.
type RetryPolicy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	PerCallTimeout time.Duration
}

// backOff builds the exponential policy for one logical call.
func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.InitialDelay
	policy.MaxInterval = p.MaxDelay
	policy.Multiplier = p.Multiplier
	policy.MaxElapsedTime = 0

	if policy.Multiplier <= 0 {
		policy.Multiplier = 2
	}

	return policy
}

// serverDirectedBackOff substitutes a provider-supplied Retry-After for the
// next exponential interval, so the two delays do not stack.
type serverDirectedBackOff struct {
	delegate backoff.BackOff
	override *time.Duration
}

func (b *serverDirectedBackOff) NextBackOff() time.Duration {
	if delay := *b.override; delay > 0 {
		*b.override = 0
		return delay
	}
	return b.delegate.NextBackOff()
}

func (b *serverDirectedBackOff) Reset() {
	b.delegate.Reset()
}

// apiClient is the shared core of both provider clients: a token-bucket
// limiter in front of every request and exponential-backoff retries for
// retryable error classes only.
type apiClient struct {
	provider   string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
}

func newAPIClient(provider, baseURL string, rps float64, retry RetryPolicy) apiClient {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return apiClient{
		provider:   provider,
		baseURL:    baseURL,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		retry:      retry,
	}
}

// call performs one logical API call: limiter, per-attempt timeout,
// classification, retries. Non-retryable classes fail immediately without
// consuming the attempt budget.
func (c *apiClient) call(ctx context.Context, method, path string, query url.Values, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
	}

	var retryAfter time.Duration

	operation := func() error {
		// The limiter blocks instead of failing the call.
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(classifyTransport(c.provider, err))
		}

		apiErr := c.attempt(ctx, method, path, query, body, out)
		if apiErr == nil {
			return nil
		}

		if !apiErr.Retryable() {
			return backoff.Permanent(apiErr)
		}

		if apiErr.Class == ErrorClassRateLimit && apiErr.RetryAfter > 0 {
			// The provider-supplied delay replaces the next exponential
			// interval instead of sleeping here, so the call does not wait
			// both delays out.
			logger.Log.Info("provider asked to slow down",
				zap.String("provider", c.provider),
				zap.Duration("retryAfter", apiErr.RetryAfter),
			)
			retryAfter = apiErr.RetryAfter
		}

		return apiErr
	}

	policy := &serverDirectedBackOff{delegate: c.retry.backOff(), override: &retryAfter}

	maxRetries := uint64(0)
	if c.retry.MaxAttempts > 1 {
		maxRetries = uint64(c.retry.MaxAttempts - 1)
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
}

// attempt issues a single HTTP request and classifies the outcome.
func (c *apiClient) attempt(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) *APIError {
	timeout := c.retry.PerCallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &APIError{Provider: c.provider, Class: ErrorClassUnknown, Message: err.Error()}
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(c.provider, err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return classifyTransport(c.provider, err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		return classifyResponse(c.provider, res, resBody)
	}

	if out != nil && len(resBody) > 0 {
		if err := json.Unmarshal(resBody, out); err != nil {
			return &APIError{
				Provider: c.provider,
				Class:    ErrorClassUnknown,
				Message:  fmt.Sprintf("failed to unmarshal response: %s", err),
			}
		}
	}

	return nil
}
