// Package httpclient wraps the outbound HTTP calls made by the widget
// engine: JSON encode/decode, correlation ID propagation, and a retry
// policy that backs off only on conditions a retry could actually cure.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/system/constants"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// ContextWithCorrelationID stores a correlation ID for outbound requests.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation ID, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// RetryPolicy controls the retry wrapper. Backoff doubles per attempt.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy matches the consent submission contract: three
// attempts, 1s/2s backoff between them, 10s per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// Client is a shared JSON-over-HTTP client.
type Client struct {
	httpClient *http.Client
	logger     *logrus.Logger
}

// New creates a client with sane connection pooling.
func New(timeout time.Duration, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// PostJSON issues a single POST and decodes a 2xx response into out.
// Non-2xx responses are returned as *StatusError with the status code.
func (c *Client) PostJSON(ctx context.Context, url string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// GetJSON issues a single GET and decodes a 2xx response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) (int, error) {
	req.Header.Set(constants.ContentTypeHeaderName, constants.ContentTypeJSON)
	req.Header.Set("Accept", constants.ContentTypeJSON)
	if correlationID := CorrelationIDFromContext(req.Context()); correlationID != "" {
		req.Header.Set(constants.CorrelationIDHeaderName, correlationID)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url":      req.URL.String(),
			"duration": duration,
		}).Debug("HTTP call failed")
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"url":        req.URL.String(),
		"statusCode": resp.StatusCode,
		"duration":   duration,
	}).Debug("HTTP response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// PostJSONRetry posts with the retry policy. Retries happen only on
// network failures and on 500/502/503/504 responses; any other failure
// (a 4xx in particular) is terminal immediately.
func (c *Client) PostJSONRetry(ctx context.Context, url string, in, out interface{}, policy RetryPolicy) (int, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	backoff := policy.InitialBackoff
	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		status, err := c.PostJSON(attemptCtx, url, in, out)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return status, nil
		}

		lastStatus, lastErr = status, err
		if !IsRetryable(err) || attempt == policy.MaxAttempts {
			break
		}

		c.logger.WithError(err).WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
			"backoff": backoff,
		}).Warn("Retryable failure, backing off")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return lastStatus, ctx.Err()
		}
		backoff *= 2
	}

	return lastStatus, lastErr
}

// IsRetryable classifies a failure. Network-level errors (including
// per-attempt timeouts) and upstream 5xx overload responses qualify;
// everything else would fail identically on a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if statusErr, ok := err.(*StatusError); ok {
		switch statusErr.StatusCode {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Transport-level failure: connection refused, reset, timeout.
	return true
}
