// Package api is the HTTP transport for the ledger backend. It owns
// JSON encode/decode, bearer-token injection and status-to-error
// classification; everything above it works with typed payloads and the
// domain error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jhalvorsen/ledgerview/internal/domain"
	"github.com/jhalvorsen/ledgerview/internal/infra/observability"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("api")

// Client wraps HTTP calls to the ledger API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewClient creates a ledger API client. baseURL has no trailing slash.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		metrics:    metrics,
		logger:     logger,
	}
}

// rawResponse carries status and body out of the breaker so that 4xx
// classification happens without counting as a breaker failure.
type rawResponse struct {
	status int
	body   []byte
}

// do executes one request and decodes the JSON payload into out.
// Classification contract:
//   - network failure, 5xx, open breaker -> *domain.ErrTransient
//   - 401/403                            -> *domain.ErrUnauthorized
//   - other non-2xx                      -> *domain.ErrValidation
//   - 204 or malformed JSON body         -> success, out left zero
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, token string, body, out any) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, query, token, body, out)
	c.metrics.RecordRequestDuration(operation, time.Since(start))

	if err != nil {
		c.metrics.IncrRequest("error")
		c.metrics.IncrTransportError(errorClass(err))
		return err
	}
	c.metrics.IncrRequest("success")
	return nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, token string, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &domain.ErrTransient{Message: "encode request", Err: err}
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return &domain.ErrTransient{Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	result, err := c.cb.Execute(func() (any, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("api: request failed",
				zap.String("method", method),
				zap.String("path", path),
				zap.Error(err),
			)
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			c.logger.Warn("api: server error",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
			)
			return nil, fmt.Errorf("ledger API returned status %d: %s", resp.StatusCode, extractMessage(raw, resp.StatusCode))
		}
		return rawResponse{status: resp.StatusCode, body: raw}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &domain.ErrTransient{Message: "ledger API unavailable", Err: err}
		}
		return &domain.ErrTransient{Err: err}
	}

	resp := result.(rawResponse)
	switch {
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return &domain.ErrUnauthorized{Status: resp.status, Message: extractMessage(resp.body, resp.status)}
	case resp.status >= 400:
		return &domain.ErrValidation{Status: resp.status, Message: extractMessage(resp.body, resp.status)}
	case resp.status == http.StatusNoContent || len(resp.body) == 0 || out == nil:
		return nil
	}

	if err := json.Unmarshal(resp.body, out); err != nil {
		// A misbehaving server is not a failed request: surface an empty
		// payload and let the caller cope.
		c.logger.Warn("api: undecodable response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.status),
			zap.Error(err),
		)
	}

	c.logger.Debug("api: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.status),
	)
	return nil
}

// extractMessage pulls a human-readable message out of an error body:
// JSON message/error field, then raw text, then a generic fallback.
func extractMessage(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		return text
	}
	return fmt.Sprintf("Request failed (%d)", status)
}

func errorClass(err error) string {
	var unauthorized *domain.ErrUnauthorized
	var validation *domain.ErrValidation
	switch {
	case errors.As(err, &unauthorized):
		return "unauthorized"
	case errors.As(err, &validation):
		return "validation"
	default:
		return "transient"
	}
}

// span is a small helper so every endpoint method traces the same way.
func span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	ctx, s := tracer.Start(ctx, name)
	s.SetAttributes(attrs...)
	return ctx, func() { s.End() }
}
