// Package engineclient provides a typed, version-tolerant HTTP client for the
// remote Workflow Engine's API. Operations issue against the current
// versioned path first and retry exactly once against the legacy path when
// the response suggests an older engine (404/405); all other failures
// propagate immediately as classified remote-call errors.
package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/config"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/metric"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/pkg/retry"
)

// API path prefixes. The current generation lives under /api/v1; older
// engines only answer under /rest.
const (
	currentPrefix = "/api/v1"
	legacyPrefix  = "/rest"
)

const apiKeyHeader = "X-N8N-API-KEY"

// Client is the Workflow Engine API client. The active endpoint (base URL +
// API key) lives behind a guard and can be rotated at runtime without
// reconstructing the client.
type Client struct {
	guard   *config.Guard
	http    *http.Client
	limiter *rate.Limiter
	metrics *metric.Metrics
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithMetrics attaches call metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the underlying HTTP client (tests)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit bounds outbound calls per second; 0 disables the limiter
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
		}
	}
}

// New creates a Workflow Engine client against the guarded endpoint.
func New(guard *config.Guard, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		guard:   guard,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "engineclient"),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the active engine endpoint.
func (c *Client) Endpoint() config.Endpoint {
	return c.guard.Current()
}

// remoteMessage is the engine's structured error body
type remoteMessage struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// call issues one HTTP request against the active endpoint and classifies
// failures. pathGen is a metrics label (current vs legacy); path is the full
// request path including its prefix.
func (c *Client) call(ctx context.Context, op, method, pathGen, path string, body, out any) error {
	ep := c.guard.Current()
	if ep.APIKey == "" {
		return errors.WrapFatal(errors.ErrEngineNotConfigured, "Client", op, "check endpoint")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &errors.RemoteCallError{Kind: errors.KindRemoteUnavailable, Operation: op, Path: path, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.WrapInvalid(err, "Client", op, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, ep.BaseURL+path, reader)
	if err != nil {
		return errors.WrapInvalid(err, "Client", op, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, ep.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if c.metrics != nil {
		c.metrics.ObserveEngineCall(op, pathGen, err, time.Since(start))
	}
	if err != nil {
		return &errors.RemoteCallError{Kind: errors.KindRemoteUnavailable, Operation: op, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &errors.RemoteCallError{Kind: errors.KindRemoteUnavailable, Operation: op, Path: path, Err: err}
	}

	if resp.StatusCode >= 400 {
		var msg remoteMessage
		_ = json.Unmarshal(raw, &msg)
		message := msg.Message
		if message == "" {
			message = msg.Error
		}
		if message == "" && len(raw) > 0 {
			message = truncate(string(raw), 300)
		}

		kind := errors.KindRemoteRejected
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
			kind = errors.KindVersionMismatch
		}
		return &errors.RemoteCallError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Operation:  op,
			Path:       path,
			Message:    message,
		}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.WrapInvalid(err, "Client", op, "decode response body")
		}
	}
	return nil
}

// callWithFallback issues the request against the current path and, only on a
// version mismatch (404/405), exactly once against the legacy path.
func (c *Client) callWithFallback(ctx context.Context, op, method, suffix string, body, out any) error {
	err := c.call(ctx, op, method, metric.PathCurrent, currentPrefix+suffix, body, out)
	if err == nil || !errors.IsVersionMismatch(err) {
		return err
	}

	c.logger.Warn("current API path failed, retrying legacy path",
		"operation", op, "status", errors.RemoteStatus(err))
	if c.metrics != nil {
		c.metrics.EngineFallbacks.WithLabelValues(op).Inc()
	}
	return c.call(ctx, op, method, metric.PathLegacy, legacyPrefix+suffix, body, out)
}

// Ping verifies the engine answers on either path generation, retrying
// briefly; used at startup and when validating an endpoint rotation.
func (c *Client) Ping(ctx context.Context) error {
	cfg := retry.Config{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2, AddJitter: true}
	return retry.Do(ctx, cfg, func() error {
		var out json.RawMessage
		err := c.callWithFallback(ctx, "ping", http.MethodGet, "/workflows", nil, &out)
		if err != nil && !errors.IsRemoteUnavailable(err) {
			// Rejections mean the engine is there; don't keep retrying
			return retry.NonRetryable(err)
		}
		return err
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
