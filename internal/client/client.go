// Package client talks to the resumatch backend API.
package client

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

	"resumatch/internal/config"
	resumatchErrors "resumatch/internal/errors"
	"resumatch/internal/observability"
	"resumatch/internal/session"
	"resumatch/internal/stream"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// Client is a backend API client. It is safe for concurrent use.
type Client struct {
	cfg        config.APIConfig
	simulation config.SimulationConfig
	baseURL    *url.URL

	httpClient   *http.Client // bounded by cfg.Timeout
	streamClient *http.Client // no client timeout, streams are bounded by ctx

	session       session.Accessor
	limiter       *rate.Limiter
	breaker       *requestBreaker
	channel       *stream.Channel
	observability *observability.ObservabilityManager
	logger        *resumatchErrors.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithTransport replaces the base HTTP transport. It is still wrapped with
// otelhttp.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		wrapped := otelhttp.NewTransport(rt)
		c.httpClient.Transport = wrapped
		c.streamClient.Transport = wrapped
	}
}

// WithObservability records submission metrics through om
func WithObservability(om *observability.ObservabilityManager) Option {
	return func(c *Client) {
		c.observability = om
	}
}

// WithStreamConfig applies the stream buffer size and simulated progress pacing
func WithStreamConfig(cfg config.StreamConfig) Option {
	return func(c *Client) {
		c.simulation = cfg.Simulation
		c.channel = c.channel.WithBufferSize(cfg.BufferSize)
	}
}

// New creates a client for cfg.BaseURL using acc for the access token
func New(cfg config.APIConfig, acc session.Accessor, logger *resumatchErrors.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = resumatchErrors.NewNopLogger()
	}
	if acc == nil {
		acc = session.NewMemoryStore("")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, resumatchErrors.NewConfigError(resumatchErrors.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid API base URL: %q", cfg.BaseURL), err)
	}

	transport := otelhttp.NewTransport(http.DefaultTransport)
	c := &Client{
		cfg:          cfg,
		baseURL:      base,
		httpClient:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
		session:      acc,
		breaker:      newRequestBreaker(cfg.CircuitBreaker, logger),
		channel:      stream.NewChannel(logger),
		logger:       logger,
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the token accessor used by the client
func (c *Client) Session() session.Accessor {
	return c.session
}

// BreakerStats returns circuit breaker statistics for diagnostics
func (c *Client) BreakerStats() map[string]any {
	return c.breaker.Stats()
}

// Healthy reports whether the circuit breaker currently lets requests through
func (c *Client) Healthy() bool {
	return c.breaker.IsHealthy()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// request describes one backend call
type request struct {
	method      string
	path        string
	query       url.Values
	body        func() io.Reader // called per attempt
	contentType string
	accept      string
	auth        bool
	streaming   bool
}

// do sends req and returns the response for 2xx statuses. Any other status
// becomes an error and the body is closed.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, resumatchErrors.NewNetworkError(resumatchErrors.ErrCodeAPIRequestFailed,
				"request cancelled while waiting for rate limiter", err)
		}
	}

	var body io.Reader
	if req.body != nil {
		body = req.body()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
	if err != nil {
		return nil, resumatchErrors.NewInternalError(resumatchErrors.ErrCodeInvalidRequest, "failed to build request", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set(requestIDHeader, requestID)
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	accept := req.accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	if req.auth {
		token, err := c.session.Token()
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				return nil, resumatchErrors.NewAuthError(resumatchErrors.ErrCodeSessionNotFound,
					"not signed in, run `resumatch login` first", err)
			}
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := c.httpClient
	if req.streaming {
		httpClient = c.streamClient
	}

	c.logger.Debug("Sending API request",
		"method", req.method,
		"path", req.path,
		"request_id", requestID)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, &serverStatusError{statusCode: resp.StatusCode}
		}
		return resp, nil
	})

	var statusErr *serverStatusError
	switch {
	case err == nil:
	case errors.As(err, &statusErr) && resp != nil:
		// handled as an API error below
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, resumatchErrors.NewNetworkError(resumatchErrors.ErrCodeCircuitOpen,
			"backend temporarily unavailable, too many recent failures", err).
			WithContext("request_id", requestID)
	default:
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, resumatchErrors.NewNetworkError(resumatchErrors.ErrCodeNetworkTimeout,
				fmt.Sprintf("%s %s timed out", req.method, req.path), err).
				WithContext("request_id", requestID)
		}
		return nil, resumatchErrors.NewNetworkError(resumatchErrors.ErrCodeAPIRequestFailed,
			fmt.Sprintf("%s %s failed", req.method, req.path), err).
			WithContext("request_id", requestID)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp, requestID)
		c.logger.Debug("API request failed",
			"method", req.method,
			"path", req.path,
			"status", resp.StatusCode,
			"request_id", requestID,
			"message", apiErr.Message)

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, resumatchErrors.NewAuthError(resumatchErrors.ErrCodeUnauthorized,
				"session expired or invalid, run `resumatch login` again", apiErr)
		}
		return nil, apiErr
	}

	return resp, nil
}

// doJSON sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil)
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any, auth bool) error {
	req := request{method: method, path: path, query: query, auth: auth}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return resumatchErrors.NewInternalError(resumatchErrors.ErrCodeInvalidRequest, "failed to encode request body", err)
		}
		req.body = func() io.Reader { return bytes.NewReader(payload) }
		req.contentType = "application/json"
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resumatchErrors.NewNetworkError(resumatchErrors.ErrCodeInvalidFormat,
			fmt.Sprintf("invalid response from %s %s", method, path), err)
	}
	return nil
}
