// Package fetch downloads raw data products from upstream HTTP archives.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/raster-pipeline/internal/observability"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
)

// StatusError reports a non-200 upstream response. A 404, which upstream
// archives return for dates they have not published yet, matches
// pipeline.ErrNotPublished.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == pipeline.ErrNotPublished && e.Status == http.StatusNotFound
}

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// Client is a rate-limited HTTP downloader.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	token      string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBearerToken sends the token in the Authorization header of every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a downloader allowing at most perSecond requests per
// second. A non-positive rate disables limiting.
func NewClient(timeout time.Duration, perSecond float64, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Client {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    metrics,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads url and returns the response body.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	start := time.Now()
	data, err := c.do(ctx, url)
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.FetchRequests.WithLabelValues("success").Inc()
	c.logger.Debug("fetched", "url", url, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{URL: url, Status: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}
