// Package market fetches crypto, forex and stock data from public vendors
// and reshapes it into the payloads the dashboard renders.
package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/felixgeelhaar/finhub/internal/config"
	"github.com/felixgeelhaar/finhub/internal/errors"
	"github.com/felixgeelhaar/finhub/internal/log"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/telemetry"
)

// Vendor names as they appear in logs, metrics and errors.
const (
	VendorCoinGecko   = "coingecko"
	VendorFrankfurter = "frankfurter"
	VendorStooq       = "stooq"
)

const (
	defaultCoinGeckoURL   = "https://api.coingecko.com/api/v3"
	defaultFrankfurterURL = "https://api.frankfurter.app"
	defaultStooqURL       = "https://stooq.com"
	defaultTimeout        = 10 * time.Second

	maxBodyBytes = 4 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithMetrics records vendor request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// Client talks to the three market data vendors.
type Client struct {
	coingeckoURL   string
	frankfurterURL string
	stooqURL       string

	http    *http.Client
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewClient creates a client from the upstream configuration. Empty URLs
// fall back to the public vendor endpoints.
func NewClient(cfg config.UpstreamConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		coingeckoURL:   baseURL(cfg.CoinGeckoURL, defaultCoinGeckoURL),
		frankfurterURL: baseURL(cfg.FrankfurterURL, defaultFrankfurterURL),
		stooqURL:       baseURL(cfg.StooqURL, defaultStooqURL),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "market")
	return c
}

func baseURL(v, fallback string) string {
	if v == "" {
		v = fallback
	}
	return strings.TrimRight(v, "/")
}

// Endpoints returns the vendor base URLs keyed by vendor name.
func (c *Client) Endpoints() map[string]string {
	return map[string]string{
		VendorCoinGecko:   c.coingeckoURL,
		VendorFrankfurter: c.frankfurterURL,
		VendorStooq:       c.stooqURL,
	}
}

// get performs one traced, measured GET and returns the body of a 2xx
// response.
func (c *Client) get(ctx context.Context, vendor, operation, url string, accept string) (body []byte, err error) {
	ctx, span := telemetry.StartUpstreamSpan(ctx, vendor, operation)

	start := time.Now()
	code := 0
	defer func() {
		telemetry.EndUpstreamSpan(span, code, len(body), err)
		if c.metrics != nil {
			status := "error"
			if code > 0 {
				status = strconv.Itoa(code)
			}
			c.metrics.ObserveUpstream(vendor, status, time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewUpstreamRequestError(vendor, err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		err = errors.NewUpstreamRequestError(vendor, err)
		c.logger.WithContext(ctx).WithError(err).Warn("vendor request failed", "vendor", vendor, "operation", operation)
		return nil, err
	}
	defer resp.Body.Close()

	code = resp.StatusCode
	if code < 200 || code > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		c.logger.WithContext(ctx).Warn("vendor returned error status",
			"vendor", vendor, "operation", operation, "status", code)
		return nil, errors.NewUpstreamStatusError(vendor, code)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.NewUpstreamRequestError(vendor, fmt.Errorf("read body: %w", err))
	}
	return body, nil
}
