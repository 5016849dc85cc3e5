package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/felixgeelhaar/finhub/internal/errors"
	"github.com/felixgeelhaar/finhub/internal/market"
)

const clientVendor = "finhub-api"

// TokenFunc returns the caller's ID token.
type TokenFunc func(ctx context.Context) (string, error)

// Client reads from a running finhub API. It satisfies MarketSource.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenFunc
}

// NewClient creates a client for baseURL. token may be nil when only the
// public market routes are used.
func NewClient(baseURL string, token TokenFunc, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		token:   token,
	}
}

func (c *Client) Coins(ctx context.Context) ([]market.Coin, error) {
	var out []market.Coin
	if err := c.get(ctx, "/api/crypto", false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Forex(ctx context.Context) (*market.Rates, error) {
	var out market.Rates
	if err := c.get(ctx, "/api/forex", false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OHLC(ctx context.Context, symbol string) ([]market.Candle, error) {
	var out []market.Candle
	if err := c.get(ctx, "/api/ohlc?id="+url.QueryEscape(symbol), false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stocks(ctx context.Context) ([]market.Stock, error) {
	var out []market.Stock
	if err := c.get(ctx, "/api/stocks", false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Me returns the caller's identity and role as the server resolves it.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	var out Me
	if err := c.get(ctx, "/api/me", true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminStatus returns dependency health. The server only answers admins.
func (c *Client) AdminStatus(ctx context.Context) (*StatusReport, error) {
	var out StatusReport
	if err := c.get(ctx, "/api/admin/status", true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, authenticated bool, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.NewUpstreamRequestError(clientVendor, err)
	}
	req.Header.Set("Accept", "application/json")
	if authenticated && c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewUpstreamRequestError(clientVendor, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.NewUpstreamRequestError(clientVendor, err)
	}

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &e)
		appErr := errors.NewUpstreamStatusError(clientVendor, resp.StatusCode)
		if detail := strings.TrimSpace(e.Error + " " + e.Message); detail != "" {
			appErr.Cause = fmt.Errorf("%s", detail)
		}
		return appErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewUpstreamDecodeError(clientVendor, err)
	}
	return nil
}
