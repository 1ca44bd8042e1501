// Package restutil implements the two REST endpoint families the stream
// session needs outside the WebSocket itself (spec §6 External Interfaces):
// book-snapshot fetch and listen-key lifecycle. Grounded on
// internal/adapters/binance/rest.go's fetchDepthSnapshot/createListenKey/
// keepAliveListenKey.
package restutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/driftnet-io/marketfeed/errs"
)

// Client wraps an *http.Client with a per-exchange rate limiter, grounded on
// the teacher's httpClient()/HTTPTimeout pattern but generalized beyond
// Binance (spec §6: "two endpoint families are needed by the core").
type Client struct {
	HTTP    *http.Client
	Limiter *rate.Limiter
	Exchange string
}

// NewClient builds a Client with the given timeout and requests-per-second
// ceiling. A zero rps disables throttling.
func NewClient(exchange string, timeout time.Duration, rps float64) *Client {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		HTTP:     &http.Client{Timeout: timeout},
		Limiter:  limiter,
		Exchange: exchange,
	}
}

func (c *Client) throttle(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}

// DepthSnapshot mirrors the exchange's `{lastUpdateId, bids, asks}` REST
// depth response (spec §6: book snapshot endpoint).
type DepthSnapshot struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// FetchDepth issues `GET {base}/depth?symbol={native}&limit={depth}` and
// decodes a decimal-preserving snapshot (spec §6).
func (c *Client) FetchDepth(ctx context.Context, endpoint, symbol string, depth int) (DepthSnapshot, error) {
	if err := c.throttle(ctx); err != nil {
		return DepthSnapshot{}, errs.New(c.Exchange, errs.CodeTransientNetwork, errs.WithCause(err))
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", fmt.Sprintf("%d", depth))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return DepthSnapshot{}, fmt.Errorf("create depth request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return DepthSnapshot{}, errs.New(c.Exchange, errs.CodeTransientNetwork, errs.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return DepthSnapshot{}, errs.New(c.Exchange, errs.CodeExchange,
			errs.WithHTTP(resp.StatusCode), errs.WithRawMessage(strings.TrimSpace(string(body))))
	}

	var snapshot DepthSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return DepthSnapshot{}, errs.New(c.Exchange, errs.CodeProtocolDecode, errs.WithCause(err))
	}
	return snapshot, nil
}

// listenKeyResponse mirrors `{ listenKey: string }` (spec §6).
type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

// CreateListenKey issues `POST {endpoint}` with the API key header and
// returns the issued listen key (spec §6, §3 "Listen key").
func (c *Client) CreateListenKey(ctx context.Context, endpoint, apiKey string) (string, error) {
	return c.postListenKey(ctx, http.MethodPost, endpoint, apiKey, nil)
}

// RefreshListenKey issues `PUT {endpoint}?listenKey=...` to extend the
// expiry window (spec §4.2 Keepalive).
func (c *Client) RefreshListenKey(ctx context.Context, endpoint, apiKey, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)
	_, err := c.postListenKey(ctx, http.MethodPut, endpoint+"?"+params.Encode(), apiKey, nil)
	return err
}

func (c *Client) postListenKey(ctx context.Context, method, endpoint, apiKey string, body io.Reader) (string, error) {
	if err := c.throttle(ctx); err != nil {
		return "", errs.New(c.Exchange, errs.CodeTransientNetwork, errs.WithCause(err))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("create listen key request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", apiKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", errs.New(c.Exchange, errs.CodeTransientNetwork, errs.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if resp.StatusCode == http.StatusNotFound || strings.Contains(string(respBody), "Listen key") {
			return "", errs.New(c.Exchange, errs.CodeStaleListenKey, errs.WithHTTP(resp.StatusCode), errs.WithRawMessage(strings.TrimSpace(string(respBody))))
		}
		return "", errs.New(c.Exchange, errs.CodeExchange, errs.WithHTTP(resp.StatusCode), errs.WithRawMessage(strings.TrimSpace(string(respBody))))
	}

	if method == http.MethodPut {
		return "", nil
	}

	var payload listenKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errs.New(c.Exchange, errs.CodeProtocolDecode, errs.WithCause(err))
	}
	if strings.TrimSpace(payload.ListenKey) == "" {
		return "", errs.New(c.Exchange, errs.CodeExchange, errs.WithMessage("empty listen key"))
	}
	return payload.ListenKey, nil
}
