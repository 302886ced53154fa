package mexc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trader_go/internal/domain"
	"trader_go/internal/infra"
)

// ErrNotConfirmed marks an operation whose outcome is unknown after the
// retry budget ran out. For order placement this is the critical case:
// the exchange may or may not have created the order, so the caller must
// reconcile by client order id instead of re-submitting.
var ErrNotConfirmed = errors.New("mexc: operation not confirmed")

// ErrOrderNotFound is returned by QueryOrder when the exchange has no
// order under the given id.
var ErrOrderNotFound = errors.New("mexc: order not found")

const (
	defaultAttempts  = 5
	defaultUserAgent = "trader-go/1.0"
)

// Client is the resilient REST transport for the spot exchange API.
// Public calls go out unsigned; account and order calls are signed with
// a fresh timestamp per attempt. Transient faults (network errors, 429,
// 418, 5xx) are retried with server-hinted or jittered exponential
// backoff; other 4xx surface immediately.
type Client struct {
	baseURL     string
	httpc       *http.Client
	signer      *Signer
	clock       *Clock
	maxAttempts int
}

// Options configures NewClient. Zero values fall back to conservative
// defaults.
type Options struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	RecvWindowMS int64
	Timeout      time.Duration
	MaxAttempts  int
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.mexc.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultAttempts
	}

	clock := NewClock()
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		httpc:       &http.Client{Timeout: opts.Timeout},
		signer:      NewSigner(opts.APIKey, opts.APISecret, opts.RecvWindowMS, clock.NowMS),
		clock:       clock,
		maxAttempts: opts.MaxAttempts,
	}
}

// Clock exposes the server-time tracker so the app can run the sync poller.
func (c *Client) Clock() *Clock {
	return c.clock
}

// Close wipes key material. The client must not be used afterwards.
func (c *Client) Close() error {
	c.clock.StopSync()
	c.signer.Wipe()
	return nil
}

// --- Operations ---

// ServerTime fetches the exchange clock (public).
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	body, err := c.public(ctx, "time", pathTime, nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("server time payload: %w", err)
	}
	return resp.ServerTime, nil
}

// Klines fetches recent candles (public).
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.public(ctx, "klines", pathKlines, params)
	if err != nil {
		return nil, err
	}
	return parseKlines(symbol, body)
}

// Account fetches signed account balances.
func (c *Client) Account(ctx context.Context) ([]AssetBalance, error) {
	body, err := c.signed(ctx, "account", http.MethodGet, pathAccount, nil, infra.GetAccountLimiter())
	if err != nil {
		return nil, err
	}
	return parseBalances(body)
}

// PlaceOrder submits a new order (signed POST), idempotent through the
// caller's client order id. An ErrNotConfirmed result means the order may
// exist on the venue; the reconciler resolves it by that id.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Qty.String())
	if req.Type == domain.OrderTypeLimit {
		params.Set("price", req.Price.String())
		tif := req.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		params.Set("timeInForce", tif)
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	body, err := c.signed(ctx, "place_order", http.MethodPost, pathOrder, params, infra.GetOrderLimiter())
	if err != nil {
		return OrderAck{}, err
	}
	return parseOrderAck(body)
}

// QueryOrder fetches one order's state by client order id (signed).
func (c *Client) QueryOrder(ctx context.Context, symbol, clientOrderID string) (OrderStatus, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)

	body, err := c.signed(ctx, "query_order", http.MethodGet, pathOrder, params, infra.GetOrderLimiter())
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeOrderNotExist {
			return OrderStatus{}, fmt.Errorf("%s %s: %w", symbol, clientOrderID, ErrOrderNotFound)
		}
		return OrderStatus{}, err
	}
	return parseOrderStatus(body)
}

// OpenOrders lists the venue's open orders, optionally one symbol (signed).
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]OrderStatus, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.signed(ctx, "open_orders", http.MethodGet, pathOpenOrders, params, infra.GetOrderLimiter())
	if err != nil {
		return nil, err
	}
	return parseOpenOrders(body)
}

// --- Transport core ---

func (c *Client) public(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	build := func() (*http.Request, error) {
		u := c.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}
	return c.do(ctx, op, infra.GetMarketLimiter(), build)
}

func (c *Client) signed(ctx context.Context, op, method, path string, params url.Values, limiter *infra.RateLimiter) ([]byte, error) {
	build := func() (*http.Request, error) {
		// Signed fresh inside the retry loop: the timestamp must move
		// with every attempt or the exchange rejects it as stale.
		u := c.baseURL + path + "?" + c.signer.SignedQuery(params)
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(apiKeyHeader, c.signer.APIKey())
		return req, nil
	}
	return c.do(ctx, op, limiter, build)
}

// do runs one logical call under the attempt budget. The last response's
// status/body (or the last transport error) is wrapped in ErrNotConfirmed
// when the budget runs out, so callers can tell "failed" from "unknown".
func (c *Client) do(ctx context.Context, op string, limiter *infra.RateLimiter, build func() (*http.Request, error)) ([]byte, error) {
	var (
		lastErr error
		hint    time.Duration
	)

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := infra.RetryDelay(attempt-1, hint)
			slog.Debug("Retrying API call",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.Any("cause", lastErr))
			infra.IncAPIRetry(op)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if limiter != nil {
			limiter.Wait()
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", op, err)
		}
		req.Header.Set("User-Agent", defaultUserAgent)

		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Network-level transient fault: refused, reset, timeout.
			lastErr, hint = err, 0
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr, hint = readErr, 0
			continue
		}

		if resp.StatusCode < 400 {
			return body, nil
		}

		apiErr := parseAPIError(resp.StatusCode, body)
		if !apiErr.Temporary() {
			return nil, apiErr
		}
		lastErr = apiErr
		hint = retryAfterHint(resp.Header)
	}

	return nil, fmt.Errorf("%s: %w after %d attempts: last error: %v",
		op, ErrNotConfirmed, c.maxAttempts, lastErr)
}

// retryAfterHint reads the server's Retry-After header, seconds form.
func retryAfterHint(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
