package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"golang.org/x/time/rate"
)

const (
	// CLOB /books allows 500 req/10s; stay well under it.
	booksRatePerSec = 30
	// Order endpoints share the general trading budget.
	ordersRatePerSec = 50
)

// ClobClient is the REST client for the CLOB API: order books, order
// placement and cancellation.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client

	booksLimiter  *rate.Limiter
	ordersLimiter *rate.Limiter

	// Exactly one of staticHeaders or hmacAuth is used for authentication.
	staticHeaders map[string]string
	hmacAuth      *crypto.HMACAuth
}

var _ domain.ExchangeClient = (*ClobClient)(nil)

// ClobOption configures a ClobClient.
type ClobOption func(*ClobClient)

// WithStaticHeaders attaches fixed headers to every request.
func WithStaticHeaders(h map[string]string) ClobOption {
	return func(c *ClobClient) { c.staticHeaders = h }
}

// WithHMAC signs every request with L2 HMAC headers.
func WithHMAC(auth *crypto.HMACAuth) ClobOption {
	return func(c *ClobClient) { c.hmacAuth = auth }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClobOption {
	return func(c *ClobClient) { c.httpClient = hc }
}

// NewClobClient creates a CLOB client rooted at baseURL,
// e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, opts ...ClobOption) *ClobClient {
	c := &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		booksLimiter:  rate.NewLimiter(booksRatePerSec, 5),
		ordersLimiter: rate.NewLimiter(ordersRatePerSec, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrderBook fetches the current book snapshot for a market.
func (c *ClobClient) GetOrderBook(ctx context.Context, marketID string) (domain.BookSnapshot, error) {
	path := "/books/" + url.PathEscape(marketID)

	body, err := c.do(ctx, c.booksLimiter, http.MethodGet, path, nil)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: get book %s: %w", marketID, err)
	}

	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}

	return domain.BookSnapshot{
		MarketID: marketID,
		Bids:     feed.ParseLevels(book.Bids),
		Asks:     feed.ParseLevels(book.Asks),
	}, nil
}

// PlaceOrder submits an order. When a time-in-force is set the order type
// defaults to "limit".
func (c *ClobClient) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	orderType := req.OrderType
	if orderType == "" && req.TimeInForce != "" {
		orderType = "limit"
	}

	payload := APIOrderRequest{
		Market:        req.MarketID,
		Side:          string(req.Side),
		Price:         req.Price,
		Size:          req.Size,
		ClientOrderID: req.ClientOrderID,
		TimeInForce:   req.TimeInForce,
		Type:          orderType,
	}

	body, err := c.do(ctx, c.ordersLimiter, http.MethodPost, "/orders", payload)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("polymarket/clob: place order: %w", err)
	}

	var ack APIOrderAck
	if err := json.Unmarshal(body, &ack); err != nil {
		return domain.OrderAck{}, fmt.Errorf("polymarket/clob: decode order ack: %w", err)
	}
	if ack.Rejected() {
		return ack.ToDomain(), fmt.Errorf("polymarket/clob: %w: %s", domain.ErrOrderRejected, ack.ErrorMsg)
	}

	return ack.ToDomain(), nil
}

// CancelOrder cancels a single order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	path := "/orders/" + url.PathEscape(orderID)

	if _, err := c.do(ctx, c.ordersLimiter, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do waits for the limiter, builds and authenticates the request, sends it
// and returns the raw response body.
func (c *ClobClient) do(ctx context.Context, limiter *rate.Limiter, method, path string, body any) ([]byte, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		for k, v := range c.hmacAuth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	} else {
		for k, v := range c.staticHeaders {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
