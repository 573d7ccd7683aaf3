package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrRiskLimit is returned when an order's estimated value exceeds the
// configured per-trade capital fraction.
var ErrRiskLimit = errors.New("risk limit exceeded")

// estimatedPriceFallback is used for market orders with no limit price.
const estimatedPriceFallback = 1000.0

// PlaceOrder submits an order after a capital-fraction risk check.
func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (OrderResponse, error) {
	if err := c.checkRisk(order.Quantity, order.Price); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	url := fmt.Sprintf("%s/orders", c.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create order request: %w", err)
	}
	c.setAuthHeaders(req, token)

	c.logger.WithFields(map[string]interface{}{
		"security_id": order.SecurityID,
		"side":        order.TransactionType,
		"qty":         order.Quantity,
	}).Info("Placing order")

	return c.doOrderRequest(req)
}

// OrderStatus fetches the current state of an order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (OrderResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	url := fmt.Sprintf("%s/orders/%s", c.cfg.BaseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	c.setAuthHeaders(req, token)

	return c.doOrderRequest(req)
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (OrderResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	url := fmt.Sprintf("%s/orders/%s", c.cfg.BaseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create cancel request: %w", err)
	}
	c.setAuthHeaders(req, token)

	return c.doOrderRequest(req)
}

// doOrderRequest dispatches an order call and decodes the broker reply.
func (c *Client) doOrderRequest(req *http.Request) (OrderResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: "orders", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: retryAfterHint(resp)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &UpstreamError{Op: "orders", Status: resp.StatusCode}
	}

	var decoded OrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &UpstreamError{Op: "orders", Err: fmt.Errorf("decode response: %w", err)}
	}

	return decoded, nil
}

// checkRisk enforces the per-trade capital fraction.
func (c *Client) checkRisk(qty int, price float64) error {
	if c.trade.Capital <= 0 || c.trade.MaxRiskPerTrade <= 0 {
		return ErrRiskLimit
	}

	estimated := price
	if estimated <= 0 {
		estimated = estimatedPriceFallback
	}

	if float64(qty)*estimated > c.trade.Capital*c.trade.MaxRiskPerTrade {
		return fmt.Errorf("%w: qty=%d price=%.2f cap=%.0f", ErrRiskLimit, qty, price, c.trade.Capital*c.trade.MaxRiskPerTrade)
	}

	return nil
}
