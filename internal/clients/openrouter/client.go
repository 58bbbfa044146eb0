// Package openrouter implements a minimal client for the credit-marketplace
// top-up API. The auto-buy flow uses it to convert USDC balance into LLM
// credits.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// APIError carries the provider's HTTP status and response text so callers
// can persist and surface it.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("openrouter: status %d: %s", e.Status, e.Body)
}

// Client calls the credit marketplace. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	// throttle keeps outbound purchase calls polite; the marketplace is a
	// shared dependency and purchases are rare.
	throttle *rate.Limiter
}

// New constructs a Client. baseURL may be empty to use the production API.
func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		throttle: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// TopUpResult is the provider's confirmation of an applied credit purchase.
type TopUpResult struct {
	TransactionID string `json:"transaction_id"`
	ID            string `json:"id"`
}

// TxID returns the provider transaction identifier, preferring the explicit
// transaction_id field and falling back to the generic id.
func (r *TopUpResult) TxID() string {
	if r.TransactionID != "" {
		return r.TransactionID
	}
	if r.ID != "" {
		return r.ID
	}
	return "unknown"
}

// TopUp purchases amount USD worth of credits. On a non-2xx response it
// returns an *APIError carrying the provider's error text.
func (c *Client) TopUp(ctx context.Context, amount decimal.Decimal) (*TopUpResult, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"amount":   amount,
		"currency": "USD",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/credits/add", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var out TopUpResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("openrouter: decode response: %w", err)
	}
	return &out, nil
}
