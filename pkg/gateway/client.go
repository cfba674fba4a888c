package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/studiare/tuition-billing/pkg/config"
)

// ChargeCanceller is the slice of the gateway API the billing workers need.
// Calls are only ever made after the authoritative database commit, so a
// failure here is logged by the caller and never rolled back.
type ChargeCanceller interface {
	CancelCharge(ctx context.Context, chargeID string) error
}

// Client talks to the external payment gateway over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a gateway client from config.
func NewClient(cfg config.GatewayConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// CancelCharge voids an open charge on the gateway side.
func (c *Client) CancelCharge(ctx context.Context, chargeID string) error {
	url := fmt.Sprintf("%s/v1/charges/%s/cancel", c.baseURL, chargeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build cancel charge request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel charge %s: %w", chargeID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// 404 means the charge is already gone on the gateway side, which is
	// the state we wanted anyway.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("cancel charge %s: gateway returned %d", chargeID, resp.StatusCode)
	}
	return nil
}
