// Package catalog maintains the synced table of marketplace models and their
// per-category rankings. It is the source of truth for which backends exist
// right now.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrMissingCredential is returned when the marketplace API key is not
// configured. Fatal for sync; there is nothing to retry.
var ErrMissingCredential = errors.New("marketplace API key not configured")

// ClientConfig configures the marketplace HTTP client.
type ClientConfig struct {
	// Endpoint is the marketplace API base URL.
	Endpoint string

	// APIKey for bearer authentication.
	APIKey string

	// Referer and Title are the identifying headers sent with every call.
	Referer string
	Title   string

	// Timeout for API calls.
	Timeout time.Duration
}

// Client fetches the model catalog from the external marketplace.
type Client struct {
	config ClientConfig
	client *http.Client
}

// NewClient creates a marketplace client with defaults applied.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://openrouter.ai/api"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// marketplaceModel is one entry of the marketplace /models response.
type marketplaceModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	Architecture  struct {
		Modality     string `json:"modality"`
		InstructType string `json:"instruct_type"`
	} `json:"architecture"`
	Pricing struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
}

// FetchModels retrieves the full marketplace catalog.
func (c *Client) FetchModels(ctx context.Context) ([]marketplaceModel, error) {
	if c.config.APIKey == "" {
		return nil, ErrMissingCredential
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.config.Endpoint+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.Referer != "" {
		req.Header.Set("HTTP-Referer", c.config.Referer)
	}
	if c.config.Title != "" {
		req.Header.Set("X-Title", c.config.Title)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketplace error (status %d)", resp.StatusCode)
	}

	var result struct {
		Data []marketplaceModel `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	return result.Data, nil
}

// parsePrice converts a marketplace price string to an optional float.
// Unparsable or empty strings are treated as absent, not an error.
func parsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
