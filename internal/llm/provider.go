// Package llm provides the chat-completion client used by the pipeline
// executor. It speaks the OpenAI-compatible wire format exposed by the model
// marketplace, with both buffered and streaming request paths.
package llm

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Security limits to prevent unbounded memory usage
const (
	// MaxErrorBodySize limits how much error response body we read (1MB)
	MaxErrorBodySize = 1 * 1024 * 1024

	// MaxStreamedResponseSize limits total streamed response size (50MB)
	MaxStreamedResponseSize = 50 * 1024 * 1024
)

// readLimitedBody reads up to maxBytes from r, returning the bytes read.
func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// Provider defines the interface for chat-completion backends.
type Provider interface {
	// Chat sends a request and returns the buffered response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatStream is like Chat but calls onToken for each token as it
	// arrives. Returns the complete response when the stream ends.
	ChatStream(ctx context.Context, req *ChatRequest, onToken func(token string) error) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	// Model is the marketplace model identifier (e.g. "openai/gpt-4o").
	Model string `json:"model"`

	// SystemPrompt sets the model's behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages in the conversation.
	Messages []Message `json:"messages"`

	// MaxTokens limits response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `json:"temperature,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse contains the model's response.
type ChatResponse struct {
	Content          string        `json:"content"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	TokensUsed       int           `json:"tokens_used,omitempty"`
	Duration         time.Duration `json:"duration"`
	FinishReason     string        `json:"finish_reason,omitempty"`
}

// Config contains configuration for the marketplace chat client.
type Config struct {
	// Endpoint is the API base URL.
	Endpoint string

	// APIKey for bearer authentication.
	APIKey string

	// Referer and Title are the identifying headers the marketplace asks
	// clients to send alongside the bearer token.
	Referer string
	Title   string

	// MaxTokens default for responses.
	MaxTokens int

	// Temperature default.
	Temperature float64

	// Timeout for API calls.
	Timeout time.Duration
}

// DefaultConfig returns sensible client defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:    "https://openrouter.ai/api",
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     2 * time.Minute,
	}
}

// Client is the HTTP chat client for the marketplace gateway.
type Client struct {
	config *Config
	client *http.Client
}

// NewClient creates a chat client with defaults applied.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	defaults := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "marketplace"
}

// Available checks if the API key is configured.
func (c *Client) Available() bool {
	return c.config.APIKey != ""
}

// setHeaders applies auth and identifying headers to a request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.Referer != "" {
		req.Header.Set("HTTP-Referer", c.config.Referer)
	}
	if c.config.Title != "" {
		req.Header.Set("X-Title", c.config.Title)
	}
}
