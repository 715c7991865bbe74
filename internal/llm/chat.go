package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// chatRequest is the OpenAI-compatible wire request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// streamChunk is one SSE data payload of a streamed completion.
type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// buildWireRequest converts a ChatRequest to the wire form, prepending the
// system prompt as the first message.
func (c *Client) buildWireRequest(req *ChatRequest, stream bool) chatRequest {
	wire := chatRequest{
		Model:  req.Model,
		Stream: stream,
	}

	if req.SystemPrompt != "" {
		wire.Messages = append(wire.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, msg := range req.Messages {
		wire.Messages = append(wire.Messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}

	wire.MaxTokens = req.MaxTokens
	if wire.MaxTokens == 0 {
		wire.MaxTokens = c.config.MaxTokens
	}
	wire.Temperature = req.Temperature
	if wire.Temperature == 0 {
		wire.Temperature = c.config.Temperature
	}

	return wire
}

// post sends a chat-completions request and returns the raw response.
// The caller owns the body.
func (c *Client) post(ctx context.Context, wire chatRequest) (*http.Response, error) {
	if c.config.APIKey == "" {
		return nil, fmt.Errorf("marketplace API key not configured")
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.config.Endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		resp.Body.Close()
		return nil, fmt.Errorf("marketplace error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}

// Chat sends a buffered chat request.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	resp, err := c.post(ctx, c.buildWireRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var content, finish string
	if len(wire.Choices) > 0 {
		content = wire.Choices[0].Message.Content
		finish = wire.Choices[0].FinishReason
	}

	return &ChatResponse{
		Content:          content,
		Model:            wire.Model,
		PromptTokens:     wire.Usage.PromptTokens,
		CompletionTokens: wire.Usage.CompletionTokens,
		TokensUsed:       wire.Usage.TotalTokens,
		Duration:         time.Since(start),
		FinishReason:     finish,
	}, nil
}

// ChatStream sends a streaming chat request, calling onToken per content
// delta. An onToken error aborts the stream and is returned to the caller.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest, onToken func(token string) error) (*ChatResponse, error) {
	start := time.Now()

	resp, err := c.post(ctx, c.buildWireRequest(req, true))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var content strings.Builder
	var model, finish string

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue // keep-alive comment
		}

		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Malformed keep-alives happen; skip rather than abort.
			continue
		}

		if chunk.Model != "" {
			model = chunk.Model
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if fr := chunk.Choices[0].FinishReason; fr != "" {
			finish = fr
		}

		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}

		if content.Len()+len(token) > MaxStreamedResponseSize {
			return nil, fmt.Errorf("streamed response exceeds %d bytes", MaxStreamedResponseSize)
		}
		content.WriteString(token)

		if err := onToken(token); err != nil {
			return nil, fmt.Errorf("stream consumer: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	return &ChatResponse{
		Content:      content.String(),
		Model:        model,
		Duration:     time.Since(start),
		FinishReason: finish,
	}, nil
}
