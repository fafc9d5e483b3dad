package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"scenepilot/internal/logging"
)

const anthropicVersion = "2023-06-01"

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.anthropic.com/v1",
		Model:   "claude-sonnet-4-5",
		Timeout: 2 * time.Minute,
	}
}

// AnthropicClient implements LLMClient against the messages API.
type AnthropicClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// NewAnthropicClient creates a client with default configuration.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return NewAnthropicClientWithConfig(DefaultAnthropicConfig(apiKey))
}

// NewAnthropicClientWithConfig creates a client with custom configuration.
func NewAnthropicClientWithConfig(config AnthropicConfig) *AnthropicClient {
	return &AnthropicClient{
		apiKey:  config.APIKey,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a bare prompt.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt under a system message.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.CompleteChat(ctx, systemPrompt, []Message{{Role: "user", Content: userPrompt}})
}

// CompleteChat sends a system message plus a dialog-history window.
// Anthropic takes the system prompt as a top-level field, and history
// messages must alternate user/assistant roles.
func (c *AnthropicClient) CompleteChat(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.PerceptionDebug("[Anthropic] CompleteChat: model=%s system_len=%d messages=%d",
		c.model, len(systemPrompt), len(messages))

	if c.apiKey == "" {
		logging.PerceptionError("[Anthropic] CompleteChat: %v", ErrNoAPIKey)
		return "", ErrNoAPIKey
	}

	c.throttle()

	chat := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			// fold stray system messages into the top-level prompt
			systemPrompt = strings.TrimSpace(systemPrompt + "\n" + m.Content)
			continue
		}
		chat = append(chat, m)
	}

	reqBody := anthropicRequest{
		Model:     c.model,
		System:    systemPrompt,
		Messages:  chat,
		MaxTokens: defaultMaxTokens,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			logging.PerceptionWarn("[Anthropic] CompleteChat: 429, attempt %d/%d", attempt+1, maxRetries+1)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return "", fmt.Errorf("API error: %s", parsed.Error.Message)
		}

		var text strings.Builder
		for _, block := range parsed.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		response := strings.TrimSpace(text.String())
		if response == "" {
			return "", fmt.Errorf("no completion returned")
		}

		logging.Perception("[Anthropic] CompleteChat: completed in %v response_len=%d", time.Since(startTime), len(response))
		return response, nil
	}

	logging.PerceptionError("[Anthropic] CompleteChat: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *AnthropicClient) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastRequest); elapsed < minRequestGap {
		time.Sleep(minRequestGap - elapsed)
	}
	c.lastRequest = time.Now()
}

// SetModel changes the model used for completions.
func (c *AnthropicClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *AnthropicClient) GetModel() string {
	return c.model
}
