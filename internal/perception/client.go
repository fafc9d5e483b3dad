// Package perception provides completion-service clients. Agents depend on
// the LLMClient interface only; the concrete clients speak the OpenAI
// chat-completions and Anthropic messages wire formats over plain HTTP.
package perception

import (
	"context"
	"errors"
)

// ErrNoAPIKey is returned when a client is invoked without a configured key.
var ErrNoAPIKey = errors.New("API key not configured")

// Message is one chat turn sent to the completion service.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// LLMClient is the completion-service boundary used by the agent pipeline.
type LLMClient interface {
	// Complete sends a bare prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt under a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// CompleteChat sends a system message plus a dialog-history window.
	CompleteChat(ctx context.Context, systemPrompt string, messages []Message) (string, error)
}
