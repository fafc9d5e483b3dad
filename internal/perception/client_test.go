package perception

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenepilot/internal/config"
)

func openAIServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OpenAIClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewOpenAIClientWithConfig(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
	return srv, client
}

func TestOpenAICompleteChat(t *testing.T) {
	var captured openAIRequest
	_, client := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  layers hidden  "}},
			},
		})
	})

	got, err := client.CompleteChat(context.Background(), "be helpful", []Message{
		{Role: "user", Content: "hide all layers"},
	})
	require.NoError(t, err)
	assert.Equal(t, "layers hidden", got)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Zero(t, captured.Temperature)
}

func TestOpenAIRetriesOn429(t *testing.T) {
	var calls int32
	_, client := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	})

	got, err := client.Complete(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIServerErrorNotRetried(t *testing.T) {
	var calls int32
	_, client := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad model"}}`))
	})

	_, err := client.Complete(context.Background(), "ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIMissingKey(t *testing.T) {
	client := NewOpenAIClient("")
	_, err := client.Complete(context.Background(), "ping")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestAnthropicCompleteChat(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "done"},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewAnthropicClientWithConfig(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "claude-sonnet-4-5",
		Timeout: 5 * time.Second,
	})

	got, err := client.CompleteChat(context.Background(), "be helpful", []Message{
		{Role: "system", Content: "extra rule"},
		{Role: "user", Content: "hide all layers"},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	// Stray system messages fold into the top-level system field.
	assert.Contains(t, captured.System, "be helpful")
	assert.Contains(t, captured.System, "extra rule")
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestNewClientFactory(t *testing.T) {
	openai, err := NewClient(config.LLMConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, openai)

	anthropic, err := NewClient(config.LLMConfig{Provider: "anthropic", APIKey: "k", Timeout: "30s"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, anthropic)

	_, err = NewClient(config.LLMConfig{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = NewClient(config.LLMConfig{Provider: "mystery", APIKey: "k"})
	assert.Error(t, err)
}
