package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicGenerate(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		resp := map[string]any{
			"id": "msg_01",
			"content": []map[string]any{
				{"type": "text", "text": "[]"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 42, "output_tokens": 3},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewAnthropicProviderWithBaseURL("test-key", srv.URL)
	resp, err := p.Generate(context.Background(), &Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			{Role: "system", Content: "detect PII"},
			{Role: "user", Content: "some passage"},
		},
		MaxTokens: 512,
	})
	require.NoError(t, err)

	assert.Equal(t, "[]", resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 42, resp.InputTokens)
	assert.Equal(t, 3, resp.OutputTokens)

	// System messages move into the dedicated field.
	assert.Equal(t, "detect PII", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestAnthropicConcatenatesSystemMessages(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "ok"}},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	p := NewAnthropicProviderWithBaseURL("k", srv.URL)
	_, err := p.Generate(context.Background(), &Request{
		Messages: []Message{
			{Role: "system", Content: "first"},
			{Role: "system", Content: "second"},
			{Role: "user", Content: "hi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", captured.System)
}

func TestAnthropicJoinsTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "thinking", "text": ""},
				{"type": "text", "text": "part one "},
				{"type": "text", "text": "part two"},
			},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	p := NewAnthropicProviderWithBaseURL("k", srv.URL)
	resp, err := p.Generate(context.Background(), &Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Content)
}

func TestAnthropicAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewAnthropicProviderWithBaseURL("k", srv.URL)
	_, err := p.Generate(context.Background(), &Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnthropicHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewAnthropicProviderWithBaseURL("k", srv.URL)
	_, err := p.Generate(ctx, &Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
}
