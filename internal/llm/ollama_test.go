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

func TestOllamaGenerate(t *testing.T) {
	var captured ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"content": "[]"},
			"done_reason":       "stop",
			"prompt_eval_count": 15,
			"eval_count":        2,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	resp, err := p.Generate(context.Background(), &Request{
		Model: "llama3.1:8b",
		Messages: []Message{
			{Role: "system", Content: "detect PII"},
			{Role: "user", Content: "passage"},
		},
		Temperature: 0,
		MaxTokens:   512,
	})
	require.NoError(t, err)

	assert.Equal(t, "[]", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 15, resp.InputTokens)
	assert.Equal(t, 2, resp.OutputTokens)

	assert.False(t, captured.Stream)
	assert.Equal(t, "llama3.1:8b", captured.Model)
	assert.Equal(t, 512, captured.Options.NumPredict)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
}

func TestOllamaDefaultsFinishReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "hi"},
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	resp, err := p.Generate(context.Background(), &Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestOllamaAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	_, err := p.Generate(context.Background(), &Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaDefaultBaseURL(t *testing.T) {
	p := NewOllamaProvider("")
	assert.Equal(t, "http://localhost:11434", p.baseURL)
}
