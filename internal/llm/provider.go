// Package llm abstracts the external generative text-analysis capability
// behind a small Provider port so the context detector can run against
// Anthropic, OpenAI, or a local Ollama instance — or a test double.
package llm

import (
	"context"
	"errors"
)

// Domain errors for the LLM package.
var (
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrEmptyResponse        = errors.New("empty response from provider")
)

// Provider is the interface all LLM providers must implement.
//
// Callers own the deadline: the context detector derives a per-call timeout
// context before invoking Generate, so providers must honor ctx
// cancellation rather than applying their own fixed timeouts.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
	// Generate sends a completion request to the LLM and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents an LLM generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message represents a chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response represents an LLM generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}
