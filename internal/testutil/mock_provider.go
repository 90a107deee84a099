// Package testutil provides shared test doubles for Veil tests.
package testutil

import (
	"context"
	"sync"

	"github.com/veil-io/veil/internal/llm"
)

// MockProvider implements llm.Provider for tests without live API calls.
// When Content is empty, Generate returns "[]" (no entities); set Err to
// simulate provider failures.
type MockProvider struct {
	mu           sync.Mutex
	ProviderName string // provider identifier, e.g. "openai"
	Content      string // canned response body; empty = "[]"
	Err          error  // if set, Generate returns this error
	CallCount    int    // incremented on each Generate call
}

// Name returns the provider identifier (implements llm.Provider).
func (m *MockProvider) Name() string { return m.ProviderName }

// Generate returns the canned response or the configured error.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Content
	if content == "" {
		content = "[]"
	}
	return &llm.Response{
		Content:      content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// Calls returns the number of Generate invocations so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// SequenceProvider returns a configurable sequence of responses, one per
// call; call N past the end repeats the last element. An element with a
// non-nil Err simulates a failure on that attempt, which is how retry
// behavior is exercised.
type SequenceProvider struct {
	mu        sync.Mutex
	Responses []SequenceStep
	CallCount int
}

// SequenceStep is one canned Generate outcome.
type SequenceStep struct {
	Content string
	Err     error
}

// Name returns "mock".
func (p *SequenceProvider) Name() string { return "mock" }

// Generate returns the next step in the sequence.
func (p *SequenceProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	idx := p.CallCount
	p.CallCount++
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	step := p.Responses[idx]
	p.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	return &llm.Response{
		Content:      step.Content,
		FinishReason: "stop",
		Model:        req.Model,
	}, nil
}
