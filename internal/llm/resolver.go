package llm

import "fmt"

// NewProvider creates a Provider for the named backend. ollamaBaseURL is
// only used by the "ollama" provider; apiKey only by the hosted ones.
func NewProvider(name, apiKey, ollamaBaseURL string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "ollama":
		return NewOllamaProvider(ollamaBaseURL), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

// ProviderUsesAPIKey reports whether the named provider requires an API key.
// Ollama (local) does not.
func ProviderUsesAPIKey(name string) bool {
	switch name {
	case "openai", "anthropic":
		return true
	default:
		return false
	}
}
