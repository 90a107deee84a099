package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/veil-io/veil/internal/classifier"
	"github.com/veil-io/veil/internal/config"
	"github.com/veil-io/veil/internal/detector"
	"github.com/veil-io/veil/internal/llm"
	"github.com/veil-io/veil/internal/pipeline"
)

// buildPipeline wires scanner, provider, and detector from operator config.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	var scanner *classifier.Scanner
	if cfg.Pipeline.EnablePatternDetection {
		var err error
		scanner, err = classifier.NewScanner(classifier.WithPatternFile(cfg.PatternFile))
		if err != nil {
			return nil, fmt.Errorf("building pattern scanner: %w", err)
		}
	}

	var contextDetector pipeline.ContextDetector
	if cfg.Pipeline.EnableContextDetection {
		apiKey := cfg.ResolveAPIKey()
		if apiKey == "" && llm.ProviderUsesAPIKey(cfg.Provider) {
			return nil, fmt.Errorf("provider %q requires an API key (set VEIL_API_KEY or the provider's conventional env var)", cfg.Provider)
		}
		provider, err := llm.NewProvider(cfg.Provider, apiKey, cfg.OllamaBaseURL)
		if err != nil {
			return nil, fmt.Errorf("building provider: %w", err)
		}
		contextDetector = detector.New(provider, cfg.DetectorConfig())
		log.Debug().Str("provider", provider.Name()).Str("model", cfg.Model).Msg("context detector configured")
	}

	return pipeline.New(cfg.Pipeline, scanner, contextDetector)
}
