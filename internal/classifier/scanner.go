// Package classifier implements the deterministic pattern detector: a
// Presidio-style recognizer registry compiled to regex patterns, with
// checksum validation gates and context-word confidence boosting. It covers
// the PII classes with unambiguous lexical signatures; context-dependent
// classes are the context detector's job.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/veil-io/veil/internal/entity"
	veilotel "github.com/veil-io/veil/internal/otel"
	"github.com/veil-io/veil/patterns"
)

var tracer = veilotel.Tracer("github.com/veil-io/veil/internal/classifier")

const (
	// DefaultMinScore is the Presidio-compatible minimum confidence
	// threshold. Matches below this score are discarded unless boosted by
	// context words.
	DefaultMinScore = 0.5

	// ContextSimilarityFactor is the score boost applied when context words
	// are found near a match. Matches Presidio's default
	// context_similarity_factor.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of characters to search before and
	// after a match when looking for context words.
	ContextWindowChars = 100
)

// Scanner detects PII in text using configurable regex patterns. It runs
// once over the full document, needs no external calls, and treats
// malformed input as zero matches.
type Scanner struct {
	patterns []PIIPattern
	minScore float64
}

// ScannerOption configures a Scanner via the functional options pattern.
type ScannerOption func(*scannerConfig)

type scannerConfig struct {
	patternFile       string
	enabledEntities   []string
	disabledEntities  []string
	customRecognizers []RecognizerConfig
	minScore          float64
}

// WithMinScore overrides the default minimum confidence threshold for matches.
func WithMinScore(score float64) ScannerOption {
	return func(c *scannerConfig) { c.minScore = score }
}

// WithPatternFile loads additional recognizers from a recognizer YAML file.
// If the file does not exist, it is silently skipped.
func WithPatternFile(path string) ScannerOption {
	return func(c *scannerConfig) { c.patternFile = path }
}

// WithEnabledEntities sets a whitelist of entity names. When non-empty, only
// recognizers with a matching supported_entity will be active.
func WithEnabledEntities(entities []string) ScannerOption {
	return func(c *scannerConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities sets a blacklist of entity names to exclude.
func WithDisabledEntities(entities []string) ScannerOption {
	return func(c *scannerConfig) { c.disabledEntities = entities }
}

// WithCustomRecognizers adds caller-supplied recognizer definitions.
func WithCustomRecognizers(recognizers []RecognizerConfig) ScannerOption {
	return func(c *scannerConfig) { c.customRecognizers = recognizers }
}

// DefaultRecognizers returns the built-in recognizers parsed from the
// embedded pii.yaml file. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// NewScanner creates a pattern scanner. Without options it uses the
// embedded defaults. Options layer overrides and customization on top.
func NewScanner(opts ...ScannerOption) (*Scanner, error) {
	var cfg scannerConfig
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	var globalRecs []*RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			globalRecs = toPtrSlice(rf.Recognizers)
		}
	}

	var customRecs []*RecognizerConfig
	if len(cfg.customRecognizers) > 0 {
		customRecs = toPtrSlice(cfg.customRecognizers)
	}

	merged := MergeRecognizers(toPtrSlice(defaults), globalRecs, customRecs)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := CompilePIIPatterns(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	minScore := DefaultMinScore
	if cfg.minScore > 0 {
		minScore = cfg.minScore
	}

	return &Scanner{patterns: compiled, minScore: minScore}, nil
}

// MustNewScanner is like NewScanner but panics on error. Useful for
// zero-config startup where the embedded defaults are expected to always
// compile.
func MustNewScanner(opts ...ScannerOption) *Scanner {
	s, err := NewScanner(opts...)
	if err != nil {
		panic(fmt.Sprintf("classifier.NewScanner: %v", err))
	}
	return s
}

// Recognizers returns the compiled pattern set, for introspection.
func (s *Scanner) Recognizers() []PIIPattern {
	return s.patterns
}

// Scan analyzes text and returns detected entities with document offsets
// and Source set to pattern. Each match goes through its recognizer's hard
// validation gate (Luhn) and then score-based context filtering before
// being accepted.
func (s *Scanner) Scan(ctx context.Context, text string) []entity.Entity {
	_, span := tracer.Start(ctx, "classifier.scan")
	defer span.End()

	var found []entity.Entity
	for _, pattern := range s.patterns {
		matches := pattern.Pattern.FindAllStringIndex(text, -1)
		for _, match := range matches {
			value := text[match[0]:match[1]]

			if pattern.ValidateLuhn && !luhnValid(stripNonDigits(value)) {
				continue
			}

			confidence := enhanceScoreWithContext(text, match[0], pattern.Score, pattern.ContextWords)
			if confidence < s.minScore {
				continue
			}
			if confidence > 1.0 {
				confidence = 1.0
			}

			found = append(found, entity.Entity{
				Text:       value,
				Type:       pattern.Type,
				Start:      match[0],
				End:        match[1],
				Confidence: confidence,
				Source:     entity.SourcePattern,
			})
		}
	}

	span.SetAttributes(
		attribute.Bool("pii.detected", len(found) > 0),
		attribute.Int("pii.entity_count", len(found)),
	)

	return found
}

// luhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// enhanceScoreWithContext boosts a match's base score if context words are
// found within +/- ContextWindowChars characters of the match position.
// This mirrors Presidio's LemmaContextAwareEnhancer with a fixed
// context_similarity_factor.
func enhanceScoreWithContext(text string, position int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	start := position - ContextWindowChars
	if start < 0 {
		start = 0
	}
	end := position + ContextWindowChars
	if end > len(text) {
		end = len(text)
	}
	window := strings.ToLower(text[start:end])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			return baseScore + ContextSimilarityFactor
		}
	}
	return baseScore
}

// stripNonDigits removes all non-digit characters from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
