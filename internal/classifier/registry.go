package classifier

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/veil-io/veil/internal/entity"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema with Veil
// extensions (sensitivity, validation).
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	Sensitivity        int               `yaml:"sensitivity,omitempty" json:"sensitivity,omitempty"`
	// Validation names an optional checksum gate applied to every match.
	// Supported: "luhn".
	Validation string `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing override file as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers performs a layered merge: embedded defaults, then global
// overrides, then per-call custom recognizers. Later layers override earlier
// ones by matching on the recognizer Name field. New recognizers are appended.
func MergeRecognizers(layers ...[]*RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if rc == nil {
				continue
			}
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = *rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, *rc)
			}
		}
	}

	return merged
}

// toPtrSlice converts []RecognizerConfig to []*RecognizerConfig for MergeRecognizers.
func toPtrSlice(configs []RecognizerConfig) []*RecognizerConfig {
	ptrs := make([]*RecognizerConfig, len(configs))
	for i := range configs {
		ptrs[i] = &configs[i]
	}
	return ptrs
}

// PIIPattern is a compiled, ready-to-use detection pattern.
type PIIPattern struct {
	Name         string
	Type         entity.Type
	Pattern      *regexp.Regexp
	Score        float64
	Sensitivity  int
	ContextWords []string
	ValidateLuhn bool
}

// CompilePIIPatterns converts recognizer configs into the compiled
// []PIIPattern slice used by the Scanner at runtime. Disabled recognizers
// are skipped. Each regex pattern in a recognizer produces one PIIPattern.
func CompilePIIPatterns(recognizers []RecognizerConfig) ([]PIIPattern, error) {
	var patterns []PIIPattern

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		var contextWords []string
		for _, lang := range rec.SupportedLanguages {
			contextWords = append(contextWords, lang.Context...)
		}
		for _, p := range rec.Patterns {
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			patterns = append(patterns, PIIPattern{
				Name:         rec.Name,
				Type:         entityToType(rec.SupportedEntity),
				Pattern:      compiled,
				Score:        p.Score,
				Sensitivity:  rec.Sensitivity,
				ContextWords: contextWords,
				ValidateLuhn: rec.Validation == "luhn",
			})
		}
	}

	return patterns, nil
}

// FilterByEntities applies enabled/disabled entity filters to a recognizer
// list. If enabledEntities is non-empty, only recognizers with a matching
// supported_entity are kept (whitelist). Then any recognizer in
// disabledEntities is removed (blacklist).
func FilterByEntities(recognizers []RecognizerConfig, enabledEntities, disabledEntities []string) []RecognizerConfig {
	result := recognizers

	if len(enabledEntities) > 0 {
		allowed := make(map[string]bool, len(enabledEntities))
		for _, e := range enabledEntities {
			allowed[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabledEntities) > 0 {
		blocked := make(map[string]bool, len(disabledEntities))
		for _, e := range disabledEntities {
			blocked[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

// entityTypeMap maps Presidio-style entity names to the pipeline's entity
// types. Several lexical classes collapse into ID_NUMBER.
var entityTypeMap = map[string]entity.Type{
	"EMAIL_ADDRESS": entity.TypeEmail,
	"PHONE_NUMBER":  entity.TypePhone,
	"US_SSN":        entity.TypeIDNumber,
	"UK_NINO":       entity.TypeIDNumber,
	"ID_NUMBER":     entity.TypeIDNumber,
	"CREDIT_CARD":   entity.TypeCardNumber,
	"DATE_OF_BIRTH": entity.TypeDOB,
}

// entityToType maps a recognizer entity name to the pipeline entity type.
// Unknown names pass through unchanged so custom recognizers can emit any
// of the pipeline's types directly.
func entityToType(name string) entity.Type {
	if t, ok := entityTypeMap[name]; ok {
		return t
	}
	return entity.Type(name)
}
