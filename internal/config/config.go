// Package config holds operator-level configuration for a Veil process.
//
// Everything here is infrastructure and tuning: provider selection, listen
// address, pipeline knobs. Set via env vars (VEIL_*) or a config file
// (veil.config.yaml). Provider API keys are read from the conventional env
// vars (OPENAI_API_KEY, ANTHROPIC_API_KEY) or VEIL_API_KEY.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/veil-io/veil/internal/detector"
	"github.com/veil-io/veil/internal/pipeline"
)

// Viper keys. Each maps to an env var with the VEIL_ prefix
// (e.g. "provider" → VEIL_PROVIDER) and to a YAML field in
// veil.config.yaml.
const (
	KeyDataDir       = "data_dir"
	KeyListenAddr    = "listen_addr"
	KeyAPIKey        = "api_key"
	KeyProvider      = "provider"
	KeyModel         = "model"
	KeyOllamaBaseURL = "ollama_base_url"
	KeyPatternFile   = "pattern_file"

	KeyMaxSegmentSize        = "max_segment_size"
	KeyOverlapSize           = "overlap_size"
	KeyChunkThreshold        = "chunk_threshold"
	KeyMaxConcurrentSegments = "max_concurrent_segments"
	KeyBaseTimeoutMs         = "base_timeout_ms"
	KeyTimeoutPerKBMs        = "timeout_per_kb_ms"
	KeyMaxTimeoutMs          = "max_timeout_ms"
	KeyMaxRetries            = "max_retries"
	KeyRequestsPerSecond     = "requests_per_second"

	KeyEnableContextDetection = "enable_context_detection"
	KeyEnablePatternDetection = "enable_pattern_detection"
	KeyEnableSegmentation     = "enable_segmentation"
)

// Defaults.
const (
	DefaultListenAddr = ":8520"
	DefaultProvider   = "ollama"
	DefaultModel      = "llama3.1:8b"
	DefaultOllamaURL  = "http://localhost:11434"
)

// Config holds resolved operator-level configuration for a Veil process.
type Config struct {
	DataDir       string // base directory for local state (~/.veil)
	ListenAddr    string // HTTP listen address for veil serve
	APIKey        string // provider API key (hosted providers only)
	Provider      string // "openai", "anthropic", or "ollama"
	Model         string // model identifier for the context detector
	OllamaBaseURL string // Ollama API endpoint
	PatternFile   string // optional global recognizer override file

	Pipeline          pipeline.Config
	RequestsPerSecond float64
}

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// DetectorConfig derives the context-detector configuration from the
// pipeline knobs and provider selection.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		Model:             c.Model,
		BaseTimeout:       c.Pipeline.BaseTimeout,
		TimeoutPerKB:      c.Pipeline.TimeoutPerKB,
		MaxTimeout:        c.Pipeline.MaxTimeout,
		MaxRetries:        c.Pipeline.MaxRetries,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// ResolveAPIKey returns the provider API key, falling back to the
// conventional env vars when VEIL_API_KEY is unset.
func (c *Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch c.Provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

func init() {
	viper.SetEnvPrefix("VEIL")
	viper.AutomaticEnv()

	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyProvider, DefaultProvider)
	viper.SetDefault(KeyModel, DefaultModel)
	viper.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)

	defaults := pipeline.DefaultConfig()
	viper.SetDefault(KeyMaxSegmentSize, defaults.MaxSegmentSize)
	viper.SetDefault(KeyOverlapSize, defaults.OverlapSize)
	viper.SetDefault(KeyChunkThreshold, defaults.ChunkThreshold)
	viper.SetDefault(KeyMaxConcurrentSegments, defaults.MaxConcurrentSegments)
	viper.SetDefault(KeyBaseTimeoutMs, defaults.BaseTimeout.Milliseconds())
	viper.SetDefault(KeyTimeoutPerKBMs, defaults.TimeoutPerKB.Milliseconds())
	viper.SetDefault(KeyMaxTimeoutMs, defaults.MaxTimeout.Milliseconds())
	viper.SetDefault(KeyMaxRetries, defaults.MaxRetries)
	viper.SetDefault(KeyRequestsPerSecond, 5.0)
	viper.SetDefault(KeyEnableContextDetection, true)
	viper.SetDefault(KeyEnablePatternDetection, true)
	viper.SetDefault(KeyEnableSegmentation, true)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:       resolveDataDir(),
		ListenAddr:    viper.GetString(KeyListenAddr),
		APIKey:        viper.GetString(KeyAPIKey),
		Provider:      viper.GetString(KeyProvider),
		Model:         viper.GetString(KeyModel),
		OllamaBaseURL: viper.GetString(KeyOllamaBaseURL),
		PatternFile:   viper.GetString(KeyPatternFile),
		Pipeline: pipeline.Config{
			MaxSegmentSize:         viper.GetInt(KeyMaxSegmentSize),
			OverlapSize:            viper.GetInt(KeyOverlapSize),
			ChunkThreshold:         viper.GetInt(KeyChunkThreshold),
			MaxConcurrentSegments:  viper.GetInt(KeyMaxConcurrentSegments),
			BaseTimeout:            time.Duration(viper.GetInt64(KeyBaseTimeoutMs)) * time.Millisecond,
			TimeoutPerKB:           time.Duration(viper.GetInt64(KeyTimeoutPerKBMs)) * time.Millisecond,
			MaxTimeout:             time.Duration(viper.GetInt64(KeyMaxTimeoutMs)) * time.Millisecond,
			MaxRetries:             viper.GetInt(KeyMaxRetries),
			EnableContextDetection: viper.GetBool(KeyEnableContextDetection),
			EnablePatternDetection: viper.GetBool(KeyEnablePatternDetection),
			EnableSegmentation:     viper.GetBool(KeyEnableSegmentation),
		},
		RequestsPerSecond: viper.GetFloat64(KeyRequestsPerSecond),
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	switch cfg.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return nil, fmt.Errorf("invalid configuration: unknown provider %q", cfg.Provider)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veil"
	}
	return filepath.Join(home, ".veil")
}
