package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors for pipeline configuration.
var (
	ErrInvalidSegmentSize = errors.New("max segment size must be positive")
	ErrInvalidOverlap     = errors.New("overlap must be non-negative and smaller than max segment size")
	ErrInvalidConcurrency = errors.New("max concurrent segments must be positive")
	ErrInvalidTimeouts    = errors.New("timeouts must be positive")
)

// Config is the full tuning surface of a redaction run. It is an immutable
// value handed to New; components never read process-wide mutable state.
type Config struct {
	MaxSegmentSize int `json:"max_segment_size"`
	OverlapSize    int `json:"overlap_size"`
	// ChunkThreshold is the document length below which segmentation is
	// skipped and a single context-detection call is made (short path).
	ChunkThreshold        int `json:"chunk_threshold"`
	MaxConcurrentSegments int `json:"max_concurrent_segments"`

	BaseTimeout  time.Duration `json:"base_timeout"`
	TimeoutPerKB time.Duration `json:"timeout_per_kb"`
	MaxTimeout   time.Duration `json:"max_timeout"`
	MaxRetries   int           `json:"max_retries"`

	EnableContextDetection bool `json:"enable_context_detection"`
	EnablePatternDetection bool `json:"enable_pattern_detection"`
	EnableSegmentation     bool `json:"enable_segmentation"`
}

// DefaultConfig returns the standard production configuration.
func DefaultConfig() Config {
	return Config{
		MaxSegmentSize:         5000,
		OverlapSize:            200,
		ChunkThreshold:         5000,
		MaxConcurrentSegments:  4,
		BaseTimeout:            10 * time.Second,
		TimeoutPerKB:           2 * time.Second,
		MaxTimeout:             60 * time.Second,
		MaxRetries:             2,
		EnableContextDetection: true,
		EnablePatternDetection: true,
		EnableSegmentation:     true,
	}
}

// Validate rejects parameter combinations that would make segmentation or
// fan-out misbehave. Called from New; invalid config is a programming
// error, not a runtime degradation.
func (c Config) Validate() error {
	if c.MaxSegmentSize <= 0 {
		return fmt.Errorf("pipeline config: %w (got %d)", ErrInvalidSegmentSize, c.MaxSegmentSize)
	}
	if c.OverlapSize < 0 || c.OverlapSize >= c.MaxSegmentSize {
		return fmt.Errorf("pipeline config: %w (max %d, overlap %d)", ErrInvalidOverlap, c.MaxSegmentSize, c.OverlapSize)
	}
	if c.MaxConcurrentSegments <= 0 {
		return fmt.Errorf("pipeline config: %w (got %d)", ErrInvalidConcurrency, c.MaxConcurrentSegments)
	}
	if c.EnableContextDetection && (c.BaseTimeout <= 0 || c.MaxTimeout <= 0) {
		return fmt.Errorf("pipeline config: %w", ErrInvalidTimeouts)
	}
	return nil
}
