package pipeline

import "github.com/veil-io/veil/internal/entity"

// Stats summarizes one redaction run.
type Stats struct {
	ByType                map[entity.Type]int `json:"by_type"`
	SegmentCount          int                 `json:"segment_count"`
	DegradedSegments      int                 `json:"degraded_segments"`
	HallucinationsDropped int                 `json:"hallucinations_dropped"`
	ElapsedMs             int64               `json:"elapsed_ms"`
}

// Result is the pipeline's output contract. Degraded is true only when the
// external capability was entirely unreachable — in that case SanitizedText
// is the unmodified original and the caller decides whether to block or
// proceed. Entities still lists whatever the pattern detector found so the
// caller can inspect what would have been redacted.
type Result struct {
	SanitizedText string          `json:"sanitized_text"`
	Entities      []entity.Entity `json:"entities"`
	Stats         Stats           `json:"stats"`
	Degraded      bool            `json:"degraded"`
}
