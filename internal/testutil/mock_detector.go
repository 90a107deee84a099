package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/veil-io/veil/internal/entity"
)

// MockDetector implements the pipeline's ContextDetector port with canned
// per-segment results, keyed by a substring of the segment text. Segments
// matching FailOn degrade (Detect returns Err); unmatched segments return
// an empty detection.
type MockDetector struct {
	mu sync.Mutex
	// BySubstring maps a distinguishing substring of a segment's text to
	// the detection returned for that segment.
	BySubstring map[string]entity.Detection
	// FailOn lists substrings whose segments fail with Err.
	FailOn []string
	Err    error
	// Segments records every segment text Detect received, in call order.
	Segments []string
}

// Detect returns the canned detection for the first matching substring.
func (m *MockDetector) Detect(_ context.Context, segmentText, _ string) (entity.Detection, error) {
	m.mu.Lock()
	m.Segments = append(m.Segments, segmentText)
	m.mu.Unlock()

	for _, sub := range m.FailOn {
		if strings.Contains(segmentText, sub) {
			return entity.Detection{}, m.Err
		}
	}
	for sub, detection := range m.BySubstring {
		if strings.Contains(segmentText, sub) {
			return detection, nil
		}
	}
	return entity.Detection{}, nil
}

// FailingDetector implements the ContextDetector port and fails every call.
type FailingDetector struct {
	Err error
}

// Detect always returns the configured error.
func (f *FailingDetector) Detect(context.Context, string, string) (entity.Detection, error) {
	return entity.Detection{}, f.Err
}

// LocalEntity builds a segment-local context entity for test fixtures,
// locating text within segment to fill in offsets. Panics if text is not
// present; fixtures should always contain their own entities.
func LocalEntity(segment, text string, typ entity.Type) entity.Entity {
	idx := strings.Index(segment, text)
	if idx < 0 {
		panic("testutil: entity text not present in segment: " + text)
	}
	return entity.Entity{
		Text:       text,
		Type:       typ,
		Start:      idx,
		End:        idx + len(text),
		Confidence: 0.95,
		Source:     entity.SourceContext,
	}
}
