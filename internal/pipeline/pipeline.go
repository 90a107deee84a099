// Package pipeline orchestrates a redaction run: pattern scanning over the
// whole document, segmentation, bounded-concurrency context detection,
// reconciliation, and redaction. Its contract is non-throwing: Run always
// returns a well-formed Result, expressing every failure as data (the
// degraded flag and per-segment counts), never as an error to the caller.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veil-io/veil/internal/classifier"
	"github.com/veil-io/veil/internal/entity"
	veilotel "github.com/veil-io/veil/internal/otel"
	"github.com/veil-io/veil/internal/segmenter"
)

var tracer = veilotel.Tracer("github.com/veil-io/veil/internal/pipeline")

// ContextDetector is the port to the external generative text-analysis
// capability. Implementations analyze one segment and return entities with
// segment-local offsets; internal/detector provides the production
// implementation and tests substitute deterministic fakes.
type ContextDetector interface {
	Detect(ctx context.Context, segmentText, category string) (entity.Detection, error)
}

// Pipeline runs the full detection and redaction flow for one document at a
// time. It holds no state between invocations.
type Pipeline struct {
	cfg      Config
	scanner  *classifier.Scanner
	detector ContextDetector
}

// New creates a pipeline. scanner may be nil when pattern detection is
// disabled, and detector may be nil when context detection is disabled;
// the corresponding Enable flags are forced off in that case.
func New(cfg Config, scanner *classifier.Scanner, detector ContextDetector) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scanner == nil {
		cfg.EnablePatternDetection = false
	}
	if detector == nil {
		cfg.EnableContextDetection = false
	}
	return &Pipeline{cfg: cfg, scanner: scanner, detector: detector}, nil
}

// Run redacts one document. It never returns an error: segments that
// exhaust their retries degrade to pattern-only results, and only when the
// capability is entirely unreachable does the result carry the original
// text with Degraded set.
func (p *Pipeline) Run(ctx context.Context, doc entity.Document) *Result {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	var patternEntities []entity.Entity
	if p.cfg.EnablePatternDetection {
		patternEntities = p.scanner.Scan(ctx, doc.Text)
	}

	var (
		segments    []segmenter.Segment
		detections  []entity.Detection
		perSegErr   []bool
		degradedNum int
	)
	if p.cfg.EnableContextDetection {
		segments = p.segment(doc)
		detections, perSegErr = p.fanOut(ctx, segments, doc.Category)
		for _, failed := range perSegErr {
			if failed {
				degradedNum++
			}
		}
	}

	result := &Result{
		Stats: Stats{
			ByType:           make(map[entity.Type]int),
			SegmentCount:     len(segments),
			DegradedSegments: degradedNum,
		},
	}
	for _, d := range detections {
		result.Stats.HallucinationsDropped += d.Hallucinations
	}

	totalOutage := p.cfg.EnableContextDetection && len(segments) > 0 && degradedNum == len(segments)
	if totalOutage {
		// The capability is entirely unreachable: hand back the original
		// text and let the caller decide whether to block or proceed.
		result.Degraded = true
		result.SanitizedText = doc.Text
		result.Entities = Reconcile(doc, nil, nil, patternEntities)
	} else {
		result.Entities = Reconcile(doc, segments, detections, patternEntities)
		result.SanitizedText = Redact(doc.Text, result.Entities)
	}

	for _, e := range result.Entities {
		result.Stats.ByType[e.Type]++
	}
	result.Stats.ElapsedMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Int("pipeline.segment_count", result.Stats.SegmentCount),
		attribute.Int("pipeline.degraded_segments", result.Stats.DegradedSegments),
		attribute.Int("pipeline.entity_count", len(result.Entities)),
		attribute.Bool("pipeline.degraded", result.Degraded),
	)
	log.Debug().
		Int("segments", result.Stats.SegmentCount).
		Int("degraded_segments", result.Stats.DegradedSegments).
		Int("entities", len(result.Entities)).
		Bool("degraded", result.Degraded).
		Int64("elapsed_ms", result.Stats.ElapsedMs).
		Func(veilotel.LogTraceFields(ctx)).
		Msg("redaction run finished")

	return result
}

// segment chooses between the short path (one segment covering the whole
// document) and full segmentation.
func (p *Pipeline) segment(doc entity.Document) []segmenter.Segment {
	if !p.cfg.EnableSegmentation || doc.Len() < p.cfg.ChunkThreshold {
		return []segmenter.Segment{{Index: 0, Start: 0, End: doc.Len(), Text: doc.Text}}
	}
	segments, err := segmenter.Split(doc.Text, p.cfg.MaxSegmentSize, p.cfg.OverlapSize)
	if err != nil {
		// Config is validated in New, so this is unreachable; fall back to
		// the short path rather than failing the document.
		log.Error().Err(err).Msg("segmentation failed, falling back to single segment")
		return []segmenter.Segment{{Index: 0, Start: 0, End: doc.Len(), Text: doc.Text}}
	}
	return segments
}

// fanOut dispatches context detection for every segment with bounded
// concurrency. Each goroutine writes exclusively to its own slot, indexed
// by segment index, so no locking is needed and output is deterministic
// regardless of completion order. A segment's failure never cancels its
// siblings.
func (p *Pipeline) fanOut(ctx context.Context, segments []segmenter.Segment, category string) ([]entity.Detection, []bool) {
	detections := make([]entity.Detection, len(segments))
	failed := make([]bool, len(segments))

	sem := make(chan struct{}, p.cfg.MaxConcurrentSegments)
	var wg sync.WaitGroup
	for i, seg := range segments {
		wg.Add(1)
		go func(i int, seg segmenter.Segment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			detection, err := p.detector.Detect(ctx, seg.Text, category)
			if err != nil {
				failed[i] = true
				log.Warn().Err(err).Int("segment", seg.Index).Msg("segment degraded to pattern-only detection")
				return
			}
			detections[i] = detection
		}(i, seg)
	}
	wg.Wait()

	return detections, failed
}
