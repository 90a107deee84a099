// Package detector implements the context detector: one LLM call per
// segment with deterministic generation settings and a strict JSON output
// contract, guarded by an adaptive payload-scaled timeout, bounded retries,
// and a hallucination check on every returned entity.
package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/veil-io/veil/internal/entity"
	"github.com/veil-io/veil/internal/llm"
	veilotel "github.com/veil-io/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/veil-io/veil/internal/detector")

// ErrRetriesExhausted is returned when every attempt for a segment failed.
// The owning segment degrades to pattern-only results; the error never
// propagates past the pipeline.
var ErrRetriesExhausted = errors.New("context detection retries exhausted")

// Config tunes the detector's timeout, retry, and rate-limit behavior.
type Config struct {
	Model string

	// Adaptive timeout: min(MaxTimeout, BaseTimeout + TimeoutPerKB * KB).
	// Latency of the analysis capability scales roughly with payload size
	// but with large variance; a fixed timeout either mass-times-out large
	// payloads or wastes wall clock on small ones.
	BaseTimeout  time.Duration
	TimeoutPerKB time.Duration
	MaxTimeout   time.Duration

	MaxRetries int

	// RequestsPerSecond caps outbound calls across all segments; zero
	// disables rate limiting.
	RequestsPerSecond float64
}

// DefaultConfig returns conservative defaults for a hosted provider.
func DefaultConfig(model string) Config {
	return Config{
		Model:             model,
		BaseTimeout:       10 * time.Second,
		TimeoutPerKB:      2 * time.Second,
		MaxTimeout:        60 * time.Second,
		MaxRetries:        2,
		RequestsPerSecond: 5,
	}
}

// Detector finds context-dependent PII (names, addresses, dates of birth,
// medical/financial/employer references) in a single segment.
type Detector struct {
	provider llm.Provider
	cfg      Config
	limiter  *rate.Limiter
}

// New creates a context detector backed by the given provider.
func New(provider llm.Provider, cfg Config) *Detector {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Detector{provider: provider, cfg: cfg, limiter: limiter}
}

// Timeout returns the adaptive timeout for a payload of the given byte size.
func (d *Detector) Timeout(sizeBytes int) time.Duration {
	timeout := d.cfg.BaseTimeout + time.Duration(float64(d.cfg.TimeoutPerKB)*float64(sizeBytes)/1024.0)
	if timeout > d.cfg.MaxTimeout {
		timeout = d.cfg.MaxTimeout
	}
	return timeout
}

// Detect analyzes one segment and returns entities with segment-local
// offsets and Source set to context. Timeouts, transient provider errors,
// and malformed responses are retried up to MaxRetries; when exhausted it
// returns ErrRetriesExhausted and the caller degrades that segment.
// A failed attempt cancels only its own call, never sibling segments.
func (d *Detector) Detect(ctx context.Context, segmentText, category string) (entity.Detection, error) {
	ctx, span := tracer.Start(ctx, "detector.detect")
	defer span.End()

	timeout := d.Timeout(len(segmentText))
	span.SetAttributes(
		attribute.Int("segment.size_bytes", len(segmentText)),
		attribute.Int64("segment.timeout_ms", timeout.Milliseconds()),
	)

	req := &llm.Request{
		Model: d.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(segmentText, category)},
		},
		Temperature: 0,
		MaxTokens:   maxTokensFor(len(segmentText)),
	}

	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepRetry(ctx, attempt); err != nil {
				return entity.Detection{}, err
			}
			log.Debug().Int("attempt", attempt).Err(lastErr).Msg("retrying context detection")
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return entity.Detection{}, err
			}
		}

		detection, err := d.attempt(ctx, timeout, req, segmentText)
		if err == nil {
			span.SetAttributes(
				attribute.Int("pii.entity_count", len(detection.Entities)),
				attribute.Int("pii.hallucinations_dropped", detection.Hallucinations),
				attribute.Int("detector.attempts", attempt+1),
			)
			return detection, nil
		}
		lastErr = err

		// The parent being done is not a transient provider failure.
		if ctx.Err() != nil {
			return entity.Detection{}, ctx.Err()
		}
	}

	span.RecordError(lastErr)
	return entity.Detection{}, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// attempt runs a single provider call under the adaptive timeout and parses
// the structured output. The timeout context cancels only this call.
func (d *Detector) attempt(ctx context.Context, timeout time.Duration, req *llm.Request, segmentText string) (entity.Detection, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := d.provider.Generate(callCtx, req)
	if err != nil {
		return entity.Detection{}, fmt.Errorf("context detection call: %w", err)
	}

	claimed, err := parseEntities(resp.Content)
	if err != nil {
		// Malformed structured output is treated like a transient failure:
		// no partial trust of a payload that violated the contract.
		return entity.Detection{}, fmt.Errorf("malformed detection response: %w", err)
	}

	var detection entity.Detection
	for _, e := range claimed {
		if !e.MatchesText(segmentText) {
			detection.Hallucinations++
			log.Debug().
				Str("type", string(e.Type)).
				Int("start", e.Start).
				Int("end", e.End).
				Msg("dropping hallucinated entity")
			continue
		}
		e.Source = entity.SourceContext
		detection.Entities = append(detection.Entities, e)
	}
	return detection, nil
}

// sleepRetry waits with quadratic backoff, honoring ctx cancellation.
func sleepRetry(ctx context.Context, attempt int) error {
	backoff := time.Duration(attempt*attempt) * 200 * time.Millisecond
	if backoff > 2*time.Second {
		backoff = 2 * time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

// maxTokensFor sizes the response budget to the payload; entity lists are
// compact relative to their source text.
func maxTokensFor(segmentBytes int) int {
	tokens := segmentBytes / 2
	if tokens < 512 {
		tokens = 512
	}
	if tokens > 4096 {
		tokens = 4096
	}
	return tokens
}
