// Package entity defines the shared data model for the redaction pipeline:
// documents, detected PII entities, and the normalization helpers used when
// reconciling entities across detectors.
package entity

import "strings"

// Type classifies a detected PII span.
type Type string

// Entity types recognized by the pipeline. Pattern detection covers the
// lexically unambiguous classes (EMAIL, PHONE, ID_NUMBER, CARD_NUMBER);
// context detection covers the rest.
const (
	TypeName       Type = "NAME"
	TypeEmail      Type = "EMAIL"
	TypePhone      Type = "PHONE"
	TypeIDNumber   Type = "ID_NUMBER"
	TypeCardNumber Type = "CARD_NUMBER"
	TypeAddress    Type = "ADDRESS"
	TypeDOB        Type = "DOB"
	TypeMedical    Type = "MEDICAL"
	TypeFinancial  Type = "FINANCIAL"
	TypeEmployer   Type = "EMPLOYER"
)

// AllTypes lists every valid entity type.
var AllTypes = []Type{
	TypeName, TypeEmail, TypePhone, TypeIDNumber, TypeCardNumber,
	TypeAddress, TypeDOB, TypeMedical, TypeFinancial, TypeEmployer,
}

// ValidType reports whether t is one of the known entity types.
func ValidType(t Type) bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Source identifies which detector produced an entity.
type Source string

const (
	// SourcePattern marks entities found by the deterministic regex scanner.
	SourcePattern Source = "pattern"
	// SourceContext marks entities found by the LLM-backed context detector.
	SourceContext Source = "context"
)

// Entity is a detected PII span. Offsets are byte offsets; whether they are
// local to a segment or global to the document depends on pipeline stage —
// the reconciler remaps segment-local offsets to document-global ones.
type Entity struct {
	Text       string  `json:"text"`
	Type       Type    `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// SpanValid reports whether the entity's offsets form a non-empty span.
func (e Entity) SpanValid() bool {
	return e.Start >= 0 && e.Start < e.End
}

// MatchesText reports whether text contains e.Text exactly at e's claimed
// offsets. Entities that fail this check are hallucinations and must never
// be redacted.
func (e Entity) MatchesText(text string) bool {
	if !e.SpanValid() || e.End > len(text) {
		return false
	}
	return text[e.Start:e.End] == e.Text
}

// Placeholder returns the redaction token for the entity's type, e.g.
// "[EMAIL]". The token embeds the type but never the value.
func (e Entity) Placeholder() string {
	return "[" + string(e.Type) + "]"
}

// Normalize lowercases and trims an entity text for deduplication keys.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Detection is the outcome of one context-detection call on a segment.
// Offsets in Entities are local to the segment that was analyzed.
type Detection struct {
	Entities []Entity `json:"entities"`
	// Hallucinations counts claimed entities dropped because their text did
	// not match the segment at the claimed offset.
	Hallucinations int `json:"hallucinations"`
}

// Document is the immutable input to a redaction run. Category influences
// the context-detection prompt (e.g. "medical" vs "sales_call") but not
// pattern detection.
type Document struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Len returns the document length in bytes.
func (d Document) Len() int { return len(d.Text) }
