package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/veil-io/veil/internal/entity"
)

// ErrNoJSON is returned when the response contains no JSON array at all.
var ErrNoJSON = errors.New("no JSON array in response")

const systemPrompt = `You are a PII detection engine. Given a passage of text, find every span of personally identifiable or sensitive information and report it as JSON.

Allowed types: NAME, EMAIL, PHONE, ID_NUMBER, CARD_NUMBER, ADDRESS, DOB, MEDICAL, FINANCIAL, EMPLOYER.

Respond with ONLY a JSON array, no prose and no code fences. Each element:
{"type": "<TYPE>", "text": "<exact text from the passage>", "start": <byte offset>, "end": <byte offset>, "confidence": <0.0-1.0>}

Offsets are relative to the passage you were given. "text" must be copied verbatim from the passage. Report an empty array [] when nothing is found.`

// userPrompt frames the segment with its category tag. The tag steers the
// model toward domain-specific references (e.g. medication names in a
// medical transcript) without changing the output contract.
func userPrompt(segmentText, category string) string {
	var b strings.Builder
	if category != "" {
		fmt.Fprintf(&b, "Document category: %s\n\n", category)
	}
	b.WriteString("Passage:\n")
	b.WriteString(segmentText)
	return b.String()
}

// wireEntity is the structured-output contract for a single finding.
type wireEntity struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// parseEntities decodes the model's response into candidate entities.
// Tolerates surrounding prose and code fences by extracting the outermost
// JSON array, but any response that then fails to decode — or that claims
// an unknown type — violates the contract and fails the whole parse.
func parseEntities(content string) ([]entity.Entity, error) {
	raw, err := extractJSONArray(content)
	if err != nil {
		return nil, err
	}

	var wire []wireEntity
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("decoding entity array: %w", err)
	}

	entities := make([]entity.Entity, 0, len(wire))
	for i, w := range wire {
		t := entity.Type(strings.ToUpper(strings.TrimSpace(w.Type)))
		if !entity.ValidType(t) {
			return nil, fmt.Errorf("entity %d: unknown type %q", i, w.Type)
		}
		entities = append(entities, entity.Entity{
			Text:       w.Text,
			Type:       t,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Confidence,
		})
	}
	return entities, nil
}

// extractJSONArray returns the outermost [...] in content, stripping
// leading/trailing prose or markdown fences the model may have added.
func extractJSONArray(content string) (string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return content[start : end+1], nil
}
