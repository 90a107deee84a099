package pipeline

import (
	"sort"

	"github.com/veil-io/veil/internal/entity"
)

// Redact replaces every entity span in text with its type-tagged
// placeholder. Overlapping spans are merged first, then substitution runs
// in descending start order so earlier replacements never invalidate the
// offsets of entities processed later.
//
// Spans whose text no longer matches the input are skipped, which makes
// redaction idempotent: running Redact again over already-redacted text
// with the same entity list is a no-op.
func Redact(text string, entities []entity.Entity) string {
	if len(entities) == 0 {
		return text
	}

	var spans []entity.Entity
	for _, e := range entities {
		if e.MatchesText(text) {
			spans = append(spans, e)
		}
	}
	if len(spans) == 0 {
		return text
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End-spans[i].Start > spans[j].End-spans[j].Start
	})

	// Merge overlaps so a span swallowed by an earlier, longer one does not
	// produce a second substitution inside the placeholder.
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start < last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}

	result := []byte(text)
	for i := len(merged) - 1; i >= 0; i-- {
		m := merged[i]
		placeholder := m.Placeholder()
		result = append(result[:m.Start], append([]byte(placeholder), result[m.End:]...)...)
	}
	return string(result)
}
