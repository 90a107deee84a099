package pipeline

import (
	"sort"

	"github.com/veil-io/veil/internal/entity"
	"github.com/veil-io/veil/internal/segmenter"
)

// Reconcile merges pattern-detector output (already document-global) with
// per-segment context-detector output into one deduplicated, document-global
// entity list.
//
// Context entities are remapped by their segment's start offset, clipped to
// the segment's bounds, and re-verified against the document text. Dedup key
// is (start, end, normalized text); context entities are considered before
// pattern entities and in ascending segment-index order, so when duplicates
// tie, the context finding — and among those the lower segment index — wins,
// making output deterministic regardless of completion order.
func Reconcile(doc entity.Document, segments []segmenter.Segment, perSegment []entity.Detection, patternEntities []entity.Entity) []entity.Entity {
	var candidates []entity.Entity

	for i, seg := range segments {
		if i >= len(perSegment) {
			break
		}
		for _, e := range perSegment[i].Entities {
			if g, ok := remap(doc, seg, e); ok {
				candidates = append(candidates, g)
			}
		}
	}

	for _, e := range patternEntities {
		if e.MatchesText(doc.Text) {
			candidates = append(candidates, e)
		}
	}

	deduped := dedupe(candidates)
	resolved := resolveConflicts(deduped)

	sort.Slice(resolved, func(i, j int) bool {
		if resolved[i].Start != resolved[j].Start {
			return resolved[i].Start < resolved[j].Start
		}
		return resolved[i].End < resolved[j].End
	})
	return resolved
}

// remap converts a segment-local entity to document-global offsets. Entities
// wholly outside the segment are dropped; partial overhang is clipped to the
// segment bounds with the text re-sliced from the document, preserving the
// invariant doc.Text[start:end] == text.
func remap(doc entity.Document, seg segmenter.Segment, e entity.Entity) (entity.Entity, bool) {
	if !e.SpanValid() {
		return entity.Entity{}, false
	}
	start := seg.Start + e.Start
	end := seg.Start + e.End
	if start >= seg.End || end <= seg.Start {
		return entity.Entity{}, false
	}
	clipped := false
	if start < seg.Start {
		start = seg.Start
		clipped = true
	}
	if end > seg.End {
		end = seg.End
		clipped = true
	}
	if start >= end || end > len(doc.Text) {
		return entity.Entity{}, false
	}

	e.Start = start
	e.End = end
	if clipped {
		e.Text = doc.Text[start:end]
	} else if !e.MatchesText(doc.Text) {
		return entity.Entity{}, false
	}
	return e, true
}

type dedupeKey struct {
	start int
	end   int
	text  string
}

// dedupe removes duplicate findings; first occurrence wins.
func dedupe(entities []entity.Entity) []entity.Entity {
	seen := make(map[dedupeKey]bool, len(entities))
	var out []entity.Entity
	for _, e := range entities {
		key := dedupeKey{e.Start, e.End, entity.Normalize(e.Text)}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// resolveConflicts applies the precedence rule for overlapping-but-distinct
// spans: when two entities overlap by more than half the shorter span's
// length and have different types, the context finding wins — semantic
// detection is treated as higher precision for ambiguous boundaries than
// lexical matching. All other overlaps are kept as disjoint findings.
func resolveConflicts(entities []entity.Entity) []entity.Entity {
	drop := make([]bool, len(entities))
	for i := 0; i < len(entities); i++ {
		if drop[i] {
			continue
		}
		for j := i + 1; j < len(entities); j++ {
			if drop[j] {
				continue
			}
			a, b := entities[i], entities[j]
			if a.Type == b.Type || !majorityOverlap(a, b) {
				continue
			}
			switch {
			case a.Source == entity.SourceContext && b.Source == entity.SourcePattern:
				drop[j] = true
			case a.Source == entity.SourcePattern && b.Source == entity.SourceContext:
				drop[i] = true
			}
		}
	}

	var out []entity.Entity
	for i, e := range entities {
		if !drop[i] {
			out = append(out, e)
		}
	}
	return out
}

// majorityOverlap reports whether the spans overlap by more than half the
// shorter span's length.
func majorityOverlap(a, b entity.Entity) bool {
	lo := a.Start
	if b.Start > lo {
		lo = b.Start
	}
	hi := a.End
	if b.End < hi {
		hi = b.End
	}
	overlap := hi - lo
	if overlap <= 0 {
		return false
	}
	shorter := a.End - a.Start
	if l := b.End - b.Start; l < shorter {
		shorter = l
	}
	return overlap*2 > shorter
}
