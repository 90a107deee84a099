// Package segmenter splits long documents into overlapping segments at
// natural linguistic boundaries so each external detection call stays within
// a manageable payload size. Offsets are tracked against the original
// document so segment-local findings can be remapped later.
package segmenter

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Domain errors for segmentation parameters.
var (
	ErrInvalidMaxSize = errors.New("max size must be positive")
	ErrInvalidOverlap = errors.New("overlap must be non-negative and smaller than max size")
)

// Segment is a bounded slice of a document. Start and End are byte offsets
// into the original text; Text == document[Start:End].
type Segment struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Split divides text into ordered, overlapping segments of at most maxSize
// bytes. Consecutive segments overlap by at most overlap bytes, and every
// byte of the input is covered by at least one segment.
//
// At each target cut point the splitter searches backward up to overlap
// bytes for the best available boundary, preferring a paragraph break, then
// a sentence terminator, then a word boundary, falling back to a hard cut.
func Split(text string, maxSize, overlap int) ([]Segment, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("segmenter: %w (got %d)", ErrInvalidMaxSize, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("segmenter: %w (max %d, overlap %d)", ErrInvalidOverlap, maxSize, overlap)
	}

	if len(text) <= maxSize {
		return []Segment{{Index: 0, Start: 0, End: len(text), Text: text}}, nil
	}

	var segments []Segment
	start := 0
	for {
		end := start + maxSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, end, overlap)
		}

		segments = append(segments, Segment{
			Index: len(segments),
			Start: start,
			End:   end,
			Text:  text[start:end],
		})

		if end == len(text) {
			return segments, nil
		}

		next := end - overlap
		if next <= start {
			// Boundary search shrank the segment below the overlap; force
			// forward progress so segmentation always terminates.
			next = start + maxSize - overlap
		}
		// Round up to a rune start so the next segment never opens
		// mid-rune; this only shrinks the overlap, never grows it.
		for next < end && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
}

// cutPoint returns the best cut position at or before target, searching
// backward at most window bytes. A cut lands immediately after the boundary
// so the boundary characters stay with the preceding segment. The hard-cut
// fallback backs off to a rune start so segments stay valid UTF-8.
func cutPoint(text string, target, window int) int {
	lo := target - window
	if lo < 0 {
		lo = 0
	}
	region := text[lo:target]

	if i := strings.LastIndex(region, "\n\n"); i >= 0 {
		return lo + i + 2
	}
	if i := lastSentenceEnd(region); i >= 0 {
		return lo + i
	}
	if i := strings.LastIndexAny(region, " \t\n"); i > 0 {
		return lo + i + 1
	}
	for target > lo && !utf8.RuneStart(text[target]) {
		target--
	}
	return target
}

// lastSentenceEnd returns the position just past the last sentence
// terminator (. ! ?) that is followed by whitespace, or -1.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i > 0; i-- {
		c := s[i]
		if c != ' ' && c != '\n' && c != '\t' {
			continue
		}
		switch s[i-1] {
		case '.', '!', '?':
			return i + 1
		}
	}
	return -1
}
