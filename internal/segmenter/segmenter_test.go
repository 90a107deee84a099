package segmenter

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// words returns n unique 5-byte words ("w000 w001 ...") so offsets are easy
// to reason about and any slice of the text is unique.
func words(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "w%03d ", i)
	}
	return b.String()
}

func TestSplitShortDocument(t *testing.T) {
	text := "A short note."
	segments, err := Split(text, 5000, 200)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, 0, segments[0].Index)
	assert.Equal(t, 0, segments[0].Start)
	assert.Equal(t, len(text), segments[0].End)
	assert.Equal(t, text, segments[0].Text)
}

func TestSplitInvalidParameters(t *testing.T) {
	_, err := Split("text", 0, 0)
	require.ErrorIs(t, err, ErrInvalidMaxSize)

	_, err = Split("text", -5, 0)
	require.ErrorIs(t, err, ErrInvalidMaxSize)

	_, err = Split("text", 100, -1)
	require.ErrorIs(t, err, ErrInvalidOverlap)

	_, err = Split("text", 100, 100)
	require.ErrorIs(t, err, ErrInvalidOverlap)
}

func TestSplitCoverage(t *testing.T) {
	// The union of segments must reconstruct the document exactly.
	inputs := []string{
		words(160),
		strings.Repeat("One sentence here. Another follows! A third? ", 120),
		strings.Repeat("paragraph one\n\nparagraph two\n\n", 100),
		strings.Repeat("x", 3001), // no boundaries at all
	}

	for i, text := range inputs {
		t.Run(fmt.Sprintf("input_%d", i), func(t *testing.T) {
			segments, err := Split(text, 500, 100)
			require.NoError(t, err)
			require.NotEmpty(t, segments)

			assert.Equal(t, 0, segments[0].Start)
			assert.Equal(t, len(text), segments[len(segments)-1].End)
			for j, seg := range segments {
				assert.Equal(t, j, seg.Index)
				assert.Equal(t, text[seg.Start:seg.End], seg.Text)
				assert.LessOrEqual(t, seg.End-seg.Start, 500)
				if j > 0 {
					prev := segments[j-1]
					// No gaps, bounded overlap.
					assert.LessOrEqual(t, seg.Start, prev.End, "gap between segments %d and %d", j-1, j)
					assert.GreaterOrEqual(t, seg.Start, prev.End-100, "overlap exceeds bound at segment %d", j)
				}
			}
		})
	}
}

func TestSplitThreeSegments(t *testing.T) {
	// A 12000-char document with maxSize 5000 yields exactly 3 segments.
	text := words(2400)
	require.Len(t, text, 12000)

	segments, err := Split(text, 5000, 200)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, 0, segments[0].Start)
	assert.Equal(t, 12000, segments[2].End)
	for i := 1; i < 3; i++ {
		overlap := segments[i-1].End - segments[i].Start
		assert.Equal(t, 200, overlap)
	}
}

func TestSplitPrefersParagraphBreak(t *testing.T) {
	// A paragraph break inside the search window beats the sentence end
	// and word boundaries that are closer to the target.
	para := strings.Repeat("a", 380) + "\n\n" + "Second part. " + strings.Repeat("b", 200)
	segments, err := Split(para, 450, 100)
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)
	// Cut immediately after the "\n\n" at offset 380.
	assert.Equal(t, 382, segments[0].End)
}

func TestSplitPrefersSentenceEnd(t *testing.T) {
	text := strings.Repeat("a", 380) + ". " + strings.Repeat("b c d e f g ", 40)
	segments, err := Split(text, 450, 100)
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)
	// Cut after ". " at offset 380-382.
	assert.Equal(t, 382, segments[0].End)
}

func TestSplitHardCutKeepsValidUTF8(t *testing.T) {
	// 1200 bytes of 3-byte runes with no boundaries at all; maxSize is not
	// a multiple of the rune width, so a naive hard cut would split runes.
	text := strings.Repeat("日", 400)
	segments, err := Split(text, 400, 50)
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)

	for i, seg := range segments {
		assert.True(t, utf8.ValidString(seg.Text), "segment %d is not valid UTF-8", i)
		assert.Equal(t, text[seg.Start:seg.End], seg.Text)
		if i > 0 {
			assert.LessOrEqual(t, seg.Start, segments[i-1].End, "gap at segment %d", i)
		}
	}
	assert.Equal(t, 0, segments[0].Start)
	assert.Equal(t, len(text), segments[len(segments)-1].End)
}

func TestSplitHardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 1000)
	segments, err := Split(text, 400, 50)
	require.NoError(t, err)
	for _, seg := range segments[:len(segments)-1] {
		assert.Equal(t, 400, seg.End-seg.Start)
	}
	assert.Equal(t, 1000, segments[len(segments)-1].End)
}
