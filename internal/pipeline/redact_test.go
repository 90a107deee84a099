package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veil-io/veil/internal/entity"
)

func TestRedactReplacesSpans(t *testing.T) {
	text := "Contact Jane Doe at jane@example.com"
	entities := []entity.Entity{
		contextEntity("Jane Doe", 8, 16, entity.TypeName),
		patternEntity("jane@example.com", 20, 36, entity.TypeEmail),
	}

	got := Redact(text, entities)
	assert.Equal(t, "Contact [NAME] at [EMAIL]", got)
}

func TestRedactOrderIndependent(t *testing.T) {
	// Substitution must not corrupt the offsets of later entities, whatever
	// order the list arrives in.
	text := "a bb ccc dddd"
	entities := []entity.Entity{
		patternEntity("dddd", 9, 13, entity.TypeIDNumber),
		patternEntity("a", 0, 1, entity.TypeName),
		patternEntity("ccc", 5, 8, entity.TypeEmail),
	}

	got := Redact(text, entities)
	assert.Equal(t, "[NAME] bb [EMAIL] [ID_NUMBER]", got)
}

func TestRedactIdempotent(t *testing.T) {
	text := "Call 555-123-4567 today"
	entities := []entity.Entity{patternEntity("555-123-4567", 5, 17, entity.TypePhone)}

	once := Redact(text, entities)
	require.Equal(t, "Call [PHONE] today", once)
	assert.Equal(t, once, Redact(once, entities))
}

func TestRedactSkipsNonMatchingSpans(t *testing.T) {
	text := "hello world"
	entities := []entity.Entity{
		patternEntity("goodbye", 0, 7, entity.TypeName), // text mismatch
		patternEntity("x", 50, 51, entity.TypeName),     // out of range
	}

	assert.Equal(t, text, Redact(text, entities))
}

func TestRedactMergesOverlappingSpans(t *testing.T) {
	text := "id 1985-03-12 end"
	entities := []entity.Entity{
		contextEntity("1985-03-12", 3, 13, entity.TypeDOB),
		patternEntity("03-12", 8, 13, entity.TypeIDNumber),
	}

	got := Redact(text, entities)
	// One placeholder for the merged region, tagged by the longer span.
	assert.Equal(t, "id [DOB] end", got)
}

func TestRedactAdjacentSpans(t *testing.T) {
	text := "ab"
	entities := []entity.Entity{
		patternEntity("a", 0, 1, entity.TypeName),
		patternEntity("b", 1, 2, entity.TypeEmail),
	}

	assert.Equal(t, "[NAME][EMAIL]", Redact(text, entities))
}

func TestRedactEmptyEntityList(t *testing.T) {
	assert.Equal(t, "unchanged", Redact("unchanged", nil))
}

func TestRedactWholeDocument(t *testing.T) {
	text := "jane@example.com"
	entities := []entity.Entity{patternEntity(text, 0, 16, entity.TypeEmail)}
	assert.Equal(t, "[EMAIL]", Redact(text, entities))
}
