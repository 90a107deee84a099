package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veil-io/veil/internal/entity"
	"github.com/veil-io/veil/internal/testutil"
)

func testConfig() Config {
	return Config{
		Model:        "test-model",
		BaseTimeout:  5 * time.Second,
		TimeoutPerKB: time.Second,
		MaxTimeout:   30 * time.Second,
		MaxRetries:   2,
	}
}

// entityJSON renders one wire-format finding for a span located by substring.
func entityJSON(t *testing.T, segment, text string, typ entity.Type) string {
	t.Helper()
	start := strings.Index(segment, text)
	require.GreaterOrEqual(t, start, 0, "substring %q not in segment", text)
	return fmt.Sprintf(`{"type": %q, "text": %q, "start": %d, "end": %d, "confidence": 0.9}`,
		typ, text, start, start+len(text))
}

func TestDetectReturnsVerifiedEntities(t *testing.T) {
	segment := "His colleague Jane Doe filed the report from 12 Elm Street."
	mock := &testutil.MockProvider{Content: "[" +
		entityJSON(t, segment, "Jane Doe", entity.TypeName) + "," +
		entityJSON(t, segment, "12 Elm Street", entity.TypeAddress) + "]"}

	d := New(mock, testConfig())
	detection, err := d.Detect(context.Background(), segment, "")
	require.NoError(t, err)
	require.Len(t, detection.Entities, 2)
	assert.Zero(t, detection.Hallucinations)

	for _, e := range detection.Entities {
		assert.Equal(t, entity.SourceContext, e.Source)
		assert.True(t, e.MatchesText(segment))
	}
	assert.Equal(t, 1, mock.Calls())
}

func TestDetectEmptyResult(t *testing.T) {
	mock := &testutil.MockProvider{} // defaults to "[]"
	d := New(mock, testConfig())

	detection, err := d.Detect(context.Background(), "nothing sensitive here", "")
	require.NoError(t, err)
	assert.Empty(t, detection.Entities)
	assert.Zero(t, detection.Hallucinations)
}

func TestDetectDropsHallucinatedEntities(t *testing.T) {
	// The claimed span does not exist in the segment; it must be counted
	// and dropped, never surfaced.
	segment := "He said his report was late."
	mock := &testutil.MockProvider{
		Content: `[{"type": "NAME", "text": "Jane Doe", "start": 12, "end": 20, "confidence": 0.95}]`,
	}

	d := New(mock, testConfig())
	detection, err := d.Detect(context.Background(), segment, "")
	require.NoError(t, err)
	assert.Empty(t, detection.Entities)
	assert.Equal(t, 1, detection.Hallucinations)
}

func TestDetectKeepsVerifiedDropsHallucinated(t *testing.T) {
	segment := "Jane Doe attended the meeting."
	good := entityJSON(t, segment, "Jane Doe", entity.TypeName)
	bad := `{"type": "ADDRESS", "text": "221B Baker St", "start": 4, "end": 17, "confidence": 0.8}`
	mock := &testutil.MockProvider{Content: "[" + good + "," + bad + "]"}

	d := New(mock, testConfig())
	detection, err := d.Detect(context.Background(), segment, "")
	require.NoError(t, err)
	require.Len(t, detection.Entities, 1)
	assert.Equal(t, "Jane Doe", detection.Entities[0].Text)
	assert.Equal(t, 1, detection.Hallucinations)
}

func TestDetectRetriesMalformedResponse(t *testing.T) {
	segment := "Jane Doe was here."
	seq := &testutil.SequenceProvider{Responses: []testutil.SequenceStep{
		{Content: "I found a person named Jane Doe in the text."},
		{Content: "[" + entityJSON(t, segment, "Jane Doe", entity.TypeName) + "]"},
	}}

	d := New(seq, testConfig())
	detection, err := d.Detect(context.Background(), segment, "")
	require.NoError(t, err)
	require.Len(t, detection.Entities, 1)
	assert.Equal(t, 2, seq.CallCount)
}

func TestDetectRetriesProviderError(t *testing.T) {
	segment := "Jane Doe was here."
	seq := &testutil.SequenceProvider{Responses: []testutil.SequenceStep{
		{Err: errors.New("upstream 503")},
		{Content: "[" + entityJSON(t, segment, "Jane Doe", entity.TypeName) + "]"},
	}}

	d := New(seq, testConfig())
	detection, err := d.Detect(context.Background(), segment, "")
	require.NoError(t, err)
	require.Len(t, detection.Entities, 1)
}

func TestDetectExhaustsRetries(t *testing.T) {
	mock := &testutil.MockProvider{Err: errors.New("connection refused")}
	cfg := testConfig()
	cfg.MaxRetries = 1

	d := New(mock, cfg)
	_, err := d.Detect(context.Background(), "some text", "")
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 2, mock.Calls()) // initial attempt plus one retry
}

func TestDetectToleratesCodeFences(t *testing.T) {
	segment := "Jane Doe was here."
	mock := &testutil.MockProvider{
		Content: "```json\n[" + entityJSON(t, segment, "Jane Doe", entity.TypeName) + "]\n```",
	}

	d := New(mock, testConfig())
	detection, err := d.Detect(context.Background(), segment, "")
	require.NoError(t, err)
	require.Len(t, detection.Entities, 1)
}

func TestDetectParentCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := &testutil.MockProvider{Err: errors.New("boom")}
	d := New(mock, testConfig())

	_, err := d.Detect(ctx, "some text", "")
	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, mock.Calls(), 1)
}

func TestDetectRateLimiterSpacesCalls(t *testing.T) {
	cfg := testConfig()
	cfg.RequestsPerSecond = 5 // burst 5, then one token per 200ms

	mock := &testutil.MockProvider{}
	d := New(mock, cfg)

	start := time.Now()
	for i := 0; i < 6; i++ {
		_, err := d.Detect(context.Background(), "nothing here", "")
		require.NoError(t, err)
	}
	// The sixth call has to wait for a token.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 6, mock.Calls())
}

func TestDetectRateLimiterAbortsOnShortDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.RequestsPerSecond = 0.01 // burst 1, next token in ~100s

	mock := &testutil.MockProvider{}
	d := New(mock, cfg)

	_, err := d.Detect(context.Background(), "first", "")
	require.NoError(t, err)

	// The second call would wait far past the deadline; it must fail
	// without ever reaching the provider.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = d.Detect(ctx, "second", "")
	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls())
}

func TestTimeoutScalesWithPayload(t *testing.T) {
	d := New(&testutil.MockProvider{}, Config{
		BaseTimeout:  10 * time.Second,
		TimeoutPerKB: 2 * time.Second,
		MaxTimeout:   60 * time.Second,
	})

	assert.Equal(t, 10*time.Second, d.Timeout(0))
	assert.Equal(t, 12*time.Second, d.Timeout(1024))
	assert.Equal(t, 14*time.Second, d.Timeout(2048))
	// 100 KB would be 210s; capped.
	assert.Equal(t, 60*time.Second, d.Timeout(100*1024))
}

func TestParseEntities(t *testing.T) {
	t.Run("plain array", func(t *testing.T) {
		got, err := parseEntities(`[{"type": "NAME", "text": "Bob", "start": 0, "end": 3, "confidence": 0.7}]`)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, entity.TypeName, got[0].Type)
	})

	t.Run("lowercase type normalized", func(t *testing.T) {
		got, err := parseEntities(`[{"type": "name", "text": "Bob", "start": 0, "end": 3}]`)
		require.NoError(t, err)
		assert.Equal(t, entity.TypeName, got[0].Type)
	})

	t.Run("surrounding prose stripped", func(t *testing.T) {
		got, err := parseEntities("Here are the findings:\n[]\nLet me know if you need more.")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown type rejects whole response", func(t *testing.T) {
		_, err := parseEntities(`[{"type": "PERSON", "text": "Bob", "start": 0, "end": 3}]`)
		require.Error(t, err)
	})

	t.Run("no array", func(t *testing.T) {
		_, err := parseEntities("I could not find anything.")
		require.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("broken json", func(t *testing.T) {
		_, err := parseEntities(`[{"type": "NAME", "text": ]`)
		require.Error(t, err)
	})
}

func TestUserPromptIncludesCategory(t *testing.T) {
	p := userPrompt("some text", "medical")
	assert.Contains(t, p, "medical")
	assert.Contains(t, p, "some text")

	p = userPrompt("some text", "")
	assert.NotContains(t, p, "category")
}

func TestMaxTokensFor(t *testing.T) {
	assert.Equal(t, 512, maxTokensFor(100))
	assert.Equal(t, 2000, maxTokensFor(4000))
	assert.Equal(t, 4096, maxTokensFor(100000))
}
