package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmle/talkdocs/internal/testutil"
	"github.com/hmle/talkdocs/pkg/chunker"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestNewWithConfigDefaults(t *testing.T) {
	tok := testutil.NewWordTokenizer()
	c, err := chunker.NewWithConfig(chunker.ChunkerConfig{Tokenizer: tok})
	require.NoError(t, err)

	segments := c.Split(words(600))
	require.Len(t, segments, 2)
	assert.Equal(t, 512, tok.Count(segments[0]))
}

func TestNewWithConfigRejectsOverlapAtLeastSize(t *testing.T) {
	_, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    10,
		ChunkOverlap: 10,
		Tokenizer:    testutil.NewWordTokenizer(),
	})
	assert.Error(t, err)
}

func TestSplitBudgetAndOverlap(t *testing.T) {
	tok := testutil.NewWordTokenizer()
	c, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    8,
		ChunkOverlap: 2,
		Tokenizer:    tok,
	})
	require.NoError(t, err)

	segments := c.Split(words(20))
	require.Len(t, segments, 3)

	for _, segment := range segments {
		assert.LessOrEqual(t, tok.Count(segment), 8)
	}

	// Consecutive segments share exactly the overlap.
	for i := 1; i < len(segments); i++ {
		prev := tok.Encode(segments[i-1])
		curr := tok.Encode(segments[i])
		assert.Equal(t, prev[len(prev)-2:], curr[:2])
	}
}

func TestSplitReconstructsSource(t *testing.T) {
	tok := testutil.NewWordTokenizer()
	c, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    7,
		ChunkOverlap: 3,
		Tokenizer:    tok,
	})
	require.NoError(t, err)

	source := words(25)
	segments := c.Split(source)
	require.NotEmpty(t, segments)

	// Concatenating segments with overlaps dropped reconstructs the
	// source token sequence.
	var tokens []int
	for i, segment := range segments {
		seg := tok.Encode(segment)
		if i > 0 {
			seg = seg[3:]
		}
		tokens = append(tokens, seg...)
	}
	assert.Equal(t, source, tok.Decode(tokens))
}

func TestSplitEmpty(t *testing.T) {
	c, err := chunker.NewWithConfig(chunker.ChunkerConfig{Tokenizer: testutil.NewWordTokenizer()})
	require.NoError(t, err)

	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n  "))
}

func TestSplitCleanDropsEmptySegments(t *testing.T) {
	tok := testutil.NewWordTokenizer()
	c, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    4,
		ChunkOverlap: 1,
		Tokenizer:    tok,
	})
	require.NoError(t, err)

	segments := c.SplitClean("• alpha — beta, gamma delta epsilon")
	require.NotEmpty(t, segments)
	for _, segment := range segments {
		assert.NotEmpty(t, segment)
		assert.NotContains(t, segment, "•")
	}
}
