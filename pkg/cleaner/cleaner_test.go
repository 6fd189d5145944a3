package cleaner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hmle/talkdocs/pkg/cleaner"
)

func TestCleanWhitespace(t *testing.T) {
	assert.Equal(t, "hello world", cleaner.Clean("hello   \t world"))
	assert.Equal(t, "one two three", cleaner.Clean("one\ntwo\n\n\nthree"))
}

func TestCleanBullets(t *testing.T) {
	input := "• first item\n- second item\n▪ third item"
	assert.Equal(t, "first item second item third item", cleaner.Clean(input))
}

func TestCleanDashRuns(t *testing.T) {
	assert.Equal(t, "section break", cleaner.Clean("section -- break"))
	assert.Equal(t, "a b", cleaner.Clean("a———b"))
	// A single hyphen inside a word survives.
	assert.Equal(t, "well-known fact", cleaner.Clean("well-known fact"))
}

func TestCleanTrailingPunctuation(t *testing.T) {
	assert.Equal(t, "experience in Go", cleaner.Clean("experience in Go,"))
	assert.Equal(t, "skills", cleaner.Clean("skills:"))
	// Sentence-final periods are kept.
	assert.Equal(t, "done.", cleaner.Clean("done."))
}

func TestCleanEmpty(t *testing.T) {
	assert.Equal(t, "", cleaner.Clean(""))
	assert.Equal(t, "", cleaner.Clean("   \n\t  "))
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"• bullet — dash,  run:\nnext line",
		"plain already clean text.",
		"-- leading dashes and trailing ;",
	}
	for _, input := range inputs {
		once := cleaner.Clean(input)
		assert.Equal(t, once, cleaner.Clean(once))
	}
}
