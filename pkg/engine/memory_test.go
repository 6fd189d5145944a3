package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/testutil"
	"github.com/hmle/talkdocs/pkg/engine"
)

func user(content string) models.ChatMessage {
	return models.ChatMessage{Role: models.RoleUser, Content: content}
}

func assistant(content string) models.ChatMessage {
	return models.ChatMessage{Role: models.RoleAssistant, Content: content}
}

func TestMemoryEvictsOldestFirst(t *testing.T) {
	m := engine.NewMemory(testutil.NewWordTokenizer(), 6)

	m.Add(user("one two three"))
	m.Add(assistant("four five six"))
	m.Add(user("seven eight nine"))

	// Budget of 6 words holds the two newest turns only.
	turns := m.Messages()
	assert.Len(t, turns, 2)
	assert.Equal(t, "four five six", turns[0].Content)
	assert.Equal(t, "seven eight nine", turns[1].Content)
}

func TestMemoryKeepsNewestOverBudget(t *testing.T) {
	m := engine.NewMemory(testutil.NewWordTokenizer(), 2)

	m.Add(user("this single turn has far more words than the budget allows"))

	turns := m.Messages()
	assert.Len(t, turns, 1)
}

func TestMemoryReplaceTrims(t *testing.T) {
	m := engine.NewMemory(testutil.NewWordTokenizer(), 4)

	m.Replace([]models.ChatMessage{
		user("a b c"),
		assistant("d e f"),
		user("g h"),
	})

	turns := m.Messages()
	assert.Len(t, turns, 1)
	assert.Equal(t, "g h", turns[0].Content)
}

func TestMemoryReset(t *testing.T) {
	m := engine.NewMemory(testutil.NewWordTokenizer(), 100)
	m.Add(user("hello"))
	m.Reset()
	assert.Empty(t, m.Messages())
}
