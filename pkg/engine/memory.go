package engine

import (
	"sync"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
)

// Memory is a sliding window over past turns bounded by a token
// budget. Oldest turns are evicted first; the window is rebuilt fresh
// whenever the document set changes.
type Memory struct {
	tokenizer types.Tokenizer
	budget    int

	mu    sync.Mutex
	turns []models.ChatMessage
}

func NewMemory(tokenizer types.Tokenizer, budget int) *Memory {
	if budget <= 0 {
		budget = 4096
	}
	return &Memory{
		tokenizer: tokenizer,
		budget:    budget,
	}
}

// Replace swaps the window content for the given conversation and
// trims it to the budget.
func (m *Memory) Replace(turns []models.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append([]models.ChatMessage(nil), turns...)
	m.evict()
}

// Add appends one turn, evicting the oldest turns if the budget is
// exceeded.
func (m *Memory) Add(turn models.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	m.evict()
}

// Messages returns a copy of the current window.
func (m *Memory) Messages() []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ChatMessage(nil), m.turns...)
}

func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// evict drops oldest turns until the window fits the token budget. The
// newest turn always stays, even when it alone exceeds the budget.
func (m *Memory) evict() {
	for len(m.turns) > 1 && m.tokens() > m.budget {
		m.turns = m.turns[1:]
	}
}

func (m *Memory) tokens() int {
	total := 0
	for _, turn := range m.turns {
		total += m.tokenizer.Count(turn.Content)
	}
	return total
}
