package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
	"github.com/hmle/talkdocs/pkg/index"
	"github.com/hmle/talkdocs/pkg/router"
)

// State is the engine's position in one chat turn.
type State int32

const (
	StateIdle State = iota
	StateRetrieving
	StateGenerating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	default:
		return "unknown"
	}
}

const simpleChatSystemPrompt = "You are a helpful assistant."

const groundedSystemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the retrieval findings below to answer the user's question. " +
	"If the findings do not contain the answer, say that you don't know. Keep the answer concise.\n\n" +
	"Retrieval findings:\n%s"

// TraceFunc receives structured engine events: state transitions and
// router activity.
type TraceFunc func(event string, fields map[string]interface{})

type EngineConfig struct {
	Completer     types.Completer
	Registry      *index.Registry
	Catalog       types.Catalog
	Tokenizer     types.Tokenizer
	MemoryTokens  int
	MaxIterations int
	Trace         TraceFunc
}

// Engine drives conversations. With documents present it runs
// retrieval through the corpus router before generating; with an empty
// corpus it degrades to a plain chat loop. One engine serves many
// owners; each owner gets its own session (memory plus router).
type Engine struct {
	config EngineConfig

	state atomic.Int32

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one owner's conversation state: the memory window and the
// corpus router built against a snapshot of the registry.
type session struct {
	mu      sync.Mutex
	memory  *Memory
	router  *router.CorpusRouter
	version int64
	built   bool
}

func NewWithConfig(config EngineConfig) (*Engine, error) {
	if config.Completer == nil {
		return nil, fmt.Errorf("engine requires a completer")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("engine requires a registry")
	}
	if config.Catalog == nil {
		return nil, fmt.Errorf("engine requires a catalog")
	}
	if config.Tokenizer == nil {
		return nil, fmt.Errorf("engine requires a tokenizer")
	}

	return &Engine{
		config:   config,
		sessions: make(map[string]*session),
	}, nil
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.trace("state", map[string]interface{}{"state": s.String()})
}

func (e *Engine) trace(event string, fields map[string]interface{}) {
	if e.config.Trace != nil {
		e.config.Trace(event, fields)
	}
}

func (e *Engine) session(ownerID string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[ownerID]
	if !ok {
		s = &session{memory: NewMemory(e.config.Tokenizer, e.config.MemoryTokens)}
		e.sessions[ownerID] = s
	}
	return s
}

// EndSession discards an owner's conversation state.
func (e *Engine) EndSession(ownerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, ownerID)
}

// snapshotRouter returns the owner's corpus router as of the current
// registry version, rebuilding it lazily after any document add or
// remove. A nil router means the corpus is empty. The returned value is
// a stable snapshot: a concurrent upload never swaps the tool set under
// an in-flight turn.
func (e *Engine) snapshotRouter(ctx context.Context, ownerID string, s *session) (*router.CorpusRouter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := e.config.Registry.Version()
	if s.built && s.version == version {
		return s.router, nil
	}

	documents, err := e.config.Catalog.ListDocuments(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	// Stale tool references must never survive a corpus mutation.
	s.memory.Reset()
	s.router = nil
	s.built = true
	s.version = version

	if len(documents) == 0 {
		e.trace("router_rebuilt", map[string]interface{}{"owner": ownerID, "documents": 0})
		return nil, nil
	}

	sets := make(map[string]*index.DocumentIndexSet, len(documents))
	for _, document := range documents {
		set, ok := e.config.Registry.Set(document.ID)
		if !ok {
			return nil, fmt.Errorf("%w: document %s has no index set", types.ErrConsistency, document.ID)
		}
		sets[document.ID] = set
	}

	cr, err := router.NewCorpusRouter(router.CorpusRouterConfig{
		Completer:     e.config.Completer,
		MaxIterations: e.config.MaxIterations,
	}, documents, sets)
	if err != nil {
		return nil, err
	}

	s.router = cr
	e.trace("router_rebuilt", map[string]interface{}{"owner": ownerID, "documents": len(documents)})
	return cr, nil
}

// validate enforces the chat preconditions: a non-empty history whose
// final message carries the user role.
func validate(messages []models.ChatMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: no messages provided", types.ErrValidation)
	}
	if messages[len(messages)-1].Role != models.RoleUser {
		return fmt.Errorf("%w: last message must be from user", types.ErrValidation)
	}
	return nil
}

// Chat answers synchronously.
func (e *Engine) Chat(ctx context.Context, ownerID string, messages []models.ChatMessage) (models.ChatMessage, error) {
	if err := validate(messages); err != nil {
		return models.ChatMessage{}, err
	}

	s := e.session(ownerID)
	cr, err := e.snapshotRouter(ctx, ownerID, s)
	if err != nil {
		return models.ChatMessage{}, err
	}

	defer e.setState(StateIdle)

	prompt, err := e.preparePrompt(ctx, cr, s, messages)
	if err != nil {
		return models.ChatMessage{}, err
	}

	e.setState(StateGenerating)
	answer, err := e.config.Completer.Complete(ctx, prompt)
	if err != nil {
		return models.ChatMessage{}, err
	}

	reply := models.ChatMessage{Role: models.RoleAssistant, Content: answer}
	s.memory.Add(reply)
	return reply, nil
}

// StreamChat answers with a lazy, finite sequence of text fragments.
// The stream observes ctx: cancelling it stops production promptly.
// Partial assistant output already produced stays in memory.
func (e *Engine) StreamChat(ctx context.Context, ownerID string, messages []models.ChatMessage) (<-chan string, error) {
	if err := validate(messages); err != nil {
		return nil, err
	}

	s := e.session(ownerID)
	cr, err := e.snapshotRouter(ctx, ownerID, s)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer e.setState(StateIdle)

		prompt, err := e.preparePrompt(ctx, cr, s, messages)
		if err != nil {
			e.emit(ctx, out, fmt.Sprintf("Error: %v", err))
			return
		}

		e.setState(StateGenerating)
		fragments, err := e.config.Completer.StreamComplete(ctx, prompt)
		if err != nil {
			e.emit(ctx, out, fmt.Sprintf("Error: %v", err))
			return
		}

		var produced []byte
		defer func() {
			if len(produced) > 0 {
				s.memory.Add(models.ChatMessage{Role: models.RoleAssistant, Content: string(produced)})
			}
		}()

		for fragment := range fragments {
			select {
			case out <- fragment:
				produced = append(produced, fragment...)
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// preparePrompt runs the retrieval phase (when the corpus has
// documents) and assembles the message list for final generation.
func (e *Engine) preparePrompt(ctx context.Context, cr *router.CorpusRouter, s *session, messages []models.ChatMessage) ([]models.ChatMessage, error) {
	last := messages[len(messages)-1]
	s.memory.Replace(messages[:len(messages)-1])
	history := s.memory.Messages()

	if cr == nil {
		// NoDocuments: pure chat, no retrieval step.
		prompt := append([]models.ChatMessage{
			{Role: models.RoleSystem, Content: simpleChatSystemPrompt},
		}, history...)
		s.memory.Add(last)
		return append(prompt, last), nil
	}

	e.setState(StateRetrieving)
	result, err := cr.Answer(ctx, last.Content, history)
	if err != nil {
		return nil, err
	}
	e.trace("retrieved", map[string]interface{}{"sources": len(result.Sources)})

	prompt := append([]models.ChatMessage{
		{Role: models.RoleSystem, Content: fmt.Sprintf(groundedSystemPrompt, result.Text)},
	}, history...)
	s.memory.Add(last)
	return append(prompt, last), nil
}

func (e *Engine) emit(ctx context.Context, out chan<- string, msg string) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}
