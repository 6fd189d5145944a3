package engine_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/testutil"
	"github.com/hmle/talkdocs/internal/types"
	"github.com/hmle/talkdocs/pkg/engine"
	"github.com/hmle/talkdocs/pkg/index"
)

type engineHarness struct {
	engine   *engine.Engine
	registry *index.Registry
	catalog  *testutil.MemoryCatalog
}

func newEngineHarness(t *testing.T, completer types.Completer) *engineHarness {
	t.Helper()

	catalog := testutil.NewMemoryCatalog()
	registry, err := index.NewRegistry(index.RegistryConfig{
		Store:    testutil.NewMemorySegmentStore(),
		Catalog:  catalog,
		Embedder: &testutil.HashEmbedder{Dim: 8},
		TopK:     2,
	})
	require.NoError(t, err)

	e, err := engine.NewWithConfig(engine.EngineConfig{
		Completer:    completer,
		Registry:     registry,
		Catalog:      catalog,
		Tokenizer:    testutil.NewWordTokenizer(),
		MemoryTokens: 4096,
	})
	require.NoError(t, err)

	return &engineHarness{engine: e, registry: registry, catalog: catalog}
}

// addDocument indexes a document and registers it for the owner.
func (h *engineHarness) addDocument(t *testing.T, ownerID, documentID string, contents ...string) {
	t.Helper()
	ctx := context.Background()

	segments := make([]models.Segment, 0, len(contents))
	ids := make([]string, 0, len(contents))
	for i, content := range contents {
		id := fmt.Sprintf("%s-seg-%d", documentID, i)
		ids = append(ids, id)
		segments = append(segments, models.Segment{
			ID:         id,
			DocumentID: documentID,
			Position:   i,
			Content:    content,
		})
	}

	_, err := h.registry.Build(ctx, documentID, segments)
	require.NoError(t, err)
	require.NoError(t, h.catalog.CreateDocument(ctx, &models.Document{
		ID:          documentID,
		OwnerID:     ownerID,
		DisplayName: documentID + ".txt",
		IsActive:    true,
		Summary:     "A test document.",
		SegmentIDs:  ids,
	}))
}

func (h *engineHarness) removeDocument(t *testing.T, documentID string) {
	t.Helper()
	ctx := context.Background()

	doc, err := h.catalog.GetDocument(ctx, documentID)
	require.NoError(t, err)
	require.NoError(t, h.registry.Remove(ctx, documentID, doc.SegmentIDs))
	require.NoError(t, h.catalog.DeleteDocument(ctx, documentID))
}

func TestChatValidation(t *testing.T) {
	h := newEngineHarness(t, &testutil.ScriptedCompleter{})
	ctx := context.Background()

	_, err := h.engine.Chat(ctx, "owner", nil)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = h.engine.Chat(ctx, "owner", []models.ChatMessage{assistant("hi")})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = h.engine.StreamChat(ctx, "owner", nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestChatEmptyCorpusIsPlainChat(t *testing.T) {
	completer := &testutil.ScriptedCompleter{Responses: []string{"Hello there."}}
	h := newEngineHarness(t, completer)

	reply, err := h.engine.Chat(context.Background(), "owner", []models.ChatMessage{user("hi")})
	require.NoError(t, err)

	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, "Hello there.", reply.Content)

	// No retrieval happened: one completion call, plain system prompt.
	require.Equal(t, 1, completer.CallCount())
	assert.Equal(t, "You are a helpful assistant.", completer.Calls[0][0].Content)
}

func TestChatWithDocumentsGroundsGeneration(t *testing.T) {
	completer := &testutil.ScriptedCompleter{Responses: []string{
		// Corpus loop output with no tool call reads as a direct finding.
		"The report says revenue grew ten percent.",
		"Revenue grew by ten percent according to the report.",
	}}
	h := newEngineHarness(t, completer)
	h.addDocument(t, "owner", "doc-1", "revenue grew ten percent", "costs stayed flat")

	reply, err := h.engine.Chat(context.Background(), "owner", []models.ChatMessage{user("how did revenue do")})
	require.NoError(t, err)

	assert.Equal(t, "Revenue grew by ten percent according to the report.", reply.Content)

	// The final generation was grounded on the retrieval findings.
	require.Equal(t, 2, completer.CallCount())
	finalSystem := completer.Calls[1][0].Content
	assert.Contains(t, finalSystem, "Retrieval findings:")
	assert.Contains(t, finalSystem, "The report says revenue grew ten percent.")
}

func TestChatFallsBackAfterLastDocumentRemoved(t *testing.T) {
	completer := &testutil.ScriptedCompleter{Responses: []string{"Plain answer."}}
	h := newEngineHarness(t, completer)

	h.addDocument(t, "owner", "doc-1", "some content")
	h.removeDocument(t, "doc-1")

	reply, err := h.engine.Chat(context.Background(), "owner", []models.ChatMessage{user("anything left?")})
	require.NoError(t, err)

	assert.Equal(t, "Plain answer.", reply.Content)
	require.Equal(t, 1, completer.CallCount())
	assert.Equal(t, "You are a helpful assistant.", completer.Calls[0][0].Content)
}

func TestChatRebuildsRouterAfterUpload(t *testing.T) {
	var rebuilds int
	completer := &testutil.ScriptedCompleter{Responses: []string{
		"reply", "reply", "finding", "grounded reply",
	}}

	h := newEngineHarness(t, completer)
	cfgEngine, err := engine.NewWithConfig(engine.EngineConfig{
		Completer:    completer,
		Registry:     h.registry,
		Catalog:      h.catalog,
		Tokenizer:    testutil.NewWordTokenizer(),
		MemoryTokens: 4096,
		Trace: func(event string, fields map[string]interface{}) {
			if event == "router_rebuilt" {
				rebuilds++
			}
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cfgEngine.Chat(ctx, "owner", []models.ChatMessage{user("first")})
	require.NoError(t, err)
	assert.Equal(t, 1, rebuilds)

	// Same corpus, same turn shape: the snapshot is reused.
	_, err = cfgEngine.Chat(ctx, "owner", []models.ChatMessage{user("second")})
	require.NoError(t, err)
	assert.Equal(t, 1, rebuilds)

	// An upload bumps the registry version and forces a rebuild.
	h.addDocument(t, "owner", "doc-1", "fresh content")
	_, err = cfgEngine.Chat(ctx, "owner", []models.ChatMessage{user("third")})
	require.NoError(t, err)
	assert.Equal(t, 2, rebuilds)
}

func TestStreamChatDeliversFragments(t *testing.T) {
	completer := &testutil.ScriptedCompleter{Responses: []string{"streamed reply text"}}
	h := newEngineHarness(t, completer)

	fragments, err := h.engine.StreamChat(context.Background(), "owner", []models.ChatMessage{user("hi")})
	require.NoError(t, err)

	var full strings.Builder
	for fragment := range fragments {
		full.WriteString(fragment)
	}
	assert.Equal(t, "streamed reply text", full.String())
}

func TestStreamChatStopsOnCancel(t *testing.T) {
	completer := &testutil.ScriptedCompleter{Responses: []string{
		strings.Repeat("word ", 200),
	}}
	h := newEngineHarness(t, completer)

	ctx, cancel := context.WithCancel(context.Background())
	fragments, err := h.engine.StreamChat(ctx, "owner", []models.ChatMessage{user("hi")})
	require.NoError(t, err)

	// Read a couple of fragments, then cancel mid-stream.
	<-fragments
	<-fragments
	cancel()

	// The channel must close promptly after cancellation.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-fragments:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}

func TestSessionsAreIsolatedPerOwner(t *testing.T) {
	calls := make(map[string]int)
	completer := &testutil.ScriptedCompleter{Fn: func(messages []models.ChatMessage) (string, error) {
		last := messages[len(messages)-1].Content
		calls[last]++
		return "ok", nil
	}}
	h := newEngineHarness(t, completer)
	ctx := context.Background()

	_, err := h.engine.Chat(ctx, "alice", []models.ChatMessage{user("from alice")})
	require.NoError(t, err)
	_, err = h.engine.Chat(ctx, "bob", []models.ChatMessage{user("from bob")})
	require.NoError(t, err)

	assert.Equal(t, 1, calls["from alice"])
	assert.Equal(t, 1, calls["from bob"])
}
