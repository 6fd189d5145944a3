// Package testutil holds in-memory collaborators for tests: a
// brute-force vector store, a catalog, a deterministic embedder and a
// scripted completion gateway.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
)

// MemorySegmentStore is an in-memory SegmentStore using brute-force
// cosine similarity.
type MemorySegmentStore struct {
	mu       sync.RWMutex
	segments map[string]models.Segment
}

func NewMemorySegmentStore() *MemorySegmentStore {
	return &MemorySegmentStore{segments: make(map[string]models.Segment)}
}

func (s *MemorySegmentStore) UpsertSegments(ctx context.Context, segments []models.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, segment := range segments {
		s.segments[segment.ID] = segment
	}
	return nil
}

func (s *MemorySegmentStore) Search(ctx context.Context, embedding []float32, documentID string, limit int) ([]models.ScoredSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.ScoredSegment
	for _, segment := range s.segments {
		if segment.DocumentID != documentID {
			continue
		}
		results = append(results, models.ScoredSegment{
			Segment: segment,
			Score:   cosine(embedding, segment.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemorySegmentStore) SegmentsByDocument(ctx context.Context, documentID string) ([]models.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var segments []models.Segment
	for _, segment := range s.segments {
		if segment.DocumentID == documentID {
			segments = append(segments, segment)
		}
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Position < segments[j].Position })
	return segments, nil
}

func (s *MemorySegmentStore) DeleteSegments(ctx context.Context, documentID string, segmentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// All-or-nothing, like the transactional store.
	for _, id := range segmentIDs {
		segment, ok := s.segments[id]
		if !ok || segment.DocumentID != documentID {
			return fmt.Errorf("%w: segment %s not found for document %s", types.ErrConsistency, id, documentID)
		}
	}
	for _, id := range segmentIDs {
		delete(s.segments, id)
	}
	return nil
}

func (s *MemorySegmentStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, segment := range s.segments {
		if segment.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func (s *MemorySegmentStore) Close() {}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MemoryCatalog is an in-memory Catalog.
type MemoryCatalog struct {
	mu      sync.RWMutex
	docs    map[string]models.Document
	order   []string
	entries map[string][]string
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		docs:    make(map[string]models.Document),
		entries: make(map[string][]string),
	}
}

func (c *MemoryCatalog) CreateDocument(ctx context.Context, doc *models.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	c.docs[doc.ID] = *doc
	c.order = append(c.order, doc.ID)
	return nil
}

func (c *MemoryCatalog) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s not found", types.ErrValidation, id)
	}
	return &doc, nil
}

func (c *MemoryCatalog) ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var docs []models.Document
	for _, id := range c.order {
		doc, ok := c.docs[id]
		if ok && doc.OwnerID == ownerID && doc.IsActive {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (c *MemoryCatalog) AllDocuments(ctx context.Context) ([]models.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var docs []models.Document
	for _, id := range c.order {
		if doc, ok := c.docs[id]; ok && doc.IsActive {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (c *MemoryCatalog) UpdateSummary(ctx context.Context, id, summary string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return fmt.Errorf("%w: document %s not found", types.ErrValidation, id)
	}
	doc.Summary = summary
	c.docs[id] = doc
	return nil
}

func (c *MemoryCatalog) DeleteDocument(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, id)
	return nil
}

func (c *MemoryCatalog) PutIndexEntries(ctx context.Context, documentID string, indexIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sorted := append([]string(nil), indexIDs...)
	sort.Strings(sorted)
	c.entries[documentID] = sorted
	return nil
}

func (c *MemoryCatalog) IndexEntries(ctx context.Context, documentID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.entries[documentID]...), nil
}

func (c *MemoryCatalog) DeleteIndexEntries(ctx context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, documentID)
	return nil
}

func (c *MemoryCatalog) Close() error { return nil }

// HashEmbedder produces deterministic pseudo-embeddings: identical
// input always embeds to the identical vector.
type HashEmbedder struct {
	Dim int
}

func (e *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	dim := e.Dim
	if dim == 0 {
		dim = 8
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		h := fnv.New64a()
		h.Write([]byte(text))
		rng := rand.New(rand.NewSource(int64(h.Sum64())))
		v := make([]float32, dim)
		for i := range v {
			v[i] = rng.Float32()*2 - 1
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (e *HashEmbedder) Dimension() int {
	if e.Dim == 0 {
		return 8
	}
	return e.Dim
}

// ScriptedCompleter replays canned responses in order and records every
// prompt it received. An optional Fn overrides the script.
type ScriptedCompleter struct {
	mu        sync.Mutex
	Responses []string
	Fn        func(messages []models.ChatMessage) (string, error)
	Calls     [][]models.ChatMessage

	next int
}

func (c *ScriptedCompleter) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, append([]models.ChatMessage(nil), messages...))

	if c.Fn != nil {
		return c.Fn(messages)
	}
	if c.next >= len(c.Responses) {
		if len(c.Responses) == 0 {
			return "", fmt.Errorf("%w: no scripted response", types.ErrUpstream)
		}
		return c.Responses[len(c.Responses)-1], nil
	}
	response := c.Responses[c.next]
	c.next++
	return response, nil
}

func (c *ScriptedCompleter) StreamComplete(ctx context.Context, messages []models.ChatMessage) (<-chan string, error) {
	response, err := c.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(response, " ") {
			select {
			case out <- word:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// CallCount returns how many completion calls were made.
func (c *ScriptedCompleter) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// WordTokenizer is a tiny whitespace tokenizer for chunking and memory
// budgets in tests.
type WordTokenizer struct {
	mu    sync.Mutex
	words []string
	ids   map[string]int
}

func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{ids: make(map[string]int)}
}

func (t *WordTokenizer) Encode(text string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var tokens []int
	for _, word := range strings.Fields(text) {
		id, ok := t.ids[word]
		if !ok {
			id = len(t.words)
			t.ids[word] = id
			t.words = append(t.words, word)
		}
		tokens = append(tokens, id)
	}
	return tokens
}

func (t *WordTokenizer) Decode(tokens []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	words := make([]string, 0, len(tokens))
	for _, id := range tokens {
		words = append(words, t.words[id])
	}
	return strings.Join(words, " ")
}

func (t *WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}
