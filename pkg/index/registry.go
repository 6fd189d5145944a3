package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
)

const embedShards = 4

type RegistryConfig struct {
	Store    types.SegmentStore
	Catalog  types.Catalog
	Embedder types.Embedder
	TopK     int // similarity results per semantic query
}

// Registry owns every document's index pair. It is the only shared
// mutable state across requests: mutations take a per-document lock,
// reads against the indices themselves run unlocked.
type Registry struct {
	config RegistryConfig

	mu   sync.RWMutex
	sets map[string]*DocumentIndexSet

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	version atomic.Int64
}

func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("registry requires a segment store")
	}
	if config.Catalog == nil {
		return nil, fmt.Errorf("registry requires a catalog")
	}
	if config.Embedder == nil {
		return nil, fmt.Errorf("registry requires an embedder")
	}
	if config.TopK == 0 {
		config.TopK = 3
	}

	return &Registry{
		config: config,
		sets:   make(map[string]*DocumentIndexSet),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex serializing mutations of one document's
// index pair. The pair is a single critical section; its two indices
// are never locked independently.
func (r *Registry) lockFor(documentID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l, ok := r.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[documentID] = l
	}
	return l
}

func (r *Registry) newSet(documentID string) *DocumentIndexSet {
	return &DocumentIndexSet{
		DocumentID: documentID,
		Semantic: &Index{
			ID:         IndexID(KindSemantic, documentID),
			Kind:       KindSemantic,
			DocumentID: documentID,
			store:      r.config.Store,
			embedder:   r.config.Embedder,
			topK:       r.config.TopK,
		},
		Summary: &Index{
			ID:         IndexID(KindSummary, documentID),
			Kind:       KindSummary,
			DocumentID: documentID,
			store:      r.config.Store,
		},
	}
}

// Build embeds the segments and constructs the document's index pair.
// Segment writes go through one store transaction and the catalog
// records both index ids together, so a crash can not leave one index
// of the pair stale. Builds for distinct documents may run
// concurrently.
func (r *Registry) Build(ctx context.Context, documentID string, segments []models.Segment) (*DocumentIndexSet, error) {
	lock := r.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	if len(segments) > 0 {
		if err := r.embedSegments(ctx, segments); err != nil {
			return nil, err
		}
		if err := r.config.Store.UpsertSegments(ctx, segments); err != nil {
			return nil, fmt.Errorf("failed to persist segments for %s: %w", documentID, err)
		}
	}

	set := r.newSet(documentID)
	if err := r.config.Catalog.PutIndexEntries(ctx, documentID, set.IndexIDs()); err != nil {
		return nil, fmt.Errorf("failed to record index entries for %s: %w", documentID, err)
	}

	r.mu.Lock()
	r.sets[documentID] = set
	r.mu.Unlock()
	r.version.Add(1)

	return set, nil
}

// embedSegments fills in segment embeddings, sharding the batch across
// a few parallel gateway calls. Each embedding is computed exactly once
// here and never recomputed afterwards.
func (r *Registry) embedSegments(ctx context.Context, segments []models.Segment) error {
	shardSize := (len(segments) + embedShards - 1) / embedShards

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(segments); start += shardSize {
		start := start
		end := start + shardSize
		if end > len(segments) {
			end = len(segments)
		}

		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, segment := range segments[start:end] {
				texts = append(texts, segment.Content)
			}
			vectors, err := r.config.Embedder.EmbedTexts(ctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed segments: %w", err)
			}
			for i := range vectors {
				segments[start+i].Embedding = vectors[i]
			}
			return nil
		})
	}

	return g.Wait()
}

// Load reconstructs the in-memory registry for the given documents from
// the catalog. A missing document is a consistency error, never a
// silent skip.
func (r *Registry) Load(ctx context.Context, documentIDs []string) error {
	loaded := make(map[string]*DocumentIndexSet, len(documentIDs))

	for _, documentID := range documentIDs {
		indexIDs, err := r.config.Catalog.IndexEntries(ctx, documentID)
		if err != nil {
			return fmt.Errorf("failed to load index entries for %s: %w", documentID, err)
		}

		set := r.newSet(documentID)
		want := set.IndexIDs()
		sort.Strings(want)
		if !equalStrings(indexIDs, want) {
			return fmt.Errorf("%w: index set for document %s not found (have %v)",
				types.ErrConsistency, documentID, indexIDs)
		}
		loaded[documentID] = set
	}

	r.mu.Lock()
	r.sets = loaded
	r.mu.Unlock()
	r.version.Add(1)

	return nil
}

// Remove deletes the document's segments from both indices and drops
// the pair from the registry. Any failure aborts the whole removal: the
// registry never tracks a document whose segments are half-deleted.
func (r *Registry) Remove(ctx context.Context, documentID string, segmentIDs []string) error {
	lock := r.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := r.config.Store.DeleteSegments(ctx, documentID, segmentIDs); err != nil {
		return fmt.Errorf("failed to delete segments for %s: %w", documentID, err)
	}

	remaining, err := r.config.Store.CountByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to verify removal of %s: %w", documentID, err)
	}
	if remaining != 0 {
		return fmt.Errorf("%w: %d segments still indexed for removed document %s",
			types.ErrConsistency, remaining, documentID)
	}

	if err := r.config.Catalog.DeleteIndexEntries(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete index entries for %s: %w", documentID, err)
	}

	r.mu.Lock()
	delete(r.sets, documentID)
	r.mu.Unlock()
	r.version.Add(1)

	return nil
}

// Persist re-records every tracked index pair in the catalog. Segment
// data is written through transactionally at build time, so this only
// flushes registry membership.
func (r *Registry) Persist(ctx context.Context) error {
	r.mu.RLock()
	sets := make([]*DocumentIndexSet, 0, len(r.sets))
	for _, set := range r.sets {
		sets = append(sets, set)
	}
	r.mu.RUnlock()

	for _, set := range sets {
		if err := r.config.Catalog.PutIndexEntries(ctx, set.DocumentID, set.IndexIDs()); err != nil {
			return fmt.Errorf("failed to persist index entries for %s: %w", set.DocumentID, err)
		}
	}
	return nil
}

// Set returns the index pair for a document, if tracked.
func (r *Registry) Set(documentID string) (*DocumentIndexSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.sets[documentID]
	return set, ok
}

// DocumentIDs returns the tracked document ids in sorted order.
func (r *Registry) DocumentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sets))
	for id := range r.sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}

// Version increases on every successful Build, Load or Remove. The
// conversation engine compares it against its snapshot to know when its
// tool set is stale.
func (r *Registry) Version() int64 {
	return r.version.Load()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
