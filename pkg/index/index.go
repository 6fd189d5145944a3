package index

import (
	"context"
	"fmt"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
)

// Kind discriminates the two index variants. Behavior differs in
// exactly two places: the retrieval strategy and the tool description,
// both switched exhaustively here.
type Kind int

const (
	KindSemantic Kind = iota
	KindSummary
)

func (k Kind) String() string {
	switch k {
	case KindSemantic:
		return "semantic"
	case KindSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// IndexID is the durable identifier of one index: "{kind}.{documentID}".
func IndexID(kind Kind, documentID string) string {
	return fmt.Sprintf("%s.%s", kind, documentID)
}

// Index is one queryable structure over a document's segments. Both
// kinds close over the shared segment store; the semantic kind also
// needs the embedding gateway for query vectors.
type Index struct {
	ID         string
	Kind       Kind
	DocumentID string

	store    types.SegmentStore
	embedder types.Embedder
	topK     int
}

// Retrieve returns the segments relevant to the query: the nearest
// neighbours for a semantic index, every segment in document order for
// a summary index.
func (ix *Index) Retrieve(ctx context.Context, query string) ([]models.Segment, error) {
	switch ix.Kind {
	case KindSemantic:
		vectors, err := ix.embedder.EmbedTexts(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		scored, err := ix.store.Search(ctx, vectors[0], ix.DocumentID, ix.topK)
		if err != nil {
			return nil, err
		}
		segments := make([]models.Segment, 0, len(scored))
		for _, s := range scored {
			segments = append(segments, s.Segment)
		}
		return segments, nil
	case KindSummary:
		return ix.store.SegmentsByDocument(ctx, ix.DocumentID)
	default:
		return nil, fmt.Errorf("unknown index kind %d", ix.Kind)
	}
}

// Description is the natural-language strategy description shown to the
// language model during tool selection.
func (ix *Index) Description() string {
	switch ix.Kind {
	case KindSemantic:
		return "Useful for questions about specific aspects, facts or details of the document. " +
			"Use a detailed plain text question as input."
	case KindSummary:
		return "Useful for questions that require a holistic summary of the entire document. " +
			"Use a detailed plain text question as input."
	default:
		return ""
	}
}

// DocumentIndexSet pairs a document's semantic and summary index. The
// pair is created, persisted and removed together; the registry owns
// the only reference.
type DocumentIndexSet struct {
	DocumentID string
	Semantic   *Index
	Summary    *Index
}

func (s *DocumentIndexSet) IndexIDs() []string {
	return []string{s.Semantic.ID, s.Summary.ID}
}
