package types

import (
	"context"

	"github.com/hmle/talkdocs/internal/models"
)

// Core interfaces

// Embedder turns text into fixed-dimension vectors. Implementations are
// black boxes; callers get exactly one attempt per call.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Completer generates text from a message list, optionally as a stream.
// The stream channel is finite and not restartable; once drained a new
// call is required.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, messages []models.ChatMessage) (<-chan string, error)
}

// SegmentStore persists segments and their embeddings. It backs both the
// semantic and the summary index of every document, so writes for one
// document must be atomic across the whole batch.
type SegmentStore interface {
	UpsertSegments(ctx context.Context, segments []models.Segment) error
	Search(ctx context.Context, embedding []float32, documentID string, limit int) ([]models.ScoredSegment, error)
	SegmentsByDocument(ctx context.Context, documentID string) ([]models.Segment, error)
	DeleteSegments(ctx context.Context, documentID string, segmentIDs []string) error
	CountByDocument(ctx context.Context, documentID string) (int, error)
	Close()
}

// Catalog is the metadata store for Document records and their index
// entries.
type Catalog interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error)
	AllDocuments(ctx context.Context) ([]models.Document, error)
	UpdateSummary(ctx context.Context, id, summary string) error
	DeleteDocument(ctx context.Context, id string) error
	PutIndexEntries(ctx context.Context, documentID string, indexIDs []string) error
	IndexEntries(ctx context.Context, documentID string) ([]string, error)
	DeleteIndexEntries(ctx context.Context, documentID string) error
	Close() error
}

// BlobStore resolves a storage locator to raw document bytes.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// Tokenizer encodes text to tokens and back. The chunker and the chat
// memory window count budgets in tokens, not bytes.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Count(text string) int
}
