package system

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
	"github.com/hmle/talkdocs/pkg/chunker"
	"github.com/hmle/talkdocs/pkg/engine"
	"github.com/hmle/talkdocs/pkg/index"
	"github.com/hmle/talkdocs/pkg/reader"
)

// summaryContextSegments caps how much of a document feeds its
// two-sentence summary.
const summaryContextSegments = 4

type SystemConfig struct {
	Reader    reader.Reader
	Chunker   chunker.Chunker
	Registry  *index.Registry
	Catalog   types.Catalog
	Blobs     types.BlobStore
	Completer types.Completer
	Engine    *engine.Engine
}

// System ties the pipeline together behind four capabilities: Ingest,
// RemoveDocument, Chat and StreamChat. There is exactly one concrete
// variant; behavior differences live in configuration, not subtypes.
type System struct {
	config SystemConfig

	// set by FromConfig so Close can release the pool
	vectorStore types.SegmentStore
}

func NewWithConfig(config SystemConfig) (*System, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("system requires a registry")
	}
	if config.Catalog == nil {
		return nil, fmt.Errorf("system requires a catalog")
	}
	if config.Blobs == nil {
		return nil, fmt.Errorf("system requires a blob store")
	}
	if config.Completer == nil {
		return nil, fmt.Errorf("system requires a completer")
	}
	if config.Engine == nil {
		return nil, fmt.Errorf("system requires an engine")
	}

	return &System{config: config}, nil
}

// Ingest chunks, cleans, embeds, indexes and persists one upload, then
// summarizes it for routing. The whole call is one cancellable unit;
// uploads for different documents may run concurrently.
func (s *System) Ingest(ctx context.Context, ownerID, displayName string, raw []byte) (*models.Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", types.ErrValidation)
	}

	text, err := s.config.Reader.Extract(displayName, raw)
	if err != nil {
		return nil, err
	}

	documentID := uuid.NewString()
	blobPath := filepath.Join(ownerID, documentID+filepath.Ext(displayName))
	if err := s.config.Blobs.Put(ctx, blobPath, raw); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	chunks := s.config.Chunker.SplitClean(text)
	segments := make([]models.Segment, 0, len(chunks))
	segmentIDs := make([]string, 0, len(chunks))
	for position, chunk := range chunks {
		segmentID := uuid.NewString()
		segmentIDs = append(segmentIDs, segmentID)
		segments = append(segments, models.Segment{
			ID:         segmentID,
			DocumentID: documentID,
			Position:   position,
			Content:    chunk,
			Metadata: map[string]interface{}{
				models.MetadataKeyDocumentID: documentID,
				models.MetadataKeyOwnerID:    ownerID,
				models.MetadataKeyIsActive:   true,
			},
		})
	}

	if _, err := s.config.Registry.Build(ctx, documentID, segments); err != nil {
		s.config.Blobs.Delete(ctx, blobPath)
		return nil, fmt.Errorf("failed to build indices: %w", err)
	}

	doc := &models.Document{
		ID:          documentID,
		OwnerID:     ownerID,
		DisplayName: displayName,
		Path:        blobPath,
		IsActive:    true,
		SegmentIDs:  segmentIDs,
	}
	if err := s.config.Catalog.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	// A short summary feeds the corpus-level tool description. Summary
	// failure is not fatal to the upload.
	if summary, err := s.summarize(ctx, segments); err == nil && summary != "" {
		if err := s.config.Catalog.UpdateSummary(ctx, documentID, summary); err == nil {
			doc.Summary = summary
		}
	}

	return doc, nil
}

// summarize produces a short document description from the leading
// segments.
func (s *System) summarize(ctx context.Context, segments []models.Segment) (string, error) {
	if len(segments) == 0 {
		return "", nil
	}

	limit := summaryContextSegments
	if limit > len(segments) {
		limit = len(segments)
	}
	var text strings.Builder
	for _, segment := range segments[:limit] {
		text.WriteString(segment.Content)
		text.WriteString("\n")
	}

	return s.config.Completer.Complete(ctx, []models.ChatMessage{
		{Role: models.RoleSystem, Content: "You are a helpful assistant."},
		{Role: models.RoleUser, Content: fmt.Sprintf(
			"Summarize the given document in 2 sentences. Do not use bullet points.\n\n%s",
			text.String())},
	})
}

// RemoveDocument cascades a delete across both indices, the catalog and
// the blob store. Partial failure aborts loudly before the catalog
// entry disappears.
func (s *System) RemoveDocument(ctx context.Context, documentID string) error {
	doc, err := s.config.Catalog.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.config.Registry.Remove(ctx, documentID, doc.SegmentIDs); err != nil {
		return err
	}
	if err := s.config.Catalog.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("%w: segments removed but document record remains: %v", types.ErrConsistency, err)
	}
	if err := s.config.Blobs.Delete(ctx, doc.Path); err != nil {
		return err
	}
	return nil
}

// Restore reloads the registry from durable storage for every document
// the catalog tracks. Called once at process start.
func (s *System) Restore(ctx context.Context) error {
	docs, err := s.config.Catalog.AllDocuments(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return s.config.Registry.Load(ctx, ids)
}

// Documents lists the owner's active documents.
func (s *System) Documents(ctx context.Context, ownerID string) ([]models.Document, error) {
	return s.config.Catalog.ListDocuments(ctx, ownerID)
}

// Chat answers a conversation synchronously.
func (s *System) Chat(ctx context.Context, ownerID string, messages []models.ChatMessage) (models.ChatMessage, error) {
	return s.config.Engine.Chat(ctx, ownerID, messages)
}

// StreamChat answers as a stream of text fragments.
func (s *System) StreamChat(ctx context.Context, ownerID string, messages []models.ChatMessage) (<-chan string, error) {
	return s.config.Engine.StreamChat(ctx, ownerID, messages)
}
