package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
	"github.com/hmle/talkdocs/pkg/store"
)

func newCatalog(t *testing.T) *store.SQLCatalog {
	t.Helper()
	catalog, err := store.NewCatalogWithConfig(store.CatalogConfig{
		Path: filepath.Join(t.TempDir(), "catalog.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	return catalog
}

func sampleDocument(id, ownerID string) *models.Document {
	return &models.Document{
		ID:          id,
		OwnerID:     ownerID,
		DisplayName: "notes.txt",
		Path:        ownerID + "/" + id + ".txt",
		IsActive:    true,
		SegmentIDs:  []string{id + "-seg-0", id + "-seg-1"},
	}
}

func TestCatalogCreateAndGet(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	doc := sampleDocument("doc-1", "owner-1")
	require.NoError(t, catalog.CreateDocument(ctx, doc))

	got, err := catalog.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.OwnerID, got.OwnerID)
	assert.Equal(t, doc.DisplayName, got.DisplayName)
	assert.Equal(t, doc.SegmentIDs, got.SegmentIDs)
	assert.True(t, got.IsActive)
}

func TestCatalogGetMissing(t *testing.T) {
	catalog := newCatalog(t)

	_, err := catalog.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCatalogListByOwner(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	require.NoError(t, catalog.CreateDocument(ctx, sampleDocument("doc-1", "alice")))
	require.NoError(t, catalog.CreateDocument(ctx, sampleDocument("doc-2", "alice")))
	require.NoError(t, catalog.CreateDocument(ctx, sampleDocument("doc-3", "bob")))

	docs, err := catalog.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	all, err := catalog.AllDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCatalogUpdateSummary(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	require.NoError(t, catalog.CreateDocument(ctx, sampleDocument("doc-1", "owner-1")))
	require.NoError(t, catalog.UpdateSummary(ctx, "doc-1", "Two sentences about the document."))

	got, err := catalog.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Two sentences about the document.", got.Summary)
}

func TestCatalogDeleteDocument(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	require.NoError(t, catalog.CreateDocument(ctx, sampleDocument("doc-1", "owner-1")))
	require.NoError(t, catalog.DeleteDocument(ctx, "doc-1"))

	_, err := catalog.GetDocument(ctx, "doc-1")
	assert.Error(t, err)
}

func TestCatalogIndexEntriesRoundTrip(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	ids := []string{"semantic.doc-1", "summary.doc-1"}
	require.NoError(t, catalog.PutIndexEntries(ctx, "doc-1", ids))

	got, err := catalog.IndexEntries(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, ids, got)

	// Put replaces, never accumulates.
	require.NoError(t, catalog.PutIndexEntries(ctx, "doc-1", ids))
	got, err = catalog.IndexEntries(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, catalog.DeleteIndexEntries(ctx, "doc-1"))
	got, err = catalog.IndexEntries(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
