package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/pkg/store"
)

// Needs a running postgres with the pgvector extension.
func newVectorStore(t *testing.T) *store.VectorStore {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set")
	}

	vs, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString: connString,
		TableName:  "segments_test",
		VectorDim:  4,
	})
	require.NoError(t, err)
	t.Cleanup(vs.Close)
	return vs
}

func testSegments(documentID string, n int) []models.Segment {
	segments := make([]models.Segment, 0, n)
	for i := 0; i < n; i++ {
		segments = append(segments, models.Segment{
			ID:         fmt.Sprintf("%s-seg-%d", documentID, i),
			DocumentID: documentID,
			Position:   i,
			Content:    fmt.Sprintf("segment %d content", i),
			Embedding:  []float32{float32(i), 1, 0, 0},
		})
	}
	return segments
}

func TestVectorStoreRoundTrip(t *testing.T) {
	vs := newVectorStore(t)
	ctx := context.Background()

	segments := testSegments("vs-doc-1", 3)
	require.NoError(t, vs.UpsertSegments(ctx, segments))
	defer vs.DeleteSegments(ctx, "vs-doc-1", []string{segments[0].ID, segments[1].ID, segments[2].ID})

	count, err := vs.CountByDocument(ctx, "vs-doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	ordered, err := vs.SegmentsByDocument(ctx, "vs-doc-1")
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	for i, segment := range ordered {
		assert.Equal(t, i, segment.Position)
	}

	scored, err := vs.Search(ctx, []float32{2, 1, 0, 0}, "vs-doc-1", 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, "vs-doc-1-seg-2", scored[0].Segment.ID)
}

func TestVectorStoreRejectsWrongDimension(t *testing.T) {
	vs := newVectorStore(t)

	err := vs.UpsertSegments(context.Background(), []models.Segment{{
		ID:         "bad-dim",
		DocumentID: "vs-doc-2",
		Content:    "content",
		Embedding:  []float32{1, 2},
	}})
	assert.Error(t, err)
}
