package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	SearchLimit int
}

// VectorStore keeps every document segment and its embedding in one
// pgvector-backed table. The semantic index queries it by similarity,
// the summary index by document order; sharing the table is what makes
// a document's index pair atomic under a single transaction.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "segments"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize() error {
	ctx := context.Background()

	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	createDocIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createDocIndex)
	if err != nil {
		return fmt.Errorf("failed to create document index: %v", err)
	}

	return nil
}

// UpsertSegments writes the whole batch in one transaction, so a
// document's segments land all together or not at all.
func (vs *VectorStore) UpsertSegments(ctx context.Context, segments []models.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, owner_id, position, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.TableName)

	for _, segment := range segments {
		if len(segment.Embedding) != vs.config.VectorDim {
			return fmt.Errorf("segment %s: embedding dimension mismatch: want %d, got %d",
				segment.ID, vs.config.VectorDim, len(segment.Embedding))
		}

		ownerID, _ := segment.Metadata[models.MetadataKeyOwnerID].(string)
		_, err = tx.Exec(ctx, stmt,
			segment.ID,
			segment.DocumentID,
			ownerID,
			segment.Position,
			sanitizeUTF8(segment.Content),
			pgvector.NewVector(segment.Embedding),
			segment.Metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert segment %s: %v", segment.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Search returns the nearest segments of one document by cosine
// distance.
func (vs *VectorStore) Search(ctx context.Context, embedding []float32, documentID string, limit int) ([]models.ScoredSegment, error) {
	if limit == 0 {
		limit = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT id, document_id, position, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE document_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %v", err)
	}
	defer rows.Close()

	var results []models.ScoredSegment
	for rows.Next() {
		var result models.ScoredSegment
		err := rows.Scan(
			&result.Segment.ID,
			&result.Segment.DocumentID,
			&result.Segment.Position,
			&result.Segment.Content,
			&result.Segment.Metadata,
			&result.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// SegmentsByDocument returns every segment of a document in positional
// order, for holistic summary queries.
func (vs *VectorStore) SegmentsByDocument(ctx context.Context, documentID string) ([]models.Segment, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, position, content, metadata
		FROM %s
		WHERE document_id = $1
		ORDER BY position`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %v", err)
	}
	defer rows.Close()

	var segments []models.Segment
	for rows.Next() {
		var segment models.Segment
		err := rows.Scan(
			&segment.ID,
			&segment.DocumentID,
			&segment.Position,
			&segment.Content,
			&segment.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		segments = append(segments, segment)
	}

	return segments, rows.Err()
}

// DeleteSegments removes the named segments of a document. All deletes
// happen in one transaction and the whole call fails if any segment is
// missing, so a delete can never half-apply.
func (vs *VectorStore) DeleteSegments(ctx context.Context, documentID string, segmentIDs []string) error {
	if len(segmentIDs) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1 AND id = ANY($2)`,
		vs.config.TableName)

	tag, err := tx.Exec(ctx, stmt, documentID, segmentIDs)
	if err != nil {
		return fmt.Errorf("failed to delete segments: %v", err)
	}
	if tag.RowsAffected() != int64(len(segmentIDs)) {
		return fmt.Errorf("%w: deleted %d of %d segments for document %s",
			types.ErrConsistency, tag.RowsAffected(), len(segmentIDs), documentID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (vs *VectorStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE document_id = $1`, vs.config.TableName)

	var count int
	if err := vs.pool.QueryRow(ctx, query, documentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count segments: %v", err)
	}
	return count, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
