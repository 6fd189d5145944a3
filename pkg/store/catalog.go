package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
)

type CatalogConfig struct {
	Path string // sqlite database file, ":memory:" for tests
}

// SQLCatalog is the metadata store for Document records and the index
// ids each document produced. It backs the registry's durable state.
type SQLCatalog struct {
	db *sql.DB
}

func NewCatalogWithConfig(config CatalogConfig) (*SQLCatalog, error) {
	if config.Path == "" {
		config.Path = "talkdocs.db"
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %v", err)
	}

	c := &SQLCatalog{db: db}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

func (c *SQLCatalog) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		path TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		summary TEXT NOT NULL DEFAULT '',
		segment_ids TEXT NOT NULL DEFAULT '[]'
	);
	CREATE TABLE IF NOT EXISTS index_entries (
		index_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS documents_owner_idx ON documents (owner_id);
	CREATE INDEX IF NOT EXISTS index_entries_document_idx ON index_entries (document_id);`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %v", err)
	}
	return nil
}

func (c *SQLCatalog) CreateDocument(ctx context.Context, doc *models.Document) error {
	segmentIDs, err := json.Marshal(doc.SegmentIDs)
	if err != nil {
		return fmt.Errorf("failed to encode segment ids: %v", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, display_name, path, is_active, summary, segment_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.DisplayName, doc.Path, boolToInt(doc.IsActive), doc.Summary, string(segmentIDs))
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %v", doc.ID, err)
	}
	return nil
}

func (c *SQLCatalog) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, owner_id, display_name, path, is_active, summary, segment_ids
		FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s not found", types.ErrValidation, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %v", id, err)
	}
	return doc, nil
}

func (c *SQLCatalog) ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, owner_id, display_name, path, is_active, summary, segment_ids
		FROM documents WHERE owner_id = ? AND is_active = 1
		ORDER BY rowid`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %v", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %v", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (c *SQLCatalog) AllDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, owner_id, display_name, path, is_active, summary, segment_ids
		FROM documents WHERE is_active = 1
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %v", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %v", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (c *SQLCatalog) UpdateSummary(ctx context.Context, id, summary string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE documents SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("failed to update summary for %s: %v", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s not found", types.ErrValidation, id)
	}
	return nil
}

func (c *SQLCatalog) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %v", id, err)
	}
	return nil
}

// PutIndexEntries records the index ids a document produced, replacing
// any previous set in one transaction.
func (c *SQLCatalog) PutIndexEntries(ctx context.Context, documentID string, indexIDs []string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to clear index entries: %v", err)
	}
	for _, indexID := range indexIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_entries (index_id, document_id) VALUES (?, ?)`,
			indexID, documentID); err != nil {
			return fmt.Errorf("failed to insert index entry %s: %v", indexID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func (c *SQLCatalog) IndexEntries(ctx context.Context, documentID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT index_id FROM index_entries WHERE document_id = ? ORDER BY index_id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load index entries: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan index entry: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *SQLCatalog) DeleteIndexEntries(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM index_entries WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete index entries: %v", err)
	}
	return nil
}

func (c *SQLCatalog) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var isActive int
	var segmentIDs string

	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.DisplayName, &doc.Path,
		&isActive, &doc.Summary, &segmentIDs)
	if err != nil {
		return nil, err
	}
	doc.IsActive = isActive != 0

	if err := json.Unmarshal([]byte(segmentIDs), &doc.SegmentIDs); err != nil {
		return nil, fmt.Errorf("failed to decode segment ids: %v", err)
	}
	return &doc, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
