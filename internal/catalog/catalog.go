// Package catalog provides a SQLite-backed registry of ingested documents.
// The vector store owns chunk data; the catalog owns the document lifecycle:
// processing state, failure reason, content hash, and extracted metadata.
// It is what makes ingestion progress observable across restarts and what
// backs idempotent re-ingestion of identical content.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Record is one document's catalog entry.
type Record struct {
	// ID is the document identifier shared with the vector store.
	ID string
	// Filename is the original upload filename.
	Filename string
	// Format is the detected source format (pdf, text).
	Format string
	// SHA256 is the hex content hash of the raw upload, used for
	// idempotent re-ingestion.
	SHA256 string
	// TextLength is the length in bytes of the extracted text.
	TextLength int
	// State is the document's current pipeline state.
	State string
	// FailedStage names the stage that failed when State is failed.
	FailedStage string
	// ErrorKind classifies the failure (chunking, embedding, store, extraction).
	ErrorKind string
	// Metadata holds the merged document-level metadata.
	Metadata map[string]string
	// CreatedAt is when the document entered the pipeline.
	CreatedAt time.Time
	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time
}

// Catalog persists and retrieves document records. Implementations must be
// safe for concurrent use.
type Catalog interface {
	// Create inserts a new document record.
	Create(ctx context.Context, rec Record) error
	// SetState updates the document's pipeline state.
	SetState(ctx context.Context, id, state string) error
	// Fail marks the document failed, recording the stage and error kind.
	Fail(ctx context.Context, id, stage, errorKind string) error
	// SetTextLength records the extracted text length.
	SetTextLength(ctx context.Context, id string, n int) error
	// MergeMetadata merges patch into the document's stored metadata.
	MergeMetadata(ctx context.Context, id string, patch map[string]string) error
	// Get returns the record for id, or sql.ErrNoRows wrapped if absent.
	Get(ctx context.Context, id string) (*Record, error)
	// ByHash returns the record with the given content hash, or nil.
	ByHash(ctx context.Context, sha256 string) (*Record, error)
	// List returns all records ordered by creation time.
	List(ctx context.Context) ([]Record, error)
	// Delete removes the record. Absent ids are a no-op.
	Delete(ctx context.Context, id string) error
	// Close releases any resources held by the catalog.
	Close() error
}

// SQLiteCatalog is a Catalog backed by a local SQLite database.
type SQLiteCatalog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the catalog database.
// It resolves to ~/.arkb/catalog.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("catalog: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".arkb")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("catalog: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "catalog.db"), nil
}

// Open opens (or creates) a SQLiteCatalog at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteCatalog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	c := &SQLiteCatalog{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// migrate creates the schema if it does not already exist.
func (c *SQLiteCatalog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT    PRIMARY KEY,
    filename     TEXT    NOT NULL,
    format       TEXT    NOT NULL,
    sha256       TEXT    NOT NULL,
    text_length  INTEGER NOT NULL DEFAULT 0,
    state        TEXT    NOT NULL,
    failed_stage TEXT    NOT NULL DEFAULT '',
    error_kind   TEXT    NOT NULL DEFAULT '',
    metadata     TEXT    NOT NULL DEFAULT '{}',
    created_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_sha256 ON documents (sha256);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents (created_at);
`
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Create inserts a new document record.
func (c *SQLiteCatalog) Create(ctx context.Context, rec Record) error {
	meta, err := marshalMeta(rec.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	const q = `INSERT INTO documents
		(id, filename, format, sha256, text_length, state, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := c.db.ExecContext(ctx, q,
		rec.ID, rec.Filename, rec.Format, rec.SHA256, rec.TextLength, rec.State, meta, now, now); err != nil {
		return fmt.Errorf("catalog: create %s: %w", rec.ID, err)
	}
	return nil
}

// SetState updates the document's pipeline state.
func (c *SQLiteCatalog) SetState(ctx context.Context, id, state string) error {
	const q = `UPDATE documents SET state = ?, updated_at = ? WHERE id = ?`
	if _, err := c.db.ExecContext(ctx, q, state, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("catalog: set state for %s: %w", id, err)
	}
	return nil
}

// Fail marks the document as failed and records the stage and error kind.
func (c *SQLiteCatalog) Fail(ctx context.Context, id, stage, errorKind string) error {
	const q = `UPDATE documents SET state = 'failed', failed_stage = ?, error_kind = ?, updated_at = ? WHERE id = ?`
	if _, err := c.db.ExecContext(ctx, q, stage, errorKind, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("catalog: fail %s: %w", id, err)
	}
	return nil
}

// SetTextLength records the extracted text length once extraction completes.
func (c *SQLiteCatalog) SetTextLength(ctx context.Context, id string, n int) error {
	const q = `UPDATE documents SET text_length = ?, updated_at = ? WHERE id = ?`
	if _, err := c.db.ExecContext(ctx, q, n, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("catalog: set text length for %s: %w", id, err)
	}
	return nil
}

// MergeMetadata merges patch into the document's stored metadata. Existing
// keys are overwritten by patch values.
func (c *SQLiteCatalog) MergeMetadata(ctx context.Context, id string, patch map[string]string) error {
	rec, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]string, len(patch))
	}
	for k, v := range patch {
		rec.Metadata[k] = v
	}
	meta, err := marshalMeta(rec.Metadata)
	if err != nil {
		return err
	}
	const q = `UPDATE documents SET metadata = ?, updated_at = ? WHERE id = ?`
	if _, err := c.db.ExecContext(ctx, q, meta, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("catalog: merge metadata for %s: %w", id, err)
	}
	return nil
}

// Get returns the record for id.
func (c *SQLiteCatalog) Get(ctx context.Context, id string) (*Record, error) {
	const q = selectCols + ` WHERE id = ?`
	rec, err := scanRecord(c.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	return rec, nil
}

// ByHash returns the record with the given content hash, or nil when no
// document with that hash exists.
func (c *SQLiteCatalog) ByHash(ctx context.Context, sha string) (*Record, error) {
	const q = selectCols + ` WHERE sha256 = ? ORDER BY created_at DESC LIMIT 1`
	rec, err := scanRecord(c.db.QueryRowContext(ctx, q, sha))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: by hash: %w", err)
	}
	return rec, nil
}

// List returns all records ordered oldest-first.
func (c *SQLiteCatalog) List(ctx context.Context) ([]Record, error) {
	const q = selectCols + ` ORDER BY created_at ASC, id ASC`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: list scan: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list rows: %w", err)
	}
	return recs, nil
}

// Delete removes the record for id. Absent ids are a no-op.
func (c *SQLiteCatalog) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = ?`
	if _, err := c.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("catalog: delete %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// selectCols is the shared column list for record queries.
const selectCols = `SELECT id, filename, format, sha256, text_length, state,
	failed_stage, error_kind, metadata, created_at, updated_at FROM documents`

// rowScanner abstracts *sql.Row and *sql.Rows for scanRecord.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one document row into a Record.
func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var meta string
	var created, updated int64
	if err := row.Scan(&rec.ID, &rec.Filename, &rec.Format, &rec.SHA256, &rec.TextLength,
		&rec.State, &rec.FailedStage, &rec.ErrorKind, &meta, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	rec.CreatedAt = time.Unix(created, 0)
	rec.UpdatedAt = time.Unix(updated, 0)
	return &rec, nil
}

// marshalMeta encodes metadata as JSON, mapping nil to the empty object.
func marshalMeta(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("catalog: encode metadata: %w", err)
	}
	return string(b), nil
}
