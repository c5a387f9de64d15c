package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// PgVectorConfig holds connection parameters for a PostgreSQL + pgvector
// backed store.
type PgVectorConfig struct {
	// URL is the PostgreSQL connection string.
	URL string

	// VectorSize is the dimensionality of the embeddings column.
	VectorSize int
}

// PgVectorStore implements VectorStore on PostgreSQL with the pgvector
// extension. It is the second interchangeable backend beside Qdrant, so the
// two can be swapped without touching the pipeline.
type PgVectorStore struct {
	// pool is the underlying connection pool.
	pool *pgxpool.Pool

	// pending guards against concurrent inserts for the same document id.
	pending inflight
}

// NewPgVectorStore connects to PostgreSQL, registers the vector type, and
// ensures the schema exists.
func NewPgVectorStore(ctx context.Context, cfg *PgVectorConfig) (*PgVectorStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, storeErr("connect", false, fmt.Errorf("pgvector: parse connection string: %w", err))
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, storeErr("connect", true, fmt.Errorf("pgvector: create pool: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, storeErr("connect", true, fmt.Errorf("pgvector: ping: %w", err))
	}

	s := &PgVectorStore{pool: pool}
	if err := s.migrate(ctx, cfg.VectorSize); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the extension and schema if they do not already exist.
func (s *PgVectorStore) migrate(ctx context.Context, vectorSize int) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    filename    TEXT NOT NULL,
    format      TEXT NOT NULL,
    text_length INTEGER NOT NULL,
    uploaded_at TIMESTAMPTZ NOT NULL,
    metadata    JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE TABLE IF NOT EXISTS chunks (
    seq             BIGSERIAL PRIMARY KEY,
    id              TEXT NOT NULL UNIQUE,
    document_id     TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    chunk_index     INTEGER NOT NULL,
    content         TEXT NOT NULL,
    page_start      INTEGER NOT NULL,
    page_end        INTEGER NOT NULL,
    start_offset    INTEGER NOT NULL,
    end_offset      INTEGER NOT NULL,
    page_confidence DOUBLE PRECISION NOT NULL,
    embedding       vector(%d) NOT NULL,
    UNIQUE (document_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id, chunk_index);
`, vectorSize)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return storeErr("connect", true, fmt.Errorf("pgvector: migrate: %w", err))
	}
	return nil
}

// Insert persists the document row and all chunk rows in one transaction, so
// a partially embedded document is never visible to search.
func (s *PgVectorStore) Insert(ctx context.Context, doc Document, chunks []Chunk) error {
	if doc.ID == "" {
		return storeErr("insert", false, fmt.Errorf("document id is empty"))
	}
	if !s.pending.begin(doc.ID) {
		return storeErr("insert", false, fmt.Errorf("insert already in flight for document %s", doc.ID))
	}
	defer s.pending.end(doc.ID)

	meta, err := json.Marshal(nonNil(doc.Metadata))
	if err != nil {
		return storeErr("insert", false, fmt.Errorf("pgvector: marshal metadata: %w", err))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("insert", true, fmt.Errorf("pgvector: begin: %w", err))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO documents (id, filename, format, text_length, uploaded_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.Filename, doc.Format, doc.TextLength, doc.UploadedAt, meta,
	)
	if err != nil {
		return storeErr("insert", true, fmt.Errorf("pgvector: insert document: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return storeErr("insert", false, fmt.Errorf("document %s already exists", doc.ID))
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, document_id, chunk_index, content, page_start, page_end,
			                     start_offset, end_offset, page_confidence, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID, c.DocumentID, c.Index, c.Text, c.PageStart, c.PageEnd,
			c.StartOffset, c.EndOffset, c.PageConfidence, pgvector.NewVector(c.Embedding),
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return storeErr("insert", true, fmt.Errorf("pgvector: insert chunk %d: %w", i, err))
		}
	}
	if err := br.Close(); err != nil {
		return storeErr("insert", true, fmt.Errorf("pgvector: close batch: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("insert", true, fmt.Errorf("pgvector: commit: %w", err))
	}
	return nil
}

// SimilaritySearch orders chunks by cosine distance to queryVector. The
// metadata filter becomes a JSONB containment predicate on the document row.
// Ties break on the chunk insertion sequence, which is monotonic.
func (s *PgVectorStore) SimilaritySearch(ctx context.Context, queryVector []float32, topK int, filter Filter) ([]Chunk, error) {
	if topK <= 0 {
		return nil, storeErr("search", false, fmt.Errorf("topK must be positive, got %d", topK))
	}

	filterJSON, err := json.Marshal(nonNil(map[string]string(filter)))
	if err != nil {
		return nil, storeErr("search", false, fmt.Errorf("pgvector: marshal filter: %w", err))
	}

	rows, err := s.pool.Query(ctx, `
SELECT c.id, c.document_id, c.chunk_index, c.content,
       c.page_start, c.page_end, c.start_offset, c.end_offset, c.page_confidence,
       1 - (c.embedding <=> $1) AS similarity
FROM   chunks c
JOIN   documents d ON d.id = c.document_id
WHERE  d.metadata @> $2::jsonb
ORDER  BY c.embedding <=> $1, c.seq
LIMIT  $3`,
		pgvector.NewVector(queryVector), filterJSON, topK,
	)
	if err != nil {
		return nil, storeErr("search", true, fmt.Errorf("pgvector: query: %w", err))
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var sim float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text,
			&c.PageStart, &c.PageEnd, &c.StartOffset, &c.EndOffset, &c.PageConfidence,
			&sim); err != nil {
			return nil, storeErr("search", true, fmt.Errorf("pgvector: scan: %w", err))
		}
		c.Score = float32(sim)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("search", true, fmt.Errorf("pgvector: rows: %w", err))
	}
	return out, nil
}

// Delete removes the document row; chunk rows cascade. Absent ids affect
// zero rows and succeed.
func (s *PgVectorStore) Delete(ctx context.Context, documentID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID); err != nil {
		return storeErr("delete", true, fmt.Errorf("pgvector: delete document %s: %w", documentID, err))
	}
	return nil
}

// UpdateMetadata merges patch into the document's JSONB metadata.
func (s *PgVectorStore) UpdateMetadata(ctx context.Context, documentID string, patch map[string]string) error {
	patchJSON, err := json.Marshal(nonNil(patch))
	if err != nil {
		return storeErr("update", false, fmt.Errorf("pgvector: marshal patch: %w", err))
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET metadata = metadata || $2::jsonb WHERE id = $1`,
		documentID, patchJSON,
	)
	if err != nil {
		return storeErr("update", true, fmt.Errorf("pgvector: update metadata for %s: %w", documentID, err))
	}
	if tag.RowsAffected() == 0 {
		return storeErr("update", false, fmt.Errorf("document %s not found", documentID))
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}

// nonNil replaces a nil map with an empty one so JSON marshalling yields {}.
func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
