// Package rag defines the core types and interfaces of the research
// knowledgebase ingestion pipeline: documents, chunks, vector storage, and
// embedding. Concrete backends (Qdrant, pgvector, in-memory) satisfy these
// interfaces so the pipeline and CLI never depend on a specific store.
package rag

import (
	"context"
	"time"
)

// Document represents one ingested source file. A Document is immutable once
// stored except for its metadata, which may be merged via
// VectorStore.UpdateMetadata.
type Document struct {
	// ID is the unique identifier for this document.
	ID string

	// Filename is the original upload filename.
	Filename string

	// Format is the detected source format (pdf, text).
	Format string

	// TextLength is the length in bytes of the extracted text.
	TextLength int

	// UploadedAt is when the document entered the pipeline.
	UploadedAt time.Time

	// Metadata holds document-level fields (author, title, published,
	// keywords) used for filtered retrieval.
	Metadata map[string]string
}

// Chunk is a contiguous slice of a document's extracted text — the unit of
// embedding and retrieval. The page and offset fields are the durable
// citation contract: they must survive storage indefinitely so results can
// be traced back to their source location.
type Chunk struct {
	// ID is the unique identifier for this chunk.
	ID string

	// DocumentID is the owning document's ID.
	DocumentID string

	// Index is the chunk's sequence position within the document.
	// Indices are contiguous starting at 0.
	Index int

	// Text is the chunk's raw text, sliced verbatim from the extracted text.
	Text string

	// PageStart and PageEnd are the 1-based page numbers the chunk spans.
	// Equal when the chunk does not cross a page break.
	PageStart int
	PageEnd   int

	// StartOffset and EndOffset delimit the chunk's byte range in the
	// extracted text (half-open interval).
	StartOffset int
	EndOffset   int

	// PageConfidence is the confidence of the page attribution in [0,1].
	// 1.0 means exact offsets; lower values come from fuzzy alignment.
	PageConfidence float64

	// Embedding is the chunk's dense vector, attached after the embedding
	// stage and never mutated afterward.
	Embedding []float32

	// Score is the cosine similarity assigned during retrieval.
	// Zero when the chunk was not produced by a search.
	Score float32
}

// Filter is an exact-match conjunction over document-level metadata fields.
// A chunk matches when its owning document's metadata contains every
// key/value pair in the filter. A nil or empty Filter matches everything.
type Filter map[string]string

// VectorStore persists chunks with their embeddings and document metadata.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Insert persists a document and its chunks atomically with respect to
	// that document: either all chunks become visible to reads or none do.
	// A second Insert for a document id that already exists, or that has an
	// insert in flight, is rejected with a *VectorStoreError — never
	// interleaved or duplicated.
	Insert(ctx context.Context, doc Document, chunks []Chunk) error

	// SimilaritySearch returns the topK chunks ranked by descending cosine
	// similarity to queryVector, restricted to chunks whose document
	// metadata satisfies filter. Ties in similarity break by chunk
	// insertion order, so results are deterministic.
	SimilaritySearch(ctx context.Context, queryVector []float32, topK int, filter Filter) ([]Chunk, error)

	// Delete removes the document and all its chunks. Deleting an absent
	// document id is a no-op, not an error.
	Delete(ctx context.Context, documentID string) error

	// UpdateMetadata merges patch into the document's metadata without
	// touching chunk text or vectors.
	UpdateMetadata(ctx context.Context, documentID string, patch map[string]string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings. The same Embedder
// must be used for document chunks and queries so both live in one vector
// space. Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the query-side entry point: it embeds a free-text query and
// returns the most similar stored chunks with their citation fields.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant chunks for the query,
	// restricted by the optional metadata filter.
	Retrieve(ctx context.Context, query string, topK int, filter Filter) ([]Chunk, error)
}
