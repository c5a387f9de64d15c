package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force in-memory VectorStore. It exists for tests,
// local experimentation, and as the reference implementation of the store
// contract: atomic per-document inserts, deterministic tie-breaking, and
// idempotent deletes.
type MemoryStore struct {
	// mu protects all fields below.
	mu sync.RWMutex

	// docs maps document id to its stored record.
	docs map[string]*memoryDoc

	// seq is a monotonically increasing counter assigned to each chunk at
	// insert time, used to break similarity ties by insertion order.
	seq int64

	// pending guards against concurrent inserts for the same document id.
	pending inflight
}

// memoryDoc bundles a document with its chunks and their insertion sequence.
type memoryDoc struct {
	doc    Document
	chunks []Chunk
	// seqs is parallel to chunks: seqs[i] is the global insertion sequence
	// number of chunks[i].
	seqs []int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*memoryDoc)}
}

// Insert stores doc and its chunks. All chunks become visible atomically.
// Re-inserting an existing document id is rejected, never duplicated.
func (s *MemoryStore) Insert(_ context.Context, doc Document, chunks []Chunk) error {
	if doc.ID == "" {
		return storeErr("insert", false, fmt.Errorf("document id is empty"))
	}
	if !s.pending.begin(doc.ID) {
		return storeErr("insert", false, fmt.Errorf("insert already in flight for document %s", doc.ID))
	}
	defer s.pending.end(doc.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return storeErr("insert", false, fmt.Errorf("document %s already exists", doc.ID))
	}

	rec := &memoryDoc{
		doc:    cloneDocument(doc),
		chunks: make([]Chunk, len(chunks)),
		seqs:   make([]int64, len(chunks)),
	}
	for i, c := range chunks {
		rec.chunks[i] = cloneChunk(c)
		s.seq++
		rec.seqs[i] = s.seq
	}
	s.docs[doc.ID] = rec
	return nil
}

// SimilaritySearch ranks all stored chunks by cosine similarity to
// queryVector and returns the topK matches satisfying filter. Ties break by
// insertion order.
func (s *MemoryStore) SimilaritySearch(_ context.Context, queryVector []float32, topK int, filter Filter) ([]Chunk, error) {
	if len(queryVector) == 0 {
		return nil, storeErr("search", false, fmt.Errorf("query vector is empty"))
	}
	if topK <= 0 {
		return nil, storeErr("search", false, fmt.Errorf("topK must be positive, got %d", topK))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk Chunk
		score float32
		seq   int64
	}

	var candidates []scored
	for _, rec := range s.docs {
		if !matchesFilter(rec.doc.Metadata, filter) {
			continue
		}
		for i, c := range rec.chunks {
			candidates = append(candidates, scored{
				chunk: c,
				score: cosineSimilarity(queryVector, c.Embedding),
				seq:   rec.seqs[i],
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]Chunk, 0, topK)
	for _, cand := range candidates[:topK] {
		c := cloneChunk(cand.chunk)
		c.Score = cand.score
		out = append(out, c)
	}
	return out, nil
}

// Delete removes the document and all its chunks. Absent ids are a no-op.
func (s *MemoryStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	return nil
}

// UpdateMetadata merges patch into the stored document's metadata.
func (s *MemoryStore) UpdateMetadata(_ context.Context, documentID string, patch map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[documentID]
	if !ok {
		return storeErr("update", false, fmt.Errorf("document %s not found", documentID))
	}
	if rec.doc.Metadata == nil {
		rec.doc.Metadata = make(map[string]string, len(patch))
	}
	for k, v := range patch {
		rec.doc.Metadata[k] = v
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Document returns the stored document record, or false when absent.
// Used by tests and the status command against the memory backend.
func (s *MemoryStore) Document(documentID string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[documentID]
	if !ok {
		return Document{}, false
	}
	return cloneDocument(rec.doc), true
}

// ChunkCount returns the number of chunks stored for the document.
func (s *MemoryStore) ChunkCount(documentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[documentID]
	if !ok {
		return 0
	}
	return len(rec.chunks)
}

// matchesFilter reports whether metadata satisfies every key/value pair in
// filter. A nil or empty filter matches everything.
func matchesFilter(metadata map[string]string, filter Filter) bool {
	for k, want := range filter {
		if metadata[k] != want {
			return false
		}
	}
	return true
}

// cosineSimilarity computes the cosine similarity between a and b.
// Mismatched lengths or zero vectors yield 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// cloneDocument returns a deep copy of doc so callers cannot mutate stored state.
func cloneDocument(doc Document) Document {
	out := doc
	if doc.Metadata != nil {
		out.Metadata = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// cloneChunk returns a deep copy of c including its embedding.
func cloneChunk(c Chunk) Chunk {
	out := c
	if c.Embedding != nil {
		out.Embedding = make([]float32, len(c.Embedding))
		copy(out.Embedding, c.Embedding)
	}
	return out
}
