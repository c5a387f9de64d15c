package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"
)

// Reserved payload keys used for chunk fields. Document metadata is flattened
// into the same payload so Qdrant can filter on it server-side; metadata keys
// that collide with these are ignored at insert time.
const (
	payloadDocumentID     = "document_id"
	payloadChunkIndex     = "chunk_index"
	payloadText           = "text"
	payloadPageStart      = "page_start"
	payloadPageEnd        = "page_end"
	payloadStartOffset    = "start_offset"
	payloadEndOffset      = "end_offset"
	payloadPageConfidence = "page_confidence"
	payloadUploadedAt     = "uploaded_at"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection with
// cosine distance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// pending guards against concurrent inserts for the same document id.
	pending inflight
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, storeErr("connect", true, fmt.Errorf("qdrant: create client: %w", err))
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return storeErr("connect", true, fmt.Errorf("qdrant: check collection: %w", err))
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return storeErr("connect", true, fmt.Errorf("qdrant: create collection %q: %w", s.cfg.Collection, err))
	}
	return nil
}

// Insert persists the document's chunks as points in a single upsert call.
// A document id that already has points, or an insert in flight, is rejected.
func (s *QdrantStore) Insert(ctx context.Context, doc Document, chunks []Chunk) error {
	if doc.ID == "" {
		return storeErr("insert", false, fmt.Errorf("document id is empty"))
	}
	if !s.pending.begin(doc.ID) {
		return storeErr("insert", false, fmt.Errorf("insert already in flight for document %s", doc.ID))
	}
	defer s.pending.end(doc.ID)

	count, err := s.countDocumentPoints(ctx, doc.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return storeErr("insert", false, fmt.Errorf("document %s already exists (%d chunks)", doc.ID, count))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload := map[string]any{
			payloadDocumentID:     c.DocumentID,
			payloadChunkIndex:     int64(c.Index),
			payloadText:           c.Text,
			payloadPageStart:      int64(c.PageStart),
			payloadPageEnd:        int64(c.PageEnd),
			payloadStartOffset:    int64(c.StartOffset),
			payloadEndOffset:      int64(c.EndOffset),
			payloadPageConfidence: c.PageConfidence,
			payloadUploadedAt:     doc.UploadedAt.UnixNano(),
		}
		for k, v := range doc.Metadata {
			if _, reserved := payload[k]; reserved {
				continue
			}
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return storeErr("insert", true, fmt.Errorf("qdrant: upsert %d points: %w", len(points), err))
	}
	return nil
}

// SimilaritySearch performs a cosine similarity query with server-side
// metadata filtering. Equal scores are re-sorted client-side by document
// upload time and chunk index so ordering is deterministic.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, queryVector []float32, topK int, filter Filter) ([]Chunk, error) {
	if topK <= 0 {
		return nil, storeErr("search", false, fmt.Errorf("topK must be positive, got %d", topK))
	}

	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		Filter:         qdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, storeErr("search", true, fmt.Errorf("qdrant: query: %w", err))
	}

	type ordered struct {
		chunk      Chunk
		uploadedAt int64
	}
	out := make([]ordered, 0, len(results))
	for _, r := range results {
		c := Chunk{ID: r.Id.GetUuid(), Score: r.Score}
		var uploadedAt int64
		if p := r.Payload; p != nil {
			c.DocumentID = p[payloadDocumentID].GetStringValue()
			c.Index = int(p[payloadChunkIndex].GetIntegerValue())
			c.Text = p[payloadText].GetStringValue()
			c.PageStart = int(p[payloadPageStart].GetIntegerValue())
			c.PageEnd = int(p[payloadPageEnd].GetIntegerValue())
			c.StartOffset = int(p[payloadStartOffset].GetIntegerValue())
			c.EndOffset = int(p[payloadEndOffset].GetIntegerValue())
			c.PageConfidence = p[payloadPageConfidence].GetDoubleValue()
			uploadedAt = p[payloadUploadedAt].GetIntegerValue()
		}
		out = append(out, ordered{chunk: c, uploadedAt: uploadedAt})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].chunk.Score != out[j].chunk.Score {
			return out[i].chunk.Score > out[j].chunk.Score
		}
		if out[i].uploadedAt != out[j].uploadedAt {
			return out[i].uploadedAt < out[j].uploadedAt
		}
		return out[i].chunk.Index < out[j].chunk.Index
	})

	chunks := make([]Chunk, 0, len(out))
	for _, o := range out {
		chunks = append(chunks, o.chunk)
	}
	return chunks, nil
}

// Delete removes every chunk belonging to the document. Absent document ids
// delete zero points, which Qdrant treats as success.
func (s *QdrantStore) Delete(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
	})
	if err != nil {
		return storeErr("delete", true, fmt.Errorf("qdrant: delete document %s: %w", documentID, err))
	}
	return nil
}

// UpdateMetadata merges patch into the payload of every chunk of the
// document. Chunk fields under reserved keys are never overwritten.
func (s *QdrantStore) UpdateMetadata(ctx context.Context, documentID string, patch map[string]string) error {
	count, err := s.countDocumentPoints(ctx, documentID)
	if err != nil {
		return err
	}
	if count == 0 {
		return storeErr("update", false, fmt.Errorf("document %s not found", documentID))
	}

	payload := make(map[string]any, len(patch))
	reserved := map[string]struct{}{
		payloadDocumentID: {}, payloadChunkIndex: {}, payloadText: {},
		payloadPageStart: {}, payloadPageEnd: {}, payloadStartOffset: {},
		payloadEndOffset: {}, payloadPageConfidence: {}, payloadUploadedAt: {},
	}
	for k, v := range patch {
		if _, ok := reserved[k]; ok {
			continue
		}
		payload[k] = v
	}
	if len(payload) == 0 {
		return nil
	}

	_, err = s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.cfg.Collection,
		Payload:        qdrant.NewValueMap(payload),
		PointsSelector: qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
	})
	if err != nil {
		return storeErr("update", true, fmt.Errorf("qdrant: set payload for document %s: %w", documentID, err))
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// countDocumentPoints returns the number of points stored for the document.
func (s *QdrantStore) countDocumentPoints(ctx context.Context, documentID string) (uint64, error) {
	exact := true
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         documentFilter(documentID),
		Exact:          &exact,
	})
	if err != nil {
		return 0, storeErr("search", true, fmt.Errorf("qdrant: count points for %s: %w", documentID, err))
	}
	return count, nil
}

// documentFilter builds a Qdrant filter matching all points of one document.
func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)},
	}
}

// qdrantFilter converts an exact-match metadata Filter into a Qdrant Must
// conjunction. Nil is returned for an empty filter so Qdrant skips filtering.
func qdrantFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conds := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conds = append(conds, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: conds}
}
