package rag

import (
	"context"
	"fmt"
	"testing"
)

// staticEmbedder returns the same vector for every text.
type staticEmbedder struct {
	vec  []float32
	err  error
	seen []string
}

func (e *staticEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.seen = append(e.seen, texts...)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = e.vec
	}
	return out, nil
}

func TestRetriever_EmbedsQueryAndSearches(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	seedDoc(t, store, "doc-a", map[string]string{"topic": "consensus"}, vec(1, 0, 0))
	seedDoc(t, store, "doc-b", map[string]string{"topic": "storage"}, vec(0, 1, 0))

	emb := &staticEmbedder{vec: vec(1, 0, 0)}
	r, err := NewRetriever(emb, store, 5)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	got, err := r.Retrieve(context.Background(), "how does paxos reach agreement", 2, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].DocumentID != "doc-a" {
		t.Errorf("best match: got %s, want doc-a", got[0].DocumentID)
	}
	if len(emb.seen) != 1 || emb.seen[0] != "how does paxos reach agreement" {
		t.Errorf("query not embedded verbatim: %v", emb.seen)
	}

	// Filters pass through to the store.
	got, err = r.Retrieve(context.Background(), "query", 5, Filter{"topic": "storage"})
	if err != nil {
		t.Fatalf("Retrieve with filter: %v", err)
	}
	if len(got) != 1 || got[0].DocumentID != "doc-b" {
		t.Errorf("filtered retrieve: got %v", got)
	}
}

func TestRetriever_DefaultTopK(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	for i := range 6 {
		seedDoc(t, store, fmt.Sprintf("doc-%d", i), nil, vec(1, 0, 0))
	}

	r, err := NewRetriever(&staticEmbedder{vec: vec(1, 0, 0)}, store, 4)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	got, err := r.Retrieve(context.Background(), "anything", 0, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d chunks, want defaultTopK=4", len(got))
	}
}

func TestRetriever_EmbedderFailure(t *testing.T) {
	t.Parallel()

	r, err := NewRetriever(&staticEmbedder{err: fmt.Errorf("backend down")}, NewMemoryStore(), 5)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "q", 5, nil); err == nil {
		t.Fatal("expected error when the embedder fails")
	}
}

func TestNewRetriever_NilDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, NewMemoryStore(), 5); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&staticEmbedder{vec: vec(1, 0, 0)}, nil, 5); err == nil {
		t.Error("expected error for nil store")
	}
}
