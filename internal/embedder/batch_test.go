package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// hashEmbedder is a deterministic fake backend: each text's vector is derived
// from its content hash, so identical inputs always produce identical vectors
// regardless of batching.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	// failUntil makes the first n calls fail with failErr.
	failUntil int
	failErr   error
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.calls++
	call := h.calls
	h.mu.Unlock()
	if call <= h.failUntil {
		return nil, h.failErr
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		vec := make([]float32, 4)
		for j := range vec {
			bits := binary.BigEndian.Uint32(sum[j*4:])
			vec[j] = float32(bits%1000) / 1000
		}
		out[i] = vec
	}
	return out, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("segment %d about replicated state machines", i)
	}
	return out
}

func TestBatcher_DeterministicAcrossBatchSizes(t *testing.T) {
	t.Parallel()

	in := texts(37)
	var want [][]float32
	for _, size := range []int{1, 5, 32, 64} {
		b, err := NewBatcher(&hashEmbedder{}, BatcherConfig{BatchSize: size})
		if err != nil {
			t.Fatalf("NewBatcher: %v", err)
		}
		got, err := b.EmbedAll(context.Background(), in, nil)
		if err != nil {
			t.Fatalf("EmbedAll(size=%d): %v", size, err)
		}
		if len(got) != len(in) {
			t.Fatalf("size=%d: got %d vectors, want %d", size, len(got), len(in))
		}
		if want == nil {
			want = got
			continue
		}
		for i := range got {
			for j := range got[i] {
				if got[i][j] != want[i][j] {
					t.Fatalf("size=%d: vector %d differs from batch-size-1 result", size, i)
				}
			}
		}
	}
}

func TestBatcher_OrderPreserved(t *testing.T) {
	t.Parallel()

	in := texts(10)
	b, err := NewBatcher(&hashEmbedder{}, BatcherConfig{BatchSize: 3, Parallelism: 4})
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}
	got, err := b.EmbedAll(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}

	// Each position must hold the vector for its own text, independent of
	// which goroutine finished first.
	single, _ := NewBatcher(&hashEmbedder{}, BatcherConfig{BatchSize: 1, Parallelism: 1})
	for i, text := range in {
		want, err := single.EmbedQuery(context.Background(), text)
		if err != nil {
			t.Fatalf("EmbedQuery: %v", err)
		}
		for j := range want {
			if got[i][j] != want[j] {
				t.Fatalf("vector %d is not the embedding of its own text", i)
			}
		}
	}
}

func TestBatcher_EmptyInputFails(t *testing.T) {
	t.Parallel()

	b, _ := NewBatcher(&hashEmbedder{}, BatcherConfig{})
	_, err := b.EmbedAll(context.Background(), nil, nil)
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("got %v, want EmbeddingError", err)
	}
	if ee.IsTransient() {
		t.Error("empty input must be a permanent error")
	}
}

func TestBatcher_OversizeSegmentFails(t *testing.T) {
	t.Parallel()

	b, _ := NewBatcher(&hashEmbedder{}, BatcherConfig{MaxSegmentTokens: 10})
	in := []string{"short", strings.Repeat("x", 500), "also short"}
	_, err := b.EmbedAll(context.Background(), in, nil)
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("got %v, want EmbeddingError", err)
	}
	if ee.IsTransient() {
		t.Error("oversize segment must be a permanent error")
	}
}

func TestBatcher_ProgressReporting(t *testing.T) {
	t.Parallel()

	in := texts(25)
	b, _ := NewBatcher(&hashEmbedder{}, BatcherConfig{BatchSize: 10})

	var mu sync.Mutex
	var seen []int
	_, err := b.EmbedAll(context.Background(), in, func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if total != 25 {
			t.Errorf("total: got %d, want 25", total)
		}
		seen = append(seen, done)
	})
	if err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("got %d progress calls, want 3", len(seen))
	}
	// Counts are cumulative and monotonic, ending at the total.
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Errorf("progress not monotonic: %v", seen)
		}
	}
	if seen[len(seen)-1] != 25 {
		t.Errorf("final progress %d, want 25", seen[len(seen)-1])
	}
}

func TestBatcher_NoPartialResultsOnFailure(t *testing.T) {
	t.Parallel()

	backend := &hashEmbedder{failUntil: 1, failErr: fmt.Errorf("backend down")}
	b, _ := NewBatcher(backend, BatcherConfig{BatchSize: 5, Parallelism: 1})

	got, err := b.EmbedAll(context.Background(), texts(12), nil)
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
	if got != nil {
		t.Error("failed EmbedAll must not return partial results")
	}
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("got %T, want EmbeddingError", err)
	}
	if !ee.IsTransient() {
		t.Error("unclassified backend errors default to transient")
	}
}

func TestBatcher_PreservesBackendClassification(t *testing.T) {
	t.Parallel()

	perm := embedErr("embed", false, fmt.Errorf("invalid api key"))
	backend := &hashEmbedder{failUntil: 100, failErr: perm}
	b, _ := NewBatcher(backend, BatcherConfig{})

	_, err := b.EmbedAll(context.Background(), texts(3), nil)
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("got %v, want EmbeddingError", err)
	}
	if ee.IsTransient() {
		t.Error("a permanent backend error must stay permanent through the batcher")
	}
}

func TestBatcher_RateLimitThrottlesRequests(t *testing.T) {
	t.Parallel()

	// Three single-segment batches at 50 req/s with burst 1: the second and
	// third requests must each wait ~20ms for a token.
	b, err := NewBatcher(&hashEmbedder{}, BatcherConfig{
		BatchSize:         1,
		Parallelism:       3,
		RequestsPerSecond: 50,
	})
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	start := time.Now()
	if _, err := b.EmbedAll(context.Background(), texts(3), nil); err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("3 requests at 50 req/s finished in %v, limiter not applied", elapsed)
	}
}

func TestBatcher_RateLimitCanceled(t *testing.T) {
	t.Parallel()

	b, _ := NewBatcher(&hashEmbedder{}, BatcherConfig{
		BatchSize:         1,
		Parallelism:       1,
		RequestsPerSecond: 0.001,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// The second request would wait ~1000s for a token; the context must cut
	// the wait short with a transient error.
	_, err := b.EmbedAll(ctx, texts(2), nil)
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("got %v, want EmbeddingError", err)
	}
	if !ee.IsTransient() {
		t.Error("a limiter wait cut short by the context should stay transient")
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{strings.Repeat("a", 400), 100},
	}
	for _, tt := range tests {
		if got := estimateTokens(tt.in); got != tt.want {
			t.Errorf("estimateTokens(%d chars) = %d, want %d", len(tt.in), got, tt.want)
		}
	}
}
