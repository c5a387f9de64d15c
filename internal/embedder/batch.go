package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/rag"
)

// charsPerToken is the conservative character-to-token ratio used to size
// segments against the model's input limit. 4 chars/token is standard for
// English prose and code and deliberately under-estimates to leave headroom.
const charsPerToken = 4

// Defaults applied by NewBatcher for zero-valued config fields.
const (
	// DefaultBatchSize is the maximum number of segments per backend request.
	DefaultBatchSize = 32

	// DefaultMaxSegmentTokens is the per-segment input limit in estimated
	// tokens. 8192 matches the common embedding model context window.
	DefaultMaxSegmentTokens = 8192

	// DefaultParallelism is the number of batches embedded concurrently.
	DefaultParallelism = 4
)

// BatcherConfig holds the batching parameters.
type BatcherConfig struct {
	// BatchSize is the maximum number of segments per backend request.
	BatchSize int

	// MaxSegmentTokens is the per-segment input limit in estimated tokens.
	// Segments above it are rejected before any batch is sent.
	MaxSegmentTokens int

	// Parallelism bounds how many batches are in flight at once.
	Parallelism int

	// RequestsPerSecond throttles backend requests. Zero disables the
	// limiter.
	RequestsPerSecond float64
}

// Batcher wraps a rag.Embedder with batching, input validation, bounded
// parallelism, and rate limiting. Results are reassembled into input order,
// so batch boundaries never affect output values or positions. It is safe
// for concurrent use and itself implements rag.Embedder.
type Batcher struct {
	// backend is the wrapped single-batch embedder.
	backend rag.Embedder

	// cfg holds the resolved batching parameters.
	cfg BatcherConfig

	// limiter throttles backend requests; nil when unlimited.
	limiter *rate.Limiter
}

// NewBatcher wraps backend with the given config, applying defaults for
// zero values.
func NewBatcher(backend rag.Embedder, cfg BatcherConfig) (*Batcher, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedder: backend must not be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxSegmentTokens <= 0 {
		cfg.MaxSegmentTokens = DefaultMaxSegmentTokens
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}

	b := &Batcher{backend: backend, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return b, nil
}

// estimateTokens returns a rough token count for s using the character
// heuristic.
func estimateTokens(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EmbedAll embeds every text and returns vectors in input order. Batches run
// in parallel up to the configured limit; onBatch (optional) is called after
// each batch completes with the number of segments embedded so far and the
// total. On any failure no partial results are returned — the caller must
// retry at a reduced batch size or truncate the offending segment.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string, onBatch func(done, total int)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedErr("validate", false, fmt.Errorf("input list is empty"))
	}
	for i, t := range texts {
		if est := estimateTokens(t); est > b.cfg.MaxSegmentTokens {
			return nil, embedErr("validate", false,
				fmt.Errorf("segment %d is ~%d tokens, exceeding the %d-token input limit", i, est, b.cfg.MaxSegmentTokens))
		}
	}

	out := make([][]float32, len(texts))

	type batch struct {
		offset int
		texts  []string
	}
	var batches []batch
	for off := 0; off < len(texts); off += b.cfg.BatchSize {
		end := off + b.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{offset: off, texts: texts[off:end]})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Parallelism)

	var mu sync.Mutex
	done := 0

	for _, bt := range batches {
		g.Go(func() error {
			if b.limiter != nil {
				if err := b.limiter.Wait(gctx); err != nil {
					return embedErr("embed", true, err)
				}
			}
			vecs, err := b.backend.Embed(gctx, bt.texts)
			if err != nil {
				return wrapBackendErr(err)
			}
			if len(vecs) != len(bt.texts) {
				return embedErr("embed", false,
					fmt.Errorf("backend returned %d vectors for %d segments", len(vecs), len(bt.texts)))
			}
			copy(out[bt.offset:], vecs)

			mu.Lock()
			done += len(bt.texts)
			if onBatch != nil {
				onBatch(done, len(texts))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Embed implements rag.Embedder by delegating to EmbedAll without progress
// reporting.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return b.EmbedAll(ctx, texts, nil)
}

// EmbedQuery is the single-string convenience path used at query time. The
// same backend model embeds queries and documents so both share one vector
// space.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedAll(ctx, []string{text}, nil)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// wrapBackendErr classifies a backend error, preserving an existing
// *EmbeddingError and treating anything else as transient backend trouble.
func wrapBackendErr(err error) error {
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return err
	}
	return embedErr("embed", true, err)
}
