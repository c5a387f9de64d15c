// Package ingestion implements the document ingestion pipeline. It drives
// each uploaded document through extraction, chunking, embedding, and vector
// storage, recording state transitions in the catalog so that progress is
// observable and failures are attributable to a specific stage. The pipeline
// is invoked by the `arkb ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/catalog"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/chunker"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/embedder"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/extract"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/metadata"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/rag"
)

// Request describes one document to be ingested.
type Request struct {
	// Data is the raw document bytes.
	Data []byte

	// Filename is the original upload filename, used for format detection
	// and catalog records.
	Filename string

	// Metadata holds caller-supplied document metadata. It is merged over
	// metadata extracted from the document text; caller values win.
	Metadata map[string]string
}

// Result reports the outcome of processing one document.
type Result struct {
	// DocumentID is the assigned document identifier.
	DocumentID string
	// Chunks is the number of chunks stored.
	Chunks int
	// Duplicate is true when the document's content hash matched an
	// already-completed document and processing was skipped.
	Duplicate bool
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkBudget is the maximum tokens per chunk. Defaults to
	// chunker.DefaultBudget if zero.
	ChunkBudget int

	// ChunkOverlap is the token overlap between consecutive chunks.
	// Defaults to chunker.DefaultOverlap if zero; a negative value
	// disables overlap.
	ChunkOverlap int

	// MaxRetries is the number of retry attempts after the first failure
	// of a transient stage error. Defaults to 3 if zero.
	MaxRetries int

	// InitialBackoff is the delay before the first retry; subsequent
	// delays grow exponentially. Defaults to 500ms if zero.
	InitialBackoff time.Duration

	// ExtractTimeout bounds the extraction stage. Defaults to 2m if zero.
	ExtractTimeout time.Duration

	// EmbedTimeout bounds each embedding attempt. Defaults to 5m if zero.
	EmbedTimeout time.Duration

	// StoreTimeout bounds each vector store attempt. Defaults to 1m if zero.
	StoreTimeout time.Duration

	// Workers is the number of documents processed concurrently by
	// ProcessAll. Defaults to 2 if zero.
	Workers int
}

// Pipeline orchestrates the extract → chunk → embed → store flow for
// uploaded documents. All state transitions are persisted to the catalog
// before the corresponding stage runs, so an observer polling the catalog
// sees the document move through every stage.
type Pipeline struct {
	// chunks splits extracted text into retrieval units.
	chunks *chunker.Chunker

	// batcher embeds chunk texts in deterministic batches.
	batcher *embedder.Batcher

	// store persists the embedded chunks.
	store rag.VectorStore

	// cat records document lifecycle state.
	cat catalog.Catalog

	// log is the structured logger for pipeline events.
	log *slog.Logger

	// metrics holds the pipeline's Prometheus instruments.
	metrics *pipelineMetrics

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// mu guards progress.
	mu sync.Mutex

	// progress tracks in-flight and recently finished documents by id.
	progress map[string]*Progress
}

// NewPipeline constructs a Pipeline from the provided dependencies and
// config. reg receives the pipeline's Prometheus metrics; pass a fresh
// registry in tests to keep them hermetic.
func NewPipeline(batcher *embedder.Batcher, store rag.VectorStore, cat catalog.Catalog, log *slog.Logger, reg prometheus.Registerer, cfg *Config) (*Pipeline, error) {
	if batcher == nil {
		return nil, fmt.Errorf("ingestion: batcher must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cat == nil {
		return nil, fmt.Errorf("ingestion: catalog must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkBudget <= 0 {
		cfg.ChunkBudget = chunker.DefaultBudget
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 2 * time.Minute
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 5 * time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	return &Pipeline{
		chunks:   chunker.New(chunker.Config{Budget: cfg.ChunkBudget, Overlap: cfg.ChunkOverlap}),
		batcher:  batcher,
		store:    store,
		cat:      cat,
		log:      log,
		metrics:  newPipelineMetrics(reg),
		cfg:      cfg,
		progress: make(map[string]*Progress),
	}, nil
}

// Progress returns a snapshot of the named document's ingestion progress,
// or false if the pipeline has no record of it in this process.
func (p *Pipeline) Progress(documentID string) (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.progress[documentID]
	if !ok {
		return Progress{}, false
	}
	return *pr, true
}

// Process runs one document through the full pipeline. It returns the
// assigned document id and chunk count on success. If the document's content
// hash matches an already-completed document, processing is skipped and the
// existing id is returned with Duplicate set.
//
// Transient stage errors are retried with exponential backoff up to
// cfg.MaxRetries times; permanent errors fail the document immediately. On
// failure the catalog records the failed stage and error kind, and the
// vector store holds no partial data for the document.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("ingestion: empty document %q", req.Filename)
	}

	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])

	if prev, err := p.cat.ByHash(ctx, hash); err != nil {
		return nil, fmt.Errorf("ingestion: hash lookup: %w", err)
	} else if prev != nil && prev.State == string(StateComplete) {
		p.log.Info("duplicate content, skipping ingestion",
			"filename", req.Filename, "document_id", prev.ID)
		p.metrics.documentsTotal.WithLabelValues("duplicate").Inc()
		return &Result{DocumentID: prev.ID, Duplicate: true}, nil
	}

	format := extract.DetectFormat(req.Filename)
	docID := uuid.New().String()
	doc := rag.Document{
		ID:         docID,
		Filename:   req.Filename,
		Format:     format,
		UploadedAt: time.Now().UTC(),
		Metadata:   map[string]string{},
	}

	if err := p.cat.Create(ctx, catalog.Record{
		ID:       docID,
		Filename: req.Filename,
		Format:   format,
		SHA256:   hash,
		State:    string(StateReceived),
		Metadata: doc.Metadata,
	}); err != nil {
		return nil, fmt.Errorf("ingestion: register document: %w", err)
	}

	p.track(docID, req.Filename)
	p.metrics.documentsInFlight.Inc()
	defer p.metrics.documentsInFlight.Dec()

	log := p.log.With("document_id", docID, "filename", req.Filename)
	log.Info("document received", "bytes", len(req.Data), "format", format)

	// Extraction.
	p.transition(ctx, docID, StateExtracting)
	var extracted *extract.Result
	err := p.runStage(ctx, docID, stageExtract, p.cfg.ExtractTimeout, false, func(sctx context.Context) error {
		var serr error
		extracted, serr = extract.FromBytes(sctx, req.Data, req.Filename)
		return serr
	})
	if err != nil {
		return nil, p.fail(ctx, docID, stageExtract, err)
	}
	if err := p.cat.SetTextLength(ctx, docID, len(extracted.Text)); err != nil {
		log.Warn("could not record text length", "error", err)
	}
	doc.TextLength = len(extracted.Text)

	// Metadata is best-effort and never fails the document.
	rec := metadata.Extract(extracted.Text)
	for k, v := range rec.ToMap() {
		doc.Metadata[k] = v
	}
	for k, v := range req.Metadata {
		doc.Metadata[k] = v
	}
	if err := p.cat.MergeMetadata(ctx, docID, doc.Metadata); err != nil {
		log.Warn("could not record metadata", "error", err)
	}

	// Chunking is deterministic and CPU-bound; errors are always permanent.
	p.transition(ctx, docID, StateChunking)
	start := time.Now()
	chunks, err := p.chunks.Chunk(docID, extracted.Text, extracted.Pages)
	p.metrics.stageDurationSeconds.WithLabelValues(stageChunk).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, p.fail(ctx, docID, stageChunk, err)
	}
	p.setChunksTotal(docID, len(chunks))
	log.Info("document chunked", "chunks", len(chunks))

	// Embedding.
	p.transition(ctx, docID, StateEmbedding)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	var vectors [][]float32
	err = p.runStage(ctx, docID, stageEmbed, p.cfg.EmbedTimeout, false, func(sctx context.Context) error {
		var serr error
		vectors, serr = p.batcher.EmbedAll(sctx, texts, func(done, total int) {
			p.setChunksEmbedded(docID, done)
		})
		return serr
	})
	if err != nil {
		return nil, p.fail(ctx, docID, stageEmbed, err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	p.metrics.chunksEmbeddedTotal.Add(float64(len(chunks)))

	// Storage. The insert is atomic per document: once started it is
	// allowed to finish even if the caller's context is canceled, so the
	// store never holds a partial document. The per-attempt StoreTimeout
	// still bounds each insert.
	p.transition(ctx, docID, StateStoring)
	err = p.runStage(ctx, docID, stageStore, p.cfg.StoreTimeout, true, func(sctx context.Context) error {
		return p.store.Insert(sctx, doc, chunks)
	})
	if err != nil {
		return nil, p.fail(ctx, docID, stageStore, err)
	}

	p.transition(ctx, docID, StateComplete)
	p.metrics.documentsTotal.WithLabelValues("complete").Inc()
	log.Info("document ingested", "chunks", len(chunks))

	return &Result{DocumentID: docID, Chunks: len(chunks)}, nil
}

// ProcessAll ingests each request using cfg.Workers concurrent workers. It
// returns the per-document results in request order; failed documents carry
// a nil Result and their error is joined into the returned error.
func (p *Pipeline) ProcessAll(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := p.Process(gctx, req)
			results[i] = res
			errs[i] = err
			// One document's failure should not abort the rest.
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// runStage executes fn under a per-attempt timeout, retrying transient
// errors with exponential backoff. Permanent errors and context cancellation
// abort immediately. When detach is true the attempt context keeps the
// timeout but is severed from the caller's cancellation, so a started
// attempt runs to its deadline even if the caller gives up; no new attempt
// starts after the caller cancels.
func (p *Pipeline) runStage(ctx context.Context, docID, stage string, timeout time.Duration, detach bool, fn func(context.Context) error) error {
	start := time.Now()
	defer func() {
		p.metrics.stageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialBackoff
	bo.RandomizationFactor = 0.2
	// Per-attempt timeouts bound the stage; the backoff itself never does.
	bo.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		p.setAttempt(docID, attempt)

		base := ctx
		if detach {
			base = context.WithoutCancel(ctx)
		}
		sctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()

		err := fn(sctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// The caller gave up; don't retry on their behalf.
			return backoff.Permanent(ctx.Err())
		}
		if attempt > p.cfg.MaxRetries {
			return backoff.Permanent(err)
		}
		if !transient(err) {
			return backoff.Permanent(err)
		}
		p.metrics.retriesTotal.WithLabelValues(stage).Inc()
		p.log.Warn("stage failed, retrying",
			"document_id", docID, "stage", stage, "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// transient reports whether err is worth retrying. Typed pipeline errors
// carry their own classification; an attempt timeout is treated as
// transient, everything else as permanent.
func transient(err error) bool {
	var tr interface{ IsTransient() bool }
	if errors.As(err, &tr) {
		return tr.IsTransient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// fail records a terminal failure in the catalog and metrics, and returns
// the wrapped error.
func (p *Pipeline) fail(ctx context.Context, docID, stage string, err error) error {
	kind := errorKind(err)
	// Use a detached context so the failure is recorded even when the
	// caller's context is already canceled.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if cerr := p.cat.Fail(cctx, docID, stage, kind); cerr != nil {
		p.log.Error("could not record failure", "document_id", docID, "error", cerr)
	}

	p.mu.Lock()
	if pr, ok := p.progress[docID]; ok {
		pr.State = StateFailed
		pr.Err = err.Error()
	}
	p.mu.Unlock()

	p.metrics.documentsTotal.WithLabelValues("failed").Inc()
	p.log.Error("document failed", "document_id", docID, "stage", stage, "kind", kind, "error", err)
	return fmt.Errorf("ingestion: %s stage: %w", stage, err)
}

// errorKind maps err onto a failure classification for the catalog.
func errorKind(err error) string {
	var (
		ce *chunker.ChunkingError
		ee *embedder.EmbeddingError
		ve *rag.VectorStoreError
		xe *extract.ExtractionError
	)
	switch {
	case errors.As(err, &xe):
		return errKindExtraction
	case errors.As(err, &ce):
		return errKindChunking
	case errors.As(err, &ee):
		return errKindEmbedding
	case errors.As(err, &ve):
		return errKindStore
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errKindCanceled
	default:
		return errKindInternal
	}
}

// transition persists a state change and mirrors it in the in-memory
// progress map.
func (p *Pipeline) transition(ctx context.Context, docID string, s State) {
	if err := p.cat.SetState(ctx, docID, string(s)); err != nil {
		p.log.Warn("could not persist state", "document_id", docID, "state", s, "error", err)
	}
	p.mu.Lock()
	if pr, ok := p.progress[docID]; ok {
		pr.State = s
		pr.Attempt = 0
	}
	p.mu.Unlock()
}

// track initializes the in-memory progress entry for a new document.
func (p *Pipeline) track(docID, filename string) {
	p.mu.Lock()
	p.progress[docID] = &Progress{DocumentID: docID, Filename: filename, State: StateReceived}
	p.mu.Unlock()
}

func (p *Pipeline) setChunksTotal(docID string, n int) {
	p.mu.Lock()
	if pr, ok := p.progress[docID]; ok {
		pr.ChunksTotal = n
	}
	p.mu.Unlock()
}

func (p *Pipeline) setChunksEmbedded(docID string, n int) {
	p.mu.Lock()
	if pr, ok := p.progress[docID]; ok && n > pr.ChunksEmbedded {
		pr.ChunksEmbedded = n
	}
	p.mu.Unlock()
}

func (p *Pipeline) setAttempt(docID string, n int) {
	p.mu.Lock()
	if pr, ok := p.progress[docID]; ok {
		pr.Attempt = n
	}
	p.mu.Unlock()
}
