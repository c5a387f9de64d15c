package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/embedder"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/ingestion"
)

// NewIngestCmd constructs the `arkb ingest` command, which runs uploaded
// documents through the full extraction/chunking/embedding/storage pipeline.
func NewIngestCmd() *cobra.Command {
	var metaPairs []string

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Ingest documents into the knowledgebase",
		Long: `Extract, chunk, embed, and store one or more documents.

Supported formats: PDF (.pdf) and plain text (.txt, .md, .text). Each chunk
carries page attribution so query results can cite their source pages.
Re-ingesting a byte-identical file is a no-op: the existing document id is
reported and no duplicate chunks are stored.

Required environment variables:
  STORE_BACKEND        Vector store: qdrant (default), pgvector, memory
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_COLLECTION    Collection name (default: arkb-docs)
  DATABASE_URL         Postgres connection string (pgvector backend)
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  arkb ingest paper.pdf
  arkb ingest --meta topic=distributed-systems --meta course=cs7210 notes.md lecture2.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			meta, err := parseMeta(metaPairs)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			batcher, err := newBatcher()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			store, err := newVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("ingest: vector store: %w", err)
			}
			defer store.Close()

			cat, err := newCatalog()
			if err != nil {
				return fmt.Errorf("ingest: catalog: %w", err)
			}
			defer cat.Close()

			pipeline, err := ingestion.NewPipeline(batcher, store, cat, log, prometheus.DefaultRegisterer, &ingestion.Config{
				ChunkBudget:    getEnvInt("CHUNK_BUDGET", 0),
				ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 0),
				MaxRetries:     getEnvInt("PIPELINE_MAX_RETRIES", 0),
				Workers:        getEnvInt("PIPELINE_WORKERS", 0),
				ExtractTimeout: time.Duration(getEnvInt("PIPELINE_EXTRACT_TIMEOUT", 0)) * time.Second,
				EmbedTimeout:   time.Duration(getEnvInt("PIPELINE_EMBED_TIMEOUT", 0)) * time.Second,
				StoreTimeout:   time.Duration(getEnvInt("PIPELINE_STORE_TIMEOUT", 0)) * time.Second,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			reqs := make([]ingestion.Request, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: reading %s: %w", path, err)
				}
				reqs = append(reqs, ingestion.Request{
					Data:     data,
					Filename: filepath.Base(path),
					Metadata: meta,
				})
			}

			log.Info("starting ingestion", slog.Int("documents", len(reqs)))

			results, err := pipeline.ProcessAll(ctx, reqs)
			for i, res := range results {
				if res == nil {
					continue
				}
				switch {
				case res.Duplicate:
					fmt.Printf("%s: duplicate of document %s, skipped\n", args[i], res.DocumentID)
				default:
					fmt.Printf("%s: ingested as %s (%d chunks)\n", args[i], res.DocumentID, res.Chunks)
				}
			}
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("ingestion complete", slog.Int("documents", len(reqs)))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&metaPairs, "meta", "m", nil, "Document metadata as key=value (repeatable)")

	return cmd
}

// parseMeta converts --meta key=value pairs into a metadata map.
func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --meta %q (want key=value)", p)
		}
		meta[k] = v
	}
	return meta, nil
}
