package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/catalog"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/embedder"
	"github.com/Hams-Ollo/Academic-Research-Knowledgebase/internal/rag"
)

// newVectorStore constructs the vector store selected by STORE_BACKEND:
// "qdrant" (default), "pgvector", or "memory". The memory backend exists
// for local experiments; its contents do not survive the process.
func newVectorStore(ctx context.Context) (rag.VectorStore, error) {
	backend := getEnvOrDefault("STORE_BACKEND", "qdrant")
	dims := embedder.DefaultDimensions(embedder.Backend())
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		dims = v
	}

	switch backend {
	case "qdrant":
		return rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "arkb-docs"),
			VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
	case "pgvector":
		url := os.Getenv("DATABASE_URL")
		if url == "" {
			return nil, fmt.Errorf("STORE_BACKEND=pgvector requires DATABASE_URL")
		}
		return rag.NewPgVectorStore(ctx, &rag.PgVectorConfig{URL: url, VectorSize: dims})
	case "memory":
		return rag.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want qdrant, pgvector, or memory)", backend)
	}
}

// newBatcher constructs the batching embedder from environment settings.
// EMBEDDING_RPS throttles backend requests for rate-limited providers.
func newBatcher() (*embedder.Batcher, error) {
	backend, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("initialising embedder: %w", err)
	}
	return embedder.NewBatcher(backend, embedder.BatcherConfig{
		BatchSize:         getEnvInt("EMBEDDING_BATCH_SIZE", 0),
		MaxSegmentTokens:  getEnvInt("EMBEDDING_MAX_SEGMENT_TOKENS", 0),
		Parallelism:       getEnvInt("EMBEDDING_PARALLELISM", 0),
		RequestsPerSecond: getEnvFloat("EMBEDDING_RPS", 0),
	})
}

// newCatalog opens the local document catalog. ARKB_CATALOG_DB overrides the
// default path; "disabled" is not supported for commands that require state.
func newCatalog() (*catalog.SQLiteCatalog, error) {
	path := os.Getenv("ARKB_CATALOG_DB")
	if path == "" {
		var err error
		path, err = catalog.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return catalog.Open(path)
}

// getEnvOrDefault returns the env var value or a fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the env var parsed as float64, or fallback when unset
// or unparseable.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
