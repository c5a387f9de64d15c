// Package config provides YAML-based configuration for arkb.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. ARKB_CONFIG environment variable
//  3. ~/.arkb/config.yaml
//  4. ./arkb.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Store configures the vector store backend.
	Store StoreConfig `yaml:"store"`

	// Chunking configures text chunking.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Pipeline configures ingestion timeouts and retries.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Search configures similarity search defaults.
	Search SearchConfig `yaml:"search"`

	// Catalog configures the local document catalog.
	Catalog CatalogConfig `yaml:"catalog"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// BatchSize is the number of texts embedded per request.
	BatchSize int `yaml:"batch_size"`
	// RequestsPerSecond throttles embedding requests. Zero disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Parallelism bounds how many embedding batches are in flight at once.
	Parallelism int `yaml:"parallelism"`
	// MaxSegmentTokens is the per-segment input limit in estimated tokens.
	MaxSegmentTokens int `yaml:"max_segment_tokens"`
}

// StoreConfig holds vector store settings.
type StoreConfig struct {
	// Backend selects the vector store: qdrant, pgvector, memory.
	Backend string `yaml:"backend"`
	// Qdrant holds Qdrant-specific settings.
	Qdrant QdrantConfig `yaml:"qdrant"`
	// Postgres holds pgvector-specific settings.
	Postgres PostgresConfig `yaml:"postgres"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// PostgresConfig holds pgvector store settings.
type PostgresConfig struct {
	// URL is the Postgres connection string. Prefer env var DATABASE_URL.
	URL string `yaml:"url"`
}

// ChunkingConfig holds text chunking settings.
type ChunkingConfig struct {
	// Budget is the maximum tokens per chunk.
	Budget int `yaml:"budget"`
	// Overlap is the token overlap between consecutive chunks.
	Overlap int `yaml:"overlap"`
}

// PipelineConfig holds ingestion pipeline settings.
type PipelineConfig struct {
	// MaxRetries is the retry budget for transient stage failures.
	MaxRetries int `yaml:"max_retries"`
	// Workers is the number of documents processed concurrently.
	Workers int `yaml:"workers"`
	// ExtractTimeoutSeconds bounds the extraction stage.
	ExtractTimeoutSeconds int `yaml:"extract_timeout_seconds"`
	// EmbedTimeoutSeconds bounds each embedding attempt.
	EmbedTimeoutSeconds int `yaml:"embed_timeout_seconds"`
	// StoreTimeoutSeconds bounds each vector store attempt.
	StoreTimeoutSeconds int `yaml:"store_timeout_seconds"`
}

// SearchConfig holds similarity search defaults.
type SearchConfig struct {
	// TopK is the default number of chunks returned per query.
	TopK int `yaml:"top_k"`
}

// CatalogConfig holds local document catalog settings.
type CatalogConfig struct {
	// DBPath is the SQLite catalog path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"EMBEDDING_RPS", func(c *Config) string { return floatStr(c.Embedding.RequestsPerSecond) }},
	{"EMBEDDING_PARALLELISM", func(c *Config) string { return intStr(c.Embedding.Parallelism) }},
	{"EMBEDDING_MAX_SEGMENT_TOKENS", func(c *Config) string { return intStr(c.Embedding.MaxSegmentTokens) }},
	{"STORE_BACKEND", func(c *Config) string { return c.Store.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Store.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Store.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Store.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Store.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Store.Qdrant.TLS) }},
	{"DATABASE_URL", func(c *Config) string { return c.Store.Postgres.URL }},
	{"CHUNK_BUDGET", func(c *Config) string { return intStr(c.Chunking.Budget) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},
	{"PIPELINE_MAX_RETRIES", func(c *Config) string { return intStr(c.Pipeline.MaxRetries) }},
	{"PIPELINE_WORKERS", func(c *Config) string { return intStr(c.Pipeline.Workers) }},
	{"PIPELINE_EXTRACT_TIMEOUT", func(c *Config) string { return intStr(c.Pipeline.ExtractTimeoutSeconds) }},
	{"PIPELINE_EMBED_TIMEOUT", func(c *Config) string { return intStr(c.Pipeline.EmbedTimeoutSeconds) }},
	{"PIPELINE_STORE_TIMEOUT", func(c *Config) string { return intStr(c.Pipeline.StoreTimeoutSeconds) }},
	{"SEARCH_TOP_K", func(c *Config) string { return intStr(c.Search.TopK) }},
	{"ARKB_CATALOG_DB", func(c *Config) string { return c.Catalog.DBPath }},
	{"ARKB_LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"ARKB_LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("ARKB_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".arkb", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("arkb.yaml"); err == nil {
		return "arkb.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// floatStr converts a float to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
