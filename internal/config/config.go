// Package config provides configuration loading for ragd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the ragd daemon.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	OpenAI      OpenAIConfig      `koanf:"openai"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	RateLimit   RateLimitConfig   `koanf:"ratelimit"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// SeedDir, when set, is scanned at startup for sample documents to
	// ingest into the shared sample partition.
	SeedDir string `koanf:"seed_dir"`
}

// DatabaseConfig holds settings for the SQLite document store.
type DatabaseConfig struct {
	// Path is the data directory for the metadata database.
	// Default: ~/.local/share/ragd
	Path string `koanf:"path"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go index.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`
}

// OpenAIConfig configures the embedding and completion clients.
type OpenAIConfig struct {
	APIKey             Secret   `koanf:"api_key"`
	EmbeddingModel     string   `koanf:"embedding_model"`
	EmbeddingDimension int      `koanf:"embedding_dimension"`
	ChatModel          string   `koanf:"chat_model"`
	MaxTokens          int      `koanf:"max_tokens"`
	Temperature        float64  `koanf:"temperature"`
	RequestTimeout     Duration `koanf:"request_timeout"`
	// RequestsPerSecond bounds outbound API calls (token bucket).
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	Workers      int      `koanf:"workers"`
	QueueSize    int      `koanf:"queue_size"`
	ChunkSize    int      `koanf:"chunk_size"`
	ChunkOverlap int      `koanf:"chunk_overlap"`
	MaxFileSize  int64    `koanf:"max_file_size"`
	ParseTimeout Duration `koanf:"parse_timeout"`
	EmbedTimeout Duration `koanf:"embed_timeout"`
}

// RetrievalConfig configures search defaults.
type RetrievalConfig struct {
	TopK           int     `koanf:"top_k"`
	ScoreThreshold float64 `koanf:"score_threshold"`
}

// RateLimitConfig configures per-session request limits.
type RateLimitConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Requests int      `koanf:"requests"`
	Window   Duration `koanf:"window"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "ragd_chunks"
	}

	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.EmbeddingDimension == 0 {
		cfg.OpenAI.EmbeddingDimension = 1024
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.MaxTokens == 0 {
		cfg.OpenAI.MaxTokens = 1024
	}
	if cfg.OpenAI.Temperature == 0 {
		cfg.OpenAI.Temperature = 0.3
	}
	if cfg.OpenAI.RequestTimeout == 0 {
		cfg.OpenAI.RequestTimeout = Duration(60 * time.Second)
	}
	if cfg.OpenAI.RequestsPerSecond == 0 {
		cfg.OpenAI.RequestsPerSecond = 5
	}

	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = 64
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 2000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.MaxFileSize == 0 {
		cfg.Ingest.MaxFileSize = 10 * 1024 * 1024 // 10MB
	}
	if cfg.Ingest.ParseTimeout == 0 {
		cfg.Ingest.ParseTimeout = Duration(30 * time.Second)
	}
	if cfg.Ingest.EmbedTimeout == 0 {
		cfg.Ingest.EmbedTimeout = Duration(2 * time.Minute)
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Retrieval.ScoreThreshold == 0 {
		cfg.Retrieval.ScoreThreshold = 0.35
	}

	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 100
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = Duration(time.Minute)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, qdrant)", c.VectorStore.Provider)
	}

	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.OpenAI.EmbeddingDimension)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold must be in [0,1], got %f", c.Retrieval.ScoreThreshold)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Retrieval.TopK)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format: %s (supported: json, console)", c.Logging.Format)
	}

	return nil
}
