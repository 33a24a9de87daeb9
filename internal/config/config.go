// Package config provides configuration loading and structs for the Ask Veeva server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	AI          AIConfig          `yaml:"ai"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Search      SearchConfig      `yaml:"search"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	// URL is a pgx connection string. Falls back to the DATABASE_URL
	// environment variable when empty.
	URL string `yaml:"url"`
}

// ObjectStoreConfig holds S3-compatible object storage settings for large
// archive uploads. Ingestion from local uploads works without it.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// AIConfig holds settings for the embedding, chat, and transcription services.
// BaseURL points at any OpenAI-compatible endpoint.
type AIConfig struct {
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	ChatModel           string `yaml:"chat_model"`
	TranscribeModel     string `yaml:"transcribe_model"`
}

// IngestConfig holds chunking and job runner settings.
type IngestConfig struct {
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	EmbedBatchSize    int    `yaml:"embed_batch_size"`
	MaxMediaMB        int    `yaml:"max_media_mb"`
	SheetCharLimit    int    `yaml:"sheet_char_limit"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs"`
	ProgressEvery     int    `yaml:"progress_every"`
	FilePauseMS       int    `yaml:"file_pause_ms"`
	ScratchDir        string `yaml:"scratch_dir"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	MaxLimit         int     `yaml:"max_limit"`
	TopKCandidates   int     `yaml:"top_k_candidates"`
	KeywordWeight    float64 `yaml:"keyword_weight"`
	SemanticWeight   float64 `yaml:"semantic_weight"`
	KeywordIndexPath string  `yaml:"keyword_index_path"`
	AskContextChunks int     `yaml:"ask_context_chunks"`
}

// WatchConfig holds drop-directory settings. When Directory is set, ZIP
// archives dropped there are picked up and ingested automatically.
type WatchConfig struct {
	Directory string `yaml:"directory"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Ingest.ScratchDir = expandPath(cfg.Ingest.ScratchDir, configDir)
	cfg.Search.KeywordIndexPath = expandPath(cfg.Search.KeywordIndexPath, configDir)
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
