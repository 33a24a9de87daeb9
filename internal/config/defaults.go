package config

import (
	"os"
	"path/filepath"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8088
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.AI.EmbeddingDimensions == 0 {
		cfg.AI.EmbeddingDimensions = 1536
	}
	if cfg.AI.ChatModel == "" {
		cfg.AI.ChatModel = "gpt-4o-mini"
	}
	if cfg.AI.TranscribeModel == "" {
		cfg.AI.TranscribeModel = "whisper-1"
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1200
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.EmbedBatchSize == 0 {
		cfg.Ingest.EmbedBatchSize = 64
	}
	if cfg.Ingest.MaxMediaMB == 0 {
		cfg.Ingest.MaxMediaMB = 25
	}
	if cfg.Ingest.SheetCharLimit == 0 {
		cfg.Ingest.SheetCharLimit = 2_000_000
	}
	if cfg.Ingest.MaxConcurrentJobs == 0 {
		cfg.Ingest.MaxConcurrentJobs = 1
	}
	if cfg.Ingest.ProgressEvery == 0 {
		cfg.Ingest.ProgressEvery = 5
	}
	if cfg.Ingest.FilePauseMS == 0 {
		cfg.Ingest.FilePauseMS = 150
	}
	if cfg.Ingest.ScratchDir == "" {
		cfg.Ingest.ScratchDir = filepath.Join(os.TempDir(), "askveeva")
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.TopKCandidates == 0 {
		cfg.Search.TopKCandidates = 60
	}
	if cfg.Search.KeywordWeight == 0 && cfg.Search.SemanticWeight == 0 {
		cfg.Search.KeywordWeight = 0.3
		cfg.Search.SemanticWeight = 0.7
	}
	if cfg.Search.KeywordIndexPath == "" {
		cfg.Search.KeywordIndexPath = "/usr/local/var/askveeva/indices/keyword"
	}
	if cfg.Search.AskContextChunks == 0 {
		cfg.Search.AskContextChunks = 8
	}
}
