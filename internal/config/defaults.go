package config

import "time"

// Result count defaults shared with the HTTP layer.
const (
	DefaultTopK    = 5
	DefaultMaxTopK = 50
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "data/db/entries.db"
	}
	if cfg.Storage.ReportsDBPath == "" {
		cfg.Storage.ReportsDBPath = "data/db/reports.db"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "data/indices"
	}
	if cfg.Sources.Reports == "" {
		cfg.Sources.Reports = "data/raw/reports.csv"
	}
	if cfg.Sources.Risks == "" {
		cfg.Sources.Risks = "data/raw/ai_risk_database_v3.csv"
	}
	if cfg.Sources.Incidents == "" {
		cfg.Sources.Incidents = "data/raw/incidents.csv"
	}
	if cfg.Sources.Framework == "" {
		cfg.Sources.Framework = "data/raw/PL_2338-2023.pdf"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = DefaultTopK
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = DefaultMaxTopK
	}
	if cfg.Search.CandidateDepth == 0 {
		cfg.Search.CandidateDepth = 20
	}
	if cfg.Search.MinVectorScore == 0 {
		cfg.Search.MinVectorScore = 0.1
	}
	if cfg.Search.LexicalWeight == 0 && cfg.Search.VectorWeight == 0 {
		cfg.Search.LexicalWeight = 0.5
		cfg.Search.VectorWeight = 0.5
	}
	if cfg.Search.ChunkSize == 0 {
		cfg.Search.ChunkSize = 1000
	}
	if cfg.Search.ChunkOverlap == 0 {
		cfg.Search.ChunkOverlap = 200
	}
	if cfg.Breaker.MinRequests == 0 {
		cfg.Breaker.MinRequests = 5
	}
	if cfg.Breaker.FailureRatio == 0 {
		cfg.Breaker.FailureRatio = 0.6
	}
	if cfg.Breaker.OpenTimeout == 0 {
		cfg.Breaker.OpenTimeout = 30 * time.Second
	}
	if cfg.Breaker.HalfOpenMaxCalls == 0 {
		cfg.Breaker.HalfOpenMaxCalls = 1
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}
