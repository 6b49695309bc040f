// Package config provides configuration loading and structs for the riskrag service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Sources   SourcesConfig   `yaml:"sources"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for databases and indices.
type StorageConfig struct {
	// DatabasePath is the SQLite database holding collection entries.
	DatabasePath string `yaml:"database_path"`
	// ReportsDBPath is the SQLite database holding the source reports.
	ReportsDBPath string `yaml:"reports_db_path"`
	// IndexDir holds one persisted vector index per collection.
	IndexDir string `yaml:"index_dir"`
}

// SourcesConfig holds the raw source files.
type SourcesConfig struct {
	Reports   string `yaml:"reports"`
	Risks     string `yaml:"risks"`
	Incidents string `yaml:"incidents"`
	Framework string `yaml:"framework"`
}

// Paths returns the configured source paths, skipping empty ones.
func (s SourcesConfig) Paths() []string {
	var out []string
	for _, p := range []string{s.Reports, s.Risks, s.Incidents, s.Framework} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	// Provider is "hash" or "onnx".
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// SearchConfig holds retrieval, chunking and enrichment settings.
type SearchConfig struct {
	DefaultTopK     int     `yaml:"default_top_k"`
	MaxTopK         int     `yaml:"max_top_k"`
	CandidateDepth  int     `yaml:"candidate_depth"`
	MinVectorScore  float64 `yaml:"min_vector_score"`
	Fuzziness       int     `yaml:"fuzziness"`
	LexicalWeight   float64 `yaml:"lexical_weight"`
	VectorWeight    float64 `yaml:"vector_weight"`
	ChunkSize       int     `yaml:"chunk_size"`
	ChunkOverlap    int     `yaml:"chunk_overlap"`
	EagerResolution bool    `yaml:"eager_resolution"`
}

// BreakerConfig holds the report store circuit breaker settings.
type BreakerConfig struct {
	MinRequests      uint32        `yaml:"min_requests"`
	FailureRatio     float64       `yaml:"failure_ratio"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HalfOpenMaxCalls uint32        `yaml:"half_open_max_calls"`
}

// WatchConfig holds source watch settings.
type WatchConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// EnabledOrDefault returns whether to watch sources; defaults to true when unset.
func (w *WatchConfig) EnabledOrDefault() bool {
	if w.Enabled != nil {
		return *w.Enabled
	}
	return true
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
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
	for _, p := range cfg.paths() {
		*p = expandPath(*p, configDir)
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it names an existing file and falls back to Default
// otherwise. Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		loaded, err := Load(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			cfg = Default()
		case err != nil:
			return nil, err
		default:
			cfg = loaded
		}
	}
	ApplyEnv(cfg, os.Getenv)
	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) paths() []*string {
	return []*string{
		&c.Storage.DatabasePath,
		&c.Storage.ReportsDBPath,
		&c.Storage.IndexDir,
		&c.Sources.Reports,
		&c.Sources.Risks,
		&c.Sources.Incidents,
		&c.Sources.Framework,
		&c.Embedding.ModelPath,
	}
}

// expandPath converts "./" paths to paths relative to configDir and "~/" paths to paths
// under the home directory. Other paths are returned unchanged.
func expandPath(path string, configDir string) string {
	switch {
	case path == "" || path == ":memory:" || filepath.IsAbs(path):
		return path
	case strings.HasPrefix(path, "./") || path == ".":
		return filepath.Join(configDir, path)
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
