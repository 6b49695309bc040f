package config

// Environment variables that override file settings.
const (
	EnvReportsDataPath   = "REPORTS_DATA_PATH"
	EnvReportsDBPath     = "DUCKDB_PATH"
	EnvIncidentsDataDir  = "INCIDENTS_DATA_DIR"
	EnvAIRiskDataDir     = "AI_RISK_DATA_DIR"
	EnvFrameworkDataDir  = "PROPRIETARY_FRAMEWORK_DATA_DIR"
	EnvEmbeddingModel    = "EMBEDDING_MODEL_NAME"
	EnvEmbeddingProvider = "EMBEDDING_PROVIDER"
)

// ApplyEnv overrides cfg with the non-empty environment variables returned by getenv.
// Setting an embedding model selects the onnx provider unless a provider is also set.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Sources.Reports, EnvReportsDataPath)
	set(&cfg.Storage.ReportsDBPath, EnvReportsDBPath)
	set(&cfg.Sources.Incidents, EnvIncidentsDataDir)
	set(&cfg.Sources.Risks, EnvAIRiskDataDir)
	set(&cfg.Sources.Framework, EnvFrameworkDataDir)
	if v := getenv(EnvEmbeddingModel); v != "" {
		cfg.Embedding.ModelPath = v
		cfg.Embedding.Provider = "onnx"
	}
	set(&cfg.Embedding.Provider, EnvEmbeddingProvider)
}
