// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Audit chain store settings.
	AuditStoragePath  string
	AuditMaxFileSizeMB int
	AuditRotate       bool

	// Knowledge graph store settings.
	// DatabaseURL, when set, selects the Postgres-backed audit.SQLStore
	// and graph.SQLStore; when empty, the runtime falls back to the
	// embedded audit.FileStore and graph.MemoryStore.
	DatabaseURL    string
	KGEmbeddingDim int

	// Hybrid retriever settings.
	RetrieverVectorWeight  float64
	RetrieverGraphWeight   float64
	RetrieverMaxHops       int
	RetrieverMinSimilarity float64
	RetrieverMinGraphScore float64
	RetrieverTemporalFilter bool

	// HNSW index settings.
	HNSWM             int
	HNSWEfConstruction int
	HNSWEfSearch      int

	// Rule store & extractor settings.
	RulesDBPath                  string
	RulesAutoPrune               bool
	RulesPruneIntervalHours      int
	RulesMinApplicationsForPruning int
	RulesMinEffectivenessThreshold float64
	RulesExtractorModel          string

	// Symbolic verifier settings.
	SolverTimeoutMS int

	// Specification compiler & enforcer settings.
	SpecStrict bool

	// Embedding provider settings.
	EmbeddingProvider string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey      string
	EmbeddingModel    string
	OllamaURL         string
	OllamaModel       string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool // Use HTTP instead of HTTPS for OTEL exporter (default: false).
	ServiceName  string

	// CORS settings.
	CORSAllowedOrigins []string // Allowed origins for CORS; ["*"] permits all.

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value.
// Missing variables use sensible defaults; only malformed values are rejected.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		AuditStoragePath:  envStr("NOEMA_AUDIT_STORAGE_PATH", "./data/audit"),
		DatabaseURL:       envStr("NOEMA_DATABASE_URL", ""),
		RulesDBPath:       envStr("NOEMA_RULES_DB_PATH", "./data/rules.db"),
		RulesExtractorModel: envStr("NOEMA_RULES_EXTRACTOR_MODEL", "llama3.1"),
		EmbeddingProvider: envStr("NOEMA_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:      envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:    envStr("NOEMA_EMBEDDING_MODEL", "text-embedding-3-small"),
		OllamaURL:         envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		OTELEndpoint:      envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "noema"),
		LogLevel:          envStr("NOEMA_LOG_LEVEL", "info"),
		CORSAllowedOrigins: envStrSlice("NOEMA_CORS_ALLOWED_ORIGINS", nil),
	}

	// Integer fields.
	cfg.Port, errs = collectInt(errs, "NOEMA_PORT", 8080)
	cfg.AuditMaxFileSizeMB, errs = collectInt(errs, "NOEMA_AUDIT_MAX_FILE_SIZE_MB", 64)
	cfg.KGEmbeddingDim, errs = collectInt(errs, "NOEMA_KG_EMBEDDING_DIM", 1024)
	cfg.RetrieverMaxHops, errs = collectInt(errs, "NOEMA_RETRIEVER_MAX_HOPS", 2)
	cfg.HNSWM, errs = collectInt(errs, "NOEMA_HNSW_M", 16)
	cfg.HNSWEfConstruction, errs = collectInt(errs, "NOEMA_HNSW_EF_CONSTRUCTION", 200)
	cfg.HNSWEfSearch, errs = collectInt(errs, "NOEMA_HNSW_EF_SEARCH", 50)
	cfg.RulesPruneIntervalHours, errs = collectInt(errs, "NOEMA_RULES_PRUNE_INTERVAL_HOURS", 24)
	cfg.RulesMinApplicationsForPruning, errs = collectInt(errs, "NOEMA_RULES_MIN_APPLICATIONS_FOR_PRUNING", 10)
	cfg.SolverTimeoutMS, errs = collectInt(errs, "NOEMA_SOLVER_TIMEOUT_MS", 5000)

	var maxReqBody int
	maxReqBody, errs = collectInt(errs, "NOEMA_MAX_REQUEST_BODY_BYTES", 1*1024*1024)
	cfg.MaxRequestBodyBytes = int64(maxReqBody)

	// Float fields.
	cfg.RetrieverVectorWeight, errs = collectFloat(errs, "NOEMA_RETRIEVER_VECTOR_WEIGHT", 0.6)
	cfg.RetrieverGraphWeight, errs = collectFloat(errs, "NOEMA_RETRIEVER_GRAPH_WEIGHT", 0.4)
	cfg.RetrieverMinSimilarity, errs = collectFloat(errs, "NOEMA_RETRIEVER_MIN_SIMILARITY", 0.5)
	cfg.RetrieverMinGraphScore, errs = collectFloat(errs, "NOEMA_RETRIEVER_MIN_GRAPH_SCORE", 0.1)
	cfg.RulesMinEffectivenessThreshold, errs = collectFloat(errs, "NOEMA_RULES_MIN_EFFECTIVENESS_THRESHOLD", 0.4)

	// Boolean fields.
	cfg.AuditRotate, errs = collectBool(errs, "NOEMA_AUDIT_ROTATE", true)
	cfg.RetrieverTemporalFilter, errs = collectBool(errs, "NOEMA_RETRIEVER_TEMPORAL_FILTER", true)
	cfg.RulesAutoPrune, errs = collectBool(errs, "NOEMA_RULES_AUTO_PRUNE", true)
	cfg.SpecStrict, errs = collectBool(errs, "NOEMA_SPEC_STRICT", true)
	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	// Duration fields.
	cfg.ReadTimeout, errs = collectDuration(errs, "NOEMA_READ_TIMEOUT", 30*time.Second)
	cfg.WriteTimeout, errs = collectDuration(errs, "NOEMA_WRITE_TIMEOUT", 30*time.Second)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectFloat parses a float env var, appending any error to the accumulator.
func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectBool parses a bool env var, appending any error to the accumulator.
func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	var errs []error

	if c.AuditStoragePath == "" {
		errs = append(errs, errors.New("config: NOEMA_AUDIT_STORAGE_PATH is required"))
	}
	if c.KGEmbeddingDim <= 0 {
		errs = append(errs, errors.New("config: NOEMA_KG_EMBEDDING_DIM must be positive"))
	}
	if c.AuditMaxFileSizeMB <= 0 {
		errs = append(errs, errors.New("config: NOEMA_AUDIT_MAX_FILE_SIZE_MB must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("config: NOEMA_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.New("config: NOEMA_PORT must be between 1 and 65535"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("config: NOEMA_READ_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("config: NOEMA_WRITE_TIMEOUT must be positive"))
	}
	if c.RetrieverMaxHops <= 0 {
		errs = append(errs, errors.New("config: NOEMA_RETRIEVER_MAX_HOPS must be positive"))
	}
	if c.RetrieverVectorWeight < 0 || c.RetrieverGraphWeight < 0 {
		errs = append(errs, errors.New("config: NOEMA_RETRIEVER_VECTOR_WEIGHT and NOEMA_RETRIEVER_GRAPH_WEIGHT must be non-negative"))
	}
	if c.RetrieverMinSimilarity < 0 || c.RetrieverMinSimilarity > 1 {
		errs = append(errs, errors.New("config: NOEMA_RETRIEVER_MIN_SIMILARITY must be between 0 and 1"))
	}
	if c.HNSWM < 2 {
		errs = append(errs, errors.New("config: NOEMA_HNSW_M must be at least 2"))
	}
	if c.HNSWEfConstruction <= 0 {
		errs = append(errs, errors.New("config: NOEMA_HNSW_EF_CONSTRUCTION must be positive"))
	}
	if c.HNSWEfSearch <= 0 {
		errs = append(errs, errors.New("config: NOEMA_HNSW_EF_SEARCH must be positive"))
	}
	if c.RulesPruneIntervalHours <= 0 {
		errs = append(errs, errors.New("config: NOEMA_RULES_PRUNE_INTERVAL_HOURS must be positive"))
	}
	if c.RulesMinEffectivenessThreshold < 0 || c.RulesMinEffectivenessThreshold > 1 {
		errs = append(errs, errors.New("config: NOEMA_RULES_MIN_EFFECTIVENESS_THRESHOLD must be between 0 and 1"))
	}
	if c.SolverTimeoutMS <= 0 {
		errs = append(errs, errors.New("config: NOEMA_SOLVER_TIMEOUT_MS must be positive"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid float", key, v)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

// envStrSlice reads a comma-separated env var into a string slice.
// Returns fallback if the env var is empty or unset.
func envStrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
