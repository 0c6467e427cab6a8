// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DBPath is the SQLite database file path.
	DBPath string

	// DataKey seals stored connection strings. Base64, 32 bytes. Empty
	// disables data sources that need sealed URLs.
	DataKey string

	// Resolver settings.
	ResolverTimeout     time.Duration // Per-variable resolution deadline.
	ResolverConcurrency int           // Max variables resolved at once.
	OfflineFallback     bool          // Substitute [name] when a dynamic variable fails.

	// SchedulerQuiet is the quiescence window before a scheduled render fires.
	SchedulerQuiet time.Duration

	// Backend feature switches. A disabled scheme stays registered and
	// answers with a typed error, so callers see "disabled" not "unknown".
	EnableSQL    bool
	EnableNeo4j  bool
	EnableMilvus bool
	EnableVector bool

	// Qdrant settings.
	QdrantURL string

	// Embedding provider settings.
	EmbeddingProvider   string // "ollama" or "noop"
	EmbeddingDimensions int    // Vector dimensions; must match the chosen model's output.
	OllamaURL           string
	OllamaModel         string

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
	RateLimitPerMinute  int   // Requests per minute per client; 0 disables.
}

// Load reads configuration from environment variables with sensible
// defaults. Malformed values are collected and reported together so one
// fix-run-fix cycle covers them all.
func Load() (Config, error) {
	var errs []error
	collectInt := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectBool := func(key string, def bool) bool {
		v, err := envBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectDuration := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := Config{
		Port:                collectInt("LOOM_PORT", 8080),
		ReadTimeout:         collectDuration("LOOM_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        collectDuration("LOOM_WRITE_TIMEOUT", 30*time.Second),
		DBPath:              envStr("LOOM_DB_PATH", "loom.db"),
		DataKey:             envStr("LOOM_DATA_KEY", ""),
		ResolverTimeout:     collectDuration("LOOM_RESOLVER_TIMEOUT", 10*time.Second),
		ResolverConcurrency: collectInt("LOOM_RESOLVER_CONCURRENCY", 4),
		OfflineFallback:     collectBool("LOOM_OFFLINE_FALLBACK", true),
		SchedulerQuiet:      collectDuration("LOOM_SCHEDULER_QUIET", 150*time.Millisecond),
		EnableSQL:           collectBool("LOOM_ENABLE_SQL", true),
		EnableNeo4j:         collectBool("LOOM_ENABLE_NEO4J", false),
		EnableMilvus:        collectBool("LOOM_ENABLE_MILVUS", false),
		EnableVector:        collectBool("LOOM_ENABLE_VECTOR", false),
		QdrantURL:           envStr("QDRANT_URL", "http://localhost:6334"),
		EmbeddingProvider:   envStr("LOOM_EMBEDDING_PROVIDER", "noop"),
		EmbeddingDimensions: collectInt("LOOM_EMBEDDING_DIMENSIONS", 1024),
		OllamaURL:           envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:         envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "loom"),
		LogLevel:            envStr("LOOM_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(collectInt("LOOM_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		RateLimitPerMinute:  collectInt("LOOM_RATE_LIMIT_PER_MINUTE", 300),
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: LOOM_DB_PATH is required")
	}
	if c.ResolverTimeout <= 0 {
		return fmt.Errorf("config: LOOM_RESOLVER_TIMEOUT must be positive")
	}
	if c.ResolverConcurrency <= 0 {
		return fmt.Errorf("config: LOOM_RESOLVER_CONCURRENCY must be positive")
	}
	if c.SchedulerQuiet <= 0 {
		return fmt.Errorf("config: LOOM_SCHEDULER_QUIET must be positive")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: LOOM_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: LOOM_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
