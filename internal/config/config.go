// Package config loads configuration from environment variables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// Generation model
	LLMProvider     Provider
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Embeddings
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int

	// Rerank service
	RerankURL    string
	RerankModel  string
	RerankAPIKey string

	// Scheduler
	ConcurrencyCeiling int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	QuotaWindow        time.Duration
	PerTaskTimeout     time.Duration

	// Segmentation
	BufferSeconds float64
	MaxGapSeconds float64

	// Retrieval
	RecallK        int
	RerankK        int
	ScoreThreshold float64

	// Paths
	NotesDir  string
	CacheFile string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		LLMProvider:     Provider(getEnv("LECTUREKB_LLM_PROVIDER", "ollama")),
		LLMModel:        getEnv("LECTUREKB_LLM_MODEL", "qwen2.5:14b"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		EmbedProvider:  Provider(getEnv("LECTUREKB_EMBED_PROVIDER", "ollama")),
		EmbedModel:     getEnv("LECTUREKB_EMBED_MODEL", "bge-m3"),
		EmbedDimension: getEnvInt("LECTUREKB_EMBED_DIMENSION", 1024),

		RerankURL:    getEnv("LECTUREKB_RERANK_URL", ""),
		RerankModel:  getEnv("LECTUREKB_RERANK_MODEL", "bge-reranker-v2-m3"),
		RerankAPIKey: getEnv("LECTUREKB_RERANK_API_KEY", ""),

		ConcurrencyCeiling: getEnvInt("LECTUREKB_CONCURRENCY", 20),
		MaxRetries:         getEnvInt("LECTUREKB_MAX_RETRIES", 3),
		RetryBaseDelay:     getEnvDuration("LECTUREKB_RETRY_BASE_DELAY", 2*time.Second),
		QuotaWindow:        getEnvDuration("LECTUREKB_QUOTA_WINDOW", 60*time.Second),
		PerTaskTimeout:     getEnvDuration("LECTUREKB_TASK_TIMEOUT", 120*time.Second),

		BufferSeconds: getEnvFloat("LECTUREKB_BUFFER_SECONDS", 30),
		MaxGapSeconds: getEnvFloat("LECTUREKB_MAX_GAP_SECONDS", 5),

		RecallK:        getEnvInt("LECTUREKB_RECALL_K", 100),
		RerankK:        getEnvInt("LECTUREKB_RERANK_K", 15),
		ScoreThreshold: getEnvFloat("LECTUREKB_SCORE_THRESHOLD", 0.98),

		NotesDir:  getEnv("LECTUREKB_NOTES_DIR", "notes"),
		CacheFile: getEnv("LECTUREKB_CACHE_FILE", ".lecturekb/embedding_cache.json"),

		LogFile:  getEnv("LECTUREKB_LOG_FILE", "/tmp/lecturekb.log"),
		LogLevel: parseLogLevel(getEnv("LECTUREKB_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
