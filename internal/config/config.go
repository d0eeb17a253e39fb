package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	DatabaseURL     string
	NatsURL         string
	NatsToken       string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	EmbedderURL     string
	EmbedderModel   string
	APIToken        string
	TenantID        string
	SimilarityFloor float64
	RetrievalTopK   int
}

func Load() Config {
	return Config{
		Port:            envInt("TARIFBOT_PORT", 8460),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		NatsURL:         envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("TARIFBOT_MODEL", "claude-sonnet-4-20250514"),
		EmbedderURL:     envStr("EMBEDDER_URL", "http://localhost:11434"),
		EmbedderModel:   envStr("EMBEDDER_MODEL", "nomic-embed-text"),
		APIToken:        envStr("TARIFBOT_API_TOKEN", ""),
		TenantID:        envStr("TARIFBOT_TENANT", ""),
		SimilarityFloor: envFloat("RETRIEVAL_SIMILARITY_FLOOR", 0.6),
		RetrievalTopK:   envInt("RETRIEVAL_TOP_K", 4),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
