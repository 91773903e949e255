package config

import (
	"os"
	"strconv"
	"time"
)

// Mode selects the error-shaping behavior of the HTTP surface.
type Mode string

const (
	ModeDevelop    Mode = "develop"
	ModeProduction Mode = "production"
)

// Settings carries process-level configuration resolved from the
// environment at startup.
type Settings struct {
	Mode     Mode
	HTTPPort string

	// LLM endpoint (OpenAI-compatible).
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTemperature float64

	// Tool backend endpoints.
	VectorSearchURL string
	GraphQueryURL   string
	IMSSearchURL    string
	DocumentReadURL string

	// Shell tool limits.
	ShellTimeout time.Duration

	// Graceful shutdown bound for the HTTP server and writers.
	ShutdownTimeout time.Duration

	// MaxConcurrentTasks caps fan-out within one batch.
	MaxConcurrentTasks int
}

// LoadSettings resolves process settings from environment variables,
// applying defaults for anything unset.
func LoadSettings() *Settings {
	return &Settings{
		Mode:            Mode(getEnv("KBAGENT_MODE", string(ModeDevelop))),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LLMBaseURL:      getEnv("LLM_BASE_URL", "http://localhost:8000/v1"),
		LLMAPIKey:       getEnv("LLM_API_KEY", ""),
		LLMModel:        getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTemperature:  getEnvFloat("LLM_TEMPERATURE", 0.2),
		VectorSearchURL: getEnv("VECTOR_SEARCH_URL", "http://localhost:9001"),
		GraphQueryURL:   getEnv("GRAPH_QUERY_URL", "http://localhost:9002"),
		IMSSearchURL:    getEnv("IMS_SEARCH_URL", "http://localhost:9003"),
		DocumentReadURL: getEnv("DOCUMENT_READ_URL", "http://localhost:9004"),

		ShellTimeout:       getEnvDuration("SHELL_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxConcurrentTasks: getEnvInt("MAX_CONCURRENT_TASKS", 8),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
