// Package config loads runtime configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	// LLM
	AnthropicAPIKey string
	LLMModel        string

	// Embeddings
	GeminiAPIKey   string
	EmbeddingModel string

	// TTS
	TTSProvider string // "google" or "cloud-tts-alt"
	TTSSpeed    float64
	TTSPitch    float64

	// Storage
	OutputRoot   string
	DatabasePath string

	// Server
	ListenAddr string
	BaseURL    string
	MaxJobs    int

	// Scheduling
	GenerationHour int
	Timezone       string

	// Observability
	LogLevel     string
	TracesEnable bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in without overriding real env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		LLMModel:        envOr("LLM_MODEL", "sonnet"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		EmbeddingModel:  envOr("EMBEDDING_MODEL", "gemini-embedding-001"),
		TTSProvider:     envOr("TTS_PROVIDER", "google"),
		OutputRoot:      envOr("OUTPUT_ROOT", "newsroom-output"),
		DatabasePath:    envOr("DATABASE_PATH", "newsroom.db"),
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		BaseURL:         envOr("BASE_URL", "http://localhost:8080"),
		Timezone:        envOr("TIMEZONE", "UTC"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.MaxJobs, err = envInt("MAX_CONCURRENT_JOBS", 5); err != nil {
		return nil, err
	}
	if cfg.GenerationHour, err = envInt("GENERATION_HOUR", 6); err != nil {
		return nil, err
	}
	if cfg.TTSSpeed, err = envFloat("TTS_SPEED", 0); err != nil {
		return nil, err
	}
	if cfg.TTSPitch, err = envFloat("TTS_PITCH", 0); err != nil {
		return nil, err
	}
	cfg.TracesEnable = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.TTSProvider {
	case "google", "cloud-tts-alt":
	default:
		return fmt.Errorf("TTS_PROVIDER %q: must be google or cloud-tts-alt", c.TTSProvider)
	}
	if c.GenerationHour < 0 || c.GenerationHour > 23 {
		return fmt.Errorf("GENERATION_HOUR %d out of range", c.GenerationHour)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
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
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return f, nil
}
