// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all runtime configuration for the scraper service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	TelegramAPIID      int
	TelegramAPIHash    string
	TelegramPhone      string
	TelegramSessionDir string

	GeminiAPIKey string // optional — enrichment and resume generation are disabled when empty
	GeminiModel  string

	ScrapeIntervalMinutes int // cadence of the background monitor pass
	ScrapeMessageLimit    int // per-channel message fetch limit
	EnrichIntervalMinutes int // cadence of the enrichment sweep
	EnrichBatchSize       int
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	apiIDStr := os.Getenv("TELEGRAM_API_ID")
	if apiIDStr == "" {
		return nil, fmt.Errorf("TELEGRAM_API_ID is required")
	}
	apiID, err := strconv.Atoi(apiIDStr)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_API_ID must be an integer, got %q", apiIDStr)
	}

	apiHash := os.Getenv("TELEGRAM_API_HASH")
	if apiHash == "" {
		return nil, fmt.Errorf("TELEGRAM_API_HASH is required")
	}

	phone := os.Getenv("TELEGRAM_PHONE")
	if phone == "" {
		return nil, fmt.Errorf("TELEGRAM_PHONE is required")
	}

	sessionDir := os.Getenv("TELEGRAM_SESSION_DIR")
	if sessionDir == "" {
		sessionDir = "sessions"
	}

	geminiModel := os.Getenv("GEMINI_MODEL")
	if geminiModel == "" {
		geminiModel = "gemini-2.0-flash"
	}

	port := os.Getenv("SCRAPER_PORT")
	if port == "" {
		port = "8083"
	}

	scrapeInterval, err := positiveIntEnv("SCRAPE_INTERVAL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	messageLimit, err := positiveIntEnv("SCRAPE_MESSAGE_LIMIT", 50)
	if err != nil {
		return nil, err
	}
	enrichInterval, err := positiveIntEnv("ENRICH_INTERVAL_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	enrichBatch, err := positiveIntEnv("ENRICH_BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:                  port,
		DatabaseURL:           dbURL,
		RedisURL:              redisURL,
		TelegramAPIID:         apiID,
		TelegramAPIHash:       apiHash,
		TelegramPhone:         phone,
		TelegramSessionDir:    sessionDir,
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		GeminiModel:           geminiModel,
		ScrapeIntervalMinutes: scrapeInterval,
		ScrapeMessageLimit:    messageLimit,
		EnrichIntervalMinutes: enrichInterval,
		EnrichBatchSize:       enrichBatch,
	}, nil
}

func positiveIntEnv(name string, fallback int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, s)
	}
	return v, nil
}
