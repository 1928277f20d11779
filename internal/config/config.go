package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	LLMBaseURL      string
	LLMModelName    string
	LLMAPIKey       string
	LLMTemperature  float32
	LLMTimeout      time.Duration
	HistoryWindow   int
	MaxMessageBytes int
	APIPort         string
	LogLevel        slog.Level
	LogFormat       string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates the ones that are set.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
//
// A missing upstream API key is not an error here: the chat pipeline reports it
// at construction time so the server can still start and answer health checks.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		LLMBaseURL:   getEnv("LLM_BASE_URL", "https://api.deepseek.com/v1"),
		LLMModelName: getEnv("LLM_MODEL", "deepseek-chat"),
		LLMAPIKey:    getEnv("DEEPSEEK_API_KEY", os.Getenv("LLM_API_KEY")),
		APIPort:      getEnv("API_PORT", "8000"),
		LogFormat:    strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	temperature, err := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.7"), 32)
	if err != nil {
		return nil, fmt.Errorf("LLM_TEMPERATURE must be a valid number: %w", err)
	}
	if temperature < 0 || temperature > 2 {
		return nil, fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %v", temperature)
	}
	cfg.LLMTemperature = float32(temperature)

	// Zero disables the upstream deadline.
	timeout, err := time.ParseDuration(getEnv("LLM_TIMEOUT", "0s"))
	if err != nil {
		return nil, fmt.Errorf("LLM_TIMEOUT must be a valid duration: %w", err)
	}
	if timeout < 0 {
		return nil, fmt.Errorf("LLM_TIMEOUT must not be negative")
	}
	cfg.LLMTimeout = timeout

	if cfg.HistoryWindow, err = getEnvInt("HISTORY_WINDOW", 10); err != nil {
		return nil, err
	}
	if cfg.MaxMessageBytes, err = getEnvInt("MAX_MESSAGE_BYTES", 32*1024); err != nil {
		return nil, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: %w", err)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses a positive integer environment variable.
func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}
