// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Scoring provider (Groq OpenAI-compatible chat completions)
	GroqAPIKey string // Optional: absence degrades scoring to a fixed review result
	GroqAPIURL string
	GroqModel  string

	// Webhook authentication (single static credential)
	AuthUsername string
	AuthPassword string

	// CORS
	AllowedOrigins []string

	// Tracing
	OTLPEndpoint string // Optional: tracing disabled when empty
}

// Defaults match the demo deployment the service replaced.
const (
	DefaultPort       = "8081"
	DefaultEnv        = "development"
	DefaultLogLevel   = "info"
	DefaultGroqAPIURL = "https://api.groq.com/openai/v1/chat/completions"
	DefaultGroqModel  = "llama3-8b-8192"
	DefaultUsername   = "admin"
	DefaultPassword   = "secret123"
	DefaultOrigins    = "http://localhost:3000"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		GroqAPIKey:     os.Getenv("GROQ_API_KEY"), // Optional, scorer degrades without it
		GroqAPIURL:     getEnv("GROQ_API_URL", DefaultGroqAPIURL),
		GroqModel:      getEnv("GROQ_MODEL", DefaultGroqModel),
		AuthUsername:   getEnv("AUTH_USERNAME", DefaultUsername),
		AuthPassword:   getEnv("AUTH_PASSWORD", DefaultPassword),
		AllowedOrigins: splitOrigins(getEnv("ALLOWED_ORIGINS", DefaultOrigins)),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.AuthUsername == "" || c.AuthPassword == "" {
		return fmt.Errorf("AUTH_USERNAME and AUTH_PASSWORD must not be empty")
	}

	// The shipped default credential is for local development only.
	if c.IsProduction() && c.AuthPassword == DefaultPassword {
		return fmt.Errorf("AUTH_PASSWORD must be changed from the default in production")
	}

	if c.GroqAPIURL == "" {
		return fmt.Errorf("GROQ_API_URL must not be empty")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
