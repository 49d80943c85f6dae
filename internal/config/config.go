package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the issuedesk service
type Config struct {
	// Server settings
	Port int

	// Transport selection: "rest" or "github"
	Transport string

	// REST tracker settings
	APIBaseURL string
	APITimeout time.Duration

	// GitHub settings
	GitHubToken string
	GitHubOwner string
	GitHubRepo  string

	// ActiveDatabase labels every cached issue with the database it came from
	ActiveDatabase string

	// Cache settings
	LoopQueueSize int
	// RefreshInterval of zero disables periodic refresh
	RefreshInterval time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnvInt("PORT", 8000),
		Transport:       strings.ToLower(getEnv("TRANSPORT", "rest")),
		APIBaseURL:      getEnv("API_BASE", "http://localhost:8600"),
		APITimeout:      time.Duration(getEnvInt("API_TIMEOUT_SECONDS", 20)) * time.Second,
		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		GitHubOwner:     os.Getenv("GITHUB_OWNER"),
		GitHubRepo:      os.Getenv("GITHUB_REPO"),
		ActiveDatabase:  os.Getenv("ACTIVE_DATABASE"),
		LoopQueueSize:   getEnvInt("LOOP_QUEUE_SIZE", 64),
		RefreshInterval: time.Duration(getEnvInt("REFRESH_INTERVAL_SECONDS", 0)) * time.Second,
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if err := c.validateTransport(); err != nil {
		return err
	}

	c.applyDefaults()
	return c.validateLimits()
}

func (c *Config) validateTransport() error {
	switch c.Transport {
	case "rest":
		if c.APIBaseURL == "" {
			return fmt.Errorf("API_BASE is required for rest transport")
		}
	case "github":
		if c.GitHubOwner == "" {
			return fmt.Errorf("GITHUB_OWNER is required for github transport")
		}
		if c.GitHubRepo == "" {
			return fmt.Errorf("GITHUB_REPO is required for github transport")
		}
	default:
		return fmt.Errorf("invalid transport: %s (must be 'rest' or 'github')", c.Transport)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.APITimeout <= 0 {
		c.APITimeout = 20 * time.Second
	}
	if c.LoopQueueSize <= 0 {
		c.LoopQueueSize = 64
	}
}

func (c *Config) validateLimits() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("REFRESH_INTERVAL_SECONDS must be >= 0")
	}
	return nil
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
