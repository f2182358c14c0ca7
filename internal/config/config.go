// Package config provides application configuration management.
// It loads settings from environment variables (optionally from a .env file)
// and connector declarations from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	DataDir         string

	// Bots and connectors
	ConnectorsFile       string        // YAML connector declarations; empty = none declared
	WatchConnectorsFile  bool          // Log drift when the declarations file changes
	DefaultNamespace     string        // Pre-seeds the default namespace; empty = first installed bot wins
	DefaultLocale        string        // BCP 47 tag used for NLP applications and labels
	RestCompanion        bool          // Auto-install a REST test connector next to each primary connector
	DispatchTimeout      time.Duration // Per-event processing deadline
	ReadinessGracePeriod time.Duration

	// LINE defaults for declarations without credentials
	LineChannelToken  string
	LineChannelSecret string

	// Per-user rate limit (token bucket)
	UserRateBurst  float64
	UserRateRefill float64 // tokens per second

	// Admin API bearer token (empty = admin API disabled)
	AdminToken string

	// NLP classifier
	LLMProviders  []string // Ordered provider preference: "gemini", "openai"
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Snapshots
	SnapshotEnabled  bool
	SnapshotSchedule string // Standard 5-field cron expression
	SnapshotKey      string
	R2Endpoint       string
	R2AccessKeyID    string
	R2SecretKey      string
	R2BucketName     string

	// Observability
	MetricsUsername     string
	MetricsPassword     string // empty = /metrics without auth
	BetterStackToken    string
	BetterStackEndpoint string
	SentryToken         string
	SentryHost          string
	SentryEnvironment   string
	SentrySampleRate    float64
}

// Load reads configuration from environment variables.
// It attempts to load a .env file first, then reads from env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		DataDir:         getEnv(EnvDataDir, getDefaultDataDir()),

		ConnectorsFile:       getEnv(EnvConnectorsFile, ""),
		WatchConnectorsFile:  getBoolEnv(EnvWatchConnectors, true),
		DefaultNamespace:     getEnv(EnvDefaultNamespace, ""),
		DefaultLocale:        getEnv(EnvDefaultLocale, "en"),
		RestCompanion:        getBoolEnv(EnvRestCompanion, false),
		DispatchTimeout:      getDurationEnv(EnvDispatchTimeout, DispatchProcessing),
		ReadinessGracePeriod: getDurationEnv(EnvReadinessGrace, ReadinessGracePeriod),

		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		UserRateBurst:  getFloatEnv(EnvUserRateBurst, 15.0),
		UserRateRefill: getFloatEnv(EnvUserRateRefill, 0.5),

		AdminToken: getEnv(EnvAdminToken, ""),

		LLMProviders:  getListEnv(EnvLLMProviders, []string{"gemini", "openai"}),
		GeminiAPIKey:  getEnv(EnvGeminiAPIKey, ""),
		GeminiModel:   getEnv(EnvGeminiModel, ""),
		OpenAIAPIKey:  getEnv(EnvOpenAIAPIKey, ""),
		OpenAIBaseURL: getEnv(EnvOpenAIBaseURL, ""),
		OpenAIModel:   getEnv(EnvOpenAIModel, ""),

		SnapshotEnabled:  getBoolEnv(EnvSnapshotEnabled, false),
		SnapshotSchedule: getEnv(EnvSnapshotSchedule, "0 3 * * *"),
		SnapshotKey:      getEnv(EnvSnapshotKey, "snapshots/convobot.db.zst"),
		R2Endpoint:       getEnv(EnvR2Endpoint, ""),
		R2AccessKeyID:    getEnv(EnvR2AccessKeyID, ""),
		R2SecretKey:      getEnv(EnvR2SecretKey, ""),
		R2BucketName:     getEnv(EnvR2Bucket, ""),

		MetricsUsername:     getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword:     getEnv(EnvMetricsPassword, ""),
		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
		SentryToken:         getEnv(EnvSentryToken, ""),
		SentryHost:          getEnv(EnvSentryHost, ""),
		SentryEnvironment:   getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:    getFloatEnv(EnvSentrySampleRate, 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPort))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvDataDir))
	}
	if c.DefaultLocale == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvDefaultLocale))
	}
	if c.DispatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvDispatchTimeout, c.DispatchTimeout))
	}
	if c.UserRateBurst <= 0 || c.UserRateRefill <= 0 {
		errs = append(errs, fmt.Errorf("%s and %s must be positive", EnvUserRateBurst, EnvUserRateRefill))
	}
	if c.SentryToken != "" && c.SentryHost == "" {
		errs = append(errs, fmt.Errorf("%s is required when %s is set", EnvSentryHost, EnvSentryToken))
	}
	if c.SnapshotEnabled {
		if c.R2Endpoint == "" || c.R2AccessKeyID == "" || c.R2SecretKey == "" || c.R2BucketName == "" {
			errs = append(errs, errors.New("R2 endpoint, credentials and bucket are required when snapshots are enabled"))
		}
		if _, err := cron.ParseStandard(c.SnapshotSchedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvSnapshotSchedule, err))
		}
	}

	return errors.Join(errs...)
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "convobot.db")
}

// HasLLMProvider returns true if at least one classifier provider has credentials.
func (c *Config) HasLLMProvider() bool {
	return c.GeminiAPIKey != "" || c.OpenAIAPIKey != ""
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping blanks.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(strings.ToLower(item)); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
