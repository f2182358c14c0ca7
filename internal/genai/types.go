// Package genai classifies user sentences into one of an application's
// intents with LLM function calling.
//
// Two backends are supported:
//   - Gemini, through google.golang.org/genai
//   - any OpenAI-compatible endpoint, through github.com/openai/openai-go/v3
//
// Classifiers are chained: each model is retried with backoff, then the next
// model or provider is tried.
package genai

import (
	"context"
	"time"

	"github.com/garyellow/convobot-go/internal/config"
)

// Provider names an LLM backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

// DefaultOpenAIEndpoint is used when CONVOBOT_OPENAI_BASE_URL is unset.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1/"

// Classification is the classifier's pick for one sentence.
type Classification struct {
	Intent   string
	Score    float64
	Provider Provider
	Model    string
}

// IntentClassifier picks one intent out of a closed set.
// Implementations must only return intents from the given list.
type IntentClassifier interface {
	Classify(ctx context.Context, text string, intents []string) (*Classification, error)
	Provider() Provider
	Close() error
}

// RetryConfig controls retries of one model before moving on.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// ProviderConfig is the per-backend part of Config.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	// Models are tried in order.
	Models []string
}

// Config selects backends and models for the classifier chain.
type Config struct {
	// Providers is the preference order. Providers without a key are skipped.
	Providers []Provider
	Gemini    ProviderConfig
	OpenAI    ProviderConfig
	Retry     RetryConfig
}

var (
	DefaultGeminiModels = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"}
	DefaultOpenAIModels = []string{"gpt-4o-mini"}
)

const (
	DefaultMaxRetryAttempts = 2
	DefaultInitialDelay     = 500 * time.Millisecond
	DefaultMaxDelay         = 3 * time.Second
)

// DefaultRetryConfig returns the retry settings used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// ConfigFrom maps application configuration onto a classifier Config.
func ConfigFrom(cfg *config.Config) Config {
	out := Config{
		Gemini: ProviderConfig{APIKey: cfg.GeminiAPIKey, Models: DefaultGeminiModels},
		OpenAI: ProviderConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Models:  DefaultOpenAIModels,
		},
		Retry: DefaultRetryConfig(),
	}
	if cfg.GeminiModel != "" {
		out.Gemini.Models = []string{cfg.GeminiModel}
	}
	if cfg.OpenAIModel != "" {
		out.OpenAI.Models = []string{cfg.OpenAIModel}
	}
	if out.OpenAI.BaseURL == "" {
		out.OpenAI.BaseURL = DefaultOpenAIEndpoint
	}
	for _, p := range cfg.LLMProviders {
		out.Providers = append(out.Providers, Provider(p))
	}
	return out
}

// HasAnyProvider reports whether at least one backend has a key.
func (c Config) HasAnyProvider() bool {
	return c.Gemini.APIKey != "" || c.OpenAI.APIKey != ""
}

func (c Config) providerConfig(p Provider) (ProviderConfig, bool) {
	switch p {
	case ProviderGemini:
		return c.Gemini, c.Gemini.APIKey != ""
	case ProviderOpenAI:
		return c.OpenAI, c.OpenAI.APIKey != ""
	default:
		return ProviderConfig{}, false
	}
}
