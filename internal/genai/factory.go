package genai

import (
	"context"
	"log/slog"
	"slices"
)

// NewClassifier builds the classifier chain from cfg.
//
// Providers are visited in cfg.Providers order, then any remaining keyed
// provider is appended. Every model of a provider gets its own link.
// It returns nil when no provider has a key, so callers can treat the
// classifier as optional.
func NewClassifier(ctx context.Context, cfg Config) *Chain {
	order := slices.Clone(cfg.Providers)
	for _, p := range []Provider{ProviderGemini, ProviderOpenAI} {
		if !slices.Contains(order, p) {
			order = append(order, p)
		}
	}

	var links []IntentClassifier
	seen := make(map[Provider]bool)
	for _, p := range order {
		pc, ok := cfg.providerConfig(p)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true

		for _, model := range pc.Models {
			cl, err := newProviderClassifier(ctx, p, pc, model)
			if err != nil {
				slog.WarnContext(ctx, "failed to create intent classifier",
					"provider", p, "model", model, "error", err)
				continue
			}
			links = append(links, cl)
		}
	}

	if len(links) == 0 {
		slog.InfoContext(ctx, "no LLM provider configured for intent classification")
		return nil
	}
	slog.InfoContext(ctx, "intent classifier configured",
		"primary", links[0].Provider(),
		"chain_size", len(links))
	return NewChain(cfg.Retry, links...)
}

func newProviderClassifier(ctx context.Context, p Provider, pc ProviderConfig, model string) (IntentClassifier, error) {
	switch p {
	case ProviderGemini:
		return newGeminiClassifier(ctx, pc.APIKey, model)
	default:
		return newOpenAIClassifier(pc.APIKey, pc.BaseURL, model)
	}
}
