package genai

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

const (
	classifyFunctionName = "classify_intent"
	paramIntent          = "intent"
	paramConfidence      = "confidence"
)

// UnknownIntent is always offered to the model so it can decline.
const UnknownIntent = "unknown"

const classifierSystemPrompt = `You route chat messages for a conversational bot.
Pick exactly one intent from the allowed list for the user's message and call classify_intent.
Use "unknown" when no intent fits. Confidence is between 0 and 1.`

const intentDescription = "The single best matching intent name."

const confidenceDescription = "How sure you are, from 0 (guess) to 1 (certain)."

// candidateIntents returns the sorted, de-duplicated intent list plus unknown.
func candidateIntents(intents []string) []string {
	out := make([]string, 0, len(intents)+1)
	for _, in := range intents {
		if in = strings.TrimSpace(in); in != "" {
			out = append(out, in)
		}
	}
	out = append(out, UnknownIntent)
	slices.Sort(out)
	return slices.Compact(out)
}

// buildClassification validates the model's arguments against the allowed set.
func buildClassification(intent string, confidence any, allowed []string, provider Provider, model string) (*Classification, error) {
	if !slices.Contains(allowed, intent) {
		return nil, fmt.Errorf("model returned intent %q outside the allowed set", intent)
	}
	return &Classification{
		Intent:   intent,
		Score:    normalizeScore(confidence),
		Provider: provider,
		Model:    model,
	}, nil
}

func normalizeScore(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return 0.5
	}
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
