package genai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/convobot-go/internal/config"
)

type stubClassifier struct {
	provider Provider
	errs     []error
	result   *Classification
	calls    int
}

func (s *stubClassifier) Classify(context.Context, string, []string) (*Classification, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return s.result, nil
}

func (s *stubClassifier) Provider() Provider { return s.provider }
func (s *stubClassifier) Close() error       { return nil }

func TestCandidateIntents(t *testing.T) {
	t.Parallel()
	got := candidateIntents([]string{"greet", " ", "bye", "greet", "unknown"})
	assert.Equal(t, []string{"bye", "greet", "unknown"}, got)
}

func TestBuildClassification(t *testing.T) {
	t.Parallel()
	allowed := []string{"greet", "unknown"}

	c, err := buildClassification("greet", 1.7, allowed, ProviderGemini, "m")
	require.NoError(t, err)
	assert.Equal(t, "greet", c.Intent)
	assert.InDelta(t, 1.0, c.Score, 1e-9)

	c, err = buildClassification("greet", "high", allowed, ProviderGemini, "m")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, c.Score, 1e-9)

	_, err = buildClassification("order_pizza", 0.9, allowed, ProviderGemini, "m")
	assert.Error(t, err)
}

func TestChain_FallsBackToNextClassifier(t *testing.T) {
	t.Parallel()
	primary := &stubClassifier{provider: ProviderGemini, errs: []error{
		WrapError(errors.New("denied"), ProviderGemini, http.StatusForbidden),
	}}
	secondary := &stubClassifier{provider: ProviderOpenAI, result: &Classification{Intent: "greet", Score: 0.8}}

	chain := NewChain(fastRetry(3), primary, nil, secondary)
	require.Equal(t, 2, chain.Len())

	got, err := chain.Classify(context.Background(), "hi", []string{"greet"})
	require.NoError(t, err)
	assert.Equal(t, "greet", got.Intent)
	assert.Equal(t, 1, primary.calls, "permanent errors are not retried")
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, ProviderGemini, chain.Provider())
}

func TestChain_RetriesTransientErrors(t *testing.T) {
	t.Parallel()
	cl := &stubClassifier{
		provider: ProviderGemini,
		errs:     []error{errors.New("503 unavailable")},
		result:   &Classification{Intent: "bye"},
	}

	got, err := NewChain(fastRetry(2), cl).Classify(context.Background(), "ciao", []string{"bye"})
	require.NoError(t, err)
	assert.Equal(t, "bye", got.Intent)
	assert.Equal(t, 2, cl.calls)
}

func TestChain_AllFail(t *testing.T) {
	t.Parallel()
	a := &stubClassifier{provider: ProviderGemini, errs: []error{errors.New("400 bad request")}}
	b := &stubClassifier{provider: ProviderOpenAI, errs: []error{errors.New("404 not found")}}

	_, err := NewChain(fastRetry(1), a, b).Classify(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all intent classifiers failed")
	assert.Contains(t, err.Error(), "404 not found")
}

func TestChain_Empty(t *testing.T) {
	t.Parallel()
	var chain *Chain
	_, err := chain.Classify(context.Background(), "x", nil)
	assert.Error(t, err)
	assert.NoError(t, chain.Close())
	assert.Empty(t, chain.Provider())
}

func chatCompletionJSON(args string) string {
	body := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"role":    "assistant",
				"content": nil,
				"tool_calls": []any{map[string]any{
					"id":   "call_1",
					"type": "function",
					"function": map[string]any{
						"name":      classifyFunctionName,
						"arguments": args,
					},
				}},
			},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func TestOpenAIClassifier_Classify(t *testing.T) {
	t.Parallel()

	var requestBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &requestBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletionJSON(`{"intent":"greet","confidence":0.92}`))
	}))
	defer srv.Close()

	cl, err := newOpenAIClassifier("test-key", srv.URL+"/", "test-model", option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	got, err := cl.Classify(context.Background(), "hello there", []string{"greet", "bye"})
	require.NoError(t, err)
	assert.Equal(t, "greet", got.Intent)
	assert.InDelta(t, 0.92, got.Score, 1e-9)
	assert.Equal(t, ProviderOpenAI, got.Provider)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "required", requestBody["tool_choice"])
}

func TestOpenAIClassifier_RejectsIntentOutsideSet(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletionJSON(`{"intent":"weather","confidence":0.9}`))
	}))
	defer srv.Close()

	cl, err := newOpenAIClassifier("k", srv.URL+"/", "m", option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = cl.Classify(context.Background(), "rain?", []string{"greet"})
	assert.Error(t, err)
}

func TestOpenAIClassifier_StatusIsWrapped(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"auth"}}`)
	}))
	defer srv.Close()

	cl, err := newOpenAIClassifier("k", srv.URL+"/", "m", option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = cl.Classify(context.Background(), "hi", []string{"greet"})
	require.Error(t, err)
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, http.StatusUnauthorized, llmErr.StatusCode)
	assert.Equal(t, ActionFail, ClassifyError(err))
}

func TestNewClassifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	assert.Nil(t, NewClassifier(ctx, Config{}))

	chain := NewClassifier(ctx, Config{
		Providers: []Provider{ProviderOpenAI},
		OpenAI:    ProviderConfig{APIKey: "k", BaseURL: "http://localhost/", Models: []string{"a", "b"}},
		Retry:     DefaultRetryConfig(),
	})
	require.NotNil(t, chain)
	assert.Equal(t, 2, chain.Len())
	assert.Equal(t, ProviderOpenAI, chain.Provider())
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()
	cfg := ConfigFrom(&config.Config{
		LLMProviders: []string{"openai", "gemini"},
		GeminiAPIKey: "g",
		GeminiModel:  "gemini-custom",
		OpenAIAPIKey: "o",
	})

	assert.Equal(t, []Provider{ProviderOpenAI, ProviderGemini}, cfg.Providers)
	assert.Equal(t, []string{"gemini-custom"}, cfg.Gemini.Models)
	assert.Equal(t, DefaultOpenAIModels, cfg.OpenAI.Models)
	assert.Equal(t, DefaultOpenAIEndpoint, cfg.OpenAI.BaseURL)
	assert.True(t, cfg.HasAnyProvider())
}
