package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// geminiClassifier classifies intents with Gemini function calling in ANY mode.
type geminiClassifier struct {
	client *genai.Client
	model  string
}

func newGeminiClassifier(ctx context.Context, apiKey, model string) (*geminiClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if model == "" {
		model = DefaultGeminiModels[0]
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &geminiClassifier{client: client, model: model}, nil
}

func geminiTools(intents []string) []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        classifyFunctionName,
			Description: "Record the intent of the user's message.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					paramIntent: {
						Type:        genai.TypeString,
						Description: intentDescription,
						Enum:        intents,
					},
					paramConfidence: {
						Type:        genai.TypeNumber,
						Description: confidenceDescription,
					},
				},
				Required: []string{paramIntent, paramConfidence},
			},
		}},
	}}
}

func (c *geminiClassifier) Classify(ctx context.Context, text string, intents []string) (*Classification, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("gemini classifier not configured")
	}
	allowed := candidateIntents(intents)

	cfg := &genai.GenerateContentConfig{
		Tools:             geminiTools(allowed),
		SystemInstruction: genai.NewContentFromText(classifierSystemPrompt, genai.RoleUser),
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 128,
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(text), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, WrapError(err, ProviderGemini, apiErr.Code)
		}
		return nil, WrapError(err, ProviderGemini, 0)
	}

	if resp.UsageMetadata != nil {
		slog.DebugContext(ctx, "gemini classification completed",
			"model", c.model,
			"input_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"duration_ms", time.Since(start).Milliseconds())
	}

	fc, err := firstFunctionCall(resp)
	if err != nil {
		return nil, WrapError(err, ProviderGemini, 0)
	}
	intent, _ := fc.Args[paramIntent].(string)
	return buildClassification(intent, fc.Args[paramConfidence], allowed, ProviderGemini, c.model)
}

func firstFunctionCall(resp *genai.GenerateContentResponse) (*genai.FunctionCall, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("empty response from model")
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return nil, errors.New("no content in response")
	}
	for _, part := range content.Parts {
		if part.FunctionCall != nil && part.FunctionCall.Name == classifyFunctionName {
			return part.FunctionCall, nil
		}
	}
	return nil, errors.New("no classify_intent call in response")
}

func (c *geminiClassifier) Provider() Provider { return ProviderGemini }

// Close is a no-op; genai.Client holds no resources that need releasing.
func (c *geminiClassifier) Close() error { return nil }
