package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiClassifier classifies intents through any OpenAI-compatible chat
// completions endpoint with a required tool call.
type openaiClassifier struct {
	client openai.Client
	model  string
}

func newOpenAIClassifier(apiKey, baseURL, model string, opts ...option.RequestOption) (*openaiClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is empty")
	}
	if model == "" {
		model = DefaultOpenAIModels[0]
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIEndpoint
	}

	opts = append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &openaiClassifier{client: openai.NewClient(opts...), model: model}, nil
}

func openaiTools(intents []string) []openai.ChatCompletionToolUnionParam {
	return []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        classifyFunctionName,
			Description: openai.String("Record the intent of the user's message."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					paramIntent: map[string]any{
						"type":        "string",
						"description": intentDescription,
						"enum":        intents,
					},
					paramConfidence: map[string]any{
						"type":        "number",
						"description": confidenceDescription,
					},
				},
				"required": []string{paramIntent, paramConfidence},
			},
		}),
	}
}

func (c *openaiClassifier) Classify(ctx context.Context, text string, intents []string) (*Classification, error) {
	if c == nil {
		return nil, errors.New("openai classifier not configured")
	}
	allowed := candidateIntents(intents)

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifierSystemPrompt),
			openai.UserMessage(text),
		},
		Tools: openaiTools(allowed),
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoRequired)),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(128),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, WrapError(err, ProviderOpenAI, apiErr.StatusCode)
		}
		return nil, WrapError(err, ProviderOpenAI, 0)
	}

	slog.DebugContext(ctx, "openai classification completed",
		"model", c.model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds())

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, WrapError(errors.New("no tool call in response"), ProviderOpenAI, 0)
	}
	tc := resp.Choices[0].Message.ToolCalls[0]
	if tc.Type != "function" || tc.Function.Name != classifyFunctionName {
		return nil, WrapError(fmt.Errorf("unexpected tool call %q", tc.Function.Name), ProviderOpenAI, 0)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return nil, WrapError(fmt.Errorf("decode tool arguments: %w", err), ProviderOpenAI, 0)
	}
	intent, _ := args[paramIntent].(string)
	return buildClassification(intent, args[paramConfidence], allowed, ProviderOpenAI, c.model)
}

func (c *openaiClassifier) Provider() Provider { return ProviderOpenAI }

func (c *openaiClassifier) Close() error { return nil }
