package transform

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"markestedt/tokenspark/failure"
)

// DefaultOpenAIBaseURL is used when the request has no endpoint
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements transformation with the chat completions API.
// Any OpenAI-compatible endpoint works.
type OpenAIProvider struct {
	creds  Credentials
	client *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider. client may be nil.
func NewOpenAIProvider(creds Credentials, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIProvider{creds: creds, client: client}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Transform sends the input as the user message under the system prompt
func (p *OpenAIProvider) Transform(ctx context.Context, req Request) (string, error) {
	key, err := apiKey(p.creds)
	if err != nil {
		return "", err
	}

	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	client := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(p.client),
		option.WithMaxRetries(0),
	)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Input))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	slog.Debug("Sending transform request", "provider", p.Name(), "model", req.Model, "chars", len([]rune(req.Input)))

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(ctx, err, openAIStatus)
	}

	if len(completion.Choices) == 0 {
		return "", failure.New(failure.InvalidResponse, "no choices in response")
	}

	return result(completion.Choices[0].Message.Content)
}

func openAIStatus(err error) (int, string, bool) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, apiErr.Message, true
	}
	return 0, "", false
}
