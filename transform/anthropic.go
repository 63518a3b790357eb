package transform

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"markestedt/tokenspark/failure"
)

// DefaultAnthropicBaseURL is used when the request has no endpoint
const DefaultAnthropicBaseURL = "https://api.anthropic.com/"

// AnthropicProvider implements transformation with the Messages API
type AnthropicProvider struct {
	creds  Credentials
	client *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider. client may be nil.
func NewAnthropicProvider(creds Credentials, client *http.Client) *AnthropicProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &AnthropicProvider{creds: creds, client: client}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Transform sends the input as a single user turn
func (p *AnthropicProvider) Transform(ctx context.Context, req Request) (string, error) {
	key, err := apiKey(p.creds)
	if err != nil {
		return "", err
	}

	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}

	client := anthropic.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(p.client),
		option.WithMaxRetries(0),
	)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	slog.Debug("Sending transform request", "provider", p.Name(), "model", req.Model, "chars", len([]rune(req.Input)))

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(ctx, err, anthropicStatus)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if len(msg.Content) == 0 {
		return "", failure.New(failure.InvalidResponse, "no content blocks in response")
	}

	return result(sb.String())
}

// anthropicStatus reads the message from the {"type":"error","error":{...}}
// envelope; the SDK keeps only the raw body
func anthropicStatus(err error) (int, string, bool) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		raw := apiErr.RawJSON()
		if !gjson.Valid(raw) {
			return apiErr.StatusCode, "", true
		}
		return apiErr.StatusCode, gjson.Get(raw, "error.message").String(), true
	}
	return 0, "", false
}
