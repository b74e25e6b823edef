package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// SDKTransport calls OpenAI-compatible chat completions through openai-go.
// The SDK's own retries are disabled; Client owns the retry policy.
type SDKTransport struct {
	Model  string
	client openai.Client
}

func NewSDKTransport(baseURL, model, apiKey string, httpClient *http.Client) *SDKTransport {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/"))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &SDKTransport{Model: model, client: openai.NewClient(opts...)}
}

func (t *SDKTransport) Call(ctx context.Context, req Request) Outcome {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(t.Model),
		Messages:    msgs,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return classify(&StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message})
		}
		return classify(err)
	}
	if len(resp.Choices) == 0 {
		return fatal(errEmptyChoices)
	}
	return succeeded(strings.TrimSpace(resp.Choices[0].Message.Content))
}
