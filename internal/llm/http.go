package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPTransport posts chat-completions JSON directly and reads the reply
// through ExtractText.
type HTTPTransport struct {
	BaseURL    string
	Model      string
	APIKey     string
	httpClient *http.Client
}

func NewHTTPTransport(baseURL, model, apiKey string, httpClient *http.Client) *HTTPTransport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPTransport{BaseURL: baseURL, Model: model, APIKey: apiKey, httpClient: httpClient}
}

func (t *HTTPTransport) Call(ctx context.Context, req Request) Outcome {
	payload := map[string]any{
		"model":    t.Model,
		"messages": wireMessages(req.Messages),
		"stream":   false,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	payload["temperature"] = req.Temperature

	body, err := t.doJSON(ctx, http.MethodPost, joinURL(t.BaseURL, "/chat/completions"), payload)
	if err != nil {
		return classify(err)
	}
	text, err := ExtractText(body)
	if err != nil {
		return fatal(err)
	}
	return succeeded(strings.TrimSpace(text))
}

func wireMessages(msgs []Message) []map[string]string {
	out := make([]map[string]string, 0, len(msgs))
	for _, m := range msgs {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			role = "user"
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, map[string]string{"role": role, "content": m.Content})
	}
	return out
}

func (t *HTTPTransport) doJSON(ctx context.Context, method, endpoint string, in any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗しました：%w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, buf)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました：%w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(t.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リクエストに失敗しました：%w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("応答の読み込みに失敗しました：%w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)), 800)}
	}
	return body, nil
}

func joinURL(base, path string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "https://router.huggingface.co/v1"
	}
	base = strings.TrimSuffix(base, "/")
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}
