package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"NewsDigest/internal/config"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
)

// ChatGPTClient implements ports.Summarizer backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.Summarizer = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize asks the chat model for a summary of at most maxLen characters.
func (c *ChatGPTClient) Summarize(ctx context.Context, text string, maxLen int) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: chatgpt client is nil", ports.ErrModelUnavailable)
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("%w: chatgpt client misconfigured", ports.ErrModelUnavailable)
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": fmt.Sprintf("Summarize the following in at most %d characters:\n\n%s", maxLen, text)},
		},
		"temperature": 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstream("chatgpt", "transport_error")
		return "", fmt.Errorf("%w: send request: %v", ports.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstream("chatgpt", fmt.Sprint(resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		detail := strings.TrimSpace(string(payload))
		if resp.StatusCode == http.StatusRequestEntityTooLarge || strings.Contains(detail, "context_length_exceeded") {
			return "", fmt.Errorf("%w: chatgpt %s", ports.ErrInputTooLong, resp.Status)
		}
		return "", fmt.Errorf("%w: chatgpt error %s: %s", ports.ErrModelUnavailable, resp.Status, detail)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chatgpt response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", ports.ErrModelUnavailable, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: chatgpt returned no choices", ports.ErrModelUnavailable)
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a news editor who writes short, factual summaries."
	}
	return prompt
}
