// Package anthropic: адаптер Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"grader-proxy/api/internal/llm"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	maxTokens         = 16000
	thinkingBudget    = 8000
	minFinalAnswerLen = 10
)

type Engine struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Engine {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Engine{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   llm.NewHTTPClient(),
	}
}

func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string { return llm.ProviderAnthropic }

// Call отправляет один user-ход: картинки блоками, текст последним блоком.
// Нативного JSON-режима нет, ForcedJSON игнорируется (вместо него Prefill).
func (e *Engine) Call(ctx context.Context, model string, msg llm.Message, cred llm.ProviderCredential, opts llm.CallOptions) (llm.DispatchResult, error) {
	if cred.Empty() {
		return llm.DispatchResult{}, fmt.Errorf("anthropic: %w", llm.ErrMissingCredential)
	}

	body := buildRequest(model, msg, opts)
	payload, err := json.Marshal(body)
	if err != nil {
		return llm.DispatchResult{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return llm.DispatchResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", cred.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return llm.DispatchResult{}, fmt.Errorf("anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.DispatchResult{}, llm.NewProviderError(llm.ProviderAnthropic, resp.StatusCode, llm.ReadErrorBody(resp.Body))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llm.DispatchResult{}, fmt.Errorf("anthropic: decode response: %w", err)
	}

	text := resolve(classify(out.Content))
	if strings.TrimSpace(text) == "" {
		return llm.DispatchResult{}, &llm.EmptyResponseError{Provider: llm.ProviderAnthropic, Reason: out.StopReason}
	}
	if opts.Prefill != "" {
		// ответ продолжает затравку, склеиваем обратно
		text = opts.Prefill + text
	}
	return llm.DispatchResult{Text: strings.TrimSpace(text)}, nil
}

func buildRequest(model string, msg llm.Message, opts llm.CallOptions) request {
	blocks := make([]contentBlock, 0, len(msg.Images)+1)
	for _, img := range msg.Images {
		blocks = append(blocks, contentBlock{
			Type: "image",
			Source: &source{
				Type:      "base64",
				MediaType: img.MimeType,
				Data:      img.Base64,
			},
		})
	}
	blocks = append(blocks, contentBlock{Type: "text", Text: msg.UserText})

	req := request{
		Model:     model,
		System:    strings.TrimSpace(msg.SystemText),
		Messages:  []message{{Role: "user", Content: blocks}},
		MaxTokens: maxTokens,
	}
	if opts.Reasoning {
		req.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: thinkingBudget}
	}
	if opts.Prefill != "" {
		req.Messages = append(req.Messages, message{
			Role:    "assistant",
			Content: []contentBlock{{Type: "text", Text: opts.Prefill}},
		})
	}
	return req
}
