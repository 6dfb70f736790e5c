// Package gpt: адаптер chat-completion (OpenAI и совместимые API: Mistral, DeepSeek).
package gpt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/util"
)

const (
	OpenAIBaseURL   = "https://api.openai.com/v1"
	MistralBaseURL  = "https://api.mistral.ai/v1"
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
)

type Engine struct {
	provider string
	baseURL  string
	httpc    *http.Client
}

// New создаёт адаптер для provider поверх OpenAI-совместимого API по baseURL.
func New(provider, baseURL string) *Engine {
	return &Engine{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpc:    llm.NewHTTPClient(),
	}
}

// WithHTTPClient overrides the internal HTTP client (e.g., for custom timeouts or tracing).
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string { return e.provider }

func (e *Engine) Call(ctx context.Context, model string, msg llm.Message, cred llm.ProviderCredential, opts llm.CallOptions) (llm.DispatchResult, error) {
	if cred.Empty() {
		return llm.DispatchResult{}, fmt.Errorf("%s: %w", e.provider, llm.ErrMissingCredential)
	}

	cfg := openai.DefaultConfig(cred.APIKey)
	cfg.BaseURL = e.baseURL
	cfg.HTTPClient = e.httpc
	client := openai.NewClientWithConfig(cfg)

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: buildMessages(msg),
	}
	if opts.ForcedJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return llm.DispatchResult{}, e.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return llm.DispatchResult{}, &llm.EmptyResponseError{Provider: e.provider, Reason: "no_choices"}
	}

	for _, ch := range resp.Choices {
		if t := strings.TrimSpace(ch.Message.Content); t != "" {
			return llm.DispatchResult{Text: t}, nil
		}
	}

	ch := resp.Choices[0]
	reason := string(ch.FinishReason)
	if strings.TrimSpace(ch.Message.Refusal) != "" {
		reason = "refusal: " + util.ClampRunes(strings.TrimSpace(ch.Message.Refusal), 200)
	}
	return llm.DispatchResult{}, &llm.EmptyResponseError{Provider: e.provider, Reason: reason}
}

// buildMessages: system отдельным сообщением, в user сначала текст, затем картинки data URL.
func buildMessages(msg llm.Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if s := strings.TrimSpace(msg.SystemText); s != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s})
	}

	if len(msg.Images) == 0 {
		return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.UserText})
	}

	parts := make([]openai.ChatMessagePart, 0, len(msg.Images)+1)
	parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: msg.UserText})
	for _, img := range msg.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    util.MakeDataURL(imageMIME(img.MimeType), img.Base64),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}
	return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts})
}

// wrapError переводит ошибки go-openai в llm.ProviderError.
func (e *Engine) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		var parts []string
		if apiErr.Code != nil {
			parts = append(parts, fmt.Sprint(apiErr.Code))
		}
		parts = append(parts, apiErr.Type, apiErr.Message)
		body := strings.TrimSpace(strings.Join(parts, " "))
		return llm.NewProviderError(e.provider, apiErr.HTTPStatusCode, []byte(body))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewProviderError(e.provider, reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	return fmt.Errorf("%s: %w", e.provider, err)
}

func imageMIME(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	switch m {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return m
	case "image/jpg":
		return "image/jpeg"
	}
	return "image/jpeg"
}
