// Package mistral: OCR-адаптер Mistral (/v1/ocr). Чат Mistral идёт через пакет gpt.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/util"
)

const DefaultBaseURL = "https://api.mistral.ai/v1"

type Engine struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Engine {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Engine{baseURL: strings.TrimRight(baseURL, "/"), httpc: llm.NewHTTPClient()}
}

func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string { return llm.ProviderMistralOCR }

type document struct {
	Type        string `json:"type"` // "image_url" | "document_url"
	ImageURL    string `json:"image_url,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

type ocrRequest struct {
	Model    string   `json:"model"`
	Document document `json:"document"`
}

type ocrResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

// Call распознаёт одну страницу (или один PDF) и возвращает markdown.
// Текст промпта OCR не использует.
func (e *Engine) Call(ctx context.Context, model string, msg llm.Message, cred llm.ProviderCredential, _ llm.CallOptions) (llm.DispatchResult, error) {
	if cred.Empty() {
		return llm.DispatchResult{}, fmt.Errorf("mistral ocr: %w", llm.ErrMissingCredential)
	}
	if len(msg.Images) != 1 {
		return llm.DispatchResult{}, fmt.Errorf("mistral ocr: got %d images: %w", len(msg.Images), llm.ErrSingleImage)
	}
	img := msg.Images[0]

	doc := document{Type: "image_url", ImageURL: util.MakeDataURL(img.MimeType, img.Base64)}
	if strings.EqualFold(img.MimeType, "application/pdf") {
		doc = document{Type: "document_url", DocumentURL: util.MakeDataURL(img.MimeType, img.Base64)}
	}
	payload, _ := json.Marshal(ocrRequest{Model: model, Document: doc})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/ocr", bytes.NewReader(payload))
	if err != nil {
		return llm.DispatchResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return llm.DispatchResult{}, fmt.Errorf("mistral ocr: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.DispatchResult{}, llm.NewProviderError(llm.ProviderMistralOCR, resp.StatusCode, llm.ReadErrorBody(resp.Body))
	}

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llm.DispatchResult{}, fmt.Errorf("mistral ocr: decode response: %w", err)
	}

	pages := make([]string, 0, len(out.Pages))
	for _, p := range out.Pages {
		if s := strings.TrimSpace(p.Markdown); s != "" {
			pages = append(pages, s)
		}
	}
	if len(pages) == 0 {
		return llm.DispatchResult{}, &llm.EmptyResponseError{Provider: llm.ProviderMistralOCR, Reason: "no_pages"}
	}
	return llm.DispatchResult{Text: strings.Join(pages, "\n\n")}, nil
}
