// Package docintel: OCR через Azure Document Intelligence (prebuilt-read).
//
// Единственный адаптер с состоянием: submitted -> polling -> succeeded | failed | timed-out.
// Хендл задачи приходит в заголовке Operation-Location, опрос идёт с фиксированным
// интервалом и ограниченным числом попыток.
package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"grader-proxy/api/internal/llm"
)

const (
	DefaultModel       = "prebuilt-read"
	DefaultAPIVersion  = "2024-11-30"
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

type Engine struct {
	httpc       *http.Client
	apiVersion  string
	interval    time.Duration
	maxAttempts int
}

func New(interval time.Duration, maxAttempts int) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Engine{
		httpc:       llm.NewHTTPClient(),
		apiVersion:  DefaultAPIVersion,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string { return llm.ProviderDocIntel }

type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

type operation struct {
	Status        string `json:"status"` // notStarted | running | succeeded | failed
	AnalyzeResult *struct {
		Content string `json:"content"`
	} `json:"analyzeResult,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *Engine) Call(ctx context.Context, model string, msg llm.Message, cred llm.ProviderCredential, _ llm.CallOptions) (llm.DispatchResult, error) {
	if cred.Empty() || strings.TrimSpace(cred.Endpoint) == "" {
		return llm.DispatchResult{}, fmt.Errorf("docintel: %w", llm.ErrMissingCredential)
	}
	if len(msg.Images) != 1 {
		return llm.DispatchResult{}, fmt.Errorf("docintel: got %d images: %w", len(msg.Images), llm.ErrSingleImage)
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}

	opURL, err := e.submit(ctx, model, msg.Images[0].Base64, cred)
	if err != nil {
		return llm.DispatchResult{}, err
	}
	text, err := e.poll(ctx, opURL, cred.APIKey)
	if err != nil {
		return llm.DispatchResult{}, err
	}
	return llm.DispatchResult{Text: text}, nil
}

// --------------------------- SUBMIT ---------------------------

func (e *Engine) submit(ctx context.Context, model, b64 string, cred llm.ProviderCredential) (string, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		strings.TrimRight(cred.Endpoint, "/"), model, e.apiVersion)
	payload, _ := json.Marshal(analyzeRequest{Base64Source: b64})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", cred.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("docintel submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", llm.NewProviderError(llm.ProviderDocIntel, resp.StatusCode, llm.ReadErrorBody(resp.Body))
	}

	opURL := strings.TrimSpace(resp.Header.Get("Operation-Location"))
	if opURL == "" {
		return "", llm.NewProviderError(llm.ProviderDocIntel, resp.StatusCode, []byte("missing Operation-Location header"))
	}
	return opURL, nil
}

// --------------------------- POLL ---------------------------

func (e *Engine) poll(ctx context.Context, opURL, key string) (string, error) {
	started := time.Now()
	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}

		op, err := e.fetch(ctx, opURL, key)
		if err != nil {
			return "", err
		}
		switch strings.ToLower(op.Status) {
		case "succeeded":
			if op.AnalyzeResult == nil || strings.TrimSpace(op.AnalyzeResult.Content) == "" {
				return "", &llm.EmptyResponseError{Provider: llm.ProviderDocIntel, Reason: "no_content"}
			}
			return strings.TrimSpace(op.AnalyzeResult.Content), nil
		case "failed":
			jf := &llm.JobFailedError{Provider: llm.ProviderDocIntel, Job: opURL}
			if op.Error != nil {
				jf.Code, jf.Message = op.Error.Code, op.Error.Message
			}
			return "", jf
		}
		timer.Reset(e.interval)
	}
	return "", &llm.PollTimeoutError{
		Provider: llm.ProviderDocIntel,
		Job:      opURL,
		Attempts: e.maxAttempts,
		Waited:   time.Since(started),
	}
}

func (e *Engine) fetch(ctx context.Context, opURL, key string) (operation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return operation{}, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", key)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return operation{}, fmt.Errorf("docintel poll: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return operation{}, llm.NewProviderError(llm.ProviderDocIntel, resp.StatusCode, llm.ReadErrorBody(resp.Body))
	}

	var op operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return operation{}, fmt.Errorf("docintel poll: decode: %w", err)
	}
	return op, nil
}
