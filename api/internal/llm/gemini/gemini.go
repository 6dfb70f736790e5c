// Package gemini: адаптер generate-content поверх genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/util"
)

type generateRequest struct {
	Model      string
	System     string
	Parts      []genai.Part
	ForcedJSON bool
}

// generator отделяет SDK от адаптера (в тестах подменяется).
type generator interface {
	Generate(ctx context.Context, apiKey string, req generateRequest) (*genai.GenerateContentResponse, error)
}

type Engine struct {
	gen generator
}

func New() *Engine {
	return &Engine{gen: sdkGenerator{}}
}

func (e *Engine) Name() string { return llm.ProviderGemini }

// Call: картинки inline-блобами, текст последней частью.
func (e *Engine) Call(ctx context.Context, model string, msg llm.Message, cred llm.ProviderCredential, opts llm.CallOptions) (llm.DispatchResult, error) {
	if cred.Empty() {
		return llm.DispatchResult{}, fmt.Errorf("gemini: %w", llm.ErrMissingCredential)
	}

	parts := make([]genai.Part, 0, len(msg.Images)+1)
	for _, img := range msg.Images {
		data, hint, err := util.DecodeBase64MaybeDataURL(img.Base64)
		if err != nil {
			return llm.DispatchResult{}, fmt.Errorf("gemini: bad image base64: %w", err)
		}
		parts = append(parts, genai.Blob{MIMEType: util.PickMIME(img.MimeType, hint, data), Data: data})
	}
	parts = append(parts, genai.Text(msg.UserText))

	resp, err := e.gen.Generate(ctx, cred.APIKey, generateRequest{
		Model:      model,
		System:     strings.TrimSpace(msg.SystemText),
		Parts:      parts,
		ForcedJSON: opts.ForcedJSON,
	})
	if err != nil {
		return llm.DispatchResult{}, wrapError(err)
	}

	if resp == nil {
		return llm.DispatchResult{}, &llm.EmptyResponseError{Provider: llm.ProviderGemini}
	}
	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != genai.BlockReasonUnspecified {
		return llm.DispatchResult{}, &llm.EmptyResponseError{
			Provider: llm.ProviderGemini,
			Reason:   enumName(pf.BlockReason.String(), "BlockReason"),
		}
	}
	if t := candidateText(resp); t != "" {
		return llm.DispatchResult{Text: t}, nil
	}

	reason := "no_candidates"
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		reason = enumName(resp.Candidates[0].FinishReason.String(), "FinishReason")
	}
	return llm.DispatchResult{}, &llm.EmptyResponseError{Provider: llm.ProviderGemini, Reason: reason}
}

func wrapError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		reason := ""
		switch {
		case blocked.PromptFeedback != nil:
			reason = enumName(blocked.PromptFeedback.BlockReason.String(), "BlockReason")
		case blocked.Candidate != nil:
			reason = enumName(blocked.Candidate.FinishReason.String(), "FinishReason")
		}
		return &llm.EmptyResponseError{Provider: llm.ProviderGemini, Reason: reason}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if strings.TrimSpace(body) == "" {
			body = gerr.Message
		}
		return llm.NewProviderError(llm.ProviderGemini, gerr.Code, []byte(body))
	}
	return fmt.Errorf("gemini: %w", err)
}

// candidateText склеивает текстовые части первого кандидата с контентом.
func candidateText(resp *genai.GenerateContentResponse) string {
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			return s
		}
	}
	return ""
}

// enumName: "BlockReasonSafety" -> "SAFETY".
func enumName(s, prefix string) string {
	s = strings.TrimPrefix(s, prefix)
	if s == "Unspecified" || s == "" {
		return ""
	}
	return strings.ToUpper(s)
}

// --------------------------- SDK ---------------------------

type sdkGenerator struct{}

func (sdkGenerator) Generate(ctx context.Context, apiKey string, req generateRequest) (*genai.GenerateContentResponse, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(req.Model)
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	if req.ForcedJSON {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	return m.GenerateContent(ctx, req.Parts...)
}

func ptrFloat32(v float32) *float32 { return &v }
