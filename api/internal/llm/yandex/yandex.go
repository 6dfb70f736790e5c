// Package yandex: OCR-адаптер Yandex Vision (recognizeText).
package yandex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"crypto/sha256"
	"strings"
	"sync"
	"time"

	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/util"
)

const (
	DefaultOCRURL = "https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText"
	DefaultModel  = "handwritten"

	// MaxIAMClients: сколько OAuth-токенов держим в кэше IAM одновременно.
	MaxIAMClients = 16

	// iamIdleTTL: клиент без обращений дольше этого выбрасывается.
	iamIdleTTL = 12 * time.Hour
)

type Engine struct {
	ocrURL string
	iamURL string
	httpc  *http.Client
	langs  []string

	mu   sync.Mutex
	iams map[[sha256.Size]byte]*iamEntry // sha256(oauth) -> клиент
	now  func() time.Time
}

type iamEntry struct {
	client   *IamClient
	lastUsed time.Time
}

func New(ocrURL, iamURL string, langs []string) *Engine {
	if strings.TrimSpace(ocrURL) == "" {
		ocrURL = DefaultOCRURL
	}
	if strings.TrimSpace(iamURL) == "" {
		iamURL = DefaultIAMURL
	}
	if len(langs) == 0 {
		langs = []string{"fr", "en"}
	}
	return &Engine{
		ocrURL: ocrURL,
		iamURL: iamURL,
		httpc:  llm.NewHTTPClient(),
		langs:  langs,
		iams:   map[[sha256.Size]byte]*iamEntry{},
		now:    time.Now,
	}
}

func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string { return llm.ProviderYandex }

type request struct {
	Content       string   `json:"content"`
	MimeType      string   `json:"mimeType,omitempty"`      // "JPEG" | "PNG" | "PDF"
	LanguageCodes []string `json:"languageCodes,omitempty"` // ["fr","en"]
	Model         string   `json:"model,omitempty"`         // e.g. "handwritten", "page"
}

type textAnnotation struct {
	FullText string `json:"fullText,omitempty"`
	Blocks   []struct {
		Lines []struct {
			Text string `json:"text,omitempty"`
		} `json:"lines,omitempty"`
	} `json:"blocks,omitempty"`
}

type response struct {
	Result *struct {
		TextAnnotation *textAnnotation `json:"textAnnotation,omitempty"`
	} `json:"result,omitempty"`
}

func (r *response) GetTextAnnotation() *textAnnotation {
	if r == nil || r.Result == nil {
		return nil
	}
	return r.Result.TextAnnotation
}

// Call распознаёт одну страницу. model: модель OCR ("handwritten", "page").
func (e *Engine) Call(ctx context.Context, model string, msg llm.Message, cred llm.ProviderCredential, _ llm.CallOptions) (llm.DispatchResult, error) {
	if cred.Empty() || strings.TrimSpace(cred.Scope) == "" {
		return llm.DispatchResult{}, fmt.Errorf("yandex ocr: %w", llm.ErrMissingCredential)
	}
	if len(msg.Images) != 1 {
		return llm.DispatchResult{}, fmt.Errorf("yandex ocr: got %d images: %w", len(msg.Images), llm.ErrSingleImage)
	}
	img := msg.Images[0]

	mime := util.OCRMimeFromHTTP(img.MimeType)
	if mime == "" {
		raw, _, err := util.DecodeBase64MaybeDataURL(img.Base64)
		if err != nil {
			return llm.DispatchResult{}, fmt.Errorf("yandex ocr: bad base64: %w", err)
		}
		mime = util.SniffMimeForOCR(raw)
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	payload, _ := json.Marshal(request{
		Content:       img.Base64,
		MimeType:      mime,
		LanguageCodes: e.langs,
		Model:         model,
	})

	iamc := e.iamClient(cred.APIKey)
	resp, err := e.recognize(ctx, iamc, cred.Scope, payload)
	if err != nil {
		return llm.DispatchResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		// IAM-токен отозван раньше срока: следующий вызов получит новый
		iamc.Invalidate()
	}

	if resp.StatusCode != http.StatusOK {
		return llm.DispatchResult{}, llm.NewProviderError(llm.ProviderYandex, resp.StatusCode, llm.ReadErrorBody(resp.Body))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llm.DispatchResult{}, fmt.Errorf("yandex ocr: decode response: %w", err)
	}
	if t := annotationText(out.GetTextAnnotation()); t != "" {
		return llm.DispatchResult{Text: t}, nil
	}
	return llm.DispatchResult{}, &llm.EmptyResponseError{Provider: llm.ProviderYandex, Reason: "no_text"}
}

func (e *Engine) recognize(ctx context.Context, iamc *IamClient, folderID string, payload []byte) (*http.Response, error) {
	iamToken, err := iamc.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.ocrURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+iamToken)
	req.Header.Set("x-folder-id", folderID)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yandex ocr: %w", err)
	}
	return resp, nil
}

// iamClient отдаёт клиент для oauth. Кэш ограничен: сначала выбрасываются
// давно не использованные клиенты, при переполнении самый старый.
func (e *Engine) iamClient(oauth string) *IamClient {
	key := sha256.Sum256([]byte(oauth))
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.iams[key]; ok {
		ent.lastUsed = now
		return ent.client
	}

	for k, ent := range e.iams {
		if now.Sub(ent.lastUsed) > iamIdleTTL {
			delete(e.iams, k)
		}
	}
	if len(e.iams) >= MaxIAMClients {
		var (
			oldestKey [sha256.Size]byte
			oldest    time.Time
		)
		for k, ent := range e.iams {
			if oldest.IsZero() || ent.lastUsed.Before(oldest) {
				oldestKey, oldest = k, ent.lastUsed
			}
		}
		delete(e.iams, oldestKey)
	}

	c := NewIamClient(e.httpc, e.iamURL, oauth)
	e.iams[key] = &iamEntry{client: c, lastUsed: now}
	return c
}

// annotationText: fullText, иначе строки блоков.
func annotationText(ta *textAnnotation) string {
	if ta == nil {
		return ""
	}
	if t := strings.TrimSpace(ta.FullText); t != "" {
		return t
	}
	// fallback: lines
	var lines []string
	for _, b := range ta.Blocks {
		for _, l := range b.Lines {
			if s := strings.TrimSpace(l.Text); s != "" {
				lines = append(lines, s)
			}
		}
	}
	return strings.Join(lines, "\n")
}
