package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxErrorBody: сколько байт тела ошибки провайдера сохраняем.
const MaxErrorBody = 1024

var (
	// ErrImagesUnsupported: картинки отправлены текстовому провайдеру.
	ErrImagesUnsupported = errors.New("provider does not accept images")
	// ErrMissingCredential: для выбранного провайдера нет ключа.
	ErrMissingCredential = errors.New("missing provider credential")
	// ErrSingleImage: OCR-провайдеры принимают ровно одну страницу за вызов.
	ErrSingleImage       = errors.New("ocr provider takes exactly one image")
)

// ProviderError: ответ провайдера не 2xx.
// В Body никогда нет ключей.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Body)
}

// NewProviderError собирает ProviderError с обрезанным телом.
func NewProviderError(provider string, status int, body []byte) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Body:       TruncateBody(body, MaxErrorBody),
	}
}

// EmptyResponseError: вызов успешен, но текста нет.
type EmptyResponseError struct {
	Provider string
	// Reason: причина блокировки/завершения от провайдера, если есть.
	Reason string
}

func (e *EmptyResponseError) Error() string {
	if e == nil {
		return "empty response"
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: empty response (reason: %s)", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s: empty response", e.Provider)
}

// PollTimeoutError: задача так и не дошла до конечного статуса.
type PollTimeoutError struct {
	Provider string
	Job      string
	Attempts int
	Waited   time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("%s: job %s still running after %d polls (%s)", e.Provider, e.Job, e.Attempts, e.Waited)
}

// JobFailedError: провайдер сообщил об ошибке задачи.
type JobFailedError struct {
	Provider string
	Job      string
	Code     string
	Message  string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("%s: job %s failed: %s %s", e.Provider, e.Job, e.Code, e.Message)
}

// TruncateBody возвращает не больше n байт из b, не разрезая руну.
func TruncateBody(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

var contentPolicyMarkers = []string{
	"safety",
	"content_filter",
	"content_policy",
	"content policy",
	"refusal",
	"prohibited_content",
	"blocklist",
	"spii",
	"recitation",
	"blocked",
}

// IsContentPolicy: провайдер отказал из-за содержимого, а не упал.
func IsContentPolicy(err error) bool {
	if err == nil {
		return false
	}
	var empty *EmptyResponseError
	if errors.As(err, &empty) {
		return hasPolicyMarker(empty.Reason)
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		if perr.StatusCode == 400 || perr.StatusCode == 403 || perr.StatusCode == 451 {
			return hasPolicyMarker(perr.Body)
		}
	}
	return false
}

func hasPolicyMarker(s string) bool {
	s = strings.ToLower(s)
	if s == "" {
		return false
	}
	for _, m := range contentPolicyMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
