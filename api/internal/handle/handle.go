// Package handle отдаёт HTTP-границу: разбирает задачи, зовёт pipeline, пишет JSON.
package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"grader-proxy/api/internal/dispatch"
	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/pipeline"
	"grader-proxy/api/internal/util"
)

const DefaultTimeout = 180 * time.Second

// maxBody: запас под несколько страниц в base64.
const maxBody = 64 << 20

// Service: сценарии, которые обслуживает граница.
type Service interface {
	CallModel(ctx context.Context, modelID string, msg llm.Message, creds llm.Credentials, opts llm.Options) (string, error)
	Transcribe(ctx context.Context, task pipeline.TranscriptionTask, creds llm.Credentials) (pipeline.Transcription, error)
	GenerateRubric(ctx context.Context, task pipeline.RubricTask) (pipeline.RubricOutcome, error)
	GradeCopy(ctx context.Context, task pipeline.GradingTask) (pipeline.GradeOutcome, error)
}

// Catalog отдаёт таблицу маршрутизации для /v1/models.
type Catalog interface {
	Routes() []dispatch.RouteInfo
}

type Options struct {
	// Creds: ключи сервера; запрос может переопределить отдельные.
	Creds            llm.Credentials
	TranscribeModels []string
	Timeout          time.Duration
}

type Handle struct {
	svc      Service
	cat      Catalog
	opts     Options
	log      *zap.Logger
	validate *validator.Validate
}

func New(svc Service, cat Catalog, opts Options, log *zap.Logger) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Handle{
		svc:      svc,
		cat:      cat,
		opts:     opts,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Mount вешает маршруты на роутер.
func (h *Handle) Mount(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", h.Models)
		r.Post("/llm/call", h.Call)
		r.Post("/llm/transcribe", h.Transcribe)
		r.Post("/llm/rubric", h.Rubric)
		r.Post("/llm/grade", h.Grade)
	})
}

// --- REQUEST PARTS ----------------------------------------------------------

// imageIn: в data чистый base64 или data: URL.
type imageIn struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data" validate:"required"`
}

// credsIn: необязательные ключи от клиента поверх серверных.
type credsIn struct {
	OpenAIAPIKey     string `json:"openai_api_key"`
	AnthropicAPIKey  string `json:"anthropic_api_key"`
	GeminiAPIKey     string `json:"gemini_api_key"`
	MistralAPIKey    string `json:"mistral_api_key"`
	DeepSeekAPIKey   string `json:"deepseek_api_key"`
	YandexOAuthToken string `json:"yandex_oauth_token"`
	YandexFolderID   string `json:"yandex_folder_id"`
	DocIntelEndpoint string `json:"docintel_endpoint"`
	DocIntelKey      string `json:"docintel_key"`
}

// promptIn: общая часть всех задач.
type promptIn struct {
	System      string    `json:"system"`
	User        string    `json:"user"`
	Images      []imageIn `json:"images" validate:"omitempty,dive"`
	Credentials *credsIn  `json:"credentials,omitempty"`
}

func (p promptIn) message() llm.Message {
	return llm.Message{SystemText: p.System, UserText: p.User, Images: toImages(p.Images)}
}

// toImages отрезает data:-префикс и досчитывает MIME, если клиент его не дал.
func toImages(in []imageIn) []llm.ImageContent {
	if len(in) == 0 {
		return nil
	}
	out := make([]llm.ImageContent, 0, len(in))
	for _, img := range in {
		b64, hint := util.SplitDataURL(img.Data)
		mime := strings.TrimSpace(img.MimeType)
		if mime == "" && hint == "" {
			if raw, _, err := util.DecodeBase64MaybeDataURL(b64); err == nil {
				mime = util.PickMIME("", "", raw)
			}
		}
		out = append(out, llm.ImageContent{MimeType: util.PickMIME(mime, hint, nil), Base64: b64})
	}
	return out
}

// credentials: ключи провайдера заменяются целиком. Если клиент прислал хоть
// одно поле провайдера, серверные поля этого провайдера не используются,
// иначе серверный ключ ушёл бы на адрес, выбранный клиентом.
func (h *Handle) credentials(in *credsIn) llm.Credentials {
	c := h.opts.Creds
	if in == nil {
		return c
	}
	single := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	single(&c.OpenAIAPIKey, in.OpenAIAPIKey)
	single(&c.AnthropicAPIKey, in.AnthropicAPIKey)
	single(&c.GeminiAPIKey, in.GeminiAPIKey)
	single(&c.MistralAPIKey, in.MistralAPIKey)
	single(&c.DeepSeekAPIKey, in.DeepSeekAPIKey)

	if token, folder := strings.TrimSpace(in.YandexOAuthToken), strings.TrimSpace(in.YandexFolderID); token != "" || folder != "" {
		c.YandexOAuthToken, c.YandexFolderID = token, folder
	}
	if endpoint, key := strings.TrimSpace(in.DocIntelEndpoint), strings.TrimSpace(in.DocIntelKey); endpoint != "" || key != "" {
		c.DocIntelEndpoint, c.DocIntelKey = endpoint, key
	}
	return c
}

// --- HELPERS ----------------------------------------------------------------

// decodeBody читает JSON и прогоняет валидатор. false: ответ уже записан.
func (h *Handle) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error(), nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), nil)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// withDeadline: X-Request-Timeout (секунды) или ?timeoutSec=, иначе таймаут по умолчанию.
func (h *Handle) withDeadline(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := h.opts.Timeout
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}

type errorBody struct {
	Error    string             `json:"error"`
	Attempts []pipeline.Attempt `json:"attempts,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg string, attempts []pipeline.Attempt) {
	writeJSON(w, code, errorBody{Error: msg, Attempts: attempts})
}

// fail переводит ошибку сценария в HTTP-статус.
func (h *Handle) fail(w http.ResponseWriter, op string, err error) {
	code := http.StatusBadGateway
	var (
		agg      *pipeline.AggregateFallbackError
		attempts []pipeline.Attempt
	)
	// у агрегата дедлайн смотрим только в Cause: таймаут одной модели не таймаут запроса
	deadline := errors.Is(err, context.DeadlineExceeded)
	if errors.As(err, &agg) {
		attempts = agg.Attempts
		deadline = errors.Is(agg.Cause, context.DeadlineExceeded)
	}
	switch {
	case deadline:
		code = http.StatusGatewayTimeout
	case agg == nil && (errors.Is(err, llm.ErrImagesUnsupported) ||
		errors.Is(err, llm.ErrMissingCredential) ||
		errors.Is(err, pipeline.ErrNoModels)):
		code = http.StatusBadRequest
	}
	h.log.Warn(op+" failed", zap.Error(err), zap.Int("status", code))
	writeError(w, code, op+" error: "+err.Error(), attempts)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
