// Package pipeline связывает вызовы моделей в сценарии: упорядоченный перебор
// моделей для транскрипции и параллельный запуск с ожиданием всех задач.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"grader-proxy/api/internal/calllog"
	"grader-proxy/api/internal/dispatch"
	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/metrics"
	"grader-proxy/api/internal/util"
)

// MinTextLen: короче этого ответ считается вырожденным.
const MinTextLen = 20

// PageSeparator ставится между страницами постраничного OCR.
const PageSeparator = "\n\n--- Page %d ---\n\n"

var ErrNoModels = errors.New("no models to try")

// Caller: то, что pipeline нужно от диспетчера.
type Caller interface {
	CallModel(ctx context.Context, modelID string, msg llm.Message, creds llm.Credentials, opts llm.Options) (string, error)
	Resolve(modelID string) (dispatch.Route, llm.Capabilities, bool)
}

type AttemptKind string

const (
	KindContentPolicy AttemptKind = "content_policy"
	KindShortOutput   AttemptKind = "short_output"
	KindError         AttemptKind = "error"
)

// Attempt: неудачная попытка одной модели.
type Attempt struct {
	Model string
	Kind  AttemptKind
	Err   error
}

func (a Attempt) MarshalJSON() ([]byte, error) {
	msg := ""
	if a.Err != nil {
		msg = a.Err.Error()
	}
	return json.Marshal(struct {
		Model string      `json:"model"`
		Kind  AttemptKind `json:"kind"`
		Error string      `json:"error"`
	}{a.Model, a.Kind, msg})
}

// ShortOutputError: модель ответила, но текста слишком мало.
type ShortOutputError struct {
	Model string
	Len   int
}

func (e *ShortOutputError) Error() string {
	return fmt.Sprintf("%s: output too short (%d chars, need %d)", e.Model, e.Len, MinTextLen)
}

// AggregateFallbackError: все модели списка не справились.
type AggregateFallbackError struct {
	Attempts []Attempt
	// Cause: почему перебор прервался раньше конца списка (отмена контекста).
	Cause error
}

func (e *AggregateFallbackError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d models failed", len(e.Attempts))
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s (%s): %v", a.Model, a.Kind, a.Err)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "; stopped: %v", e.Cause)
	}
	return b.String()
}

func (e *AggregateFallbackError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Transcription: удачный результат и неудачи до него.
type Transcription struct {
	Text   string    `json:"text"`
	Model  string    `json:"model"`
	Pages  int       `json:"pages"`
	Failed []Attempt `json:"attempts"`
}

type Transcriber struct {
	caller Caller
	rep    calllog.Reporter
	log    *zap.Logger
}

func NewTranscriber(caller Caller, rep calllog.Reporter, log *zap.Logger) *Transcriber {
	if rep == nil {
		rep = calllog.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Transcriber{caller: caller, rep: rep, log: log}
}

// Transcribe перебирает models строго по очереди до первого ответа
// длиной от MinTextLen символов.
func (t *Transcriber) Transcribe(ctx context.Context, models []string, msg llm.Message, creds llm.Credentials, opts llm.Options) (Transcription, error) {
	if len(models) == 0 {
		return Transcription{}, ErrNoModels
	}

	var failed []Attempt
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return Transcription{}, &AggregateFallbackError{Attempts: failed, Cause: err}
		}

		text, pages, err := t.attempt(ctx, model, msg, creds, opts)
		text = util.StripCodeFences(text)
		if err == nil && len([]rune(text)) < MinTextLen {
			err = &ShortOutputError{Model: model, Len: len([]rune(text))}
		}
		if err != nil {
			a := Attempt{Model: model, Kind: classify(err), Err: err}
			failed = append(failed, a)
			_, _, known := t.caller.Resolve(model)
			metrics.FallbackAttempts.WithLabelValues(metrics.ModelLabel(model, known), string(a.Kind)).Inc()
			t.log.Warn("transcription attempt failed",
				zap.String("model_id", model), zap.String("kind", string(a.Kind)), zap.Error(err))
			continue
		}

		if len(failed) > 0 {
			t.log.Info("transcription recovered by fallback",
				zap.String("model_id", model), zap.Int("failed_before", len(failed)))
		}
		return Transcription{Text: text, Model: model, Pages: pages, Failed: failed}, nil
	}
	return Transcription{}, &AggregateFallbackError{Attempts: failed, Cause: ctx.Err()}
}

// attempt: один шаг перебора. OCR-маршруты получают по одной странице за вызов.
func (t *Transcriber) attempt(ctx context.Context, model string, msg llm.Message, creds llm.Credentials, opts llm.Options) (string, int, error) {
	_, caps, _ := t.caller.Resolve(model)
	if !caps.PageOCR || len(msg.Images) <= 1 {
		text, err := t.call(ctx, model, msg, creds, opts)
		return text, max(len(msg.Images), 1), err
	}

	var b strings.Builder
	for i, img := range msg.Images {
		page := llm.Message{SystemText: msg.SystemText, UserText: msg.UserText, Images: []llm.ImageContent{img}}
		text, err := t.call(ctx, model, page, creds, opts)
		if err != nil {
			return "", i, fmt.Errorf("page %d: %w", i+1, err)
		}
		if i > 0 {
			fmt.Fprintf(&b, PageSeparator, i+1)
		}
		b.WriteString(strings.TrimSpace(text))
	}
	return b.String(), len(msg.Images), nil
}

func (t *Transcriber) call(ctx context.Context, model string, msg llm.Message, creds llm.Credentials, opts llm.Options) (string, error) {
	text, rec, err := invoke(ctx, t.caller, calllog.TaskTranscribe, model, msg, creds, opts)
	t.rep.Report(rec)
	return text, err
}

func classify(err error) AttemptKind {
	var short *ShortOutputError
	switch {
	case errors.As(err, &short):
		return KindShortOutput
	case llm.IsContentPolicy(err):
		return KindContentPolicy
	default:
		return KindError
	}
}

// invoke вызывает модель и готовит запись журнала. Отправка записи на вызывающем.
func invoke(ctx context.Context, c Caller, task, model string, msg llm.Message, creds llm.Credentials, opts llm.Options) (string, calllog.Record, error) {
	route, _, _ := c.Resolve(model)
	rec := calllog.NewRecord(task, model)
	rec.Provider = route.Provider
	rec.Prompt = promptText(msg)
	rec.PromptBytes = len(msg.SystemText) + len(msg.UserText)
	rec.ImageCount = len(msg.Images)

	text, err := c.CallModel(ctx, model, msg, creds, opts)
	rec.Finish(text, err)
	return text, rec, err
}

func promptText(msg llm.Message) string {
	if msg.SystemText == "" {
		return msg.UserText
	}
	return msg.SystemText + "\n\n" + msg.UserText
}
