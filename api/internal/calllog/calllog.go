// Package calllog ведёт журнал вызовов моделей: что спросили, что ответили, сколько ждали.
// Запись уходит в фоне и никогда не влияет на ответ клиенту.
package calllog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grader-proxy/api/internal/metrics"
)

// Типы задач.
const (
	TaskCall       = "call"
	TaskTranscribe = "transcribe"
	TaskRubric     = "rubric"
	TaskGrade      = "grade"
)

type Record struct {
	ID         uuid.UUID
	TaskType   string
	ModelID    string
	Provider   string
	Prompt     string
	Response   string
	Normalized any
	StartedAt  time.Time
	Duration   time.Duration

	PromptBytes   int
	ResponseBytes int
	ImageCount    int
	Err           string
}

// NewRecord заполняет id и время старта.
func NewRecord(taskType, modelID string) Record {
	return Record{ID: uuid.New(), TaskType: taskType, ModelID: modelID, StartedAt: time.Now()}
}

// Finish фиксирует ответ, ошибку и длительность.
func (r *Record) Finish(response string, err error) {
	r.Duration = time.Since(r.StartedAt)
	r.Response = response
	r.ResponseBytes = len(response)
	if err != nil {
		r.Err = err.Error()
	}
}

// Reporter принимает запись и сразу возвращает управление.
type Reporter interface {
	Report(Record)
}

// Sink: синхронный приёмник записей.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// Nop ничего не делает.
type Nop struct{}

func (Nop) Report(Record) {}

// --- ASYNC ------------------------------------------------------------------

const DefaultTimeout = 5 * time.Second

// Async пишет в Sink из отдельной горутины со своим таймаутом.
// Ошибки и паники только логируются.
type Async struct {
	sink    Sink
	log     *zap.Logger
	timeout time.Duration
	// done вызывается после каждой записи (нужно тестам).
	done func()
}

func NewAsync(sink Sink, log *zap.Logger, timeout time.Duration) *Async {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Async{sink: sink, log: log, timeout: timeout}
}

func (a *Async) Report(rec Record) {
	go a.write(rec)
}

func (a *Async) write(rec Record) {
	defer func() {
		if a.done != nil {
			a.done()
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			metrics.CallLogFailures.Inc()
			a.log.Error("call log sink panicked", zap.Any("panic", p), zap.String("record_id", rec.ID.String()))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.sink.Write(ctx, rec); err != nil {
		metrics.CallLogFailures.Inc()
		a.log.Warn("call log write failed", zap.Error(err), zap.String("record_id", rec.ID.String()))
	}
}

// --- SINKS ------------------------------------------------------------------

// ZapSink пишет запись одной структурированной строкой.
type ZapSink struct {
	Log *zap.Logger
}

func (s ZapSink) Write(_ context.Context, rec Record) error {
	if s.Log == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("record_id", rec.ID.String()),
		zap.String("task", rec.TaskType),
		zap.String("model_id", rec.ModelID),
		zap.String("provider", rec.Provider),
		zap.Time("started_at", rec.StartedAt),
		zap.Duration("duration", rec.Duration),
		zap.Int("prompt_bytes", rec.PromptBytes),
		zap.Int("response_bytes", rec.ResponseBytes),
		zap.Int("images", rec.ImageCount),
		zap.Bool("normalized", rec.Normalized != nil),
	}
	if rec.Err != "" {
		s.Log.Info("ai call", append(fields, zap.String("error", rec.Err))...)
		return nil
	}
	s.Log.Info("ai call", fields...)
	return nil
}

// Multi пишет во все приёмники и собирает ошибки.
type Multi []Sink

func (m Multi) Write(ctx context.Context, rec Record) error {
	var errs []error
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
