package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"grader-proxy/api/internal/calllog"
	"grader-proxy/api/internal/decode"
	"grader-proxy/api/internal/grading"
	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/metrics"
)

// errNoTask: побочная задача не задана, слот просто пустой.
var errNoTask = errors.New("side task not requested")

// TranscriptionTask: документ и упорядоченный список моделей для него.
type TranscriptionTask struct {
	Models  []string
	Message llm.Message
}

type RubricTask struct {
	ModelID string
	Message llm.Message
	// Subject и AnswerKey необязательны: транскрипции условия и эталонного ответа.
	Subject   *TranscriptionTask
	AnswerKey *TranscriptionTask
	Creds     llm.Credentials
}

type RubricOutcome struct {
	Rubric    grading.Rubric  `json:"rubric"`
	Raw       string          `json:"raw"`
	Strategy  decode.Strategy `json:"strategy"`
	Subject   *Transcription  `json:"subject"`
	AnswerKey *Transcription  `json:"answer_key"`
}

type GradingTask struct {
	ModelID string
	Message llm.Message
	Creds   llm.Credentials
}

// GradeOutcome: Result == nil значит "показать нечего", Raw остаётся для диагностики.
type GradeOutcome struct {
	Result   *grading.GradingResult `json:"result"`
	Raw      string                 `json:"raw"`
	Strategy decode.Strategy        `json:"strategy"`
}

type Service struct {
	caller Caller
	tr     *Transcriber
	rep    calllog.Reporter
	log    *zap.Logger
}

func NewService(caller Caller, rep calllog.Reporter, log *zap.Logger) *Service {
	if rep == nil {
		rep = calllog.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		caller: caller,
		tr:     NewTranscriber(caller, rep, log),
		rep:    rep,
		log:    log,
	}
}

// CallModel: прямой вызов одной модели с записью в журнал.
func (s *Service) CallModel(ctx context.Context, modelID string, msg llm.Message, creds llm.Credentials, opts llm.Options) (string, error) {
	text, rec, err := invoke(ctx, s.caller, calllog.TaskCall, modelID, msg, creds, opts)
	s.rep.Report(rec)
	return text, err
}

func (s *Service) Transcribe(ctx context.Context, task TranscriptionTask, creds llm.Credentials) (Transcription, error) {
	return s.tr.Transcribe(ctx, task.Models, task.Message, creds, llm.Options{})
}

// GenerateRubric строит барем параллельно с транскрипциями условия и эталона.
// Падение основного вызова возвращается, побочные дают nil.
func (s *Service) GenerateRubric(ctx context.Context, task RubricTask) (RubricOutcome, error) {
	primary := func(ctx context.Context) (RubricOutcome, error) {
		text, rec, err := invoke(ctx, s.caller, calllog.TaskRubric, task.ModelID, task.Message, task.Creds, llm.Options{ForcedJSON: true})
		if err != nil {
			s.rep.Report(rec)
			return RubricOutcome{}, err
		}

		v, strategy := decode.DecodeStrategy(text)
		metrics.DecodeResults.WithLabelValues(calllog.TaskRubric, string(strategy)).Inc()
		rubric := grading.PlaceholderRubric()
		if strategy != decode.StrategyNone {
			if r := grading.NormalizeRubric(v); len(r.Sections) > 0 {
				rubric = r
			}
		}
		if rubric.Partial {
			s.log.Warn("rubric fell back to placeholder",
				zap.String("model_id", task.ModelID), zap.String("strategy", string(strategy)))
		}
		rec.Normalized = rubric
		s.rep.Report(rec)
		return RubricOutcome{Rubric: rubric, Raw: text, Strategy: strategy}, nil
	}

	joined, err := Join(ctx, primary, s.side(task.Subject, task.Creds), s.side(task.AnswerKey, task.Creds))
	if err != nil {
		return RubricOutcome{}, err
	}
	for i, serr := range joined.SideErrs {
		if serr != nil && !errors.Is(serr, errNoTask) {
			s.log.Warn("rubric side task failed", zap.Int("slot", i), zap.Error(serr))
		}
	}

	out := joined.Primary
	out.Subject, out.AnswerKey = joined.Sides[0], joined.Sides[1]
	return out, nil
}

func (s *Service) side(task *TranscriptionTask, creds llm.Credentials) func(context.Context) (Transcription, error) {
	return func(ctx context.Context) (Transcription, error) {
		if task == nil {
			return Transcription{}, errNoTask
		}
		return s.tr.Transcribe(ctx, task.Models, task.Message, creds, llm.Options{})
	}
}

// GradeCopy оценивает копию. Недекодируемый ответ не ошибка: Result будет nil.
func (s *Service) GradeCopy(ctx context.Context, task GradingTask) (GradeOutcome, error) {
	text, rec, err := invoke(ctx, s.caller, calllog.TaskGrade, task.ModelID, task.Message, task.Creds, llm.Options{ForcedJSON: true})
	if err != nil {
		s.rep.Report(rec)
		return GradeOutcome{}, err
	}

	v, strategy := decode.DecodeStrategy(text)
	metrics.DecodeResults.WithLabelValues(calllog.TaskGrade, string(strategy)).Inc()

	var result *grading.GradingResult
	if strategy != decode.StrategyNone {
		result = grading.NormalizeGradingResult(v)
	}
	if result == nil {
		s.log.Warn("grading output not usable",
			zap.String("model_id", task.ModelID), zap.String("strategy", string(strategy)))
	} else {
		rec.Normalized = result
	}
	s.rep.Report(rec)
	return GradeOutcome{Result: result, Raw: text, Strategy: strategy}, nil
}
