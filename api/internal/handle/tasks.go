package handle

import (
	"net/http"

	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/pipeline"
)

// --- CALL -------------------------------------------------------------------

type callReq struct {
	Model string `json:"model" validate:"required"`
	promptIn
	ForcedJSON bool `json:"forced_json"`
}

type callResp struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

func (h *Handle) Call(w http.ResponseWriter, r *http.Request) {
	var req callReq
	if !h.decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	text, err := h.svc.CallModel(ctx, req.Model, req.message(), h.credentials(req.Credentials), llm.Options{ForcedJSON: req.ForcedJSON})
	if err != nil {
		h.fail(w, "call", err)
		return
	}
	writeJSON(w, http.StatusOK, callResp{Model: req.Model, Text: text})
}

// --- TRANSCRIBE -------------------------------------------------------------

type transcribeReq struct {
	// Models: порядок перебора; пусто значит список сервера.
	Models []string `json:"models" validate:"omitempty,dive,required"`
	promptIn
}

func (h *Handle) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeReq
	if !h.decodeBody(w, r, &req) {
		return
	}
	if len(req.Images) == 0 {
		writeError(w, http.StatusBadRequest, "images is required", nil)
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	task := pipeline.TranscriptionTask{Models: h.models(req.Models), Message: req.message()}
	out, err := h.svc.Transcribe(ctx, task, h.credentials(req.Credentials))
	if err != nil {
		h.fail(w, "transcribe", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) models(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return h.opts.TranscribeModels
}

// --- RUBRIC -----------------------------------------------------------------

// sideDoc: документ для побочной транскрипции.
type sideDoc struct {
	Models []string  `json:"models" validate:"omitempty,dive,required"`
	System string    `json:"system"`
	User   string    `json:"user"`
	Images []imageIn `json:"images" validate:"required,min=1,dive"`
}

func (h *Handle) sideTask(d *sideDoc) *pipeline.TranscriptionTask {
	if d == nil {
		return nil
	}
	return &pipeline.TranscriptionTask{
		Models:  h.models(d.Models),
		Message: llm.Message{SystemText: d.System, UserText: d.User, Images: toImages(d.Images)},
	}
}

type rubricReq struct {
	Model string `json:"model" validate:"required"`
	promptIn
	Subject   *sideDoc `json:"subject,omitempty"`
	AnswerKey *sideDoc `json:"answer_key,omitempty"`
}

func (h *Handle) Rubric(w http.ResponseWriter, r *http.Request) {
	var req rubricReq
	if !h.decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.svc.GenerateRubric(ctx, pipeline.RubricTask{
		ModelID:   req.Model,
		Message:   req.message(),
		Subject:   h.sideTask(req.Subject),
		AnswerKey: h.sideTask(req.AnswerKey),
		Creds:     h.credentials(req.Credentials),
	})
	if err != nil {
		h.fail(w, "rubric", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- GRADE ------------------------------------------------------------------

type gradeReq struct {
	Model string `json:"model" validate:"required"`
	promptIn
}

func (h *Handle) Grade(w http.ResponseWriter, r *http.Request) {
	var req gradeReq
	if !h.decodeBody(w, r, &req) {
		return
	}
	ctx, cancel := h.withDeadline(r)
	defer cancel()

	out, err := h.svc.GradeCopy(ctx, pipeline.GradingTask{
		ModelID: req.Model,
		Message: req.message(),
		Creds:   h.credentials(req.Credentials),
	})
	if err != nil {
		h.fail(w, "grade", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- MODELS -----------------------------------------------------------------

func (h *Handle) Models(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": h.cat.Routes()})
}
