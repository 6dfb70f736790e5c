package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grader-proxy/api/internal/dispatch"
	"grader-proxy/api/internal/grading"
	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/llm/docintel"
	"grader-proxy/api/internal/pipeline"
)

// 1x1 PNG
const pngB64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

type fakeService struct {
	callText string
	err      error

	gotModel    string
	gotMsg      llm.Message
	gotCreds    llm.Credentials
	gotOpts     llm.Options
	gotTask     pipeline.TranscriptionTask
	gotRubric   pipeline.RubricTask
	gotDeadline time.Duration
}

func (f *fakeService) deadline(ctx context.Context) {
	if d, ok := ctx.Deadline(); ok {
		f.gotDeadline = time.Until(d).Round(time.Second)
	}
}

func (f *fakeService) CallModel(ctx context.Context, modelID string, msg llm.Message, creds llm.Credentials, opts llm.Options) (string, error) {
	f.deadline(ctx)
	f.gotModel, f.gotMsg, f.gotCreds, f.gotOpts = modelID, msg, creds, opts
	return f.callText, f.err
}

func (f *fakeService) Transcribe(ctx context.Context, task pipeline.TranscriptionTask, creds llm.Credentials) (pipeline.Transcription, error) {
	f.gotTask, f.gotCreds = task, creds
	if f.err != nil {
		return pipeline.Transcription{}, f.err
	}
	return pipeline.Transcription{Text: "texte transcrit assez long", Model: task.Models[0], Pages: 1}, nil
}

func (f *fakeService) GenerateRubric(ctx context.Context, task pipeline.RubricTask) (pipeline.RubricOutcome, error) {
	f.gotRubric = task
	if f.err != nil {
		return pipeline.RubricOutcome{}, f.err
	}
	return pipeline.RubricOutcome{Rubric: grading.PlaceholderRubric()}, nil
}

func (f *fakeService) GradeCopy(ctx context.Context, task pipeline.GradingTask) (pipeline.GradeOutcome, error) {
	f.gotModel = task.ModelID
	return pipeline.GradeOutcome{Raw: "désolé"}, f.err
}

type fakeCatalog []dispatch.RouteInfo

func (c fakeCatalog) Routes() []dispatch.RouteInfo { return c }

func newTestRouter(svc *fakeService) http.Handler {
	h := New(svc, fakeCatalog{{ID: "gpt-4o", Route: dispatch.Route{Provider: "openai", Model: "gpt-4o"}, Available: true}}, Options{
		Creds:            llm.Credentials{OpenAIAPIKey: "server-key", AnthropicAPIKey: "server-ant"},
		TranscribeModels: []string{"mistral-ocr", "gpt-4o"},
	}, nil)
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCallEndpoint(t *testing.T) {
	svc := &fakeService{callText: `{"ok":true}`}
	h := newTestRouter(svc)

	body := `{"model":"claude-sonnet-4-5","system":"s","user":"u","forced_json":true,
		"images":[{"data":"data:image/png;base64,` + pngB64 + `"},{"data":"` + pngB64 + `"}],
		"credentials":{"anthropic_api_key":" client-ant "}}`
	rec := do(t, h, http.MethodPost, "/v1/llm/call", body, map[string]string{"X-Request-Timeout": "30"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp callResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, `{"ok":true}`, resp.Text)

	assert.Equal(t, "claude-sonnet-4-5", svc.gotModel)
	assert.True(t, svc.gotOpts.ForcedJSON)
	assert.Equal(t, 30*time.Second, svc.gotDeadline)
	require.Len(t, svc.gotMsg.Images, 2)
	for _, img := range svc.gotMsg.Images {
		assert.Equal(t, "image/png", img.MimeType)
		assert.Equal(t, pngB64, img.Base64)
	}
	assert.Equal(t, "client-ant", svc.gotCreds.AnthropicAPIKey)
	assert.Equal(t, "server-key", svc.gotCreds.OpenAIAPIKey)
}

func TestCallDeadlineFromQuery(t *testing.T) {
	svc := &fakeService{callText: "x"}
	rec := do(t, newTestRouter(svc), http.MethodPost, "/v1/llm/call?timeoutSec=7", `{"model":"gpt-4o"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7*time.Second, svc.gotDeadline)

	rec = do(t, newTestRouter(svc), http.MethodPost, "/v1/llm/call", `{"model":"gpt-4o"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultTimeout, svc.gotDeadline)
}

func TestValidationErrors(t *testing.T) {
	h := newTestRouter(&fakeService{})

	rec := do(t, h, http.MethodPost, "/v1/llm/call", `{"user":"u"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Model")

	rec = do(t, h, http.MethodPost, "/v1/llm/call", `{"model":"gpt-4o","images":[{"mime_type":"image/png"}]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Data")

	rec = do(t, h, http.MethodPost, "/v1/llm/grade", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad json")

	rec = do(t, h, http.MethodPost, "/v1/llm/transcribe", `{"models":["gpt-4o"]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{llm.NewProviderError("openai", 500, []byte("boom")), http.StatusBadGateway},
		{&llm.EmptyResponseError{Provider: "gemini", Reason: "SAFETY"}, http.StatusBadGateway},
		{llm.ErrImagesUnsupported, http.StatusBadRequest},
		{llm.ErrMissingCredential, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		rec := do(t, newTestRouter(&fakeService{err: tc.err}), http.MethodPost, "/v1/llm/call", `{"model":"gpt-4o"}`, nil)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodPost, "/v1/llm/transcribe", `{"images":[{"data":"`+pngB64+`"}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"mistral-ocr", "gpt-4o"}, svc.gotTask.Models)

	rec = do(t, h, http.MethodPost, "/v1/llm/transcribe", `{"models":["yandex-ocr"],"images":[{"data":"`+pngB64+`"}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"yandex-ocr"}, svc.gotTask.Models)
}

func TestTranscribeAggregateFailure(t *testing.T) {
	agg := &pipeline.AggregateFallbackError{Attempts: []pipeline.Attempt{
		{Model: "mistral-ocr", Kind: pipeline.KindError, Err: llm.ErrMissingCredential},
		{Model: "gpt-4o", Kind: pipeline.KindContentPolicy, Err: &llm.EmptyResponseError{Provider: "openai", Reason: "content_filter"}},
	}}
	rec := do(t, newTestRouter(&fakeService{err: agg}), http.MethodPost, "/v1/llm/transcribe", `{"images":[{"data":"`+pngB64+`"}]}`, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Error    string `json:"error"`
		Attempts []struct {
			Model string `json:"model"`
			Kind  string `json:"kind"`
		} `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Attempts, 2)
	assert.Equal(t, "content_policy", body.Attempts[1].Kind)
	assert.Contains(t, body.Error, "all 2 models failed")
}

func TestRubricEndpoint(t *testing.T) {
	svc := &fakeService{}
	body := `{"model":"claude-sonnet-4-5","user":"barème",
		"subject":{"images":[{"data":"` + pngB64 + `"}]},
		"answer_key":{"models":["gemini-2.5-pro"],"images":[{"data":"` + pngB64 + `"}]}}`
	rec := do(t, newTestRouter(svc), http.MethodPost, "/v1/llm/rubric", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NotNil(t, svc.gotRubric.Subject)
	assert.Equal(t, []string{"mistral-ocr", "gpt-4o"}, svc.gotRubric.Subject.Models)
	require.NotNil(t, svc.gotRubric.AnswerKey)
	assert.Equal(t, []string{"gemini-2.5-pro"}, svc.gotRubric.AnswerKey.Models)
	assert.Contains(t, rec.Body.String(), `"partial":true`)

	rec = do(t, newTestRouter(svc), http.MethodPost, "/v1/llm/rubric", `{"model":"m","subject":{"images":[]}}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGradeEndpointNullResult(t *testing.T) {
	rec := do(t, newTestRouter(&fakeService{}), http.MethodPost, "/v1/llm/grade", `{"model":"gpt-4o","user":"copie"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":null,"raw":"désolé","strategy":""}`, rec.Body.String())
}

func TestModelsEndpoint(t *testing.T) {
	rec := do(t, newTestRouter(&fakeService{}), http.MethodGet, "/v1/models", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"gpt-4o"`)
	assert.Contains(t, rec.Body.String(), `"available":true`)
}

func TestCredentialsReplacedPerProvider(t *testing.T) {
	h := New(&fakeService{}, fakeCatalog{}, Options{Creds: llm.Credentials{
		OpenAIAPIKey:     "server-openai",
		YandexOAuthToken: "server-oauth",
		YandexFolderID:   "server-folder",
		DocIntelEndpoint: "https://server.cognitiveservices.azure.com",
		DocIntelKey:      "server-secret",
	}}, nil)

	// чужой адрес без ключа не получает серверный ключ
	c := h.credentials(&credsIn{DocIntelEndpoint: "https://attacker.example"})
	assert.Equal(t, "https://attacker.example", c.DocIntelEndpoint)
	assert.Empty(t, c.DocIntelKey)
	assert.True(t, c.For(llm.ProviderDocIntel).Empty())

	// свой folder id не смешивается с серверным OAuth-токеном
	c = h.credentials(&credsIn{YandexFolderID: "client-folder"})
	assert.Empty(t, c.YandexOAuthToken)
	assert.Equal(t, "client-folder", c.YandexFolderID)

	// полный набор клиента заменяет серверный, остальные провайдеры не трогаются
	c = h.credentials(&credsIn{DocIntelEndpoint: "https://client.example", DocIntelKey: " client-key "})
	assert.Equal(t, "https://client.example", c.DocIntelEndpoint)
	assert.Equal(t, "client-key", c.DocIntelKey)
	assert.Equal(t, "server-oauth", c.YandexOAuthToken)
	assert.Equal(t, "server-folder", c.YandexFolderID)
	assert.Equal(t, "server-openai", c.OpenAIAPIKey)
}

func TestClientEndpointNeverReceivesServerKey(t *testing.T) {
	var hits atomic.Int32
	evil := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer evil.Close()

	h := New(&fakeService{}, fakeCatalog{}, Options{Creds: llm.Credentials{
		DocIntelEndpoint: "https://server.cognitiveservices.azure.com",
		DocIntelKey:      "server-secret",
	}}, nil)
	creds := h.credentials(&credsIn{DocIntelEndpoint: evil.URL})

	d := dispatch.New(nil, docintel.New(time.Millisecond, 1))
	msg := llm.Message{Images: []llm.ImageContent{{MimeType: "image/png", Base64: pngB64}}}
	_, err := d.CallModel(context.Background(), "azure-docintel", msg, creds, llm.Options{})
	require.ErrorIs(t, err, llm.ErrMissingCredential)
	assert.Zero(t, hits.Load())
}

func TestTranscribeAggregateDeadline(t *testing.T) {
	agg := &pipeline.AggregateFallbackError{
		Attempts: []pipeline.Attempt{{Model: "mistral-ocr", Kind: pipeline.KindError, Err: errors.New("slow")}},
		Cause:    context.DeadlineExceeded,
	}
	rec := do(t, newTestRouter(&fakeService{err: agg}), http.MethodPost, "/v1/llm/transcribe", `{"images":[{"data":"`+pngB64+`"}]}`, nil)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), `"model":"mistral-ocr"`)

	// таймаут отдельной модели внутри перебора остаётся 502
	agg = &pipeline.AggregateFallbackError{Attempts: []pipeline.Attempt{
		{Model: "gpt-4o", Kind: pipeline.KindError, Err: fmt.Errorf("openai: %w", context.DeadlineExceeded)},
	}}
	rec = do(t, newTestRouter(&fakeService{err: agg}), http.MethodPost, "/v1/llm/transcribe", `{"images":[{"data":"`+pngB64+`"}]}`, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
