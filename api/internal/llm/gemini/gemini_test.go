package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"grader-proxy/api/internal/llm"
)

type fakeGenerator struct {
	got  generateRequest
	key  string
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeGenerator) Generate(_ context.Context, apiKey string, req generateRequest) (*genai.GenerateContentResponse, error) {
	f.key = apiKey
	f.got = req
	return f.resp, f.err
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}, FinishReason: genai.FinishReasonStop}},
	}
}

var cred = llm.ProviderCredential{APIKey: "g"}

func TestCallBlobsThenText(t *testing.T) {
	fake := &fakeGenerator{resp: textResponse(genai.Text(`{"total":`), genai.Text(` 3}`))}
	e := &Engine{gen: fake}

	msg := llm.Message{
		SystemText: "sys",
		UserText:   "note",
		Images:     []llm.ImageContent{{MimeType: "image/png", Base64: "AQID"}},
	}
	res, err := e.Call(context.Background(), "gemini-2.5-pro", msg, cred, llm.CallOptions{ForcedJSON: true})
	require.NoError(t, err)
	require.Equal(t, `{"total": 3}`, res.Text)

	require.Equal(t, "g", fake.key)
	require.Equal(t, "gemini-2.5-pro", fake.got.Model)
	require.Equal(t, "sys", fake.got.System)
	require.True(t, fake.got.ForcedJSON)
	require.Len(t, fake.got.Parts, 2)
	assert.Equal(t, genai.Blob{MIMEType: "image/png", Data: []byte{1, 2, 3}}, fake.got.Parts[0])
	assert.Equal(t, genai.Text("note"), fake.got.Parts[1])
}

func TestCallPromptBlocked(t *testing.T) {
	fake := &fakeGenerator{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
	}}
	_, err := (&Engine{gen: fake}).Call(context.Background(), "m", llm.Message{UserText: "x"}, cred, llm.CallOptions{})

	var empty *llm.EmptyResponseError
	require.True(t, errors.As(err, &empty))
	require.Equal(t, "SAFETY", empty.Reason)
	require.True(t, llm.IsContentPolicy(err))
}

func TestCallEmptyCandidateReportsFinishReason(t *testing.T) {
	fake := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonRecitation}},
	}}
	_, err := (&Engine{gen: fake}).Call(context.Background(), "m", llm.Message{UserText: "x"}, cred, llm.CallOptions{})

	var empty *llm.EmptyResponseError
	require.True(t, errors.As(err, &empty))
	require.Equal(t, "RECITATION", empty.Reason)
}

func TestCallErrors(t *testing.T) {
	fake := &fakeGenerator{err: &genai.BlockedError{Candidate: &genai.Candidate{FinishReason: genai.FinishReasonSafety}}}
	_, err := (&Engine{gen: fake}).Call(context.Background(), "m", llm.Message{UserText: "x"}, cred, llm.CallOptions{})
	require.True(t, llm.IsContentPolicy(err))

	fake = &fakeGenerator{err: &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "overloaded"}}
	_, err = (&Engine{gen: fake}).Call(context.Background(), "m", llm.Message{UserText: "x"}, cred, llm.CallOptions{})
	var perr *llm.ProviderError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	require.Equal(t, "overloaded", perr.Body)

	_, err = New().Call(context.Background(), "m", llm.Message{}, llm.ProviderCredential{}, llm.CallOptions{})
	require.ErrorIs(t, err, llm.ErrMissingCredential)
}

func TestCallBadBase64(t *testing.T) {
	e := &Engine{gen: &fakeGenerator{}}
	_, err := e.Call(context.Background(), "m",
		llm.Message{Images: []llm.ImageContent{{MimeType: "image/png", Base64: "%%%"}}}, cred, llm.CallOptions{})
	require.Error(t, err)
}
