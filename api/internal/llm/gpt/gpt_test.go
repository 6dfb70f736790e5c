package gpt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grader-proxy/api/internal/llm"
)

type capturedRequest struct {
	Auth string
	Body map[string]any
}

func newServer(t *testing.T, status int, resp string, got *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if got != nil {
			got.Auth = r.Header.Get("Authorization")
			b, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(b, &got.Body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okResponse = `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  {\"total\": 5}  "},"finish_reason":"stop"}]}`

func TestCallBuildsRequest(t *testing.T) {
	var got capturedRequest
	srv := newServer(t, http.StatusOK, okResponse, &got)
	e := New(llm.ProviderOpenAI, srv.URL)

	msg := llm.Message{
		SystemText: "sys",
		UserText:   "grade this",
		Images: []llm.ImageContent{
			{MimeType: "image/png", Base64: "AAA"},
			{MimeType: "image/jpg", Base64: "BBB"},
		},
	}
	res, err := e.Call(context.Background(), "gpt-4o", msg, llm.ProviderCredential{APIKey: "k"}, llm.CallOptions{ForcedJSON: true})
	require.NoError(t, err)
	require.Equal(t, `{"total": 5}`, res.Text)

	require.Equal(t, "Bearer k", got.Auth)
	require.Equal(t, "gpt-4o", got.Body["model"])
	require.Equal(t, map[string]any{"type": "json_object"}, got.Body["response_format"])

	messages := got.Body["messages"].([]any)
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].(map[string]any)["role"])

	content := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, content, 3)
	assert.Equal(t, "text", content[0].(map[string]any)["type"])
	img1 := content[1].(map[string]any)["image_url"].(map[string]any)
	img2 := content[2].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,AAA", img1["url"])
	assert.Equal(t, "data:image/jpeg;base64,BBB", img2["url"])
}

func TestCallPlainTextWithoutForcedJSON(t *testing.T) {
	var got capturedRequest
	srv := newServer(t, http.StatusOK, okResponse, &got)

	_, err := New(llm.ProviderDeepSeek, srv.URL).Call(context.Background(), "deepseek-chat",
		llm.Message{UserText: "hi"}, llm.ProviderCredential{APIKey: "k"}, llm.CallOptions{})
	require.NoError(t, err)
	_, hasFormat := got.Body["response_format"]
	require.False(t, hasFormat)

	messages := got.Body["messages"].([]any)
	require.Len(t, messages, 1)
	require.Equal(t, "hi", messages[0].(map[string]any)["content"])
}

func TestCallProviderError(t *testing.T) {
	srv := newServer(t, http.StatusBadRequest,
		`{"error":{"message":"Your request was rejected","type":"invalid_request_error","code":"content_policy_violation"}}`, nil)

	_, err := New(llm.ProviderOpenAI, srv.URL).Call(context.Background(), "gpt-4o",
		llm.Message{UserText: "x"}, llm.ProviderCredential{APIKey: "k"}, llm.CallOptions{})

	var perr *llm.ProviderError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, http.StatusBadRequest, perr.StatusCode)
	require.Contains(t, perr.Body, "content_policy_violation")
	require.True(t, llm.IsContentPolicy(err))
}

func TestCallEmptyContent(t *testing.T) {
	srv := newServer(t, http.StatusOK,
		`{"choices":[{"index":0,"message":{"role":"assistant","content":""},"finish_reason":"content_filter"}]}`, nil)

	_, err := New(llm.ProviderOpenAI, srv.URL).Call(context.Background(), "gpt-4o",
		llm.Message{UserText: "x"}, llm.ProviderCredential{APIKey: "k"}, llm.CallOptions{})

	var empty *llm.EmptyResponseError
	require.True(t, errors.As(err, &empty))
	require.Equal(t, "content_filter", empty.Reason)
	require.True(t, llm.IsContentPolicy(err))
}

func TestCallMissingKey(t *testing.T) {
	_, err := New(llm.ProviderOpenAI, "http://127.0.0.1:1").Call(context.Background(), "gpt-4o",
		llm.Message{UserText: "x"}, llm.ProviderCredential{}, llm.CallOptions{})
	require.ErrorIs(t, err, llm.ErrMissingCredential)
}
