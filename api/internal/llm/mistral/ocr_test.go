package mistral

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grader-proxy/api/internal/llm"
)

var cred = llm.ProviderCredential{APIKey: "m"}

func TestCallReturnsPageMarkdown(t *testing.T) {
	var got ocrRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr", r.URL.Path)
		assert.Equal(t, "Bearer m", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"pages":[{"index":0,"markdown":"# Exercice 1\n\nx = 2"},{"index":1,"markdown":"  "}]}`))
	}))
	defer srv.Close()

	msg := llm.Message{Images: []llm.ImageContent{{MimeType: "image/png", Base64: "AAA"}}}
	res, err := New(srv.URL).Call(context.Background(), "mistral-ocr-latest", msg, cred, llm.CallOptions{})
	require.NoError(t, err)
	require.Equal(t, "# Exercice 1\n\nx = 2", res.Text)

	require.Equal(t, "mistral-ocr-latest", got.Model)
	require.Equal(t, document{Type: "image_url", ImageURL: "data:image/png;base64,AAA"}, got.Document)
}

func TestCallPDFUsesDocumentURL(t *testing.T) {
	var got ocrRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"pages":[{"index":0,"markdown":"p1"},{"index":1,"markdown":"p2"}]}`))
	}))
	defer srv.Close()

	msg := llm.Message{Images: []llm.ImageContent{{MimeType: "application/pdf", Base64: "JVBE"}}}
	res, err := New(srv.URL).Call(context.Background(), "mistral-ocr-latest", msg, cred, llm.CallOptions{})
	require.NoError(t, err)
	require.Equal(t, "p1\n\np2", res.Text)
	require.Equal(t, "document_url", got.Document.Type)
}

func TestCallRejectsImageCount(t *testing.T) {
	e := New("http://127.0.0.1:1")
	_, err := e.Call(context.Background(), "m", llm.Message{}, cred, llm.CallOptions{})
	require.ErrorIs(t, err, llm.ErrSingleImage)

	two := llm.Message{Images: make([]llm.ImageContent, 2)}
	_, err = e.Call(context.Background(), "m", two, cred, llm.CallOptions{})
	require.ErrorIs(t, err, llm.ErrSingleImage)
}

func TestCallErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"bad document"}`))
	}))
	defer srv.Close()

	msg := llm.Message{Images: []llm.ImageContent{{MimeType: "image/png", Base64: "AAA"}}}
	_, err := New(srv.URL).Call(context.Background(), "m", msg, cred, llm.CallOptions{})
	var perr *llm.ProviderError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pages":[]}`))
	}))
	defer empty.Close()
	_, err = New(empty.URL).Call(context.Background(), "m", msg, cred, llm.CallOptions{})
	var eerr *llm.EmptyResponseError
	require.True(t, errors.As(err, &eerr))
}
