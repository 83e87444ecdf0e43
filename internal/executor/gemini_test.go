package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiExecutorExecuteSendsAPIKeyHeaderAndModelInPath(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := NewGeminiExecutor(testStore(nil, nil))
	resp, err := e.Execute(context.Background(), authFor(srv.URL), Request{Model: "gemini-1.5-pro", Payload: []byte(`{}`)})
	require.NoError(t, err)

	assert.Equal(t, "sk-test", gotKey)
	assert.True(t, strings.HasSuffix(gotPath, "/v1beta/models/gemini-1.5-pro:generateContent"))
	assert.JSONEq(t, `{"ok":true}`, string(resp.Payload))
}

func TestGeminiExecutorExecuteStreamUsesStreamGenerateContentWithSSEParam(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"a\":1}\n\n"))
	}))
	defer srv.Close()

	e := NewGeminiExecutor(testStore(nil, nil))
	result, err := e.ExecuteStream(context.Background(), authFor(srv.URL), Request{Model: "gemini-1.5-flash", Payload: []byte(`{}`)})
	require.NoError(t, err)
	for range result.Chunks {
	}
	assert.Contains(t, gotURL, "streamGenerateContent")
	assert.Contains(t, gotURL, "alt=sse")
}
