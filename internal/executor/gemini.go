package executor

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/gwauth"
)

// GeminiExecutor speaks the Gemini generateContent/streamGenerateContent
// wire protocol.
type GeminiExecutor struct {
	store *config.Store
}

func NewGeminiExecutor(store *config.Store) *GeminiExecutor { return &GeminiExecutor{store: store} }

func (e *GeminiExecutor) Identifier() string          { return "gemini" }
func (e *GeminiExecutor) NativeFormat() config.Format { return config.FormatGemini }
func (e *GeminiExecutor) DefaultBaseURL() string      { return "https://generativelanguage.googleapis.com" }

func (e *GeminiExecutor) baseURL(auth *gwauth.AuthRecord) string {
	if auth != nil && auth.BaseURL != "" {
		return auth.BaseURL
	}
	return e.DefaultBaseURL()
}

func (e *GeminiExecutor) applyAuthHeaders(r *http.Request, auth *gwauth.AuthRecord) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("x-goog-api-key", auth.APIKey)
}

func (e *GeminiExecutor) Execute(ctx context.Context, auth *gwauth.AuthRecord, req Request) (Response, error) {
	snap := e.store.Get()
	client, err := newHTTPClient(auth, snap.ProxyURL, snap.ConnectTimeout, snap.RequestTimeout, false)
	if err != nil {
		return Response{}, err
	}

	url := strings.TrimSuffix(e.baseURL(auth), "/") + "/v1beta/models/" + req.Model + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Payload))
	if err != nil {
		return Response{}, err
	}
	e.applyAuthHeaders(httpReq, auth)
	mergeHeaders(httpReq, auth, req.Headers)

	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, readUpstreamError(resp)
	}

	data, err := readAll(resp.Body)
	if err != nil {
		return Response{}, classifyTransportError(err)
	}
	return Response{Payload: data, PassthroughVals: extractPassthrough(resp, snap.PassthroughHeaders)}, nil
}

func (e *GeminiExecutor) ExecuteStream(ctx context.Context, auth *gwauth.AuthRecord, req Request) (StreamResult, error) {
	snap := e.store.Get()
	client, err := newHTTPClient(auth, snap.ProxyURL, snap.ConnectTimeout, snap.RequestTimeout, true)
	if err != nil {
		return StreamResult{}, err
	}

	url := strings.TrimSuffix(e.baseURL(auth), "/") + "/v1beta/models/" + req.Model + ":streamGenerateContent?alt=sse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Payload))
	if err != nil {
		return StreamResult{}, err
	}
	e.applyAuthHeaders(httpReq, auth)
	mergeHeaders(httpReq, auth, req.Headers)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(httpReq)
	if err != nil {
		return StreamResult{}, classifyTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return StreamResult{}, readUpstreamError(resp)
	}

	return StreamResult{
		Headers: extractPassthrough(resp, snap.PassthroughHeaders),
		Chunks:  streamUpstreamBody(ctx.Done(), resp),
	}, nil
}
