package executor

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/gwauth"
)

// ClaudeExecutor speaks the Anthropic Messages API wire protocol.
type ClaudeExecutor struct {
	store *config.Store
}

func NewClaudeExecutor(store *config.Store) *ClaudeExecutor { return &ClaudeExecutor{store: store} }

func (e *ClaudeExecutor) Identifier() string          { return "claude" }
func (e *ClaudeExecutor) NativeFormat() config.Format { return config.FormatClaude }
func (e *ClaudeExecutor) DefaultBaseURL() string      { return "https://api.anthropic.com" }

func (e *ClaudeExecutor) baseURL(auth *gwauth.AuthRecord) string {
	if auth != nil && auth.BaseURL != "" {
		return auth.BaseURL
	}
	return e.DefaultBaseURL()
}

func (e *ClaudeExecutor) applyAuthHeaders(r *http.Request, auth *gwauth.AuthRecord, defaults map[string]string) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("x-api-key", auth.APIKey)
	version := "2023-06-01"
	if v, ok := defaults["anthropic-version"]; ok && v != "" {
		version = v
	}
	r.Header.Set("anthropic-version", version)
}

func (e *ClaudeExecutor) Execute(ctx context.Context, auth *gwauth.AuthRecord, req Request) (Response, error) {
	snap := e.store.Get()
	client, err := newHTTPClient(auth, snap.ProxyURL, snap.ConnectTimeout, snap.RequestTimeout, false)
	if err != nil {
		return Response{}, err
	}

	url := strings.TrimSuffix(e.baseURL(auth), "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Payload))
	if err != nil {
		return Response{}, err
	}
	e.applyAuthHeaders(httpReq, auth, snap.ClaudeHeaderDefaults)
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

func (e *ClaudeExecutor) ExecuteStream(ctx context.Context, auth *gwauth.AuthRecord, req Request) (StreamResult, error) {
	snap := e.store.Get()
	client, err := newHTTPClient(auth, snap.ProxyURL, snap.ConnectTimeout, snap.RequestTimeout, true)
	if err != nil {
		return StreamResult{}, err
	}

	url := strings.TrimSuffix(e.baseURL(auth), "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Payload))
	if err != nil {
		return StreamResult{}, err
	}
	e.applyAuthHeaders(httpReq, auth, snap.ClaudeHeaderDefaults)
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
