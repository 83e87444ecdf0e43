package executor

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/gwauth"
)

// OpenAIExecutor speaks the OpenAI chat-completions (and responses) wire
// protocol. OpenAICompatExecutor reuses it against an operator-configured
// base URL.
type OpenAIExecutor struct {
	store *config.Store
}

func NewOpenAIExecutor(store *config.Store) *OpenAIExecutor { return &OpenAIExecutor{store: store} }

func (e *OpenAIExecutor) Identifier() string            { return "openai" }
func (e *OpenAIExecutor) NativeFormat() config.Format   { return config.FormatOpenAI }
func (e *OpenAIExecutor) DefaultBaseURL() string        { return "https://api.openai.com" }

func (e *OpenAIExecutor) baseURL(auth *gwauth.AuthRecord) string {
	if auth != nil && auth.BaseURL != "" {
		return auth.BaseURL
	}
	return e.DefaultBaseURL()
}

func (e *OpenAIExecutor) path(auth *gwauth.AuthRecord, stream bool) string {
	if auth != nil && auth.WireApi == config.WireApiResponses {
		return "/v1/responses"
	}
	return "/v1/chat/completions"
}

func (e *OpenAIExecutor) applyAuthHeaders(r *http.Request, auth *gwauth.AuthRecord) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+auth.APIKey)
}

func (e *OpenAIExecutor) Execute(ctx context.Context, auth *gwauth.AuthRecord, req Request) (Response, error) {
	snap := e.store.Get()
	client, err := newHTTPClient(auth, snap.ProxyURL, snap.ConnectTimeout, snap.RequestTimeout, false)
	if err != nil {
		return Response{}, err
	}

	url := strings.TrimSuffix(e.baseURL(auth), "/") + e.path(auth, false)
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

func (e *OpenAIExecutor) ExecuteStream(ctx context.Context, auth *gwauth.AuthRecord, req Request) (StreamResult, error) {
	snap := e.store.Get()
	client, err := newHTTPClient(auth, snap.ProxyURL, snap.ConnectTimeout, snap.RequestTimeout, true)
	if err != nil {
		return StreamResult{}, err
	}

	url := strings.TrimSuffix(e.baseURL(auth), "/") + e.path(auth, true)
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

	log.Debugf("openai executor: streaming from %s", url)
	return StreamResult{
		Headers: extractPassthrough(resp, snap.PassthroughHeaders),
		Chunks:  streamUpstreamBody(ctx.Done(), resp),
	}, nil
}
