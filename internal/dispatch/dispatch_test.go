package dispatch

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/executor"
	"github.com/wollfoo/ai-gateway/internal/gwauth"
	"github.com/wollfoo/ai-gateway/internal/gwerrors"
	"github.com/wollfoo/ai-gateway/internal/sse"
)

// fakeExecutor is a scriptable stand-in for a real provider executor: each
// call pops the next prepared response or error off its queue.
type fakeExecutor struct {
	format     config.Format
	responses  []executor.Response
	errs       []error
	streams    []executor.StreamResult
	streamErrs []error
	calls      int
}

func (f *fakeExecutor) Identifier() string          { return string(f.format) }
func (f *fakeExecutor) NativeFormat() config.Format { return f.format }
func (f *fakeExecutor) DefaultBaseURL() string      { return "https://example.invalid" }

func (f *fakeExecutor) Execute(ctx context.Context, auth *gwauth.AuthRecord, req executor.Request) (executor.Response, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return executor.Response{}, err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return executor.Response{}, nil
}

func (f *fakeExecutor) ExecuteStream(ctx context.Context, auth *gwauth.AuthRecord, req executor.Request) (executor.StreamResult, error) {
	i := f.calls
	f.calls++
	if i < len(f.streamErrs) && f.streamErrs[i] != nil {
		return executor.StreamResult{}, f.streamErrs[i]
	}
	if i < len(f.streams) {
		return f.streams[i], nil
	}
	return executor.StreamResult{}, nil
}

func snapshotWithOpenAI(retries int) *config.Snapshot {
	return &config.Snapshot{
		Routing: config.RoutingConfig{Strategy: config.RoutingRoundRobin},
		Retry:   config.RetryConfig{MaxRetries: retries, MaxBackoffSecs: 0},
		OpenAIAPIKey: []config.ProviderKeyEntry{
			{APIKey: "key-a", Name: "primary"},
		},
	}
}

// snapshotWithTwoOpenAICredentials sets up two distinct credentials so the
// router's "tried" exclusion lets a retry round reach a second one — a
// single credential is excluded from every later Pick once attempted once.
func snapshotWithTwoOpenAICredentials(retries int) *config.Snapshot {
	return &config.Snapshot{
		Routing: config.RoutingConfig{Strategy: config.RoutingRoundRobin},
		Retry:   config.RetryConfig{MaxRetries: retries, MaxBackoffSecs: 0},
		OpenAIAPIKey: []config.ProviderKeyEntry{
			{APIKey: "key-a", Name: "primary"},
			{APIKey: "key-b", Name: "secondary"},
		},
	}
}

func newDispatcher(snap *config.Snapshot, execs map[config.Format]executor.Executor) *Dispatcher {
	store := config.NewStore(snap)
	router := gwauth.NewRouter(snap)
	return New(store, router, executor.NewSetFrom(execs))
}

func TestDispatchNonStreamReturnsTranslatedBodyOnSuccess(t *testing.T) {
	exec := &fakeExecutor{format: config.FormatOpenAI, responses: []executor.Response{
		{Payload: []byte(`{"ok":true}`), PassthroughVals: map[string]string{"x-req-id": "1"}},
	}}
	d := newDispatcher(snapshotWithOpenAI(1), map[config.Format]executor.Executor{config.FormatOpenAI: exec})

	desc := Descriptor{SourceFormat: config.FormatOpenAI, Model: "gpt-4o", Raw: []byte(`{"messages":[]}`)}
	result, err := d.DispatchNonStream(context.Background(), desc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, result.Body)
	assert.Equal(t, "openai", result.DebugProvider)
	assert.Equal(t, "1", result.Passthrough["x-req-id"])
}

func TestDispatchNonStreamRoutesToOpenAICompatCredential(t *testing.T) {
	exec := &fakeExecutor{format: config.FormatOpenAICompat, responses: []executor.Response{
		{Payload: []byte(`{"ok":true}`)},
	}}
	snap := &config.Snapshot{
		Routing: config.RoutingConfig{Strategy: config.RoutingRoundRobin},
		OpenAICompatibility: []config.ProviderKeyEntry{
			{APIKey: "local-key", Name: "local-llm", BaseURL: "http://127.0.0.1:8000"},
		},
	}
	d := newDispatcher(snap, map[config.Format]executor.Executor{config.FormatOpenAICompat: exec})

	desc := Descriptor{
		SourceFormat:   config.FormatOpenAI,
		Model:          "local-model",
		Raw:            []byte(`{"messages":[]}`),
		AllowedFormats: []config.Format{config.FormatOpenAI, config.FormatOpenAICompat},
	}
	result, err := d.DispatchNonStream(context.Background(), desc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, result.Body)
	assert.Equal(t, "openai-compat", result.DebugProvider)
	assert.Equal(t, 1, exec.calls)
}

func TestDispatchNonStreamRetriesThenSucceeds(t *testing.T) {
	exec := &fakeExecutor{
		format: config.FormatOpenAI,
		errs:   []error{gwerrors.New(gwerrors.KindUpstream, "boom")},
		responses: []executor.Response{
			{}, // slot 0 unused (errored)
			{Payload: []byte(`{"ok":true}`)},
		},
	}
	snap := snapshotWithTwoOpenAICredentials(1)
	d := newDispatcher(snap, map[config.Format]executor.Executor{config.FormatOpenAI: exec})

	desc := Descriptor{SourceFormat: config.FormatOpenAI, Model: "gpt-4o", Raw: []byte(`{"messages":[]}`)}
	result, err := d.DispatchNonStream(context.Background(), desc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, result.Body)
	assert.Equal(t, 2, exec.calls)
}

func TestDispatchNonStreamReturnsErrorWhenNoCredentials(t *testing.T) {
	d := newDispatcher(&config.Snapshot{Routing: config.RoutingConfig{Strategy: config.RoutingRoundRobin}}, nil)
	desc := Descriptor{SourceFormat: config.FormatOpenAI, Model: "gpt-4o", Raw: []byte(`{"messages":[]}`)}
	_, err := d.DispatchNonStream(context.Background(), desc)
	require.Error(t, err)
	gerr, ok := err.(*gwerrors.Error)
	require.True(t, ok)
	assert.Equal(t, gwerrors.KindNoCredentials, gerr.Kind)
}

func TestDispatchNonStreamFiltersByAllowedFormats(t *testing.T) {
	exec := &fakeExecutor{format: config.FormatOpenAI}
	d := newDispatcher(snapshotWithOpenAI(0), map[config.Format]executor.Executor{config.FormatOpenAI: exec})

	desc := Descriptor{
		SourceFormat:   config.FormatOpenAI,
		Model:          "gpt-4o",
		Raw:            []byte(`{"messages":[]}`),
		AllowedFormats: []config.Format{config.FormatClaude},
	}
	_, err := d.DispatchNonStream(context.Background(), desc)
	require.Error(t, err)
	assert.Equal(t, 0, exec.calls)
}

func TestDispatchNonStreamModelChainFallsBackToSecondModel(t *testing.T) {
	snap := snapshotWithOpenAI(0)
	exec := &fakeExecutor{format: config.FormatOpenAI, errs: []error{
		gwerrors.New(gwerrors.KindUpstream, "first model unavailable"),
	}, responses: []executor.Response{
		{},
		{Payload: []byte(`{"ok":true}`)},
	}}
	d := newDispatcher(snap, map[config.Format]executor.Executor{config.FormatOpenAI: exec})

	desc := Descriptor{SourceFormat: config.FormatOpenAI, Models: []string{"gpt-4o", "gpt-3.5"}, Raw: []byte(`{"messages":[]}`)}
	result, err := d.DispatchNonStream(context.Background(), desc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, result.Body)
}

func TestDispatchStreamWritesTranslatedLinesAndInvokesDebugOnce(t *testing.T) {
	chunks := make(chan executor.StreamChunk, 2)
	chunks <- executor.StreamChunk{EventType: "", Data: `{"hello":"world"}`}
	close(chunks)

	exec := &fakeExecutor{format: config.FormatOpenAI, streams: []executor.StreamResult{
		{Chunks: chunks},
	}}
	d := newDispatcher(snapshotWithOpenAI(0), map[config.Format]executor.Executor{config.FormatOpenAI: exec})

	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec, 15)

	var debugCalls int
	desc := Descriptor{SourceFormat: config.FormatOpenAI, Model: "gpt-4o", Raw: []byte(`{"messages":[]}`), Stream: true}
	err := d.DispatchStream(context.Background(), desc, w, func(info StreamDebugInfo) {
		debugCalls++
		assert.Equal(t, "openai", info.Provider)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, debugCalls)
	assert.Contains(t, rec.Body.String(), `"hello":"world"`)
}

func TestDispatchStreamRetriesBootstrapFailureBeforeCommit(t *testing.T) {
	chunks := make(chan executor.StreamChunk, 1)
	chunks <- executor.StreamChunk{EventType: "", Data: `{"a":1}`}
	close(chunks)

	exec := &fakeExecutor{
		format:     config.FormatOpenAI,
		streamErrs: []error{gwerrors.New(gwerrors.KindUpstream, "bootstrap failed")},
		streams:    []executor.StreamResult{{}, {Chunks: chunks}},
	}
	snap := snapshotWithTwoOpenAICredentials(1)
	snap.Streaming.BootstrapRetries = 2
	d := newDispatcher(snap, map[config.Format]executor.Executor{config.FormatOpenAI: exec})

	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec, 15)
	desc := Descriptor{SourceFormat: config.FormatOpenAI, Model: "gpt-4o", Raw: []byte(`{"messages":[]}`), Stream: true}

	err := d.DispatchStream(context.Background(), desc, w, nil)
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), `"a":1`)
}
