// Package executor implements one executor per provider family. Each
// speaks that provider's HTTP wire protocol, knows its default endpoint,
// and exposes a uniform execute/execute-stream operation (spec §4.3).
package executor

import (
	"context"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/gwauth"
)

// Request is the shape handed to an executor by the dispatcher.
type Request struct {
	Model           string
	Payload         []byte
	SourceFormat    config.Format
	Stream          bool
	Headers         map[string]string
	OriginalRequest []byte
}

// Response is a buffered non-streaming result.
type Response struct {
	Payload         []byte
	Headers         map[string]string
	PassthroughVals map[string]string
}

// StreamChunk is one upstream SSE event, or a terminal error.
type StreamChunk struct {
	EventType string
	Data      string
	Err       error
}

// StreamResult is the lazy streaming result: upstream response headers
// plus a channel of chunks. The channel is closed when the upstream body
// is exhausted or the context is canceled.
type StreamResult struct {
	Headers map[string]string
	Chunks  <-chan StreamChunk
}

// Executor is the uniform per-provider-family operation set.
type Executor interface {
	Identifier() string
	NativeFormat() config.Format
	DefaultBaseURL() string
	Execute(ctx context.Context, auth *gwauth.AuthRecord, req Request) (Response, error)
	ExecuteStream(ctx context.Context, auth *gwauth.AuthRecord, req Request) (StreamResult, error)
}
