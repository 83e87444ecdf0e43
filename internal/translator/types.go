// Package translator converts a client request in one wire format to the
// wire format of the chosen upstream provider, and streams responses back
// into the client's format using per-stream accumulated state. Transforms
// operate on loosely-typed JSON (gjson/sjson) rather than strongly-typed
// structs, so they stay resilient to provider field additions.
package translator

import (
	"strings"

	"github.com/wollfoo/ai-gateway/internal/config"
)

// Format is re-exported for call-site convenience.
type Format = config.Format

const (
	OpenAI       = config.FormatOpenAI
	Claude       = config.FormatClaude
	Gemini       = config.FormatGemini
	OpenAICompat = config.FormatOpenAICompat
)

// State accumulates per-stream fields across chunks of one streaming
// response. Callers must zero-initialize it at stream start and pass it by
// pointer into every TranslateStream call for that stream; it must never be
// shared across concurrent streams.
type State struct {
	ResponseID string
	Model      string
	Created    int64

	CurrentToolCallIndex int
	CurrentContentIndex  int

	SentRole bool

	InputTokens int

	// completionText accumulates emitted text deltas so a token count can
	// still be estimated when an upstream stream's final usage is absent.
	completionText strings.Builder

	initialized bool
}

// ensureInit sets the −1 initial indices the spec requires for
// CurrentToolCallIndex/CurrentContentIndex on first use.
func (s *State) ensureInit() {
	if s.initialized {
		return
	}
	s.CurrentToolCallIndex = -1
	s.CurrentContentIndex = -1
	s.initialized = true
}

// pairKey identifies a registered (from, to) translator pair.
type pairKey struct {
	from Format
	to   Format
}

// requestFn translates a raw request payload from one format to another.
type requestFn func(model string, raw []byte, stream bool) ([]byte, error)

// streamFn translates one upstream SSE event into zero or more output
// lines in the target format, using and mutating state.
type streamFn func(model string, originalRequest []byte, eventType, data string, state *State) ([]string, error)

// nonStreamFn translates one complete non-streaming upstream response body
// into the target format's JSON string.
type nonStreamFn func(model string, originalRequest []byte, data []byte) (string, error)

type entry struct {
	request    requestFn
	stream     streamFn
	nonStream  nonStreamFn
}
