package translator

import (
	"fmt"

	"github.com/tidwall/sjson"
)

// Registry is a value-keyed table from (source-format, target-format) to a
// request transform and a response transform pair (streaming and
// non-streaming). Dispatch is one indirect call — no dynamic dispatch
// beyond the map lookup, per spec §9.
type Registry struct {
	entries map[pairKey]entry
}

// NewRegistry builds a Registry with every pair this gateway supports
// registered: openai<->claude and openai<->gemini, request direction keyed
// by (from, to); the response transform under the same key handles the
// reverse direction (to upstream's format back to the request's source).
// openai-compat needs no entry of its own: wireEquivalent collapses it onto
// openai before any lookup, so it rides the openai<->* entries and the
// same-format passthrough path for free.
func NewRegistry() *Registry {
	reg := &Registry{entries: map[pairKey]entry{}}
	reg.register(OpenAI, Claude, openaiToClaudeRequest, claudeToOpenAIStream, claudeToOpenAINonStream)
	reg.register(OpenAI, Gemini, openaiToGeminiRequest, geminiToOpenAIStream, geminiToOpenAINonStream)
	return reg
}

func (reg *Registry) register(from, to Format, req requestFn, stream streamFn, nonStream nonStreamFn) {
	reg.entries[pairKey{from, to}] = entry{request: req, stream: stream, nonStream: nonStream}
}

// wireEquivalent collapses a format to the one whose JSON wire shape it
// shares, so lookups treat them as the same pair. openai-compat targets
// speak the identical OpenAI chat-completions wire protocol (see
// executor.OpenAICompatExecutor, which just delegates to OpenAIExecutor);
// only the transport endpoint differs, not the payload shape.
func wireEquivalent(f Format) Format {
	if f == OpenAICompat {
		return OpenAI
	}
	return f
}

// TranslateRequest converts raw from the client's format into target's
// wire format. When from == to (after collapsing wire-equivalent formats),
// only the model field is rewritten (alias resolution); no registered
// transform is needed for same-format pairs.
func (reg *Registry) TranslateRequest(from, to Format, model string, raw []byte, stream bool) ([]byte, error) {
	if wireEquivalent(from) == wireEquivalent(to) {
		return sjson.SetBytes(raw, "model", model)
	}
	e, ok := reg.entries[pairKey{wireEquivalent(from), wireEquivalent(to)}]
	if !ok || e.request == nil {
		return nil, fmt.Errorf("translator: no request transform registered for %s -> %s", from, to)
	}
	return e.request(model, raw, stream)
}

// TranslateStream converts one upstream SSE event, in from's wire format
// (the upstream/target format), into zero or more output lines in to's
// format (the client's source format). The transform function is the one
// registered for the request pair (to, from) — requests and responses
// travel in opposite directions through the same registered entry.
// Passthrough rules: same (or wire-equivalent) format, or a "[DONE]"
// sentinel, are forwarded untouched.
func (reg *Registry) TranslateStream(from, to Format, model string, originalRequest []byte, eventType, data string, state *State) ([]string, error) {
	if wireEquivalent(from) == wireEquivalent(to) || data == "[DONE]" {
		return passthroughLines(eventType, data), nil
	}
	e, ok := reg.entries[pairKey{wireEquivalent(to), wireEquivalent(from)}]
	if !ok || e.stream == nil {
		return nil, fmt.Errorf("translator: no stream response transform registered for %s -> %s", from, to)
	}
	state.ensureInit()
	return e.stream(model, originalRequest, eventType, data, state)
}

// TranslateNonStream converts one complete non-streaming upstream response
// body, in from's wire format, into to's format. See TranslateStream for
// the direction convention.
func (reg *Registry) TranslateNonStream(from, to Format, model string, originalRequest []byte, data []byte) (string, error) {
	if wireEquivalent(from) == wireEquivalent(to) {
		return string(data), nil
	}
	e, ok := reg.entries[pairKey{wireEquivalent(to), wireEquivalent(from)}]
	if !ok || e.nonStream == nil {
		return "", fmt.Errorf("translator: no non-stream response transform registered for %s -> %s", from, to)
	}
	return e.nonStream(model, originalRequest, data)
}

// HasResponseTranslator reports whether a registered pair exists to
// translate a from-format response back into to's format.
func (reg *Registry) HasResponseTranslator(from, to Format) bool {
	if wireEquivalent(from) == wireEquivalent(to) {
		return true
	}
	e, ok := reg.entries[pairKey{wireEquivalent(to), wireEquivalent(from)}]
	return ok && e.nonStream != nil
}

func passthroughLines(eventType, data string) []string {
	if eventType != "" {
		return []string{"event: " + eventType, "data: " + data}
	}
	return []string{"data: " + data}
}
