package executor

import "github.com/wollfoo/ai-gateway/internal/config"

// Set is the executor registry keyed by provider format.
type Set struct {
	byFormat map[config.Format]Executor
}

// NewSet builds the full executor set backed by store for live config
// (timeouts, proxy, passthrough headers).
func NewSet(store *config.Store) *Set {
	return &Set{byFormat: map[config.Format]Executor{
		config.FormatOpenAI:       NewOpenAIExecutor(store),
		config.FormatClaude:       NewClaudeExecutor(store),
		config.FormatGemini:       NewGeminiExecutor(store),
		config.FormatOpenAICompat: NewOpenAICompatExecutor(store),
	}}
}

// For returns the executor for format, or nil if none is registered.
func (s *Set) For(format config.Format) Executor {
	return s.byFormat[format]
}

// NewSetFrom builds a Set from an explicit format->Executor map, letting
// callers (notably tests) substitute fakes for individual provider families
// without standing up real HTTP clients.
func NewSetFrom(byFormat map[config.Format]Executor) *Set {
	return &Set{byFormat: byFormat}
}
