package executor

import (
	"context"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/gwauth"
)

// OpenAICompatExecutor targets an operator-configured base URL using the
// same OpenAI path suffixes; it delegates to OpenAIExecutor since the wire
// protocol is identical.
type OpenAICompatExecutor struct {
	*OpenAIExecutor
}

func NewOpenAICompatExecutor(store *config.Store) *OpenAICompatExecutor {
	return &OpenAICompatExecutor{OpenAIExecutor: NewOpenAIExecutor(store)}
}

func (e *OpenAICompatExecutor) Identifier() string          { return "openai-compat" }
func (e *OpenAICompatExecutor) NativeFormat() config.Format { return config.FormatOpenAICompat }
func (e *OpenAICompatExecutor) DefaultBaseURL() string      { return "" }

func (e *OpenAICompatExecutor) Execute(ctx context.Context, auth *gwauth.AuthRecord, req Request) (Response, error) {
	return e.OpenAIExecutor.Execute(ctx, auth, req)
}

func (e *OpenAICompatExecutor) ExecuteStream(ctx context.Context, auth *gwauth.AuthRecord, req Request) (StreamResult, error) {
	return e.OpenAIExecutor.ExecuteStream(ctx, auth, req)
}
