package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestOpenAIToGeminiRequestSplitsSystemFromContents(t *testing.T) {
	raw := []byte(`{
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": "hi there"}
		],
		"temperature": 0.3,
		"max_tokens": 200
	}`)

	out, err := openaiToGeminiRequest("gemini-1.5-pro", raw, false)
	require.NoError(t, err)

	assert.Equal(t, "be terse", gjson.GetBytes(out, "systemInstruction.parts.0.text").String())
	assert.Equal(t, "user", gjson.GetBytes(out, "contents.0.role").String())
	assert.Equal(t, "model", gjson.GetBytes(out, "contents.1.role").String())
	assert.Equal(t, 0.3, gjson.GetBytes(out, "generationConfig.temperature").Float())
	assert.Equal(t, int64(200), gjson.GetBytes(out, "generationConfig.maxOutputTokens").Int())
}

func TestOpenAIToGeminiRequestMergesConsecutiveSameRoleMessages(t *testing.T) {
	raw := []byte(`{
		"messages": [
			{"role": "user", "content": "first"},
			{"role": "user", "content": "second"}
		]
	}`)
	out, err := openaiToGeminiRequest("gemini-1.5-pro", raw, false)
	require.NoError(t, err)

	require.Equal(t, 1, int(gjson.GetBytes(out, "contents.#").Int()))
	assert.Equal(t, 2, int(gjson.GetBytes(out, "contents.0.parts.#").Int()))
}

func TestOpenAIToGeminiRequestMapsInlineImageData(t *testing.T) {
	raw := []byte(`{
		"messages": [
			{"role": "user", "content": [
				{"type": "text", "text": "what is this"},
				{"type": "image_url", "image_url": {"url": "data:image/png;base64,QUJD"}}
			]}
		]
	}`)
	out, err := openaiToGeminiRequest("gemini-1.5-pro", raw, false)
	require.NoError(t, err)

	assert.Equal(t, "image/png", gjson.GetBytes(out, "contents.0.parts.1.inlineData.mimeType").String())
	assert.Equal(t, "QUJD", gjson.GetBytes(out, "contents.0.parts.1.inlineData.data").String())
}

func TestOpenAIToGeminiRequestMapsFunctionDeclarations(t *testing.T) {
	raw := []byte(`{
		"messages": [],
		"tools": [{"type": "function", "function": {"name": "lookup", "description": "d", "parameters": {"type":"object"}}}]
	}`)
	out, err := openaiToGeminiRequest("gemini-1.5-pro", raw, false)
	require.NoError(t, err)
	assert.Equal(t, "lookup", gjson.GetBytes(out, "tools.0.functionDeclarations.0.name").String())
}

func TestOpenAIToGeminiRequestMapsToolResultMessage(t *testing.T) {
	raw := []byte(`{
		"messages": [
			{"role": "tool", "name": "lookup", "content": "{\"result\":\"ok\"}"}
		]
	}`)
	out, err := openaiToGeminiRequest("gemini-1.5-pro", raw, false)
	require.NoError(t, err)
	assert.Equal(t, "lookup", gjson.GetBytes(out, "contents.0.parts.0.functionResponse.name").String())
}

func TestGeminiToOpenAINonStreamMapsTextAndUsage(t *testing.T) {
	data := []byte(`{
		"modelVersion": "gemini-1.5-pro",
		"candidates": [{"content": {"parts": [{"text": "hi there"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 3}
	}`)
	out, err := geminiToOpenAINonStream("gemini-1.5-pro", []byte(`{}`), data)
	require.NoError(t, err)

	assert.Equal(t, "hi there", gjson.Get(out, "choices.0.message.content").String())
	assert.Equal(t, "stop", gjson.Get(out, "choices.0.finish_reason").String())
	assert.Equal(t, int64(8), gjson.Get(out, "usage.prompt_tokens").Int())
	assert.Equal(t, int64(3), gjson.Get(out, "usage.completion_tokens").Int())
}

func TestGeminiToOpenAINonStreamFallsBackToEstimatedTokensWhenUsageMissing(t *testing.T) {
	data := []byte(`{
		"candidates": [{"content": {"parts": [{"text": "a short answer"}]}, "finishReason": "STOP"}]
	}`)
	originalRequest := []byte(`{"messages":[{"role":"user","content":"a longer question about gemini translation"}]}`)

	out, err := geminiToOpenAINonStream("gemini-1.5-pro", originalRequest, data)
	require.NoError(t, err)

	prompt := gjson.Get(out, "usage.prompt_tokens").Int()
	completion := gjson.Get(out, "usage.completion_tokens").Int()
	total := gjson.Get(out, "usage.total_tokens").Int()
	assert.Equal(t, prompt+completion, total)
}

func TestGeminiToOpenAINonStreamMapsFunctionCall(t *testing.T) {
	data := []byte(`{
		"candidates": [{"content": {"parts": [{"functionCall": {"name": "lookup", "args": {"q": "x"}}}]}, "finishReason": "STOP"}]
	}`)
	out, err := geminiToOpenAINonStream("gemini-1.5-pro", []byte(`{}`), data)
	require.NoError(t, err)
	assert.Equal(t, "lookup", gjson.Get(out, "choices.0.message.tool_calls.0.function.name").String())
}

func TestGeminiToOpenAINonStreamMapsUnknownFinishReasonToStop(t *testing.T) {
	data := []byte(`{"candidates": [{"content": {"parts": [{"text": "x"}]}, "finishReason": "OTHER"}]}`)
	out, err := geminiToOpenAINonStream("gemini-1.5-pro", []byte(`{}`), data)
	require.NoError(t, err)
	assert.Equal(t, "stop", gjson.Get(out, "choices.0.finish_reason").String())
}

func TestGeminiToOpenAIStreamEmitsRoleOnFirstChunk(t *testing.T) {
	state := &State{}
	lines, err := geminiToOpenAIStream("gemini-1.5-pro", []byte(`{}`), "", `{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`, state)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"role":"assistant"`)
	assert.True(t, state.SentRole)
	assert.Equal(t, "hi", state.completionText.String())
}

func TestGeminiToOpenAIStreamEmitsFinishAndUsageFallback(t *testing.T) {
	state := &State{}
	_, err := geminiToOpenAIStream("gemini-1.5-pro", []byte(`{}`), "", `{"candidates":[{"content":{"parts":[{"text":"answer text"}]}}]}`, state)
	require.NoError(t, err)

	lines, err := geminiToOpenAIStream("gemini-1.5-pro", []byte(`{"messages":[{"role":"user","content":"a question"}]}`), "",
		`{"candidates":[{"content":{"parts":[]},"finishReason":"STOP"}]}`, state)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "data: [DONE]", lines[1])
	assert.Contains(t, lines[0], `"finish_reason":"stop"`)
}

func TestGeminiToOpenAIStreamMapsFunctionCallDelta(t *testing.T) {
	state := &State{}
	lines, err := geminiToOpenAIStream("gemini-1.5-pro", []byte(`{}`), "",
		`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"lookup","args":{"q":"x"}}}]}}]}`, state)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"name":"lookup"`)
}
