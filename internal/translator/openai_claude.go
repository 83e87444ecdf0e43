package translator

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// openaiToClaudeRequest implements spec §4.4.1.
func openaiToClaudeRequest(model string, raw []byte, stream bool) ([]byte, error) {
	root := gjson.ParseBytes(raw)

	out := map[string]interface{}{
		"model": model,
	}

	var systemParts []string
	var claudeMessages []map[string]interface{}

	messages := root.Get("messages")
	messages.ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		switch role {
		case "system":
			if text := textContentOf(msg.Get("content")); text != "" {
				systemParts = append(systemParts, text)
			}
		case "user":
			claudeMessages = append(claudeMessages, map[string]interface{}{
				"role":    "user",
				"content": convertUserContent(msg.Get("content")),
			})
		case "assistant":
			claudeMessages = append(claudeMessages, convertAssistantMessage(msg))
		case "tool":
			toolResult := map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": msg.Get("tool_call_id").String(),
				"content":     msg.Get("content").String(),
			}
			if n := len(claudeMessages); n > 0 && claudeMessages[n-1]["role"] == "user" {
				if content, ok := claudeMessages[n-1]["content"].([]interface{}); ok {
					claudeMessages[n-1]["content"] = append(content, toolResult)
					return true
				}
			}
			claudeMessages = append(claudeMessages, map[string]interface{}{
				"role":    "user",
				"content": []interface{}{toolResult},
			})
		}
		return true
	})

	if len(systemParts) > 0 {
		out["system"] = strings.Join(systemParts, "\n\n")
	}
	out["messages"] = claudeMessages

	if tools := root.Get("tools"); tools.IsArray() {
		var claudeTools []map[string]interface{}
		tools.ForEach(func(_, t gjson.Result) bool {
			if t.Get("type").String() != "function" {
				return true
			}
			fn := t.Get("function")
			var schema interface{}
			if raw := fn.Get("parameters").Raw; raw != "" {
				json.Unmarshal([]byte(raw), &schema)
			}
			claudeTools = append(claudeTools, map[string]interface{}{
				"name":         fn.Get("name").String(),
				"description":  fn.Get("description").String(),
				"input_schema": schema,
			})
			return true
		})
		out["tools"] = claudeTools
	}

	if tc := root.Get("tool_choice"); tc.Exists() {
		out["tool_choice"] = convertToolChoice(tc)
	}

	maxTokens := 8192
	if v := root.Get("max_tokens"); v.Exists() {
		maxTokens = int(v.Int())
	} else if v := root.Get("max_completion_tokens"); v.Exists() {
		maxTokens = int(v.Int())
	}
	out["max_tokens"] = maxTokens

	if v := root.Get("temperature"); v.Exists() {
		out["temperature"] = v.Float()
	}
	if v := root.Get("top_p"); v.Exists() {
		out["top_p"] = v.Float()
	}
	if v := root.Get("stop"); v.Exists() {
		if v.IsArray() {
			var stops []string
			v.ForEach(func(_, s gjson.Result) bool {
				stops = append(stops, s.String())
				return true
			})
			out["stop_sequences"] = stops
		} else {
			out["stop_sequences"] = []string{v.String()}
		}
	}
	if v := root.Get("thinking"); v.Exists() {
		var thinking interface{}
		json.Unmarshal([]byte(v.Raw), &thinking)
		out["thinking"] = thinking
	}

	if stream {
		out["stream"] = true
	}

	return json.Marshal(out)
}

func textContentOf(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		var parts []string
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				parts = append(parts, part.Get("text").String())
			}
			return true
		})
		return strings.Join(parts, "")
	}
	return ""
}

// convertUserContent maps plain text or multipart OpenAI user content into
// Claude content blocks, translating image_url parts to image blocks.
func convertUserContent(content gjson.Result) []interface{} {
	if content.Type == gjson.String {
		return []interface{}{map[string]interface{}{"type": "text", "text": content.String()}}
	}

	var blocks []interface{}
	content.ForEach(func(_, part gjson.Result) bool {
		switch part.Get("type").String() {
		case "text":
			blocks = append(blocks, map[string]interface{}{"type": "text", "text": part.Get("text").String()})
		case "image_url":
			url := part.Get("image_url.url").String()
			blocks = append(blocks, map[string]interface{}{"type": "image", "source": imageSourceFromURL(url)})
		}
		return true
	})
	return blocks
}

func imageSourceFromURL(url string) map[string]interface{} {
	if strings.HasPrefix(url, "data:") {
		// data:<media_type>;base64,<data>
		rest := strings.TrimPrefix(url, "data:")
		parts := strings.SplitN(rest, ";base64,", 2)
		if len(parts) == 2 {
			return map[string]interface{}{"type": "base64", "media_type": parts[0], "data": parts[1]}
		}
	}
	return map[string]interface{}{"type": "url", "url": url}
}

// convertAssistantMessage maps an OpenAI assistant message, including any
// tool_calls, into a Claude assistant message with tool_use blocks.
func convertAssistantMessage(msg gjson.Result) map[string]interface{} {
	var blocks []interface{}
	if text := textContentOf(msg.Get("content")); text != "" {
		blocks = append(blocks, map[string]interface{}{"type": "text", "text": text})
	}
	msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		var input interface{}
		args := tc.Get("function.arguments").String()
		if args != "" {
			json.Unmarshal([]byte(args), &input)
		}
		blocks = append(blocks, map[string]interface{}{
			"type":  "tool_use",
			"id":    tc.Get("id").String(),
			"name":  tc.Get("function.name").String(),
			"input": input,
		})
		return true
	})
	return map[string]interface{}{"role": "assistant", "content": blocks}
}

func convertToolChoice(tc gjson.Result) interface{} {
	if tc.Type == gjson.String {
		switch tc.String() {
		case "none":
			return map[string]interface{}{"type": "none"}
		case "required":
			return map[string]interface{}{"type": "any"}
		default:
			return map[string]interface{}{"type": "auto"}
		}
	}
	if name := tc.Get("function.name").String(); name != "" {
		return map[string]interface{}{"type": "tool", "name": name}
	}
	return map[string]interface{}{"type": "auto"}
}

// --- claude -> openai responses (§4.4.2) ---

var claudeStopReasonToOpenAI = map[string]string{
	"end_turn":      "stop",
	"stop_sequence": "stop",
	"max_tokens":    "length",
	"tool_use":      "tool_calls",
}

func claudeToOpenAINonStream(model string, originalRequest []byte, data []byte) (string, error) {
	root := gjson.ParseBytes(data)

	var content strings.Builder
	var toolCalls []map[string]interface{}
	root.Get("content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			content.WriteString(block.Get("text").String())
		case "tool_use":
			args, _ := json.Marshal(jsonOrNil(block.Get("input").Raw))
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   block.Get("id").String(),
				"type": "function",
				"function": map[string]interface{}{
					"name":      block.Get("name").String(),
					"arguments": string(args),
				},
			})
		}
		return true
	})

	message := map[string]interface{}{"role": "assistant", "content": content.String()}
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
	}

	finish := claudeStopReasonToOpenAI[root.Get("stop_reason").String()]
	if finish == "" {
		finish = "stop"
	}

	out := map[string]interface{}{
		"id":      "chatcmpl-" + root.Get("id").String(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []interface{}{
			map[string]interface{}{
				"index":         0,
				"message":       message,
				"finish_reason": finish,
			},
		},
	}
	in := root.Get("usage.input_tokens").Int()
	outTok := root.Get("usage.output_tokens").Int()
	if !root.Get("usage").Exists() || (in == 0 && outTok == 0) {
		in = int64(estimateInputTokens(originalRequest))
		outTok = int64(estimateTokens(content.String()))
	}
	out["usage"] = map[string]interface{}{
		"prompt_tokens":     in,
		"completion_tokens": outTok,
		"total_tokens":      in + outTok,
	}

	b, err := json.Marshal(out)
	return string(b), err
}

func jsonOrNil(raw string) interface{} {
	if raw == "" {
		return nil
	}
	var v interface{}
	json.Unmarshal([]byte(raw), &v)
	return v
}

func claudeToOpenAIStream(model string, originalRequest []byte, eventType, data string, state *State) ([]string, error) {
	root := gjson.ParseBytes([]byte(data))
	return claudeStreamEvent(model, originalRequest, eventType, root, state)
}

func claudeStreamEvent(model string, originalRequest []byte, eventType string, root gjson.Result, state *State) ([]string, error) {
	switch eventType {
	case "message_start":
		msg := root.Get("message")
		state.ResponseID = msg.Get("id").String()
		state.Model = model
		state.Created = time.Now().Unix()
		state.InputTokens = int(msg.Get("usage.input_tokens").Int())
		if state.InputTokens == 0 {
			state.InputTokens = estimateInputTokens(originalRequest)
		}
		state.SentRole = true
		return []string{"data: " + openaiChunk(state, map[string]interface{}{"role": "assistant", "content": ""}, nil)}, nil

	case "content_block_start":
		block := root.Get("content_block")
		if block.Get("type").String() != "tool_use" {
			return nil, nil
		}
		state.CurrentToolCallIndex++
		idx := state.CurrentToolCallIndex
		delta := map[string]interface{}{
			"tool_calls": []interface{}{
				map[string]interface{}{
					"index": idx,
					"id":    block.Get("id").String(),
					"type":  "function",
					"function": map[string]interface{}{
						"name":      block.Get("name").String(),
						"arguments": "",
					},
				},
			},
		}
		return []string{"data: " + openaiChunk(state, delta, nil)}, nil

	case "content_block_delta":
		delta := root.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			text := delta.Get("text").String()
			state.completionText.WriteString(text)
			return []string{"data: " + openaiChunk(state, map[string]interface{}{"content": text}, nil)}, nil
		case "input_json_delta":
			d := map[string]interface{}{
				"tool_calls": []interface{}{
					map[string]interface{}{
						"index":    state.CurrentToolCallIndex,
						"function": map[string]interface{}{"arguments": delta.Get("partial_json").String()},
					},
				},
			}
			return []string{"data: " + openaiChunk(state, d, nil)}, nil
		}
		return nil, nil

	case "message_delta":
		reason := claudeStopReasonToOpenAI[root.Get("delta.stop_reason").String()]
		if reason == "" {
			reason = "stop"
		}
		outTok := int(root.Get("usage.output_tokens").Int())
		if outTok == 0 {
			outTok = estimateTokens(state.completionText.String())
		}
		usage := map[string]interface{}{
			"prompt_tokens":     state.InputTokens,
			"completion_tokens": outTok,
			"total_tokens":      state.InputTokens + outTok,
		}
		return []string{"data: " + openaiChunk(state, nil, &finishInfo{reason: reason, usage: usage})}, nil

	case "message_stop":
		return []string{"data: [DONE]"}, nil

	case "ping", "content_block_stop":
		return nil, nil

	default:
		return nil, nil
	}
}

type finishInfo struct {
	reason string
	usage  map[string]interface{}
}

func openaiChunk(state *State, delta map[string]interface{}, finish *finishInfo) string {
	choice := map[string]interface{}{"index": 0}
	if delta != nil {
		choice["delta"] = delta
	} else {
		choice["delta"] = map[string]interface{}{}
	}
	if finish != nil {
		choice["finish_reason"] = finish.reason
	} else {
		choice["finish_reason"] = nil
	}

	chunk := map[string]interface{}{
		"id":      "chatcmpl-" + state.ResponseID,
		"object":  "chat.completion.chunk",
		"created": state.Created,
		"model":   state.Model,
		"choices": []interface{}{choice},
	}
	if finish != nil && finish.usage != nil {
		chunk["usage"] = finish.usage
	}
	b, _ := json.Marshal(chunk)
	return string(b)
}
