package translator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// openaiToGeminiRequest implements spec §4.4.3.
func openaiToGeminiRequest(model string, raw []byte, stream bool) ([]byte, error) {
	root := gjson.ParseBytes(raw)

	out := map[string]interface{}{}

	var systemParts []map[string]interface{}
	var contents []map[string]interface{}

	appendOrMerge := func(role string, parts []interface{}) {
		if n := len(contents); n > 0 && contents[n-1]["role"] == role {
			existing := contents[n-1]["parts"].([]interface{})
			contents[n-1]["parts"] = append(existing, parts...)
			return
		}
		contents = append(contents, map[string]interface{}{"role": role, "parts": parts})
	}

	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		switch role {
		case "system":
			if text := textContentOf(msg.Get("content")); text != "" {
				systemParts = append(systemParts, map[string]interface{}{"text": text})
			}
		case "user":
			appendOrMerge("user", geminiPartsFromOpenAIContent(msg.Get("content")))
		case "assistant":
			var parts []interface{}
			if text := textContentOf(msg.Get("content")); text != "" {
				parts = append(parts, map[string]interface{}{"text": text})
			}
			msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
				var args interface{}
				if a := tc.Get("function.arguments").String(); a != "" {
					json.Unmarshal([]byte(a), &args)
				}
				parts = append(parts, map[string]interface{}{
					"functionCall": map[string]interface{}{
						"name": tc.Get("function.name").String(),
						"args": args,
					},
				})
				return true
			})
			appendOrMerge("model", parts)
		case "tool":
			var response interface{}
			content := msg.Get("content").String()
			if err := json.Unmarshal([]byte(content), &response); err != nil {
				response = map[string]interface{}{"result": content}
			}
			appendOrMerge("user", []interface{}{
				map[string]interface{}{
					"functionResponse": map[string]interface{}{
						"name":     msg.Get("name").String(),
						"response": response,
					},
				},
			})
		}
		return true
	})

	if len(systemParts) > 0 {
		var parts []interface{}
		for _, p := range systemParts {
			parts = append(parts, p)
		}
		out["systemInstruction"] = map[string]interface{}{"parts": parts}
	}
	out["contents"] = contents

	if tools := root.Get("tools"); tools.IsArray() {
		var decls []interface{}
		tools.ForEach(func(_, t gjson.Result) bool {
			if t.Get("type").String() != "function" {
				return true
			}
			fn := t.Get("function")
			var params interface{}
			if p := fn.Get("parameters").Raw; p != "" {
				json.Unmarshal([]byte(p), &params)
			}
			decls = append(decls, map[string]interface{}{
				"name":        fn.Get("name").String(),
				"description": fn.Get("description").String(),
				"parameters":  params,
			})
			return true
		})
		out["tools"] = []interface{}{map[string]interface{}{"functionDeclarations": decls}}
	}

	genConfig := map[string]interface{}{}
	if v := root.Get("temperature"); v.Exists() {
		genConfig["temperature"] = v.Float()
	}
	if v := root.Get("top_p"); v.Exists() {
		genConfig["topP"] = v.Float()
	}
	if v := root.Get("max_tokens"); v.Exists() {
		genConfig["maxOutputTokens"] = v.Int()
	} else if v := root.Get("max_completion_tokens"); v.Exists() {
		genConfig["maxOutputTokens"] = v.Int()
	}
	if v := root.Get("stop"); v.Exists() {
		var stops []string
		if v.IsArray() {
			v.ForEach(func(_, s gjson.Result) bool {
				stops = append(stops, s.String())
				return true
			})
		} else {
			stops = []string{v.String()}
		}
		genConfig["stopSequences"] = stops
	}
	if len(genConfig) > 0 {
		out["generationConfig"] = genConfig
	}

	return json.Marshal(out)
}

// geminiPartsFromOpenAIContent maps OpenAI user content (string or
// multipart) into Gemini parts, translating image_url parts per §4.4.3.
func geminiPartsFromOpenAIContent(content gjson.Result) []interface{} {
	if content.Type == gjson.String {
		return []interface{}{map[string]interface{}{"text": content.String()}}
	}

	var parts []interface{}
	content.ForEach(func(_, part gjson.Result) bool {
		switch part.Get("type").String() {
		case "text":
			parts = append(parts, map[string]interface{}{"text": part.Get("text").String()})
		case "image_url":
			url := part.Get("image_url.url").String()
			if strings.HasPrefix(url, "data:") {
				rest := strings.TrimPrefix(url, "data:")
				split := strings.SplitN(rest, ";base64,", 2)
				if len(split) == 2 {
					parts = append(parts, map[string]interface{}{
						"inlineData": map[string]interface{}{"mimeType": split[0], "data": split[1]},
					})
					return true
				}
			}
			parts = append(parts, map[string]interface{}{"text": fmt.Sprintf("[image: %s]", url)})
		}
		return true
	})
	return parts
}

// --- gemini -> openai responses (§4.4.4) ---

var geminiFinishToOpenAI = map[string]string{
	"STOP":       "stop",
	"MAX_TOKENS": "length",
	"SAFETY":     "content_filter",
	"RECITATION": "content_filter",
}

func geminiToOpenAINonStream(model string, originalRequest []byte, data []byte) (string, error) {
	root := gjson.ParseBytes(data)

	modelName := root.Get("modelVersion").String()
	if modelName == "" {
		modelName = model
	}

	candidate := root.Get("candidates.0")
	var content strings.Builder
	var toolCalls []map[string]interface{}
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if text := part.Get("text"); text.Exists() {
			content.WriteString(text.String())
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			args, _ := json.Marshal(jsonOrNil(fc.Get("args").Raw))
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   fmt.Sprintf("call_%d", len(toolCalls)),
				"type": "function",
				"function": map[string]interface{}{
					"name":      fc.Get("name").String(),
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

	finish := geminiFinishToOpenAI[candidate.Get("finishReason").String()]
	if finish == "" {
		finish = "stop"
	}

	out := map[string]interface{}{
		"id":      fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   modelName,
		"choices": []interface{}{
			map[string]interface{}{"index": 0, "message": message, "finish_reason": finish},
		},
	}
	usage := root.Get("usageMetadata")
	promptTok := usage.Get("promptTokenCount").Int()
	completionTok := usage.Get("candidatesTokenCount").Int()
	if !usage.Exists() || (promptTok == 0 && completionTok == 0) {
		promptTok = int64(estimateInputTokens(originalRequest))
		completionTok = int64(estimateTokens(content.String()))
	}
	out["usage"] = map[string]interface{}{
		"prompt_tokens":     promptTok,
		"completion_tokens": completionTok,
		"total_tokens":      promptTok + completionTok,
	}

	b, err := json.Marshal(out)
	return string(b), err
}

func geminiToOpenAIStream(model string, originalRequest []byte, eventType, data string, state *State) ([]string, error) {
	root := gjson.ParseBytes([]byte(data))
	candidate := root.Get("candidates.0")

	var lines []string
	if !state.SentRole {
		state.ResponseID = fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
		state.Model = model
		state.Created = time.Now().Unix()
		state.SentRole = true
		lines = append(lines, "data: "+openaiChunk(state, map[string]interface{}{"role": "assistant", "content": ""}, nil))
	}

	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if text := part.Get("text"); text.Exists() && text.String() != "" {
			state.completionText.WriteString(text.String())
			lines = append(lines, "data: "+openaiChunk(state, map[string]interface{}{"content": text.String()}, nil))
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			state.CurrentToolCallIndex++
			args, _ := json.Marshal(jsonOrNil(fc.Get("args").Raw))
			delta := map[string]interface{}{
				"tool_calls": []interface{}{
					map[string]interface{}{
						"index": state.CurrentToolCallIndex,
						"id":    fmt.Sprintf("call_%d", state.CurrentToolCallIndex),
						"type":  "function",
						"function": map[string]interface{}{
							"name":      fc.Get("name").String(),
							"arguments": string(args),
						},
					},
				},
			}
			lines = append(lines, "data: "+openaiChunk(state, delta, nil))
		}
		return true
	})

	if reason := candidate.Get("finishReason").String(); reason != "" {
		finish := geminiFinishToOpenAI[reason]
		if finish == "" {
			finish = "stop"
		}
		u := root.Get("usageMetadata")
		promptTok := u.Get("promptTokenCount").Int()
		completionTok := u.Get("candidatesTokenCount").Int()
		if !u.Exists() || (promptTok == 0 && completionTok == 0) {
			promptTok = int64(estimateInputTokens(originalRequest))
			completionTok = int64(estimateTokens(state.completionText.String()))
		}
		usage := map[string]interface{}{
			"prompt_tokens":     promptTok,
			"completion_tokens": completionTok,
			"total_tokens":      promptTok + completionTok,
		}
		lines = append(lines, "data: "+openaiChunk(state, nil, &finishInfo{reason: finish, usage: usage}))
		lines = append(lines, "data: [DONE]")
	}

	return lines, nil
}
