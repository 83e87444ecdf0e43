package translator

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tidwall/gjson"
)

// tokenEncoder is initialized lazily and shared across all translate calls;
// tiktoken-go's BPE tables are read-only once built, so concurrent Encode
// calls are safe.
var (
	tokenEncoderOnce sync.Once
	tokenEncoder     *tiktoken.Tiktoken
)

func encoder() *tiktoken.Tiktoken {
	tokenEncoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEncoder = enc
		}
	})
	return tokenEncoder
}

// estimateInputTokens gives a best-effort prompt token count for a raw
// OpenAI-format request body, used only when an upstream response omits its
// own usage accounting (spec §9 design note on token accounting).
func estimateInputTokens(rawRequest []byte) int {
	enc := encoder()
	if enc == nil {
		return 0
	}

	var text strings.Builder
	gjson.GetBytes(rawRequest, "messages").ForEach(func(_, msg gjson.Result) bool {
		text.WriteString(textContentOf(msg.Get("content")))
		text.WriteString("\n")
		return true
	})
	if text.Len() == 0 {
		return 0
	}
	return len(enc.Encode(text.String(), nil, nil))
}

// estimateTokens counts s using the same encoder, for estimating completion
// tokens when an upstream response body carries none.
func estimateTokens(s string) int {
	enc := encoder()
	if enc == nil || s == "" {
		return 0
	}
	return len(enc.Encode(s, nil, nil))
}
