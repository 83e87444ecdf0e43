// Package cloak implements the Claude-specific request cloaking engine:
// system-prompt injection, fabricated client identity, and sensitive-word
// obfuscation, applied only when the dispatch target is Claude and the
// credential's CloakMode says to (spec §4.6).
package cloak

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wollfoo/ai-gateway/internal/config"
)

// cloakSystemPrompt is the fixed prompt describing the request as coming
// from Claude Code, injected ahead of (or in place of) any client system
// prompt.
const cloakSystemPrompt = "You are Claude Code, Anthropic's official CLI for Claude."

// identityCache maps api_key -> fabricated user id, process-wide, so a
// given credential's cloaked identity stays stable across requests when
// cache_user_id is set. Grounded on the pack's use of patrickmn/go-cache
// for process-wide TTL caches (fuchsia74-one-api); identities expire after
// 24h so a long-lived process doesn't pin stale sessions forever.
var (
	identityCache   = gocache.New(24*time.Hour, time.Hour)
	identityCacheMu sync.Mutex
)

// ShouldCloak implements spec §4.6 should_cloak.
func ShouldCloak(cfg *config.CloakConfig, userAgent string) bool {
	if cfg == nil {
		return false
	}
	switch cfg.Mode {
	case config.CloakAlways:
		return true
	case config.CloakNever:
		return false
	default: // auto
		return !(strings.HasPrefix(userAgent, "claude-cli") || strings.HasPrefix(userAgent, "claude-code"))
	}
}

// Apply mutates body per spec §4.6 apply: system prompt injection,
// fabricated identity, and sensitive-word obfuscation. Returns the mutated
// body; callers additionally inject claude-header-defaults into outbound
// headers when cloaking is active.
func Apply(body []byte, cfg *config.CloakConfig, apiKey string) []byte {
	if cfg == nil {
		return body
	}

	body = applySystemPrompt(body, cfg)
	body = applyIdentity(body, cfg, apiKey)
	body = applyObfuscation(body, cfg)
	return body
}

func applySystemPrompt(body []byte, cfg *config.CloakConfig) []byte {
	if cfg.StrictMode {
		next, err := sjson.SetBytes(body, "system", cloakSystemPrompt)
		if err == nil {
			return next
		}
		return body
	}

	existing := gjson.GetBytes(body, "system")
	var combined string
	if existing.Exists() && existing.String() != "" {
		combined = cloakSystemPrompt + "\n\n" + existing.String()
	} else {
		combined = cloakSystemPrompt
	}
	next, err := sjson.SetBytes(body, "system", combined)
	if err != nil {
		return body
	}
	return next
}

func applyIdentity(body []byte, cfg *config.CloakConfig, apiKey string) []byte {
	userID := fabricatedUserID(cfg, apiKey)
	next, err := sjson.SetBytes(body, "metadata.user_id", userID)
	if err != nil {
		return body
	}
	return next
}

func fabricatedUserID(cfg *config.CloakConfig, apiKey string) string {
	if cfg.CacheUserID && apiKey != "" {
		identityCacheMu.Lock()
		defer identityCacheMu.Unlock()
		if v, ok := identityCache.Get(apiKey); ok {
			return v.(string)
		}
		id := generateUserID()
		identityCache.Set(apiKey, id, gocache.DefaultExpiration)
		return id
	}
	return generateUserID()
}

func generateUserID() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("user_%s_account__session_%s", hex.EncodeToString(buf), uuid.NewString())
}

// zeroWidthSpace is inserted after the first character of every sensitive
// word match. Re-application is idempotent because the alternation regex
// below never matches a string containing it.
const zeroWidthSpace = "​"

func applyObfuscation(body []byte, cfg *config.CloakConfig) []byte {
	if len(cfg.SensitiveWords) == 0 {
		return body
	}
	re := sensitiveWordsRegex(cfg.SensitiveWords)

	next := body
	walkObfuscate(gjson.ParseBytes(body), "", re, &next)
	return next
}

func sensitiveWordsRegex(words []string) *regexp.Regexp {
	escaped := make([]string, len(words))
	for i, w := range words {
		escaped[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile("(?i)(" + strings.Join(escaped, "|") + ")")
}

// walkObfuscate recursively visits JSON nodes, building the dotted path to
// each node as it descends. Only string values whose parent key is "text"
// or "content" are candidates for obfuscation, per spec §9 Open
// Question (c).
func walkObfuscate(node gjson.Result, path string, re *regexp.Regexp, body *[]byte) {
	if node.IsObject() {
		node.ForEach(func(k, v gjson.Result) bool {
			childKey := k.String()
			childPath := joinPath(path, childKey)
			if v.Type == gjson.String && (childKey == "text" || childKey == "content") {
				if obfuscated := obfuscate(v.String(), re); obfuscated != v.String() {
					if next, err := sjson.SetBytes(*body, childPath, obfuscated); err == nil {
						*body = next
					}
				}
			} else {
				walkObfuscate(v, childPath, re, body)
			}
			return true
		})
		return
	}
	if node.IsArray() {
		i := 0
		node.ForEach(func(_, v gjson.Result) bool {
			walkObfuscate(v, fmt.Sprintf("%s.%d", path, i), re, body)
			i++
			return true
		})
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// obfuscate inserts a zero-width space after the first rune of every match
// of re in s. The inserted rune is never matched by re itself, so
// re-applying obfuscate to already-obfuscated text is a no-op.
func obfuscate(s string, re *regexp.Regexp) string {
	return re.ReplaceAllStringFunc(s, func(match string) string {
		runes := []rune(match)
		if len(runes) == 0 {
			return match
		}
		return string(runes[0]) + zeroWidthSpace + string(runes[1:])
	})
}
