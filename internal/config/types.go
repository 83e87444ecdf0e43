// Package config holds the gateway's configuration snapshot store: an
// immutable value published by atomic swap, loaded from a kebab-case YAML
// file and kept fresh by a file watcher. Readers obtain a lock-free
// snapshot that remains valid for its entire lifetime, even across later
// reloads.
package config

import "time"

// Format identifies a wire protocol. Values are compared by equality and
// encoded as kebab-case strings in configuration.
type Format string

const (
	FormatOpenAI        Format = "openai"
	FormatClaude        Format = "claude"
	FormatGemini        Format = "gemini"
	FormatOpenAICompat  Format = "openai-compat"
)

// WireApi selects between the classic chat endpoint and the newer
// "responses" endpoint for OpenAI-family providers.
type WireApi string

const (
	WireApiChat      WireApi = "chat"
	WireApiResponses WireApi = "responses"
)

// RoutingStrategy selects how the router picks among eligible credentials.
type RoutingStrategy string

const (
	RoutingRoundRobin RoutingStrategy = "round-robin"
	RoutingFillFirst  RoutingStrategy = "fill-first"
)

// CloakMode controls whether a Claude credential's request is cloaked to
// look like a first-party client.
type CloakMode string

const (
	CloakAuto   CloakMode = "auto"
	CloakAlways CloakMode = "always"
	CloakNever  CloakMode = "never"
)

// ModelEntry pairs an upstream model id with an optional client-facing
// alias. Requests naming the alias are rewritten to id before dispatch.
type ModelEntry struct {
	ID    string `yaml:"id"`
	Alias string `yaml:"alias,omitempty"`
}

// CloakConfig is the per-credential Claude cloaking configuration.
type CloakConfig struct {
	Mode           CloakMode `yaml:"mode,omitempty"`
	StrictMode     bool      `yaml:"strict-mode,omitempty"`
	SensitiveWords []string  `yaml:"sensitive-words,omitempty"`
	CacheUserID    bool      `yaml:"cache-user-id,omitempty"`
}

// ProviderKeyEntry is the configuration-file shape of a credential; it
// mirrors AuthRecord (see package gwauth) without runtime routing state.
type ProviderKeyEntry struct {
	APIKey         string            `yaml:"api-key"`
	BaseURL        string            `yaml:"base-url,omitempty"`
	ProxyURL       *string           `yaml:"proxy-url,omitempty"`
	Prefix         string            `yaml:"prefix,omitempty"`
	Models         []ModelEntry      `yaml:"models,omitempty"`
	ExcludedModels []string          `yaml:"excluded-models,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Weight         int               `yaml:"weight,omitempty"`
	Disabled       bool              `yaml:"disabled,omitempty"`
	Name           string            `yaml:"name,omitempty"`
	Cloak          *CloakConfig      `yaml:"cloak,omitempty"`
	WireApi        WireApi           `yaml:"wire-api,omitempty"`

	// The client API key set used for O(1) auth lookup is not part of this
	// shape; it lives on Snapshot.ClientAPIKeys, built by LoadBytes.
}

// MatchRule is a single matcher within a PayloadRule/FilterRule match list.
type MatchRule struct {
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol,omitempty"`
}

// PayloadRule sets params at dotted JSON paths when a default or override
// rule's match list matches the requested model and protocol.
type PayloadRule struct {
	Match  []MatchRule            `yaml:"match"`
	Params map[string]interface{} `yaml:"params"`
}

// FilterRule removes dotted JSON paths when its match list matches.
type FilterRule struct {
	Match []MatchRule `yaml:"match"`
	Paths []string    `yaml:"paths"`
}

// PayloadConfig bundles the three rule phases applied, in order,
// default -> override -> filter.
type PayloadConfig struct {
	Default  []PayloadRule `yaml:"default,omitempty"`
	Override []PayloadRule `yaml:"override,omitempty"`
	Filter   []FilterRule  `yaml:"filter,omitempty"`
}

// TLSConfig configures the TLS listener (owned by the HTTP server, out of
// the core's scope; validated here because load-time validation spans it).
type TLSConfig struct {
	Enable bool   `yaml:"enable,omitempty"`
	Cert   string `yaml:"cert,omitempty"`
	Key    string `yaml:"key,omitempty"`
}

// RoutingConfig selects the credential-selection strategy.
type RoutingConfig struct {
	Strategy RoutingStrategy `yaml:"strategy,omitempty"`
}

// StreamingConfig tunes the SSE response writer and bootstrap retry.
type StreamingConfig struct {
	KeepaliveSeconds int `yaml:"keepalive-seconds,omitempty"`
	BootstrapRetries int `yaml:"bootstrap-retries,omitempty"`
}

// RetryConfig tunes dispatch retry/backoff/cooldown behavior.
type RetryConfig struct {
	MaxRetries       int `yaml:"max-retries,omitempty"`
	MaxBackoffSecs   int `yaml:"max-backoff-secs,omitempty"`
	Cooldown429Secs  int `yaml:"cooldown-429-secs,omitempty"`
	Cooldown5xxSecs  int `yaml:"cooldown-5xx-secs,omitempty"`
	CooldownNetwork  int `yaml:"cooldown-network-secs,omitempty"`
}

// Raw is the on-disk YAML shape, decoded with defaults filled by
// applyDefaults (see load.go).
type Raw struct {
	Host                  string            `yaml:"host,omitempty"`
	Port                  int               `yaml:"port,omitempty"`
	TLS                   TLSConfig         `yaml:"tls,omitempty"`
	APIKeys               []string          `yaml:"api-keys,omitempty"`
	ProxyURL              *string           `yaml:"proxy-url,omitempty"`
	Debug                 bool              `yaml:"debug,omitempty"`
	Routing               RoutingConfig     `yaml:"routing,omitempty"`
	RequestRetry          int               `yaml:"request-retry,omitempty"`
	MaxRetryInterval      int               `yaml:"max-retry-interval,omitempty"`
	ConnectTimeout        int               `yaml:"connect-timeout,omitempty"`
	RequestTimeout        int               `yaml:"request-timeout,omitempty"`
	Streaming             StreamingConfig   `yaml:"streaming,omitempty"`
	BodyLimitMB           int               `yaml:"body-limit-mb,omitempty"`
	Retry                 RetryConfig       `yaml:"retry,omitempty"`
	Payload               PayloadConfig     `yaml:"payload,omitempty"`
	PassthroughHeaders    []string          `yaml:"passthrough-headers,omitempty"`
	ClaudeHeaderDefaults  map[string]string `yaml:"claude-header-defaults,omitempty"`
	ForceModelPrefix      bool              `yaml:"force-model-prefix,omitempty"`
	NonStreamKeepaliveSec int               `yaml:"non-stream-keepalive-secs,omitempty"`

	ClaudeAPIKey         []ProviderKeyEntry `yaml:"claude-api-key,omitempty"`
	OpenAIAPIKey         []ProviderKeyEntry `yaml:"openai-api-key,omitempty"`
	GeminiAPIKey         []ProviderKeyEntry `yaml:"gemini-api-key,omitempty"`
	OpenAICompatibility  []ProviderKeyEntry `yaml:"openai-compatibility,omitempty"`
}

// Snapshot is the immutable, fully-sanitized configuration value. Created
// by Load and replaced wholesale by the watcher; never mutated in place.
type Snapshot struct {
	Host                  string
	Port                  int
	TLS                   TLSConfig
	ClientAPIKeys         map[string]struct{}
	ProxyURL              *string
	Debug                 bool
	Routing               RoutingConfig
	RequestRetry          int
	MaxRetryInterval      int
	ConnectTimeout        time.Duration
	RequestTimeout        time.Duration
	Streaming             StreamingConfig
	BodyLimitMB           int
	Retry                 RetryConfig
	Payload               PayloadConfig
	PassthroughHeaders    []string
	ClaudeHeaderDefaults  map[string]string
	ForceModelPrefix      bool
	NonStreamKeepaliveSec int

	ClaudeAPIKey        []ProviderKeyEntry
	OpenAIAPIKey        []ProviderKeyEntry
	GeminiAPIKey        []ProviderKeyEntry
	OpenAICompatibility []ProviderKeyEntry
}

// IsClientKeyValid reports whether key is one of the sanitized client API
// keys built at load time.
func (s *Snapshot) IsClientKeyValid(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ClientAPIKeys[key]
	return ok
}
