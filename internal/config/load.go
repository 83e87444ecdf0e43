package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ConfigError is a fatal-at-startup, non-fatal-during-reload load/validate
// failure.
type ConfigError struct {
	Msg   string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("config: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

var validProxySchemes = map[string]bool{"http": true, "https": true, "socks5": true}

// Load reads path, applies defaults, sanitizes, validates, and returns an
// immutable Snapshot ready to publish. It never mutates global state.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: "read file", Cause: err}
	}
	return LoadBytes(data)
}

// LoadBytes runs the same pipeline as Load directly over YAML bytes, used
// by the watcher (which already has the file content) and by tests.
func LoadBytes(data []byte) (*Snapshot, error) {
	var raw Raw
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Msg: "parse yaml", Cause: err}
	}
	applyDefaults(&raw)

	snap := &Snapshot{
		Host:                  raw.Host,
		Port:                  raw.Port,
		TLS:                   raw.TLS,
		ProxyURL:              raw.ProxyURL,
		Debug:                 raw.Debug,
		Routing:               raw.Routing,
		RequestRetry:          raw.RequestRetry,
		MaxRetryInterval:      raw.MaxRetryInterval,
		ConnectTimeout:        time.Duration(raw.ConnectTimeout) * time.Second,
		RequestTimeout:        time.Duration(raw.RequestTimeout) * time.Second,
		Streaming:             raw.Streaming,
		BodyLimitMB:           raw.BodyLimitMB,
		Retry:                 raw.Retry,
		Payload:               raw.Payload,
		PassthroughHeaders:    raw.PassthroughHeaders,
		ClaudeHeaderDefaults:  raw.ClaudeHeaderDefaults,
		ForceModelPrefix:      raw.ForceModelPrefix,
		NonStreamKeepaliveSec: raw.NonStreamKeepaliveSec,
	}

	snap.ClientAPIKeys = make(map[string]struct{}, len(raw.APIKeys))
	for _, k := range raw.APIKeys {
		if k == "" {
			continue
		}
		snap.ClientAPIKeys[k] = struct{}{}
	}

	snap.ClaudeAPIKey = sanitizeEntries(raw.ClaudeAPIKey)
	snap.OpenAIAPIKey = sanitizeEntries(raw.OpenAIAPIKey)
	snap.GeminiAPIKey = sanitizeEntries(raw.GeminiAPIKey)
	snap.OpenAICompatibility = sanitizeEntries(raw.OpenAICompatibility)

	if err := validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func applyDefaults(r *Raw) {
	if r.Host == "" {
		r.Host = "0.0.0.0"
	}
	if r.Port == 0 {
		r.Port = 8317
	}
	if r.Routing.Strategy == "" {
		r.Routing.Strategy = RoutingRoundRobin
	}
	if r.RequestRetry == 0 {
		r.RequestRetry = 3
	}
	if r.MaxRetryInterval == 0 {
		r.MaxRetryInterval = 30
	}
	if r.ConnectTimeout == 0 {
		r.ConnectTimeout = 30
	}
	if r.RequestTimeout == 0 {
		r.RequestTimeout = 300
	}
	if r.Streaming.KeepaliveSeconds == 0 {
		r.Streaming.KeepaliveSeconds = 15
	}
	if r.Streaming.BootstrapRetries == 0 {
		r.Streaming.BootstrapRetries = 1
	}
	if r.BodyLimitMB == 0 {
		r.BodyLimitMB = 10
	}
	if r.Retry.MaxRetries == 0 {
		r.Retry.MaxRetries = 3
	}
	if r.Retry.MaxBackoffSecs == 0 {
		r.Retry.MaxBackoffSecs = 30
	}
	if r.Retry.Cooldown429Secs == 0 {
		r.Retry.Cooldown429Secs = 60
	}
	if r.Retry.Cooldown5xxSecs == 0 {
		r.Retry.Cooldown5xxSecs = 15
	}
	if r.Retry.CooldownNetwork == 0 {
		r.Retry.CooldownNetwork = 10
	}
}

// sanitizeEntries drops empty-key entries, dedups by api-key (first wins),
// trims a trailing slash from base-url, and lowercases header keys.
func sanitizeEntries(entries []ProviderKeyEntry) []ProviderKeyEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]ProviderKeyEntry, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.APIKey) == "" {
			continue
		}
		if seen[e.APIKey] {
			continue
		}
		seen[e.APIKey] = true

		e.BaseURL = strings.TrimSuffix(e.BaseURL, "/")
		if e.Weight <= 0 {
			e.Weight = 1
		}
		if len(e.Headers) > 0 {
			lower := make(map[string]string, len(e.Headers))
			for k, v := range e.Headers {
				lower[strings.ToLower(k)] = v
			}
			e.Headers = lower
		}
		out = append(out, e)
	}
	return out
}

func validate(s *Snapshot) error {
	if s.TLS.Enable {
		if s.TLS.Cert == "" || s.TLS.Key == "" {
			return &ConfigError{Msg: "tls enabled but cert/key missing"}
		}
	}
	if err := validateProxy(s.ProxyURL); err != nil {
		return err
	}
	all := [][]ProviderKeyEntry{s.ClaudeAPIKey, s.OpenAIAPIKey, s.GeminiAPIKey, s.OpenAICompatibility}
	for _, group := range all {
		for _, e := range group {
			if err := validateProxy(e.ProxyURL); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateProxy(p *string) error {
	if p == nil {
		return nil
	}
	if *p == "" {
		return nil // explicit empty == direct, overrides global
	}
	idx := strings.Index(*p, "://")
	if idx < 0 || !validProxySchemes[(*p)[:idx]] {
		return &ConfigError{Msg: fmt.Sprintf("unrecognized proxy scheme in %q", *p)}
	}
	return nil
}

// Hash returns the hex SHA-256 digest of data, used by the watcher to
// detect no-op reload events.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func logLoadFailure(path string, err error) {
	log.Warnf("config: reload of %s failed, keeping previous snapshot: %v", path, err)
}
