// Package payloadrules applies the operator-configured default/override/
// filter rules to a translated JSON payload: defaults fill in values only
// when absent, overrides set unconditionally, and filters remove paths.
// Processing order is fixed and total, applied after request translation
// and before Claude cloaking (spec §4.5).
package payloadrules

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/globmatch"
)

// Apply runs defaults, then overrides, then filters against payload for
// the given model and protocol (the target format string, matched
// case-insensitively against each rule's optional protocol filter).
func Apply(payload []byte, cfg config.PayloadConfig, model, protocol string) []byte {
	for _, rule := range cfg.Default {
		if !matches(rule.Match, model, protocol) {
			continue
		}
		for path, value := range rule.Params {
			if gjson.GetBytes(payload, path).Exists() {
				continue
			}
			if next, err := sjson.SetBytes(payload, path, value); err == nil {
				payload = next
			}
		}
	}

	for _, rule := range cfg.Override {
		if !matches(rule.Match, model, protocol) {
			continue
		}
		for path, value := range rule.Params {
			if next, err := sjson.SetBytes(payload, path, value); err == nil {
				payload = next
			}
		}
	}

	for _, rule := range cfg.Filter {
		if !matches(rule.Match, model, protocol) {
			continue
		}
		for _, path := range rule.Paths {
			if next, err := sjson.DeleteBytes(payload, path); err == nil {
				payload = next
			}
		}
	}

	return payload
}

func matches(match []config.MatchRule, model, protocol string) bool {
	for _, m := range match {
		if !globmatch.Match(m.Name, model) {
			continue
		}
		if m.Protocol != "" && !strings.EqualFold(m.Protocol, protocol) {
			continue
		}
		return true
	}
	return false
}
