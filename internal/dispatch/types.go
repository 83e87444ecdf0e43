// Package dispatch implements the orchestration engine: resolve providers,
// pick a credential, translate, apply payload rules, cloak, execute,
// translate the response, and deliver — owning retry, cooldown, and
// failover (spec §4.9).
package dispatch

import (
	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/cloak"
	"github.com/wollfoo/ai-gateway/internal/executor"
	"github.com/wollfoo/ai-gateway/internal/gwauth"
	"github.com/wollfoo/ai-gateway/internal/payloadrules"
	"github.com/wollfoo/ai-gateway/internal/translator"
)

// Descriptor is the parsed client request the dispatcher acts on.
type Descriptor struct {
	SourceFormat   config.Format
	Model          string
	Models         []string // fallback chain, takes precedence over Model
	Stream         bool
	UserAgent      string
	Debug          bool
	Raw            []byte
	AllowedFormats []config.Format // nil means any
}

// ModelChain returns the ordered list of models to try.
func (d *Descriptor) ModelChain() []string {
	if len(d.Models) > 0 {
		return d.Models
	}
	return []string{d.Model}
}

// NonStreamResult is the outcome of a successful non-streaming dispatch.
type NonStreamResult struct {
	Body            string
	Passthrough     map[string]string
	DebugProvider   string
	DebugModel      string
	DebugCredential string
	DebugAttempts   []string
}

// Dispatcher wires together every collaborator the algorithm needs.
type Dispatcher struct {
	Store       *config.Store
	Router      *gwauth.Router
	Executors   *executor.Set
	Translators *translator.Registry
}

func New(store *config.Store, router *gwauth.Router, execs *executor.Set) *Dispatcher {
	return &Dispatcher{Store: store, Router: router, Executors: execs, Translators: translator.NewRegistry()}
}

// attempt bundles everything needed to execute one (target, credential)
// pair once picked, after translate/payload-rules/cloak have run.
type attempt struct {
	target        config.Format
	auth          *gwauth.AuthRecord
	resolvedModel string
	req           executor.Request
	extraHeaders  map[string]string
}

func allowedIntersect(providers []config.Format, allowed []config.Format) []config.Format {
	if allowed == nil {
		return providers
	}
	allowedSet := map[config.Format]bool{}
	for _, f := range allowed {
		allowedSet[f] = true
	}
	var out []config.Format
	for _, p := range providers {
		if allowedSet[p] {
			out = append(out, p)
		}
	}
	return out
}

func shouldCloakTarget(target config.Format, auth *gwauth.AuthRecord, userAgent string) bool {
	if target != config.FormatClaude || auth == nil || auth.Cloak == nil {
		return false
	}
	return cloak.ShouldCloak(auth.Cloak, userAgent)
}

func applyPayloadAndCloak(snap *config.Snapshot, target config.Format, resolvedModel string, translated []byte, auth *gwauth.AuthRecord, userAgent string, claudeHeaderDefaults map[string]string) ([]byte, map[string]string) {
	translated = payloadrules.Apply(translated, snap.Payload, resolvedModel, string(target))

	extraHeaders := map[string]string{}
	if shouldCloakTarget(target, auth, userAgent) {
		translated = cloak.Apply(translated, auth.Cloak, auth.APIKey)
		for k, v := range claudeHeaderDefaults {
			extraHeaders[k] = v
		}
	}
	return translated, extraHeaders
}
