// Package gwauth implements the credential store and router: it answers
// "which providers can serve model M" and "next credential for (format,
// model)" under a configurable routing strategy, with cooldown and
// failover support.
package gwauth

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/globmatch"
)

// ModelInfo is one client-visible model entry, as returned by
// Router.AllModels for the /v1/models endpoint.
type ModelInfo struct {
	ID      string
	Created int64
	OwnedBy string
}

// AuthRecord is a fully-resolved runtime credential: a ProviderKeyEntry
// plus routing state (cooldown). Cloned on every Pick so callers never
// observe a record mutating under them.
type AuthRecord struct {
	ID             string
	Format         config.Format
	APIKey         string
	BaseURL        string
	ProxyURL       *string
	Prefix         string
	Name           string
	Models         []config.ModelEntry
	ExcludedModels []string
	Headers        map[string]string
	Disabled       bool
	Cloak          *config.CloakConfig
	WireApi        config.WireApi
	Weight         int

	// cooldownUntil is a monotonic deadline (time.Now().Add-based); the
	// record is unavailable while time.Now() < cooldownUntil. Held in an
	// atomic.Value so Available and Clone can read it without taking the
	// router's map lock.
	cooldownUntil atomic.Value // time.Time
}

func newRecord(e config.ProviderKeyEntry, format config.Format) *AuthRecord {
	weight := e.Weight
	if weight <= 0 {
		weight = 1
	}
	r := &AuthRecord{
		ID:             uuid.NewString(),
		Format:         format,
		APIKey:         e.APIKey,
		BaseURL:        e.BaseURL,
		ProxyURL:       e.ProxyURL,
		Prefix:         e.Prefix,
		Name:           e.Name,
		Models:         e.Models,
		ExcludedModels: e.ExcludedModels,
		Headers:        e.Headers,
		Disabled:       e.Disabled,
		Cloak:          e.Cloak,
		WireApi:        e.WireApi,
		Weight:         weight,
	}
	r.cooldownUntil.Store(time.Time{})
	return r
}

// Clone returns a value copy of r safe to hand to a caller outside the
// router's lock.
func (r *AuthRecord) Clone() *AuthRecord {
	if r == nil {
		return nil
	}
	c := &AuthRecord{
		ID: r.ID, Format: r.Format, APIKey: r.APIKey, BaseURL: r.BaseURL,
		ProxyURL: r.ProxyURL, Prefix: r.Prefix, Name: r.Name,
		Models: r.Models, ExcludedModels: r.ExcludedModels, Headers: r.Headers,
		Disabled: r.Disabled, Cloak: r.Cloak, WireApi: r.WireApi, Weight: r.Weight,
	}
	c.cooldownUntil.Store(r.cooldownDeadline())
	return c
}

func (r *AuthRecord) cooldownDeadline() time.Time {
	v := r.cooldownUntil.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}

// Available reports whether r can currently be picked: not disabled and
// not within an active cooldown window.
func (r *AuthRecord) Available(now time.Time) bool {
	if r.Disabled {
		return false
	}
	d := r.cooldownDeadline()
	return d.IsZero() || !now.Before(d)
}

// CooldownUntil exposes the current cooldown deadline (zero value means
// none set), used by tests and debug surfaces.
func (r *AuthRecord) CooldownUntil() time.Time { return r.cooldownDeadline() }

func (r *AuthRecord) setCooldown(d time.Time) { r.cooldownUntil.Store(d) }

// stripPrefix removes r.Prefix from m if m has that prefix.
func (r *AuthRecord) stripPrefix(m string) string {
	if r.Prefix != "" && strings.HasPrefix(m, r.Prefix) {
		return strings.TrimPrefix(m, r.Prefix)
	}
	return m
}

// SupportsModel reports whether r can serve model m, per §4.2: prefix
// strip, then excluded-models glob, then empty-models-means-any, then
// id/alias glob match.
func (r *AuthRecord) SupportsModel(m string) bool {
	stripped := r.stripPrefix(m)
	if globmatch.MatchAny(r.ExcludedModels, stripped) {
		return false
	}
	if len(r.Models) == 0 {
		return true
	}
	for _, me := range r.Models {
		if globmatch.Match(me.ID, stripped) {
			return true
		}
		if me.Alias != "" && globmatch.Match(me.Alias, stripped) {
			return true
		}
	}
	return false
}

// ResolveModelID maps a client-facing alias to the upstream model id after
// stripping the credential's prefix. If m isn't a known alias it is
// returned (stripped) unchanged.
func (r *AuthRecord) ResolveModelID(m string) string {
	stripped := r.stripPrefix(m)
	for _, me := range r.Models {
		if me.Alias != "" && me.Alias == stripped {
			return me.ID
		}
	}
	return stripped
}

// HasPrefix reports whether r has a non-empty prefix and m matches it
// (i.e. the request names a model scoped to this credential).
func (r *AuthRecord) HasPrefix(m string) bool {
	return r.Prefix != "" && strings.HasPrefix(m, r.Prefix)
}
