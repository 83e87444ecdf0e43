package gwauth

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wollfoo/ai-gateway/internal/config"
)

// Router holds the credential store keyed by provider format and answers
// routing queries. Readers take a brief read lock and clone the chosen
// record before releasing it; writers (UpdateFromConfig, MarkUnavailable)
// take the lock briefly and return.
type Router struct {
	mu       sync.RWMutex
	records  map[config.Format][]*AuthRecord
	strategy config.RoutingStrategy

	countersMu sync.RWMutex
	counters   map[string]*uint64
}

// NewRouter builds a Router from an initial config snapshot.
func NewRouter(snap *config.Snapshot) *Router {
	r := &Router{
		records:  map[config.Format][]*AuthRecord{},
		counters: map[string]*uint64{},
	}
	r.UpdateFromConfig(snap)
	return r
}

// UpdateFromConfig rebuilds the four format lists from snap. Each incoming
// entry gets a freshly-assigned AuthRecord id; cooldown state is carried
// forward from any existing record sharing (api_key, format). The routing
// strategy is replaced atomically. Round-robin counters are retained for
// key stability (spec §9 Open Question (a)).
func (r *Router) UpdateFromConfig(snap *config.Snapshot) {
	if snap == nil {
		return
	}

	groups := []struct {
		format  config.Format
		entries []config.ProviderKeyEntry
	}{
		{config.FormatClaude, snap.ClaudeAPIKey},
		{config.FormatOpenAI, snap.OpenAIAPIKey},
		{config.FormatGemini, snap.GeminiAPIKey},
		{config.FormatOpenAICompat, snap.OpenAICompatibility},
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.records
	next := make(map[config.Format][]*AuthRecord, len(groups))

	for _, g := range groups {
		list := make([]*AuthRecord, 0, len(g.entries))
		for _, e := range g.entries {
			rec := newRecord(e, g.format)
			if prev := findByKey(old[g.format], e.APIKey); prev != nil {
				rec.setCooldown(prev.cooldownDeadline())
			}
			list = append(list, rec)
		}
		next[g.format] = list
	}

	r.records = next
	r.strategy = snap.Routing.Strategy
}

func findByKey(list []*AuthRecord, apiKey string) *AuthRecord {
	for _, rec := range list {
		if rec.APIKey == apiKey {
			return rec
		}
	}
	return nil
}

// Pick selects a credential for (format, model), excluding any id already
// in tried. Returns nil if no eligible credential exists.
func (r *Router) Pick(format config.Format, model string, tried map[string]bool) *AuthRecord {
	now := time.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()
	candidates := r.records[format]
	strategy := r.strategy
	snapshot := make([]*AuthRecord, 0, len(candidates))
	for _, rec := range candidates {
		if !rec.Available(now) {
			continue
		}
		if tried != nil && tried[rec.ID] {
			continue
		}
		if !rec.SupportsModel(model) {
			continue
		}
		snapshot = append(snapshot, rec)
	}

	if len(snapshot) == 0 {
		return nil
	}

	if strategy == config.RoutingFillFirst {
		return snapshot[0].Clone()
	}
	return r.pickWeightedRoundRobin(format, model, snapshot).Clone()
}

func (r *Router) pickWeightedRoundRobin(format config.Format, model string, candidates []*AuthRecord) *AuthRecord {
	total := uint64(0)
	for _, c := range candidates {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		total += uint64(w)
	}
	if total == 0 {
		return candidates[0]
	}

	key := string(format) + ":" + model
	counter := r.counterFor(key)
	n := atomic.AddUint64(counter, 1)
	slot := n % total

	var cum uint64
	for _, c := range candidates {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		cum += uint64(w)
		if slot < cum {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

func (r *Router) counterFor(key string) *uint64 {
	r.countersMu.RLock()
	c, ok := r.counters[key]
	r.countersMu.RUnlock()
	if ok {
		return c
	}

	r.countersMu.Lock()
	defer r.countersMu.Unlock()
	if c, ok = r.counters[key]; ok {
		return c
	}
	var v uint64
	r.counters[key] = &v
	return &v
}

// MarkUnavailable sets cooldownUntil = now + duration on the record with
// the given id, across all formats.
func (r *Router) MarkUnavailable(id string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deadline := time.Now().Add(duration)
	for _, list := range r.records {
		for _, rec := range list {
			if rec.ID == id {
				rec.setCooldown(deadline)
				return
			}
		}
	}
}

// ResolveProviders returns the formats that have at least one available
// record supporting model.
func (r *Router) ResolveProviders(model string) []config.Format {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []config.Format
	for format, list := range r.records {
		for _, rec := range list {
			if rec.Available(now) && rec.SupportsModel(model) {
				out = append(out, format)
				break
			}
		}
	}
	return out
}

// ModelHasPrefix reports whether any available record with a non-empty
// prefix matches model, used to enforce force_model_prefix.
func (r *Router) ModelHasPrefix(model string) bool {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, list := range r.records {
		for _, rec := range list {
			if rec.Available(now) && rec.HasPrefix(model) {
				return true
			}
		}
	}
	return false
}

// AllModels projects one entry per distinct client-visible model name
// (alias preferred over id) across every available record.
func (r *Router) AllModels() []ModelInfo {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var out []ModelInfo
	for _, list := range r.records {
		for _, rec := range list {
			if !rec.Available(now) {
				continue
			}
			for _, me := range rec.Models {
				name := me.Alias
				if name == "" {
					name = me.ID
				}
				if name == "" || seen[name] {
					continue
				}
				seen[name] = true
				out = append(out, ModelInfo{ID: name, OwnedBy: string(rec.Format)})
			}
		}
	}
	return out
}
