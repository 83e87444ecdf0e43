package gwauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wollfoo/ai-gateway/internal/config"
)

func snapWithOpenAI(entries ...config.ProviderKeyEntry) *config.Snapshot {
	return &config.Snapshot{
		Routing:      config.RoutingConfig{Strategy: config.RoutingRoundRobin},
		OpenAIAPIKey: entries,
	}
}

func TestPickReturnsNilWhenNoCandidates(t *testing.T) {
	r := NewRouter(snapWithOpenAI())
	assert.Nil(t, r.Pick(config.FormatOpenAI, "gpt-4o", nil))
}

func TestPickExcludesTriedAndUnsupportedModels(t *testing.T) {
	r := NewRouter(snapWithOpenAI(
		config.ProviderKeyEntry{APIKey: "a", Models: []config.ModelEntry{{ID: "gpt-4o"}}},
		config.ProviderKeyEntry{APIKey: "b", Models: []config.ModelEntry{{ID: "gpt-3.5"}}},
	))

	pick := r.Pick(config.FormatOpenAI, "gpt-4o", nil)
	require.NotNil(t, pick)
	assert.Equal(t, "a", pick.APIKey)

	tried := map[string]bool{pick.ID: true}
	assert.Nil(t, r.Pick(config.FormatOpenAI, "gpt-4o", tried))
}

func TestPickFillFirstAlwaysReturnsFirstEligible(t *testing.T) {
	snap := snapWithOpenAI(
		config.ProviderKeyEntry{APIKey: "a"},
		config.ProviderKeyEntry{APIKey: "b"},
	)
	snap.Routing.Strategy = config.RoutingFillFirst
	r := NewRouter(snap)

	for i := 0; i < 3; i++ {
		pick := r.Pick(config.FormatOpenAI, "gpt-4o", nil)
		require.NotNil(t, pick)
		assert.Equal(t, "a", pick.APIKey)
	}
}

func TestPickWeightedRoundRobinDistributesByWeight(t *testing.T) {
	r := NewRouter(snapWithOpenAI(
		config.ProviderKeyEntry{APIKey: "heavy", Weight: 3},
		config.ProviderKeyEntry{APIKey: "light", Weight: 1},
	))

	counts := map[string]int{}
	for i := 0; i < 400; i++ {
		pick := r.Pick(config.FormatOpenAI, "gpt-4o", nil)
		require.NotNil(t, pick)
		counts[pick.APIKey]++
	}

	// Weighted 3:1 over many draws; heavy should clearly dominate light.
	assert.Greater(t, counts["heavy"], counts["light"]*2)
}

func TestMarkUnavailableExcludesFromPick(t *testing.T) {
	r := NewRouter(snapWithOpenAI(config.ProviderKeyEntry{APIKey: "only"}))

	pick := r.Pick(config.FormatOpenAI, "gpt-4o", nil)
	require.NotNil(t, pick)

	r.MarkUnavailable(pick.ID, time.Hour)
	assert.Nil(t, r.Pick(config.FormatOpenAI, "gpt-4o", nil))
}

func TestUpdateFromConfigCarriesCooldownForward(t *testing.T) {
	r := NewRouter(snapWithOpenAI(config.ProviderKeyEntry{APIKey: "stable"}))
	pick := r.Pick(config.FormatOpenAI, "gpt-4o", nil)
	require.NotNil(t, pick)
	r.MarkUnavailable(pick.ID, time.Hour)

	r.UpdateFromConfig(snapWithOpenAI(config.ProviderKeyEntry{APIKey: "stable"}))

	assert.Nil(t, r.Pick(config.FormatOpenAI, "gpt-4o", nil))
}

func TestResolveProvidersAndModelHasPrefix(t *testing.T) {
	snap := &config.Snapshot{
		Routing: config.RoutingConfig{Strategy: config.RoutingRoundRobin},
		ClaudeAPIKey: []config.ProviderKeyEntry{
			{APIKey: "c", Prefix: "anthropic/", Models: []config.ModelEntry{{ID: "claude-3-opus"}}},
		},
		OpenAIAPIKey: []config.ProviderKeyEntry{
			{APIKey: "o", Models: []config.ModelEntry{{ID: "gpt-4o"}}},
		},
	}
	r := NewRouter(snap)

	providers := r.ResolveProviders("anthropic/claude-3-opus")
	assert.Contains(t, providers, config.FormatClaude)
	assert.NotContains(t, providers, config.FormatOpenAI)

	assert.True(t, r.ModelHasPrefix("anthropic/claude-3-opus"))
	assert.False(t, r.ModelHasPrefix("gpt-4o"))
}

func TestAllModelsDedupsAndPrefersAlias(t *testing.T) {
	snap := &config.Snapshot{
		Routing: config.RoutingConfig{Strategy: config.RoutingRoundRobin},
		OpenAIAPIKey: []config.ProviderKeyEntry{
			{APIKey: "a", Models: []config.ModelEntry{{ID: "gpt-4o", Alias: "smart"}}},
			{APIKey: "b", Models: []config.ModelEntry{{ID: "gpt-4o", Alias: "smart"}}},
		},
	}
	r := NewRouter(snap)

	models := r.AllModels()
	require.Len(t, models, 1)
	assert.Equal(t, "smart", models[0].ID)
}
