package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBytesAppliesDefaults(t *testing.T) {
	snap, err := LoadBytes([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", snap.Host)
	assert.Equal(t, 8317, snap.Port)
	assert.Equal(t, RoutingRoundRobin, snap.Routing.Strategy)
	assert.Equal(t, 3, snap.RequestRetry)
	assert.Equal(t, 15, snap.Streaming.KeepaliveSeconds)
	assert.Equal(t, 1, snap.Streaming.BootstrapRetries)
	assert.Equal(t, 10, snap.BodyLimitMB)
	assert.Equal(t, 3, snap.Retry.MaxRetries)
	assert.Equal(t, 60, snap.Retry.Cooldown429Secs)
	assert.Empty(t, snap.ClientAPIKeys)
}

func TestLoadBytesRejectsMalformedYAML(t *testing.T) {
	_, err := LoadBytes([]byte("host: [unterminated"))
	require.Error(t, err)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestLoadBytesRejectsTLSWithoutCertKey(t *testing.T) {
	_, err := LoadBytes([]byte(`
tls:
  enable: true
`))
	require.Error(t, err)
}

func TestLoadBytesRejectsUnknownProxyScheme(t *testing.T) {
	_, err := LoadBytes([]byte(`
proxy-url: "ftp://proxy.example.com"
`))
	require.Error(t, err)
}

func TestLoadBytesAcceptsExplicitEmptyProxyURL(t *testing.T) {
	snap, err := LoadBytes([]byte(`
proxy-url: ""
`))
	require.NoError(t, err)
	require.NotNil(t, snap.ProxyURL)
	assert.Equal(t, "", *snap.ProxyURL)
}

func TestSanitizeEntriesDropsBlankDedupsAndLowercasesHeaders(t *testing.T) {
	snap, err := LoadBytes([]byte(`
openai-api-key:
  - api-key: ""
  - api-key: "sk-a"
    base-url: "https://api.openai.com/"
    headers:
      X-Custom: "1"
  - api-key: "sk-a"
    base-url: "https://duplicate.example.com"
`))
	require.NoError(t, err)
	require.Len(t, snap.OpenAIAPIKey, 1)

	entry := snap.OpenAIAPIKey[0]
	assert.Equal(t, "sk-a", entry.APIKey)
	assert.Equal(t, "https://api.openai.com", entry.BaseURL)
	assert.Equal(t, 1, entry.Weight)
	assert.Equal(t, "1", entry.Headers["x-custom"])
}

func TestLoadBytesBuildsClientAPIKeySet(t *testing.T) {
	snap, err := LoadBytes([]byte(`
api-keys: ["key-a", "key-b", ""]
`))
	require.NoError(t, err)
	assert.True(t, snap.IsClientKeyValid("key-a"))
	assert.True(t, snap.IsClientKeyValid("key-b"))
	assert.False(t, snap.IsClientKeyValid(""))
	assert.False(t, snap.IsClientKeyValid("unknown"))
}

func TestHashIsStableAndContentSensitive(t *testing.T) {
	a := Hash([]byte("host: foo"))
	b := Hash([]byte("host: foo"))
	c := Hash([]byte("host: bar"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
