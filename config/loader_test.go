package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BROWSERFLOW_GEMINI_KEYS", "k1")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.ReadyTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "http://localhost:11434", cfg.Providers.OllamaEndpoint)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  gemini_keys: ["g1", "g2"]
  groq_keys: ["q1"]
browser:
  headless: false
  viewport_width: 1920
  viewport_height: 1080
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"g1", "g2"}, cfg.Providers.GeminiKeys)
	assert.Equal(t, []string{"q1"}, cfg.Providers.GroqKeys)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  gemini_keys: ["from-yaml"]
log:
  level: warn
`), 0o644))

	t.Setenv("BROWSERFLOW_GEMINI_KEYS", "e1, e2")
	t.Setenv("BROWSERFLOW_LOG_LEVEL", "error")
	t.Setenv("BROWSERFLOW_BROWSER_HEADLESS", "false")
	t.Setenv("BROWSERFLOW_BROWSER_READY_TIMEOUT", "45s")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"e1", "e2"}, cfg.Providers.GeminiKeys)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser.ReadyTimeout)
}

func TestLoad_ValidationFailures(t *testing.T) {
	t.Setenv("BROWSERFLOW_GEMINI_KEYS", "k1")

	t.Setenv("BROWSERFLOW_LOG_LEVEL", "verbose")
	_, err := NewLoader().Load()
	assert.ErrorContains(t, err, "invalid log level")

	t.Setenv("BROWSERFLOW_LOG_LEVEL", "info")
	t.Setenv("BROWSERFLOW_BROWSER_VIEWPORT_WIDTH", "-1")
	_, err = NewLoader().Load()
	assert.ErrorContains(t, err, "viewport")
}

func TestLoad_NoProvidersRejected(t *testing.T) {
	t.Setenv("BROWSERFLOW_OLLAMA_ENDPOINT", "")
	_, err := NewLoader().Load()
	assert.ErrorContains(t, err, "no LLM providers")
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	assert.Error(t, err)
}

func TestProvidersHasRemote(t *testing.T) {
	assert.False(t, ProvidersConfig{}.HasRemote())
	assert.True(t, ProvidersConfig{GroqKeys: []string{"k"}}.HasRemote())
}
