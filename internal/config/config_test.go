package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearAmbientEnv blanks every variable applyEnvOverrides reads, so the
// tests see file contents only regardless of the developer's shell.
func clearAmbientEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"PILOT_API_KEY", "PILOT_MODEL", "PILOT_BASE_URL", "PILOT_DB",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	clearAmbientEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 0.4, cfg.Tuning.ConfidenceThreshold)
	assert.Equal(t, 0.1, cfg.Tuning.CompoundPenalty)
	assert.Equal(t, 100, cfg.Session.HistoryCap)
	assert.True(t, cfg.HasPermission("layer_control"))
	assert.True(t, cfg.HasCapability("camera_control"))
	assert.False(t, cfg.AIEnabled())
}

func TestLoadOverridesDefaults(t *testing.T) {
	clearAmbientEnv(t)

	path := filepath.Join(t.TempDir(), "pilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tuning:
  confidence_threshold: 0.6
  compound_penalty: 0.2
permissions:
  - layer_control
llm:
  provider: anthropic
  timeout: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Tuning.ConfidenceThreshold)
	assert.Equal(t, 0.2, cfg.Tuning.CompoundPenalty)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.GetLLMTimeout())

	// Replaced wholesale, not merged.
	assert.Equal(t, []string{"layer_control"}, cfg.Permissions)
	assert.False(t, cfg.HasPermission("camera_control"))

	// Untouched sections keep their defaults.
	assert.Equal(t, 0.8, cfg.Tuning.RoutingThreshold)
	assert.Equal(t, 100, cfg.Session.HistoryCap)
}

func TestEnvOverrides(t *testing.T) {
	clearAmbientEnv(t)
	t.Setenv("PILOT_API_KEY", "secret")
	t.Setenv("PILOT_MODEL", "gpt-4o")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.True(t, cfg.AIEnabled())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tuning.ConfidenceThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Session.HistoryCap = 0
	assert.Error(t, cfg.Validate())
}

func TestGetLLMTimeoutFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "not a duration"
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
}

func TestSaveRoundTrip(t *testing.T) {
	clearAmbientEnv(t)

	cfg := DefaultConfig()
	cfg.Tuning.ConfidenceThreshold = 0.55

	path := filepath.Join(t.TempDir(), "nested", "pilot.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.55, loaded.Tuning.ConfidenceThreshold)
}
