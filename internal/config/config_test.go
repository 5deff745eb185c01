package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if body != "" {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	t.Setenv("COGNITION_CONFIG", path)
}

func TestLoadAppliesDefaultsWhenUnconfigured(t *testing.T) {
	withTempConfig(t, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, defaultMaxMessageLength, cfg.MaxMessageLength)
	assert.Equal(t, "anthropic", cfg.AIProvider)
	assert.Equal(t, defaultReplenishRate, cfg.ReplenishRate)
	assert.Equal(t, defaultDBPath, cfg.DBPath)
	assert.True(t, cfg.SubAgentEnabled)
	assert.True(t, cfg.EventsEnabled)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	withTempConfig(t, `
ai_provider = "openrouter"
ai_model = "deepseek/deepseek-chat"
energy_replenish_rate = 10.0
db_path = "/tmp/custom.db"
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.AIProvider)
	assert.Equal(t, "deepseek/deepseek-chat", cfg.AIModel)
	assert.Equal(t, 10.0, cfg.ReplenishRate)
	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	withTempConfig(t, `port = 9000`)
	t.Setenv("PORT", "9100")
	t.Setenv("RUN_DURATION", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Duration)
}

func TestLoadResolvesLegacyProviderAPIKey(t *testing.T) {
	withTempConfig(t, "")
	t.Setenv("ANTHROPIC_API_KEY", "legacy-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.ProviderAPIKey)
}

func TestLoadPrefersExplicitProviderAPIKeyOverLegacy(t *testing.T) {
	withTempConfig(t, "")
	t.Setenv("ANTHROPIC_API_KEY", "legacy-key")
	t.Setenv("PROVIDER_API_KEY", "explicit-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "explicit-key", cfg.ProviderAPIKey)
}

func TestValidateStartupRejectsBadPort(t *testing.T) {
	cfg := defaults
	cfg.Port = 70000
	assert.Error(t, ValidateStartup(&cfg))
}

func TestValidateStartupRejectsMissingProvider(t *testing.T) {
	cfg := defaults
	cfg.AIProvider = "   "
	assert.Error(t, ValidateStartup(&cfg))
}

func TestValidateStartupCreatesDBDirectory(t *testing.T) {
	cfg := defaults
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "cognition.db")
	require.NoError(t, ValidateStartup(&cfg))
	info, err := os.Stat(filepath.Dir(cfg.DBPath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestValidateStartupRejectsNilConfig(t *testing.T) {
	assert.Error(t, ValidateStartup(nil))
}
