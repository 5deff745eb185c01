package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivycove/cortex/internal/config"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	version, _, err := cmd.Find([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version", version.Name())
}

func TestBuildGatewayDefaultsPerProvider(t *testing.T) {
	gw, err := buildGateway(&config.Config{AIProvider: "anthropic"})
	require.NoError(t, err)
	assert.Len(t, gw.Tiers, 3)
	assert.Equal(t, "claude-3-5-haiku-latest", gw.Tiers[0].ModelID)

	gw, err = buildGateway(&config.Config{AIProvider: "openrouter"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3.5-haiku", gw.Tiers[0].ModelID)

	_, err = buildGateway(&config.Config{AIProvider: "unknown"})
	assert.Error(t, err)
}

func TestBuildGatewayModelOverrideAppliesToEveryTier(t *testing.T) {
	gw, err := buildGateway(&config.Config{AIProvider: "anthropic", AIModel: "pinned-model"})
	require.NoError(t, err)
	for _, tier := range gw.Tiers {
		assert.Equal(t, "pinned-model", tier.ModelID)
	}
}
