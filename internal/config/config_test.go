package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCompactionConfigDefaults(t *testing.T) {
	for _, k := range []string{envCompactionEnabled, envCompactionReserve, envCompactionKeepRecent, envCompactionContextWind} {
		os.Unsetenv(k)
	}

	cfg := LoadCompactionConfig(128000)
	require.True(t, cfg.Enabled)
	require.Equal(t, defaultReserveTokens, cfg.ReserveTokens)
	require.Equal(t, defaultKeepRecentTokens, cfg.KeepRecentTokens)
	require.Equal(t, 128000, cfg.ContextWindowTokens)
}

func TestLoadCompactionConfigOverrides(t *testing.T) {
	t.Setenv(envCompactionEnabled, "0")
	t.Setenv(envCompactionReserve, "1000")
	t.Setenv(envCompactionKeepRecent, "2000")
	t.Setenv(envCompactionContextWind, "5000")

	cfg := LoadCompactionConfig(128000)
	require.False(t, cfg.Enabled)
	require.Equal(t, 1000, cfg.ReserveTokens)
	require.Equal(t, 2000, cfg.KeepRecentTokens)
	require.Equal(t, 5000, cfg.ContextWindowTokens)
}

func TestLoadCompactionConfigInvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv(envCompactionReserve, "not-a-number")
	cfg := LoadCompactionConfig(0)
	require.Equal(t, defaultReserveTokens, cfg.ReserveTokens)
	require.Equal(t, defaultAnthropicContextWin, cfg.ContextWindowTokens)
}
