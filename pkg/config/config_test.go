package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	cfg, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "./output", cfg.OutputDir)
	require.Equal(t, 1, cfg.Epochs)
	require.Equal(t, 0, cfg.MaxSteps)
	require.Equal(t, 1, cfg.GradAccum)
	require.Equal(t, 1000, cfg.CheckpointEvery)
	require.False(t, cfg.LoadCheckpoint)
	require.True(t, cfg.UseScheduler)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("DITTY_OUTPUT_DIR", "/data/run-7")
	t.Setenv("DITTY_EPOCHS", "5")
	t.Setenv("DITTY_CHECKPOINT_EVERY", "250")
	t.Setenv("DITTY_LOAD_CHECKPOINT", "true")
	t.Setenv("DITTY_SEED", "1234")
	t.Setenv("DITTY_USE_SCHEDULER", "false")

	cfg, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "/data/run-7", cfg.OutputDir)
	require.Equal(t, 5, cfg.Epochs)
	require.Equal(t, 250, cfg.CheckpointEvery)
	require.True(t, cfg.LoadCheckpoint)
	require.Equal(t, uint64(1234), cfg.Seed)
	require.False(t, cfg.UseScheduler)
}
