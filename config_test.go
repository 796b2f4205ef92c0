package msentropy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2bereal-me/MSEntropy/shard"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
build_threshold: 5000
insert_mode: fast_search
neutral_loss: false
clean:
  enabled: true
  precursor_removal_da: 2.0
  noise_threshold: 0.02
  min_peak_gap_da: 0.1
  max_peaks: 100
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.BuildThreshold)
	assert.Equal(t, "fast_search", cfg.InsertMode)
	require.NotNil(t, cfg.NeutralLoss)
	assert.False(t, *cfg.NeutralLoss)
	require.NotNil(t, cfg.Clean.MaxPeaks)
	assert.Equal(t, 100, *cfg.Clean.MaxPeaks)

	opts, err := cfg.Options()
	require.NoError(t, err)

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	assert.Equal(t, 5000, o.buildThreshold)
	assert.Equal(t, shard.FastSearch, o.insertMode)
	assert.False(t, o.neutralLoss)
	assert.True(t, o.cleanEnabled)
	assert.InDelta(t, 2.0, o.precursorRemoval, 1e-6)
	assert.InDelta(t, 0.02, o.noiseThreshold, 1e-6)
	assert.InDelta(t, 0.1, o.minPeakGap, 1e-6)
	assert.Equal(t, 100, o.maxPeaks)
}

func TestConfig_AbsentFieldsKeepDefaults(t *testing.T) {
	path := writeConfig(t, `build_threshold: 200`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	opts, err := cfg.Options()
	require.NoError(t, err)

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	want := defaultOptions()
	assert.Equal(t, 200, o.buildThreshold)
	assert.Equal(t, want.insertMode, o.insertMode)
	assert.Equal(t, want.neutralLoss, o.neutralLoss)
	assert.Equal(t, want.cleanEnabled, o.cleanEnabled)
	assert.Equal(t, want.precursorRemoval, o.precursorRemoval)
}

func TestConfig_UnknownInsertMode(t *testing.T) {
	cfg := &Config{InsertMode: "turbo"}
	_, err := cfg.Options()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turbo")
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
