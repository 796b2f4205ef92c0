package spectrum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPeaks_WindowFilter(t *testing.T) {
	peaks := []Peak{
		{MZ: 10, Intensity: 1},
		{MZ: 100, Intensity: 1},
		{MZ: 499, Intensity: 1},
		{MZ: 500, Intensity: 1},
	}

	out := CleanPeaks(peaks, CleanOptions{MinMZ: 50, MaxMZ: 500})
	require.Len(t, out, 2)
	assert.Equal(t, float32(100), out[0].MZ)
	assert.Equal(t, float32(499), out[1].MZ)
}

func TestCleanPeaks_NegativeBoundsDisableWindow(t *testing.T) {
	peaks := []Peak{{MZ: 10, Intensity: 1}, {MZ: 5000, Intensity: 1}}

	out := CleanPeaks(peaks, CleanOptions{MinMZ: -1, MaxMZ: -1})
	assert.Len(t, out, 2)
}

func TestCleanPeaks_NoiseThreshold(t *testing.T) {
	peaks := []Peak{
		{MZ: 100, Intensity: 1000},
		{MZ: 200, Intensity: 5}, // below 1% of base peak
		{MZ: 300, Intensity: 50},
	}

	out := CleanPeaks(peaks, CleanOptions{MinMZ: -1, MaxMZ: -1, NoiseThreshold: 0.01})
	require.Len(t, out, 2)
	assert.Equal(t, float32(100), out[0].MZ)
	assert.Equal(t, float32(300), out[1].MZ)
}

func TestCleanPeaks_CentroidsCloseNeighbors(t *testing.T) {
	peaks := []Peak{
		{MZ: 100.00, Intensity: 30},
		{MZ: 100.02, Intensity: 10},
		{MZ: 200.00, Intensity: 20},
	}

	out := CleanPeaks(peaks, CleanOptions{MinMZ: -1, MaxMZ: -1, MinPeakGap: 0.05})
	require.Len(t, out, 2)
	assert.InDelta(t, 100.005, out[0].MZ, 1e-3) // intensity-weighted
	assert.Equal(t, float32(40), out[0].Intensity)
	assert.Equal(t, float32(200), out[1].MZ)
}

func TestCleanPeaks_TopK(t *testing.T) {
	peaks := []Peak{
		{MZ: 300, Intensity: 5},
		{MZ: 100, Intensity: 50},
		{MZ: 200, Intensity: 20},
	}

	out := CleanPeaks(peaks, CleanOptions{MinMZ: -1, MaxMZ: -1, MaxPeaks: 2})
	require.Len(t, out, 2)
	// m/z order restored after intensity selection.
	assert.Equal(t, float32(100), out[0].MZ)
	assert.Equal(t, float32(200), out[1].MZ)
}

func TestCleanPeaks_Normalize(t *testing.T) {
	peaks := []Peak{{MZ: 100, Intensity: 3}, {MZ: 200, Intensity: 1}}

	out := CleanPeaks(peaks, CleanOptions{MinMZ: -1, MaxMZ: -1, Normalize: true})
	require.Len(t, out, 2)
	assert.InDelta(t, 0.75, out[0].Intensity, 1e-6)
	assert.InDelta(t, 0.25, out[1].Intensity, 1e-6)
}

func TestCleanPeaks_DoesNotMutateInput(t *testing.T) {
	peaks := []Peak{{MZ: 200, Intensity: 1}, {MZ: 100, Intensity: 2}}

	_ = CleanPeaks(peaks, CleanOptions{MinMZ: -1, MaxMZ: -1, Normalize: true})
	assert.Equal(t, []Peak{{MZ: 200, Intensity: 1}, {MZ: 100, Intensity: 2}}, peaks)
}

func TestCleanPeaks_CanEmpty(t *testing.T) {
	peaks := []Peak{{MZ: 600, Intensity: 1}}

	out := CleanPeaks(peaks, CleanOptions{MinMZ: -1, MaxMZ: 500})
	assert.Empty(t, out)
}
