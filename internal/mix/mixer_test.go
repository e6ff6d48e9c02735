package mix

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lenik/micarray/internal/localize"
)

func TestProcessSilenceYieldsZeroOutput(t *testing.T) {
	m := New(1.0)
	mono := make([]float64, 256)
	left, right := m.Process(mono, localize.SoundLocation{Confidence: 1})
	for i := range mono {
		require.Equal(t, int16(0), left[i])
		require.Equal(t, int16(0), right[i])
	}
}

// set_volume(v) scales output by exactly v, modulo the
// panning/attenuation factors this test pins at a neutral location.
func TestSetVolumeScalesOutput(t *testing.T) {
	mono := []float64{0.5, -0.5, 1.0}
	loc := localize.SoundLocation{X: 0, Y: 0, Z: 0, Confidence: 1}

	full := New(1.0)
	half := New(0.5)

	leftFull, rightFull := full.Process(mono, loc)
	leftHalf, rightHalf := half.Process(mono, loc)

	for i := range mono {
		require.InDelta(t, float64(leftFull[i])/2, float64(leftHalf[i]), 1.0)
		require.InDelta(t, float64(rightFull[i])/2, float64(rightHalf[i]), 1.0)
	}
}

func TestSetVolumeClamps(t *testing.T) {
	m := New(0)
	m.SetVolume(1.5)
	require.Equal(t, 1.0, m.Volume())
	m.SetVolume(-0.2)
	require.Equal(t, 0.0, m.Volume())
}

func TestDownmixAverages(t *testing.T) {
	lanes := [][]float64{
		{1, 1, 1},
		{-1, -1, -1},
		{0, 0.5, 1},
	}
	mono := Downmix(lanes)
	require.InDelta(t, 0.0, mono[0], 1e-9)
	require.InDelta(t, 1.0/6, mono[1], 1e-9)
	require.InDelta(t, 1.0/3, mono[2], 1e-9)
}
