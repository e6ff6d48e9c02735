package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFFTRoundtrip(t *testing.T) {
	n := 1024
	input := make([]complex128, n)
	for i := 0; i < n; i++ {
		v := math.Sin(2*math.Pi*3*float64(i)/float64(n)) +
			0.5*math.Cos(2*math.Pi*7*float64(i)/float64(n))
		input[i] = complex(v, 0)
	}

	spectrum := FFT(input)
	recovered := IFFT(spectrum)

	for i := 0; i < n; i++ {
		diff := cmplx.Abs(input[i] - recovered[i])
		require.Less(t, diff, 1e-9, "sample %d: expected %v, got %v", i, input[i], recovered[i])
	}
}

func TestFFTParseval(t *testing.T) {
	n := 512
	input := make([]complex128, n)
	for i := 0; i < n; i++ {
		input[i] = complex(math.Sin(2*math.Pi*float64(i)/float64(n)), 0)
	}

	spectrum := FFT(input)

	var timeEnergy, freqEnergy float64
	for i := 0; i < n; i++ {
		timeEnergy += cmplx.Abs(input[i]) * cmplx.Abs(input[i])
		freqEnergy += cmplx.Abs(spectrum[i]) * cmplx.Abs(spectrum[i])
	}
	freqEnergy /= float64(n)

	require.InDelta(t, timeEnergy, freqEnergy, 1e-6, "Parseval violated")
}

func TestIsPowerOf2(t *testing.T) {
	cases := map[int]bool{0: false, 1: true, 2: true, 3: false, 1024: true, 1023: false}
	for n, want := range cases {
		require.Equal(t, want, IsPowerOf2(n), "n=%d", n)
	}
}

func TestNextPowerOf2(t *testing.T) {
	require.Equal(t, 1, NextPowerOf2(0))
	require.Equal(t, 1024, NextPowerOf2(1000))
	require.Equal(t, 1024, NextPowerOf2(1024))
	require.Equal(t, 2048, NextPowerOf2(1025))
}

func TestHannWindowShape(t *testing.T) {
	n := 256
	w := HannWindow(n)

	require.Len(t, w, n)
	require.InDelta(t, 0.0, w[0], 1e-9)
	require.InDelta(t, 0.0, w[n-1], 1e-9)
	require.InDelta(t, 1.0, w[(n-1)/2], 1e-2, "peak near center")

	// Symmetric: w[i] == w[n-1-i].
	for i := 0; i < n/2; i++ {
		require.InDelta(t, w[i], w[n-1-i], 1e-9, "index %d", i)
	}
}
