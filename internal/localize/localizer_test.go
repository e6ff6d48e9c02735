package localize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func square4Mics() []MicrophonePosition {
	return []MicrophonePosition{
		{X: -0.015, Y: -0.015, Z: 0},
		{X: 0.015, Y: -0.015, Z: 0},
		{X: 0.015, Y: 0.015, Z: 0},
		{X: -0.015, Y: 0.015, Z: 0},
	}
}

func newTestLocalizer(positions []MicrophonePosition) *Localizer {
	return New(Config{
		NumMicrophones:         len(positions),
		MicPositions:           positions,
		MicSpacing:             0.03,
		SampleRate:             16000,
		SpeedOfSound:           343.0,
		CorrelationWindowSize:  256,
		MinConfidenceThreshold: 0.3,
	})
}

// Identical buffers across all channels yield high confidence and a
// location near the origin.
func TestProcessIdenticalChannelsYieldsOrigin(t *testing.T) {
	n := 1024
	signal := make([]float64, n)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 16000)
	}

	lanes := make([][]float64, 4)
	for i := range lanes {
		lanes[i] = append([]float64(nil), signal...)
	}

	loc := newTestLocalizer(square4Mics()).Process(lanes)

	require.GreaterOrEqual(t, loc.Confidence, 0.99)
	dist := math.Sqrt(loc.X*loc.X + loc.Y*loc.Y + loc.Z*loc.Z)
	require.Less(t, dist, 1e-3)
}

// Silent capture yields the origin with confidence in [0, 1].
func TestProcessSilenceYieldsOrigin(t *testing.T) {
	lanes := make([][]float64, 4)
	for i := range lanes {
		lanes[i] = make([]float64, 1024)
	}

	loc := newTestLocalizer(square4Mics()).Process(lanes)

	require.Equal(t, 0.0, loc.X)
	require.Equal(t, 0.0, loc.Y)
	require.Equal(t, 0.0, loc.Z)
	require.GreaterOrEqual(t, loc.Confidence, 0.0)
	require.LessOrEqual(t, loc.Confidence, 1.0)
}

// Three collinear microphones under-determine the system, which the
// M < 4 rule always treats as degenerate.
func TestProcessCollinearMicsDegenerate(t *testing.T) {
	positions := []MicrophonePosition{
		{X: -0.02, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: 0},
		{X: 0.02, Y: 0, Z: 0},
	}
	loc := newTestLocalizer(positions).Process(
		[][]float64{
			sineAt(1024, 0), sineAt(1024, 3), sineAt(1024, 6),
		},
	)

	require.Equal(t, 0.0, loc.X)
	require.Equal(t, 0.0, loc.Y)
	require.Equal(t, 0.0, loc.Z)
}

// Edge case: S < correlation_window returns the zero location.
func TestProcessTooShortReturnsZero(t *testing.T) {
	lanes := [][]float64{
		make([]float64, 10), make([]float64, 10),
		make([]float64, 10), make([]float64, 10),
	}
	loc := newTestLocalizer(square4Mics()).Process(lanes)
	require.Equal(t, SoundLocation{}, loc)
}

func TestSetMicPositionsPreservesCount(t *testing.T) {
	l := newTestLocalizer(square4Mics())

	err := l.SetMicPositions(square4Mics())
	require.NoError(t, err)

	err = l.SetMicPositions(square4Mics()[:2])
	require.Error(t, err)
}

func TestCalibrateIsNoOp(t *testing.T) {
	l := newTestLocalizer(square4Mics())
	require.NoError(t, l.Calibrate(nil))
}

func sineAt(n, shift int) []float64 {
	s := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := i - shift
		if idx < 0 {
			continue
		}
		s[i] = math.Sin(2 * math.Pi * 440 * float64(idx) / 16000)
	}
	return s
}
