package denoise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// rms computes root-mean-square via gonum's L2 norm rather than a
// hand-rolled accumulator, used only by these property tests.
func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

func testConfig() Config {
	return Config{
		FrameSize:      1024,
		Overlap:        512,
		Alpha:          2.0,
		Beta:           0.1,
		NoiseThreshold: 0.05,
		SampleRate:     16000,
		Algorithm:      AlgorithmSpectralSubtraction,
	}
}

func sineSignal(n int, freq float64, sampleRate int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return s
}

// With no noise profile trained, the denoiser is a near-identity
// transform, up to its Overlap-sample streaming delay, once the
// windowing transient settles.
func TestProcessIdentityWithoutNoiseProfile(t *testing.T) {
	d, err := New(testConfig(), nil)
	require.NoError(t, err)

	n := 16384
	input := sineSignal(n, 440, 16000)
	output := make([]float64, n)
	require.NoError(t, d.Process(input, output))

	// Each emitted hop is the overlap-added span that started Overlap
	// samples earlier, so output[i] reconstructs input[i-lag]. Skip the
	// first two frames so the start-up transient has settled.
	lag := testConfig().Overlap
	skip := 2048
	var errEnergy, sigEnergy float64
	for i := skip; i < n; i++ {
		diff := output[i] - input[i-lag]
		errEnergy += diff * diff
		sigEnergy += input[i-lag] * input[i-lag]
	}

	ratio := math.Sqrt(errEnergy / sigEnergy)
	t.Logf("relative error = %.4f", ratio)
	require.Less(t, ratio, 0.05)
}

// newPseudoNoise returns a deterministic xorshift generator (no
// math/rand, for reproducibility) producing values in [-0.1, 0.1].
func newPseudoNoise(seed uint32) func() float64 {
	state := seed
	return func() float64 {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		return (float64(int32(state)) / float64(math.MaxInt32)) * 0.1
	}
}

// A noise profile trained on pure noise, applied to signal+noise,
// does not amplify the mixed signal.
func TestProcessReducesNoiseAfterTraining(t *testing.T) {
	d, err := New(testConfig(), nil)
	require.NoError(t, err)

	noiseAt := newPseudoNoise(12345)

	noiseOnly := make([]float64, 8192)
	for i := range noiseOnly {
		noiseOnly[i] = noiseAt()
	}
	d.TrainNoiseProfile(noiseOnly)
	require.True(t, d.NoiseReady())

	n := 32768
	input := make([]float64, n)
	for i := range input {
		input[i] = 0.5*math.Sin(2*math.Pi*1000*float64(i)/16000) + noiseAt()
	}

	output := make([]float64, n)
	require.NoError(t, d.Process(input, output))

	inputRMS := rms(input)
	outputRMS := rms(output)
	require.Greater(t, outputRMS, 0.0)
	t.Logf("input RMS=%.4f output RMS=%.4f", inputRMS, outputRMS)

	// The denoiser should not amplify the signal.
	require.LessOrEqual(t, outputRMS, inputRMS*1.1)
}

// A noise profile trained on pure noise, applied to an independent
// noise-only segment drawn from the same process (no speech/tone
// component at all, isolating the noise band), reduces RMS energy by
// at least 6 dB — the acceptance threshold for out-of-band noise-bin
// suppression.
func TestProcessReducesNoiseFloorBySixDB(t *testing.T) {
	d, err := New(testConfig(), nil)
	require.NoError(t, err)

	train := newPseudoNoise(12345)
	noiseOnly := make([]float64, 8192)
	for i := range noiseOnly {
		noiseOnly[i] = train()
	}
	d.TrainNoiseProfile(noiseOnly)
	require.True(t, d.NoiseReady())

	// A fresh pseudo-noise stream with a different seed: an
	// independent realization of the same noise process, not the
	// exact samples used to train the profile.
	test := newPseudoNoise(98765)
	n := 32768
	input := make([]float64, n)
	for i := range input {
		input[i] = test()
	}

	output := make([]float64, n)
	require.NoError(t, d.Process(input, output))

	// Skip the first two frames (start-up delay and transient) before
	// measuring steady state.
	skip := 2048
	inputRMS := rms(input[skip:])
	outputRMS := rms(output[skip:])
	require.Greater(t, inputRMS, 0.0)

	reductionDB := 20 * math.Log10(inputRMS/math.Max(outputRMS, 1e-12))
	t.Logf("noise floor reduction = %.2f dB", reductionDB)
	require.GreaterOrEqual(t, reductionDB, 6.0)
}

func TestUnrecognizedAlgorithmPassesThrough(t *testing.T) {
	cfg := testConfig()
	cfg.Algorithm = "wiener"

	var warned bool
	d, err := New(cfg, func(msg string, kv ...interface{}) { warned = true })
	require.NoError(t, err)

	input := sineSignal(2048, 440, 16000)
	output := make([]float64, len(input))
	require.NoError(t, d.Process(input, output))

	require.Equal(t, input, output)
	require.True(t, warned)
}

func TestNewRejectsInvalidFrameSize(t *testing.T) {
	cfg := testConfig()
	cfg.FrameSize = 1000 // not a power of two
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestNewRejectsOverlapTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Overlap = cfg.FrameSize
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestSetNoiseThreshold(t *testing.T) {
	d, err := New(testConfig(), nil)
	require.NoError(t, err)
	d.SetNoiseThreshold(0.2)
	require.InDelta(t, 0.2, d.cfg.NoiseThreshold, 1e-9)
}
