// Package localize implements TDOA cross-correlation and linear
// trilateration source localization, grounded on the C reference's
// localization.c.
package localize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// maxDelaySamples caps the cross-correlation search window,
	// grounded on MAX_DELAY_SAMPLES in localization.c.
	maxDelaySamples = 1000

	// defaultSpeedOfSound is used when not overridden, in m/s.
	defaultSpeedOfSound = 343.0

	// pivotEpsilon is the degeneracy threshold for Gaussian elimination,
	// grounded on the `fabsf(A[i][i]) < 1e-10f` check.
	pivotEpsilon = 1e-10
)

// MicrophonePosition is a 3D coordinate per microphone, in meters.
type MicrophonePosition struct {
	X, Y, Z float64
}

// SoundLocation is the estimated source position plus confidence.
type SoundLocation struct {
	X, Y, Z    float64
	Confidence float64
}

// Config configures a Localizer at construction.
type Config struct {
	NumMicrophones         int
	MicPositions           []MicrophonePosition // nil => equally-spaced ring
	MicSpacing             float64               // meters: ring radius when MicPositions is nil; always bounds the delay search
	SampleRate             int
	SpeedOfSound           float64 // m/s, defaults to 343 when <= 0
	CorrelationWindowSize  int
	MinConfidenceThreshold float64
}

// Localizer estimates source direction from M synchronized channels.
type Localizer struct {
	cfg          Config
	micPositions []MicrophonePosition
	delays       []float64
	confidences  []float64
}

// RingPositions returns microphone positions equally spaced on a ring
// of the given radius (meters) in the z=0 plane, angle 2*pi*i/n,
// grounded on micarray_init's default mic_positions construction.
func RingPositions(n int, radiusMeters float64) []MicrophonePosition {
	positions := make([]MicrophonePosition, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		positions[i] = MicrophonePosition{
			X: radiusMeters * math.Cos(angle),
			Y: radiusMeters * math.Sin(angle),
			Z: 0,
		}
	}
	return positions
}

// New constructs a Localizer. If cfg.MicPositions is nil, positions
// default to an equally-spaced ring at radius cfg.MicSpacing.
func New(cfg Config) *Localizer {
	if cfg.SpeedOfSound <= 0 {
		cfg.SpeedOfSound = defaultSpeedOfSound
	}

	positions := cfg.MicPositions
	if positions == nil {
		positions = RingPositions(cfg.NumMicrophones, cfg.MicSpacing)
	}

	return &Localizer{
		cfg:          cfg,
		micPositions: append([]MicrophonePosition(nil), positions...),
		delays:       make([]float64, cfg.NumMicrophones),
		confidences:  make([]float64, cfg.NumMicrophones),
	}
}

// SetMicPositions rewrites the microphone array geometry, preserving
// the configured microphone count. Grounded on
// localization_set_mic_positions.
func (l *Localizer) SetMicPositions(positions []MicrophonePosition) error {
	if len(positions) != l.cfg.NumMicrophones {
		return errInvalidMicCount(len(positions), l.cfg.NumMicrophones)
	}
	copy(l.micPositions, positions)
	return nil
}

// Calibrate is a documented no-op: the C reference declares
// localization_calibrate but never implements it.
func (l *Localizer) Calibrate(calibrationData [][]float64) error {
	return nil
}

// Process estimates a SoundLocation from M synchronized per-channel
// buffers of length S: per-channel delay estimation against a
// reference channel, confidence averaging, and trilateration.
func (l *Localizer) Process(lanes [][]float64) SoundLocation {
	if len(lanes) == 0 {
		return SoundLocation{}
	}
	samples := len(lanes[0])
	if samples < l.cfg.CorrelationWindowSize {
		return SoundLocation{}
	}

	maxDelay := int(math.Ceil(l.cfg.MicSpacing * 2.0 / l.cfg.SpeedOfSound * float64(l.cfg.SampleRate)))
	if maxDelay > maxDelaySamples {
		maxDelay = maxDelaySamples
	}
	if maxDelay < 1 {
		maxDelay = 1
	}

	reference := lanes[0]
	l.delays[0] = 0
	l.confidences[0] = 1

	for i := 1; i < l.cfg.NumMicrophones && i < len(lanes); i++ {
		delay, confidence := estimateDelay(reference, lanes[i], maxDelay)
		l.delays[i] = float64(delay)
		l.confidences[i] = confidence
	}

	avgConfidence := mean(l.confidences[:l.cfg.NumMicrophones])
	if math.IsNaN(avgConfidence) || math.IsInf(avgConfidence, 0) {
		return SoundLocation{}
	}
	if avgConfidence < l.cfg.MinConfidenceThreshold {
		return SoundLocation{Confidence: avgConfidence}
	}

	delaySeconds := make([]float64, l.cfg.NumMicrophones)
	for i := range delaySeconds {
		delaySeconds[i] = l.delays[i] / float64(l.cfg.SampleRate)
	}

	loc, ok := l.trilaterate(delaySeconds)
	if !ok {
		return SoundLocation{Confidence: avgConfidence}
	}
	loc.Confidence = avgConfidence

	if math.IsNaN(loc.X) || math.IsNaN(loc.Y) || math.IsNaN(loc.Z) ||
		math.IsInf(loc.X, 0) || math.IsInf(loc.Y, 0) || math.IsInf(loc.Z, 0) {
		return SoundLocation{Confidence: avgConfidence}
	}

	return loc
}

// trilaterate solves the 3x3 linear system built from mic-pairs
// (0, i) for i in [1, 4), using Gaussian elimination with partial
// pivoting via gonum's LU decomposition. Returns ok=false when any
// pivot is below pivotEpsilon (a degenerate system).
func (l *Localizer) trilaterate(tdoaSeconds []float64) (SoundLocation, bool) {
	n := len(l.micPositions) - 1
	if n > 3 {
		n = 3
	}
	if n < 3 {
		return SoundLocation{}, false
	}

	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)

	ref := l.micPositions[0]
	for i := 1; i <= 3; i++ {
		mic := l.micPositions[i]
		dx := mic.X - ref.X
		dy := mic.Y - ref.Y
		dz := mic.Z - ref.Z

		d := tdoaSeconds[i] * l.cfg.SpeedOfSound

		row := i - 1
		a.Set(row, 0, 2*dx)
		a.Set(row, 1, 2*dy)
		a.Set(row, 2, 2*dz)
		b.SetVec(row, d*d-(dx*dx+dy*dy+dz*dz))
	}

	if !hasNonDegeneratePivots(a, pivotEpsilon) {
		return SoundLocation{}, false
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return SoundLocation{}, false
	}

	return SoundLocation{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}, true
}

// hasNonDegeneratePivots mirrors the original's explicit
// partial-pivoting pivot check: after selecting the largest-magnitude
// pivot in each column, any pivot smaller than eps makes the system
// degenerate.
func hasNonDegeneratePivots(a *mat.Dense, eps float64) bool {
	n, _ := a.Dims()
	m := mat.DenseCopyOf(a)
	for col := 0; col < n; col++ {
		maxRow := col
		maxVal := math.Abs(m.At(col, col))
		for row := col + 1; row < n; row++ {
			if v := math.Abs(m.At(row, col)); v > maxVal {
				maxVal = v
				maxRow = row
			}
		}
		if maxRow != col {
			for k := 0; k < n; k++ {
				tmp := m.At(col, k)
				m.Set(col, k, m.At(maxRow, k))
				m.Set(maxRow, k, tmp)
			}
		}
		if math.Abs(m.At(col, col)) < eps {
			return false
		}
		for row := col + 1; row < n; row++ {
			factor := m.At(row, col) / m.At(col, col)
			for k := col; k < n; k++ {
				m.Set(row, k, m.At(row, k)-factor*m.At(col, k))
			}
		}
	}
	return true
}

// estimateDelay finds the integer sample delay in [-maxDelay, maxDelay]
// that maximizes the normalized cross-correlation between ref and
// target, returning that delay and its peak correlation as confidence.
func estimateDelay(ref, target []float64, maxDelay int) (int, float64) {
	bestDelay := 0
	bestCorr := -1.0

	for delay := -maxDelay; delay <= maxDelay; delay++ {
		corr := crossCorrelate(ref, target, delay)
		if corr > bestCorr {
			bestCorr = corr
			bestDelay = delay
		}
	}

	return bestDelay, bestCorr
}

// crossCorrelate computes the normalized cross-correlation at integer
// lag `delay`, grounded on localization.c's cross_correlate.
func crossCorrelate(sig1, sig2 []float64, delay int) float64 {
	n := len(sig1)
	if len(sig2) < n {
		n = len(sig2)
	}

	absDelay := delay
	if absDelay < 0 {
		absDelay = -absDelay
	}
	if absDelay >= n {
		return 0
	}

	var correlation, norm1, norm2 float64
	for i := 0; i < n-absDelay; i++ {
		var idx1, idx2 int
		if delay >= 0 {
			idx1, idx2 = i, i+delay
		} else {
			idx1, idx2 = i-delay, i
		}
		if idx1 < 0 || idx1 >= n || idx2 < 0 || idx2 >= n {
			continue
		}
		s1, s2 := sig1[idx1], sig2[idx2]
		correlation += s1 * s2
		norm1 += s1 * s1
		norm2 += s2 * s2
	}

	denom := math.Sqrt(norm1 * norm2)
	if denom <= 0 {
		return 0
	}
	return correlation / denom
}

func errInvalidMicCount(got, want int) error {
	return fmt.Errorf("localize: position count %d does not match configured microphone count %d", got, want)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
