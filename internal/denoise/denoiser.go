// Package denoise implements the STFT overlap-add spectral-subtraction
// denoiser, grounded on the C reference's noise_reduction.c. Frames
// are processed with the iterative FFT in internal/dsp rather than
// FFTW, since any mature FFT with r2c/c2r planners serves the same
// purpose.
package denoise

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/lenik/micarray/internal/dsp"
	"github.com/lenik/micarray/internal/pkgerr"
)

const epsilon = 1e-10

// AlgorithmSpectralSubtraction is the only recognized algorithm name;
// any other value passes audio through unchanged.
const AlgorithmSpectralSubtraction = "spectral_subtraction"

// Config configures a Denoiser at construction. All fields are
// immutable after init except NoiseThreshold, which has a setter.
type Config struct {
	FrameSize      int
	Overlap        int
	Alpha          float64 // over-subtraction factor
	Beta           float64 // noise floor
	NoiseThreshold float64 // SNR gate
	SampleRate     int
	Algorithm      string
}

// WarnFunc receives a warning message, e.g. for an unrecognized
// algorithm name. Pass nil to discard warnings.
type WarnFunc func(msg string, kv ...interface{})

// Denoiser performs per-channel STFT spectral subtraction. It is not
// safe for concurrent use across channels — each channel needs its
// own instance.
type Denoiser struct {
	cfg Config
	hop int

	window      []float64
	synthNorm   []float64 // precomputed overlap-add energy normalization, length hop
	accumulator []float64
	bufferPos   int
	overlapTail []float64

	noise []float64 // magnitude spectrum, length F/2+1
	ready bool

	warn WarnFunc
	warned bool
}

// New validates cfg and constructs a Denoiser.
func New(cfg Config, warn WarnFunc) (*Denoiser, error) {
	if !dsp.IsPowerOf2(cfg.FrameSize) {
		return nil, pkgerr.New(pkgerr.ErrInvalidParam, "denoise.New",
			fmt.Errorf("frame size %d is not a power of two", cfg.FrameSize))
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.FrameSize {
		return nil, pkgerr.New(pkgerr.ErrInvalidParam, "denoise.New",
			fmt.Errorf("overlap %d must be in [0, %d)", cfg.Overlap, cfg.FrameSize))
	}

	hop := cfg.FrameSize - cfg.Overlap
	window := dsp.HannWindow(cfg.FrameSize)

	return &Denoiser{
		cfg:         cfg,
		hop:         hop,
		window:      window,
		synthNorm:   synthesisNorm(window, hop),
		accumulator: make([]float64, cfg.FrameSize),
		overlapTail: make([]float64, cfg.Overlap),
		noise:       make([]float64, cfg.FrameSize/2+1),
		warn:        warn,
	}, nil
}

// synthesisNorm precomputes the steady-state overlap-add energy at
// each emitted sample position: window[i]^2 from the current frame
// plus window[hop+i]^2 carried in from the previous frame's tail
// (when that index falls within the frame). Dividing the overlap-added
// output by this factor corrects the amplitude ripple that applying
// the Hann window twice (analysis and synthesis) would otherwise leave
// in the reconstructed signal — a windowed-energy-normalization
// technique adapted to a streaming frame-at-a-time overlap-add instead
// of a whole-buffer pass.
func synthesisNorm(window []float64, hop int) []float64 {
	n := len(window)
	norm := make([]float64, hop)
	for i := 0; i < hop; i++ {
		norm[i] = window[i] * window[i]
		if hop+i < n {
			norm[i] += window[hop+i] * window[hop+i]
		}
	}
	return norm
}

// SetNoiseThreshold updates the SNR gate at runtime.
func (d *Denoiser) SetNoiseThreshold(threshold float64) {
	d.cfg.NoiseThreshold = threshold
}

// NoiseReady reports whether a noise profile has been trained.
func (d *Denoiser) NoiseReady() bool { return d.ready }

// TrainNoiseProfile estimates the noise magnitude spectrum from a
// caller-supplied noise-only segment by sliding Hann-windowed,
// frame-size windows at hop F/2 and averaging their magnitude
// spectra. A re-train replaces the entire profile. Grounded on
// noise_reduction_update_noise_profile.
func (d *Denoiser) TrainNoiseProfile(noiseSamples []float64) {
	acc := make([]float64, len(d.noise))
	trainHop := d.cfg.FrameSize / 2

	frames := 0
	for pos := 0; pos+d.cfg.FrameSize <= len(noiseSamples); pos += trainHop {
		frame := make([]float64, d.cfg.FrameSize)
		copy(frame, noiseSamples[pos:pos+d.cfg.FrameSize])
		dsp.ApplyWindow(frame, d.window)

		spectrum := dsp.RealFFT(frame)
		for k := range acc {
			acc[k] += cmplx.Abs(spectrum[k])
		}
		frames++
	}

	if frames == 0 {
		return
	}
	for k := range acc {
		acc[k] /= float64(frames)
	}
	d.noise = acc
	d.ready = true
}

// Process denoises input (normalized to [-1, 1]) into output, which
// must be at least as long as input; input and output may alias
// (in-place processing). Streaming state (the accumulator and
// overlap tail) persists across calls.
func (d *Denoiser) Process(input, output []float64) error {
	if len(output) < len(input) {
		return pkgerr.New(pkgerr.ErrInvalidParam, "denoise.Process",
			fmt.Errorf("output length %d shorter than input length %d", len(output), len(input)))
	}

	if d.cfg.Algorithm != "" && d.cfg.Algorithm != AlgorithmSpectralSubtraction {
		if d.warn != nil && !d.warned {
			d.warn("denoise: unrecognized algorithm, passing audio through unchanged", "algorithm", d.cfg.Algorithm)
			d.warned = true
		}
		copy(output[:len(input)], input)
		return nil
	}

	processed := 0
	for processed < len(input) {
		toCopy := min(len(input)-processed, d.cfg.FrameSize-d.bufferPos)
		copy(d.accumulator[d.bufferPos:d.bufferPos+toCopy], input[processed:processed+toCopy])
		d.bufferPos += toCopy
		processed += toCopy

		if d.bufferPos >= d.cfg.FrameSize {
			frame := make([]float64, d.cfg.FrameSize)
			copy(frame, d.accumulator)
			dsp.ApplyWindow(frame, d.window)

			spectrum := dsp.RealFFT(frame)
			d.spectralSubtract(spectrum)

			cleaned := dsp.IFFT(spectrum)
			result := make([]float64, d.cfg.FrameSize)
			for i, c := range cleaned {
				result[i] = real(c) * d.window[i]
			}

			for i := 0; i < d.cfg.Overlap; i++ {
				result[i] += d.overlapTail[i]
			}

			outCursor := processed - toCopy
			outputSamples := min(d.hop, len(input)-outCursor)
			for i := 0; i < outputSamples; i++ {
				s := result[i] / maxFloat(d.synthNorm[i], epsilon)
				if s > 1 {
					s = 1
				} else if s < -1 {
					s = -1
				}
				output[outCursor+i] = s
			}

			copy(d.overlapTail, result[d.hop:d.hop+d.cfg.Overlap])

			copy(d.accumulator, d.accumulator[d.hop:])
			d.bufferPos -= d.hop
		}
	}

	return nil
}

// spectralSubtract applies the over-subtraction gain curve to each
// bin [0, F/2], in place.
func (d *Denoiser) spectralSubtract(spectrum []complex128) {
	for k := 0; k <= d.cfg.FrameSize/2; k++ {
		mag := cmplx.Abs(spectrum[k])
		phase := cmplx.Phase(spectrum[k])

		if d.ready {
			snr := mag / (d.noise[k] + epsilon)

			var gain float64
			if snr > d.cfg.NoiseThreshold {
				gain = 1 - d.cfg.Alpha*(d.noise[k]/maxFloat(mag, epsilon))
			} else {
				gain = d.cfg.Beta
			}

			gain = clamp(gain, d.cfg.Beta, 1)
			mag *= gain
		}

		spectrum[k] = cmplx.Rect(mag, phase)
		if k != 0 && k != d.cfg.FrameSize/2 {
			// Real-valued input: mirror the conjugate-symmetric upper
			// half so the inverse FFT reconstructs a real signal.
			spectrum[d.cfg.FrameSize-k] = cmplx.Conj(spectrum[k])
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RMS returns the root-mean-square of a float64 slice, used by the
// pipeline's noise-metric logging.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}
