// Package mix implements the spatial stereo downmixer, grounded on
// audio_output.c's apply_stereo_panning.
package mix

import (
	"math"
	"sync/atomic"

	"github.com/lenik/micarray/internal/localize"
)

// Mixer downmixes a mono buffer into angle-panned, distance-attenuated
// stereo samples, scaled by a live-updatable global volume.
type Mixer struct {
	volume atomic.Uint64 // float64 bits, read/written atomically (§4.4 "Volume")
}

// New constructs a Mixer with the given initial volume in [0, 1].
func New(initialVolume float64) *Mixer {
	m := &Mixer{}
	m.SetVolume(initialVolume)
	return m
}

// SetVolume clamps and atomically stores the global volume.
func (m *Mixer) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	m.volume.Store(math.Float64bits(v))
}

// Volume returns the current global volume.
func (m *Mixer) Volume() float64 {
	return math.Float64frombits(m.volume.Load())
}

// Process downmixes mono samples in [-1, 1] into clipped int16 stereo
// frames using the angle/distance/confidence gain formulas below.
func (m *Mixer) Process(mono []float64, loc localize.SoundLocation) (left, right []int16) {
	gainL, gainR := m.gains(loc)

	left = make([]int16, len(mono))
	right = make([]int16, len(mono))
	for i, s := range mono {
		left[i] = clipInt16(s * gainL)
		right[i] = clipInt16(s * gainR)
	}
	return left, right
}

func (m *Mixer) gains(loc localize.SoundLocation) (gainL, gainR float64) {
	angle := math.Atan2(loc.Y, loc.X)
	pan := clamp(angle/math.Pi, -1, 1)

	dist := math.Sqrt(loc.X*loc.X + loc.Y*loc.Y)
	attn := clamp(1/(1+0.1*dist), 0.1, 1)

	volume := m.Volume()
	gainL = ((1-pan)/2 + 0.5) * attn * loc.Confidence * volume
	gainR = ((1+pan)/2 + 0.5) * attn * loc.Confidence * volume
	return gainL, gainR
}

// Downmix averages M per-channel lanes into a single mono buffer,
// grounded on the processing_thread_func accumulate-then-divide loop.
func Downmix(lanes [][]float64) []float64 {
	if len(lanes) == 0 {
		return nil
	}
	n := len(lanes[0])
	mono := make([]float64, n)
	for _, lane := range lanes {
		for i, s := range lane {
			mono[i] += s
		}
	}
	inv := 1.0 / float64(len(lanes))
	for i := range mono {
		mono[i] *= inv
	}
	return mono
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

func clipInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * 32767))
}
