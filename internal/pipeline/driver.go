// Package pipeline wires capture, denoise, localize, and mix into the
// three-stage concurrent driver, grounded on libmicarray.c's
// audio_callback/processing_thread_func/playback structure and
// micarray_init/micarray_start/micarray_stop's all-or-nothing
// lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lenik/micarray/internal/audioio"
	"github.com/lenik/micarray/internal/capture"
	"github.com/lenik/micarray/internal/denoise"
	"github.com/lenik/micarray/internal/localize"
	"github.com/lenik/micarray/internal/logging"
	"github.com/lenik/micarray/internal/metrics"
	"github.com/lenik/micarray/internal/mix"
	"github.com/lenik/micarray/internal/pkgerr"
)

// pollInterval bounds how long the processing goroutine sleeps between
// ring-buffer level checks when waiting for a full frame, grounded on
// processing_thread_func's usleep(1000) poll.
const pollInterval = time.Millisecond

// Config configures a Driver.
type Config struct {
	NumMicrophones   int
	SampleRate       int
	FrameSize        int // samples per channel per processing block (dma_buffer_size)
	NoiseReduction   bool
	Denoise          denoise.Config
	Localize         localize.Config
	InitialVolume    float64
	RingBufferFrames int // ring buffer capacity, in frame-blocks; defaults to 4
}

// Driver owns the capture/process/playback goroutines and the
// microphone array's live state (location, volume). It is the Go
// analogue of the original's opaque micarray_context_t.
type Driver struct {
	cfg      Config
	producer audioio.Producer
	consumer audioio.Consumer
	logger   *logging.Logger
	metrics  *metrics.Metrics

	ring       *capture.RingBuffer
	denoisers  []*denoise.Denoiser
	localizer  *localize.Localizer
	mixer      *mix.Mixer
	framesOut  chan []int16
	captureEnd atomic.Bool

	dataMu   sync.Mutex // guards location only; disjoint from ring's mutex
	location localize.SoundLocation

	running atomic.Bool
	cancel  context.CancelFunc
	eg      *errgroup.Group
	stopOne sync.Once
}

// New constructs a Driver, validating cfg and building every component
// up front. Construction is all-or-nothing: any failure returns an
// error with nothing left half-built, since the components built here
// hold no external resources to roll back (goroutines are not started
// until Start).
func New(cfg Config, producer audioio.Producer, consumer audioio.Consumer, logger *logging.Logger, m *metrics.Metrics) (*Driver, error) {
	if cfg.NumMicrophones < 1 {
		return nil, pkgerr.New(pkgerr.ErrInvalidParam, "pipeline.New",
			fmt.Errorf("num_microphones %d must be >= 1", cfg.NumMicrophones))
	}
	if cfg.FrameSize < 1 {
		return nil, pkgerr.New(pkgerr.ErrInvalidParam, "pipeline.New",
			fmt.Errorf("frame size %d must be >= 1", cfg.FrameSize))
	}
	if cfg.RingBufferFrames <= 0 {
		cfg.RingBufferFrames = 4
	}

	localizer := localize.New(cfg.Localize)

	denoisers := make([]*denoise.Denoiser, cfg.NumMicrophones)
	if cfg.NoiseReduction {
		for i := range denoisers {
			d, err := denoise.New(cfg.Denoise, loggerWarnFunc(logger))
			if err != nil {
				return nil, pkgerr.New(pkgerr.ErrInit, "pipeline.New", err)
			}
			denoisers[i] = d
		}
	}

	ringCapacity := cfg.RingBufferFrames * cfg.FrameSize * cfg.NumMicrophones
	d := &Driver{
		cfg:       cfg,
		producer:  producer,
		consumer:  consumer,
		logger:    logger,
		metrics:   m,
		ring:      capture.New(ringCapacity),
		denoisers: denoisers,
		localizer: localizer,
		mixer:     mix.New(cfg.InitialVolume),
		framesOut: make(chan []int16, cfg.RingBufferFrames),
	}
	return d, nil
}

func loggerWarnFunc(logger *logging.Logger) denoise.WarnFunc {
	if logger == nil {
		return nil
	}
	return func(msg string, kv ...interface{}) { logger.Warn(msg, kv...) }
}

// Start launches the capture/process/playback goroutines. Calling
// Start on an already-running Driver is a no-op, grounded on
// micarray_start's `if (ctx->running) return MICARRAY_SUCCESS` guard.
func (d *Driver) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return nil
	}

	egCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(egCtx)
	d.cancel = cancel
	d.eg = eg

	eg.Go(func() error { return d.captureLoop(egCtx) })
	eg.Go(func() error { return d.processLoop(egCtx) })
	eg.Go(func() error { return d.playbackLoop(egCtx) })

	return nil
}

// Wait blocks until all three goroutines have returned, propagating
// the first error any of them produced (errgroup's first-error-wins
// semantics, replacing a raw sync.WaitGroup so fatal I/O on any stage
// stops the whole pipeline).
func (d *Driver) Wait() error {
	if d.eg == nil {
		return nil
	}
	return d.eg.Wait()
}

// Stop cancels the running goroutines and waits for them to exit.
// Calling Stop when not running is a no-op, grounded on
// micarray_stop's `if (!ctx->running) return MICARRAY_SUCCESS` guard,
// and is safe to call more than once.
func (d *Driver) Stop() error {
	if !d.running.Load() {
		return nil
	}
	var err error
	d.stopOne.Do(func() {
		d.cancel()
		err = d.eg.Wait()
		d.running.Store(false)
	})
	return err
}

// CurrentLocation returns the most recently computed SoundLocation.
func (d *Driver) CurrentLocation() localize.SoundLocation {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()
	return d.location
}

func (d *Driver) setLocation(loc localize.SoundLocation) {
	d.dataMu.Lock()
	d.location = loc
	d.dataMu.Unlock()
}

// SetVolume forwards to the mixer's lock-free volume store.
func (d *Driver) SetVolume(v float64) { d.mixer.SetVolume(v) }

// Volume returns the mixer's current volume.
func (d *Driver) Volume() float64 { return d.mixer.Volume() }

// captureLoop pulls interleaved samples from the producer and pushes
// them into the capture ring buffer, grounded on audio_callback.
func (d *Driver) captureLoop(ctx context.Context) error {
	buf := make([]int16, d.cfg.FrameSize*d.cfg.NumMicrophones)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := d.producer.Capture(buf)
		if n > 0 {
			accepted := d.ring.Push(buf[:n])
			if accepted < n && d.metrics != nil {
				d.metrics.SamplesDropped.Add(float64(n - accepted))
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.captureEnd.Store(true)
				return nil
			}
			return pkgerr.New(pkgerr.ErrCapture, "pipeline.captureLoop", err)
		}
	}
}

// processLoop pops full frame-blocks, de-interleaves, denoises,
// localizes, downmixes, and spatially pans each block, handing the
// result to the playback goroutine. Grounded on processing_thread_func.
func (d *Driver) processLoop(ctx context.Context) error {
	defer close(d.framesOut)

	need := d.cfg.FrameSize * d.cfg.NumMicrophones
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if d.ring.Level() < need {
			if d.captureEnd.Load() && d.ring.Level() == 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollInterval):
			}
			continue
		}

		raw := d.ring.Pop(need)
		lanes, err := d.deinterleave(raw)
		if err != nil {
			d.logger.Error("dropping malformed chunk", "err", err)
			continue
		}

		if d.cfg.NoiseReduction {
			var rmsBefore, rmsAfter float64
			for c, lane := range lanes {
				if d.denoisers[c] == nil {
					continue
				}
				rmsBefore += denoise.RMS(lane)
				if err := d.denoisers[c].Process(lane, lane); err != nil {
					return pkgerr.New(pkgerr.ErrInit, "pipeline.processLoop", err)
				}
				rmsAfter += denoise.RMS(lane)
			}
			n := float64(len(lanes))
			if n > 0 {
				d.logger.LogNoiseMetrics(rmsBefore/n, rmsAfter/n)
			}
		}

		loc := d.localizer.Process(lanes)
		d.setLocation(loc)
		d.logger.LogLocation(loc.X, loc.Y, loc.Z, loc.Confidence)

		mono := mix.Downmix(lanes)
		left, right := d.mixer.Process(mono, loc)
		frame := interleaveStereo(left, right)

		select {
		case d.framesOut <- frame:
		case <-ctx.Done():
			return nil
		}

		if d.metrics != nil {
			d.metrics.FramesProcessed.Inc()
			d.metrics.Confidence.Set(loc.Confidence)
			d.metrics.BufferLevel.Set(float64(d.ring.Level()))
		}
	}
}

// playbackLoop drains processed stereo frames to the consumer,
// grounded on the original's playback-thread write loop. A pipe-broken
// write is transient: audio_output_write_stereo resets the sink with
// snd_pcm_prepare and keeps going rather than tearing down the stream,
// so an ErrPipeBroken here resets the sink (if it supports Resetter)
// and continues instead of propagating. Any other write error is
// fatal and stops the pipeline.
func (d *Driver) playbackLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-d.framesOut:
			if !ok {
				return nil
			}
			if err := d.consumer.Write(frame); err != nil {
				if errors.Is(err, audioio.ErrPipeBroken) {
					d.logger.Warn("playback sink pipe broken, resetting", "err", err)
					if r, ok := d.consumer.(audioio.Resetter); ok {
						if rerr := r.Reset(); rerr != nil {
							return pkgerr.New(pkgerr.ErrPlayback, "pipeline.playbackLoop", rerr)
						}
					}
					continue
				}
				return pkgerr.New(pkgerr.ErrPlayback, "pipeline.playbackLoop", err)
			}
		}
	}
}

// deinterleave splits a raw interleaved int16 block of length
// FrameSize*NumMicrophones into NumMicrophones float64 lanes of
// length FrameSize, using `mic_idx = i % M`, `sample_idx = i / M`
// exactly as audio_callback does. A malformed block (length not a
// multiple of M) is dropped with a logged error rather than
// corrupting lanes.
func (d *Driver) deinterleave(raw []int16) ([][]float64, error) {
	m := d.cfg.NumMicrophones
	if len(raw)%m != 0 {
		return nil, fmt.Errorf("pipeline: chunk length %d is not a multiple of mic count %d", len(raw), m)
	}
	perChannel := len(raw) / m
	lanes := make([][]float64, m)
	for c := range lanes {
		lanes[c] = make([]float64, perChannel)
	}
	for i, s := range raw {
		micIdx := i % m
		sampleIdx := i / m
		lanes[micIdx][sampleIdx] = float64(s) / 32768.0
	}
	return lanes, nil
}

func interleaveStereo(left, right []int16) []int16 {
	frame := make([]int16, 2*len(left))
	for i := range left {
		frame[2*i] = left[i]
		frame[2*i+1] = right[i]
	}
	return frame
}
