// Command micarrayd runs the acoustic processing pipeline against a
// file-backed producer/consumer pair, standing in for the real
// DMA/I2S capture and playback hardware. The flag-parsing and HTTP mux
// shape is carried from a prior WAV-denoising HTTP backend, generalized
// from one POST handler into a long-running pipeline with an optional
// status/metrics server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/lenik/micarray/internal/audioio"
	"github.com/lenik/micarray/internal/config"
	"github.com/lenik/micarray/internal/denoise"
	"github.com/lenik/micarray/internal/localize"
	"github.com/lenik/micarray/internal/logging"
	"github.com/lenik/micarray/internal/metrics"
	"github.com/lenik/micarray/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults are used when absent)")
	inputPath := flag.String("input", "", "input WAV file to replay as the capture source")
	outputPath := flag.String("output", "out.wav", "output WAV file for the mixed stereo result")
	logLevel := flag.String("log-level", "", "override the configured log level (DEBUG, INFO, WARN, ERROR)")
	addr := flag.String("addr", "", "listen address for /status and /metrics (empty disables the server)")
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "micarrayd: --input is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "micarrayd: config: %v\n", err)
		os.Exit(1)
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if *logLevel != "" {
		level = logging.ParseLevel(*logLevel)
	}
	logger := logging.New(os.Stderr, level)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	raw, err := os.ReadFile(*inputPath)
	if err != nil {
		logger.Error("failed to read input WAV", "err", err)
		os.Exit(1)
	}
	samples, hdr, err := audioio.ReadWAV(raw)
	if err != nil {
		logger.Error("failed to decode input WAV", "err", err)
		os.Exit(1)
	}
	if hdr.NumChannels != cfg.NumMicrophones {
		logger.Warn("input channel count does not match configured microphone count",
			"wav_channels", hdr.NumChannels, "num_microphones", cfg.NumMicrophones)
	}

	producer := audioio.NewWAVProducer(audioio.ToInt16(samples))
	consumer := audioio.NewWAVConsumer()

	driverCfg := pipeline.Config{
		NumMicrophones: cfg.NumMicrophones,
		SampleRate:     cfg.SampleRate,
		FrameSize:      cfg.DMABufferSize,
		NoiseReduction: cfg.NoiseReduction,
		Denoise: denoise.Config{
			FrameSize:      cfg.DMABufferSize,
			Overlap:        cfg.DMABufferSize / 2,
			Alpha:          2.0,
			Beta:           0.1,
			NoiseThreshold: cfg.NoiseThreshold,
			SampleRate:     cfg.SampleRate,
			Algorithm:      cfg.Algorithm,
		},
		Localize: localize.Config{
			NumMicrophones:         cfg.NumMicrophones,
			MicSpacing:             cfg.MicSpacingMM / 1000.0,
			SampleRate:             cfg.SampleRate,
			CorrelationWindowSize:  cfg.DMABufferSize,
			MinConfidenceThreshold: 0.3,
		},
		InitialVolume: cfg.Volume,
	}

	driver, err := pipeline.New(driverCfg, producer, consumer, logger, m)
	if err != nil {
		logger.Error("failed to initialize pipeline", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if *addr != "" {
		srv = startStatusServer(*addr, driver, reg, logger)
	}

	logger.Info("pipeline started", "input", *inputPath, "microphones", cfg.NumMicrophones)
	if err := driver.Start(ctx); err != nil {
		logger.Error("failed to start pipeline", "err", err)
		os.Exit(1)
	}

	runErr := driver.Wait()
	stopErr := driver.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	if runErr != nil {
		logger.Error("pipeline stopped with error", "err", runErr)
		os.Exit(1)
	}
	if stopErr != nil {
		logger.Error("pipeline shutdown error", "err", stopErr)
		os.Exit(1)
	}

	out := audioio.WriteWAV(audioio.ToFloat64(consumer.Samples()), cfg.SampleRate, 2)
	if err := os.WriteFile(*outputPath, out, 0o644); err != nil {
		logger.Error("failed to write output WAV", "err", err)
		os.Exit(1)
	}
	logger.Info("pipeline finished", "output", *outputPath, "bytes", len(out))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// startStatusServer serves /status (a websocket streaming
// current_location() samples, one session per connection) and
// /metrics (Prometheus scrape endpoint). This is additive ambient
// observability, never gating the pipeline's data path.
func startStatusServer(addr string, driver *pipeline.Driver, reg *prometheus.Registry, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		sessionID := uuid.New().String()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("status websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		logger.Debug("status session opened", "session", sessionID)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for range ticker.C {
			loc := driver.CurrentLocation()
			payload, _ := json.Marshal(struct {
				X          float64 `json:"x"`
				Y          float64 `json:"y"`
				Z          float64 `json:"z"`
				Confidence float64 `json:"confidence"`
			}{loc.X, loc.Y, loc.Z, loc.Confidence})

			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("status session closed", "session", sessionID, "err", err)
				return
			}
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server failed", "err", err)
		}
	}()
	return srv
}
