// Package logging wraps charmbracelet/log with the four levels the
// C reference's logging.c exposes (DEBUG, INFO, WARN, ERROR) plus the
// structured helpers the pipeline calls on location updates and
// noise-reduction metrics.
package logging

import (
	"io"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Level mirrors the original log_level_t enum.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string ("DEBUG", "WARN", "ERROR", else INFO)
// onto a Level, grounded on libmicarray_init's log_level string switch.
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG":
		return LevelDebug
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) charm() charmlog.Level {
	switch l {
	case LevelDebug:
		return charmlog.DebugLevel
	case LevelWarn:
		return charmlog.WarnLevel
	case LevelError:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Logger is the pipeline's structured logging sink.
type Logger struct {
	l *charmlog.Logger
}

// New builds a Logger writing to w (os.Stderr if nil) at the given level.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "micarray",
	})
	l.SetLevel(level.charm())
	return &Logger{l: l}
}

// SetLevel changes the minimum emitted level at runtime.
func (lg *Logger) SetLevel(level Level) { lg.l.SetLevel(level.charm()) }

func (lg *Logger) Debug(msg string, kv ...interface{}) { lg.l.Debug(msg, kv...) }
func (lg *Logger) Info(msg string, kv ...interface{})  { lg.l.Info(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...interface{})  { lg.l.Warn(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...interface{}) { lg.l.Error(msg, kv...) }

// LogLocation records a computed SoundLocation, grounded on the
// original's log_location_data.
func (lg *Logger) LogLocation(x, y, z, confidence float64) {
	lg.l.Debug("source location", "x", x, "y", y, "z", z, "confidence", confidence)
}

// LogNoiseMetrics records before/after noise RMS, grounded on the
// original's log_noise_metrics.
func (lg *Logger) LogNoiseMetrics(before, after float64) {
	lg.l.Debug("noise metrics", "rms_before", before, "rms_after", after)
}
