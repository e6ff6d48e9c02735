// Package config loads and validates the recognized configuration
// surface, grounded on the C reference's config.c (section/key table
// and config_set_defaults/config_validate).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lenik/micarray/internal/pkgerr"
)

const (
	maxMicrophones = 16
	maxBufferSize  = 8192
)

// Config is the recognized configuration surface.
type Config struct {
	NumMicrophones    int     `yaml:"num_microphones"`
	MicSpacingMM      float64 `yaml:"mic_spacing"`
	SampleRate        int     `yaml:"sample_rate"`
	DMABufferSize     int     `yaml:"dma_buffer_size"`
	NoiseReduction    bool    `yaml:"noise_reduction_enable"`
	NoiseThreshold    float64 `yaml:"noise_threshold"`
	Algorithm         string  `yaml:"algorithm"`
	OutputDevice      string  `yaml:"output_device"`
	Volume            float64 `yaml:"volume"`
	EnableFileLogging bool    `yaml:"enable_file_logging"`
	LogFile           string  `yaml:"log_file"`
	LogLevel          string  `yaml:"log_level"`
}

// Defaults returns the implementation's built-in defaults, grounded
// on config_set_defaults.
func Defaults() Config {
	return Config{
		NumMicrophones:    8,
		MicSpacingMM:      15.0,
		SampleRate:        16000,
		DMABufferSize:     1024,
		NoiseReduction:    true,
		NoiseThreshold:    0.05,
		Algorithm:         "spectral_subtraction",
		OutputDevice:      "headphones",
		Volume:            0.8,
		EnableFileLogging: false,
		LogFile:           "",
		LogLevel:          "INFO",
	}
}

// Load reads a YAML config file over the defaults and validates it.
// A missing path returns the defaults unchanged (a fresh install has
// no config file yet); a malformed file is a Configuration error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, pkgerr.New(pkgerr.ErrConfig, "config.Load", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, pkgerr.New(pkgerr.ErrConfig, "config.Load", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks every field against its configured bounds,
// grounded on config_validate.
func (c Config) Validate() error {
	if c.NumMicrophones < 1 || c.NumMicrophones > maxMicrophones {
		return pkgerr.New(pkgerr.ErrConfig, "config.Validate",
			fmt.Errorf("num_microphones %d out of range [1, %d]", c.NumMicrophones, maxMicrophones))
	}
	if c.MicSpacingMM <= 0 {
		return pkgerr.New(pkgerr.ErrConfig, "config.Validate",
			fmt.Errorf("mic_spacing %.3f must be > 0", c.MicSpacingMM))
	}
	if c.DMABufferSize < 1 || c.DMABufferSize > maxBufferSize {
		return pkgerr.New(pkgerr.ErrConfig, "config.Validate",
			fmt.Errorf("dma_buffer_size %d out of range [1, %d]", c.DMABufferSize, maxBufferSize))
	}
	if c.SampleRate <= 0 {
		return pkgerr.New(pkgerr.ErrConfig, "config.Validate",
			fmt.Errorf("sample_rate %d must be > 0", c.SampleRate))
	}
	if c.Volume < 0 || c.Volume > 1 {
		return pkgerr.New(pkgerr.ErrConfig, "config.Validate",
			fmt.Errorf("volume %.3f out of range [0, 1]", c.Volume))
	}
	return nil
}
