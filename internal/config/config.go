// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/looprec/looprec/internal/audio"
	"github.com/looprec/looprec/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultBufferFrames     = 128
	DefaultStatusIntervalMs = 500
)

// validate is the shared validator instance for configuration validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// OutputConfig holds the recording destination settings.
type OutputConfig struct {
	Path               string `json:"path" validate:"required,max=4096"`           // Output WAV file path
	MaxDurationSeconds int    `json:"max_duration_seconds" validate:"omitempty,gte=1,lte=86400"` // Auto-stop after this many seconds (0 = until interrupted)
}

// CaptureConfig holds device selection and requested-format settings.
// Zero values mean "use the device mix format".
type CaptureConfig struct {
	Device       string `json:"device" validate:"omitempty,max=256"`                            // Device selector: default, index or name
	SampleRate   int    `json:"sample_rate" validate:"omitempty,gte=8000,lte=384000"`           // Requested sample rate in Hz
	Channels     int    `json:"channels" validate:"omitempty,gte=1,lte=8"`                      // Requested channel count
	Format       string `json:"format" validate:"omitempty,oneof=int16 int24 int32 float32"`   // Requested sample encoding
	BufferFrames int    `json:"buffer_frames" validate:"omitempty,gte=16,lte=8192"`             // Frame buffer capacity between callback and writer
}

// StatusConfig holds the optional live status endpoint settings.
type StatusConfig struct {
	Listen     string `json:"listen" validate:"omitempty,hostname_port"`          // Address for the status WebSocket server (empty = disabled)
	IntervalMs int    `json:"interval_ms" validate:"omitempty,gte=100,lte=10000"` // Status broadcast interval
}

// S3Config holds S3-compatible storage settings for the optional upload of
// the finished recording.
type S3Config struct {
	Endpoint        string `json:"endpoint" validate:"omitempty,max=2048"`       // Custom S3 endpoint (empty for AWS)
	Bucket          string `json:"bucket" validate:"omitempty,max=63"`           // S3 bucket name
	AccessKeyID     string `json:"access_key_id" validate:"omitempty,max=128"`   // AWS access key ID
	SecretAccessKey string `json:"secret_access_key" validate:"omitempty,max=256"` // AWS secret access key
	KeyPrefix       string `json:"key_prefix" validate:"omitempty,max=512"`      // Object key prefix
}

// IsConfigured returns true if S3 settings are configured.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Config holds all application configuration.
type Config struct {
	Output  OutputConfig  `json:"output"`
	Capture CaptureConfig `json:"capture"`
	Status  StatusConfig  `json:"status"`
	Upload  S3Config      `json:"upload"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{BufferFrames: DefaultBufferFrames},
		Status:  StatusConfig{IntervalMs: DefaultStatusIntervalMs},
	}
}

// Load reads config from file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, util.WrapError("read config", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, util.WrapError("parse config", err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults sets default values for zero-value fields and normalizes
// the output path.
func (c *Config) ApplyDefaults() {
	if c.Capture.BufferFrames == 0 {
		c.Capture.BufferFrames = DefaultBufferFrames
	}
	if c.Status.IntervalMs == 0 {
		c.Status.IntervalMs = DefaultStatusIntervalMs
	}
	c.Output.Path = NormalizeOutputPath(c.Output.Path)
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := util.ValidatePath("output.path", c.Output.Path); err != nil {
		return err
	}
	return nil
}

// RequestedFormat translates the capture settings into a format request.
// Unset fields stay zero and inherit the device mix format at session open.
func (c *Config) RequestedFormat() (audio.Format, error) {
	f := audio.Format{
		SampleRate: c.Capture.SampleRate,
		Channels:   c.Capture.Channels,
	}
	if c.Capture.Format != "" {
		sample, err := audio.ParseSampleFormat(c.Capture.Format)
		if err != nil {
			return audio.Format{}, err
		}
		f.Sample = sample
	}
	return f, nil
}

// MaxDuration returns the configured recording limit, zero meaning none.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Output.MaxDurationSeconds) * time.Second
}

// StatusInterval returns the status broadcast interval.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Status.IntervalMs) * time.Millisecond
}

// NormalizeOutputPath appends the .wav extension when it is missing.
func NormalizeOutputPath(path string) string {
	if path == "" {
		return path
	}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return path
	}
	return path + ".wav"
}
