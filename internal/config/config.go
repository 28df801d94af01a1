// Package config holds the capture agent's configuration: the backend it
// talks to, the camera it drives, and the telemetry it emits. A built-in
// default document makes a config file optional; file values and CAPTURE_
// environment variables layer on top.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Backend   BackendConfig   `yaml:"backend" validate:"required"`
	Camera    CameraConfig    `yaml:"camera"`
	Flow      FlowConfig      `yaml:"flow"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BackendConfig locates the marketplace backend.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url" validate:"required,url"`
	VerifyPath     string        `yaml:"verify_path" validate:"required,startswith=/"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	UploadTimeout  time.Duration `yaml:"upload_timeout" validate:"gt=0"`
}

// CameraConfig tunes stream negotiation and the decode loop.
type CameraConfig struct {
	// DevicePath pins a specific device node, bypassing facing fallback.
	DevicePath     string  `yaml:"device_path"`
	Width          int     `yaml:"width" validate:"gte=0"`
	Height         int     `yaml:"height" validate:"gte=0"`
	DecodeRate     float64 `yaml:"decode_rate" validate:"gt=0,lte=60"`
	RegionFraction float64 `yaml:"region_fraction" validate:"gt=0,lte=1"`
}

// FlowConfig describes the hosting context of the capture flow.
type FlowConfig struct {
	Origin     string `yaml:"origin" validate:"required,url"`
	ReturnPath string `yaml:"return_path" validate:"required,startswith=/"`
	DeviceID   string `yaml:"device_id"`
}

// TelemetryConfig configures the OTLP export pipeline.
type TelemetryConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ExporterEndpoint  string  `yaml:"exporter_endpoint"`
	SampleProbability float64 `yaml:"sample_probability" validate:"gte=0,lte=1"`
	Insecure          bool    `yaml:"insecure"`
}

// defaultYAML is the baseline document every load starts from.
const defaultYAML = `
backend:
  base_url: http://localhost:8000
  verify_path: /api/qr/verify
  request_timeout: 10s
  upload_timeout: 2m
camera:
  decode_rate: 10
  region_fraction: 0.8
flow:
  origin: https://localhost
  return_path: /
telemetry:
  enabled: false
  exporter_endpoint: localhost:4317
  sample_probability: 0.1
  insecure: true
`

// Default returns the built-in configuration.
func Default() (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultYAML), &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing default config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration's structural constraints.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
