package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration to allow for different implementations like files,
// environment variables, or a layered combination of both.
type Loader interface {
	// Load retrieves and parses the configuration from the underlying source.
	// It returns the parsed configuration or an error if loading fails.
	Load(ctx context.Context) (Config, error)
}

// envPrefix namespaces the agent's environment variables, e.g.
// CAPTURE_BACKEND_BASE_URL overrides backend.base_url.
const envPrefix = "CAPTURE"

// ViperLoader layers an optional YAML file and CAPTURE_ environment
// variables over the built-in defaults. Precedence, lowest to highest:
// defaults, file, environment.
type ViperLoader struct {
	// path is the filesystem path to the configuration file. Empty means
	// defaults plus environment only.
	path string
}

// NewViperLoader creates a loader reading the given config file path.
func NewViperLoader(path string) *ViperLoader {
	return &ViperLoader{path: path}
}

// Load builds and validates the effective configuration.
func (l *ViperLoader) Load(ctx context.Context) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Seed every key from the default document so environment lookups have
	// known keys to bind against.
	if err := v.ReadConfig(strings.NewReader(defaultYAML)); err != nil {
		return Config{}, fmt.Errorf("loading default config: %w", err)
	}

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", l.path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	decodeYAMLTags := func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }
	if err := v.Unmarshal(&cfg, decodeYAMLTags); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
