package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", cfg.API.BaseURL))
	}

	if cfg.API.LogLevel != "" && !cfg.API.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("api.log_level %q is invalid; valid values: debug, info, warn, error", cfg.API.LogLevel))
	}

	if cfg.Capture.MinVideoBytes < 0 {
		errs = append(errs, fmt.Errorf("capture.min_video_bytes must not be negative, got %d", cfg.Capture.MinVideoBytes))
	}
	if cfg.Capture.MinAudioBytes < 0 {
		errs = append(errs, fmt.Errorf("capture.min_audio_bytes must not be negative, got %d", cfg.Capture.MinAudioBytes))
	}
	if cfg.Capture.MinAudioBytes > 0 && cfg.Capture.MinVideoBytes > 0 &&
		cfg.Capture.MinAudioBytes > cfg.Capture.MinVideoBytes {
		errs = append(errs, errors.New("capture.min_audio_bytes must not exceed capture.min_video_bytes"))
	}
	if (cfg.Capture.VideoWidth == 0) != (cfg.Capture.VideoHeight == 0) {
		errs = append(errs, errors.New("capture.video_width and capture.video_height must be set together"))
	}
	if cfg.Capture.VideoWidth < 0 || cfg.Capture.VideoHeight < 0 {
		errs = append(errs, errors.New("capture.video_width and capture.video_height must be positive"))
	}

	if cfg.Upload.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("upload.max_retries must not be negative, got %d", cfg.Upload.MaxRetries))
	}

	return errors.Join(errs...)
}
