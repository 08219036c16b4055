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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Backend
	if cfg.Backend.URL != "" {
		if u, err := url.Parse(cfg.Backend.URL); err != nil {
			errs = append(errs, fmt.Errorf("backend.url %q is not a valid URL: %v", cfg.Backend.URL, err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, fmt.Errorf("backend.url %q must use the ws or wss scheme", cfg.Backend.URL))
		}
	}
	if cfg.Backend.EventBuffer < 0 {
		errs = append(errs, fmt.Errorf("backend.event_buffer %d must not be negative", cfg.Backend.EventBuffer))
	}

	// Capture
	if cfg.Capture.Audio.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("capture.audio.block_size %d must not be negative", cfg.Capture.Audio.BlockSize))
	}
	if cfg.Capture.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.audio.sample_rate %d must not be negative", cfg.Capture.Audio.SampleRate))
	}
	if cfg.Capture.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("capture.frame_interval %s must not be negative", cfg.Capture.FrameInterval))
	}
	if cfg.Capture.Video.Input == "" && cfg.Capture.Video.InputFormat != "" {
		errs = append(errs, errors.New("capture.video.input_format is set but capture.video.input is empty"))
	}

	// Turn detection
	if cfg.Turn.Threshold < 0 {
		errs = append(errs, fmt.Errorf("turn.threshold %d must not be negative", cfg.Turn.Threshold))
	}
	if cfg.Turn.QuietInterval < 0 {
		errs = append(errs, fmt.Errorf("turn.quiet_interval %s must not be negative", cfg.Turn.QuietInterval))
	}
	if cfg.Turn.WarmupChunks < 0 {
		errs = append(errs, fmt.Errorf("turn.warmup_chunks %d must not be negative", cfg.Turn.WarmupChunks))
	}

	// Reconnect
	if cfg.Reconnect.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_retries %d must not be negative", cfg.Reconnect.MaxRetries))
	}
	if cfg.Reconnect.InitialBackoff < 0 {
		errs = append(errs, fmt.Errorf("reconnect.initial_backoff %s must not be negative", cfg.Reconnect.InitialBackoff))
	}
	if cfg.Reconnect.MaxBackoff != 0 && cfg.Reconnect.MaxBackoff < cfg.Reconnect.InitialBackoff {
		errs = append(errs, fmt.Errorf("reconnect.max_backoff %s is below reconnect.initial_backoff %s", cfg.Reconnect.MaxBackoff, cfg.Reconnect.InitialBackoff))
	}

	// Telemetry
	if cfg.Telemetry.Buffer < 0 {
		errs = append(errs, fmt.Errorf("telemetry.buffer %d must not be negative", cfg.Telemetry.Buffer))
	}

	// Optimize
	if cfg.Optimize.APIURL != "" {
		if u, err := url.Parse(cfg.Optimize.APIURL); err != nil {
			errs = append(errs, fmt.Errorf("optimize.api_url %q is not a valid URL: %v", cfg.Optimize.APIURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("optimize.api_url %q must use the http or https scheme", cfg.Optimize.APIURL))
		}
	}
	if cfg.Optimize.Timeout < 0 {
		errs = append(errs, fmt.Errorf("optimize.timeout %s must not be negative", cfg.Optimize.Timeout))
	}

	return errors.Join(errs...)
}
