// Package config provides the configuration schema, loader, and file watcher
// for the OptiBlend kiln console.
package config

import "time"

// LogLevel controls log verbosity for the console.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the console.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Capture   CaptureConfig   `yaml:"capture"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Turn      TurnConfig      `yaml:"turn"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Inventory InventoryConfig `yaml:"inventory"`
	Optimize  OptimizeConfig  `yaml:"optimize"`
}

// ServerConfig holds the local HTTP endpoint (metrics, health) and logging
// settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the admin server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BackendConfig points at the AI backend's streaming endpoint.
type BackendConfig struct {
	// URL is the WebSocket endpoint (ws:// or wss://).
	URL string `yaml:"url"`

	// Model names the speech model the backend should run for this session.
	Model string `yaml:"model"`

	// SystemInstruction is an optional persona/context prompt sent in the
	// setup message.
	SystemInstruction string `yaml:"system_instruction"`

	// EventBuffer sizes the inbound event channel. Zero uses the client
	// default.
	EventBuffer int `yaml:"event_buffer"`
}

// CaptureConfig selects the microphone and camera inputs.
type CaptureConfig struct {
	Audio AudioInputConfig `yaml:"audio"`
	Video VideoInputConfig `yaml:"video"`

	// FrameInterval is the period between video frame sends. Zero uses
	// the pipeline default of one second.
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// AudioInputConfig configures the microphone source.
type AudioInputConfig struct {
	// FFmpegPath is the ffmpeg executable. Empty means "ffmpeg" on PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// InputFormat is the ffmpeg device format ("alsa", "avfoundation",
	// "dshow"). Empty treats Input as a file or URL.
	InputFormat string `yaml:"input_format"`

	// Input is the device identifier, file path, or URL. Empty selects a
	// synthetic silent source, useful for demos without hardware.
	Input string `yaml:"input"`

	// BlockSize is samples per audio block. Zero uses the capture default.
	BlockSize int `yaml:"block_size"`

	// SampleRate is the device's native rate in Hz for hardware that
	// cannot capture at 16 kHz; the stream is resampled in software. Zero
	// captures at 16 kHz directly.
	SampleRate int `yaml:"sample_rate"`
}

// VideoInputConfig configures the camera source.
type VideoInputConfig struct {
	// InputFormat is the ffmpeg device format ("v4l2", "avfoundation").
	// Empty treats Input as a file or URL.
	InputFormat string `yaml:"input_format"`

	// Input is the device identifier, file path, or URL. Empty disables
	// video capture.
	Input string `yaml:"input"`
}

// PlaybackConfig configures how backend audio is sounded.
type PlaybackConfig struct {
	// FFplayPath is the ffplay executable. Empty means "ffplay" on PATH.
	FFplayPath string `yaml:"ffplay_path"`

	// Discard drops playback audio instead of sounding it. Useful on
	// headless hosts.
	Discard bool `yaml:"discard"`
}

// TurnConfig tunes end-of-turn inference.
type TurnConfig struct {
	// Threshold is the absolute sample value above which a block counts
	// as speech. Zero uses the detector default of 100.
	Threshold int `yaml:"threshold"`

	// QuietInterval is how long speech must stay sub-threshold before a
	// turn is considered complete. Zero uses the default of two seconds.
	QuietInterval time.Duration `yaml:"quiet_interval"`

	// WarmupChunks is the minimum number of chunks sent before a turn can
	// complete. Zero uses the default of 20.
	WarmupChunks int `yaml:"warmup_chunks"`
}

// ReconnectConfig tunes the session reconnect loop.
type ReconnectConfig struct {
	// MaxRetries caps consecutive failed reconnect attempts before the
	// session gives up. Zero uses the default of 10.
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoff is the delay before the first retry. Zero uses the
	// default of one second.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the exponential backoff. Zero uses the default of
	// 30 seconds.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// TelemetryConfig configures SCADA telemetry handling.
type TelemetryConfig struct {
	// PostgresDSN enables the telemetry history store when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Buffer sizes each subscriber's update channel. Zero uses the
	// dispatcher default.
	Buffer int `yaml:"buffer"`
}

// InventoryConfig configures the waste stream stock store.
type InventoryConfig struct {
	// Path is the on-disk store directory. Empty keeps stock in memory.
	Path string `yaml:"path"`

	// Seed loads the default waste streams into an empty store on startup.
	Seed bool `yaml:"seed"`
}

// OptimizeConfig points at the fuel-mix optimizer API.
type OptimizeConfig struct {
	// APIURL is the base URL of the optimizer REST endpoint.
	APIURL string `yaml:"api_url"`

	// Timeout bounds a single optimize request. Zero uses the client
	// default.
	Timeout time.Duration `yaml:"timeout"`

	// Fallback enables the local heuristic when the API is unreachable.
	Fallback bool `yaml:"fallback"`
}
