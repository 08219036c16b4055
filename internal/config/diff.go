package config

import "time"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything touching
// the transport, capture processes, or stores requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TurnChanged is true when any end-of-turn tuning value changed.
	TurnChanged bool
	NewTurn     TurnConfig

	// FrameIntervalChanged is true when the video frame period changed.
	FrameIntervalChanged bool
	NewFrameInterval     time.Duration

	// OptimizeFallbackChanged is true when the local-heuristic toggle
	// flipped.
	OptimizeFallbackChanged bool
	NewOptimizeFallback     bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Turn != new.Turn {
		d.TurnChanged = true
		d.NewTurn = new.Turn
	}

	if old.Capture.FrameInterval != new.Capture.FrameInterval {
		d.FrameIntervalChanged = true
		d.NewFrameInterval = new.Capture.FrameInterval
	}

	if old.Optimize.Fallback != new.Optimize.Fallback {
		d.OptimizeFallbackChanged = true
		d.NewOptimizeFallback = new.Optimize.Fallback
	}

	return d
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.TurnChanged || d.FrameIntervalChanged || d.OptimizeFallbackChanged
}
