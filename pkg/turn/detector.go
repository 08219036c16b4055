// Package turn infers end-of-turn from microphone audio by amplitude
// thresholding: a block containing any sample above the threshold counts as
// speech, and a fixed quiet interval after the last speech block signals that
// the operator has finished talking.
package turn

import (
	"sync"
	"time"

	"github.com/BrightProgrammer7/OptiBlend/pkg/pcm"
)

// Defaults match the capture pipeline's tuning.
const (
	// DefaultThreshold is the absolute int16 sample value above which a
	// block counts as speech.
	DefaultThreshold = 100

	// DefaultQuietInterval is how long after the last speech block the
	// turn-complete signal fires.
	DefaultQuietInterval = 2 * time.Second

	// DefaultWarmupChunks is the number of observed blocks that must pass
	// before a turn can complete; it suppresses spurious signals from the
	// first moments after the microphone opens.
	DefaultWarmupChunks = 20
)

// Config parameterises a [Detector]. Zero values select the defaults.
type Config struct {
	// Threshold is the absolute sample value above which a block is speech.
	Threshold int

	// QuietInterval is the silence duration that completes a turn.
	QuietInterval time.Duration

	// WarmupChunks is the minimum block count before signalling is allowed.
	WarmupChunks int

	// OnTurnComplete is invoked exactly once per completed turn, from the
	// timer goroutine. Must not block.
	OnTurnComplete func()
}

// Detector tracks speech activity across audio blocks and arms a one-shot
// silence timer after each speech block. The timer is cancelled and re-armed
// by newer speech, and its expiry re-verifies that no speech arrived since
// arming before signalling, so a stale timer can never fire over a fresh one.
//
// Blocks arrive from the capture goroutine while the timer fires on the
// runtime's timer goroutine; all state is mutex-guarded.
type Detector struct {
	threshold  int
	quiet      time.Duration
	warmup     int
	onComplete func()

	mu         sync.Mutex
	chunks     int       // blocks observed so far
	lastSpeech time.Time // zero until first speech block
	timer      *time.Timer
	generation uint64 // bumped on every arm/cancel; stale fires are ignored
}

// NewDetector creates a Detector from cfg, applying defaults for zero fields.
func NewDetector(cfg Config) *Detector {
	d := &Detector{
		threshold:  cfg.Threshold,
		quiet:      cfg.QuietInterval,
		warmup:     cfg.WarmupChunks,
		onComplete: cfg.OnTurnComplete,
	}
	if d.threshold <= 0 {
		d.threshold = DefaultThreshold
	}
	if d.quiet <= 0 {
		d.quiet = DefaultQuietInterval
	}
	if d.warmup <= 0 {
		d.warmup = DefaultWarmupChunks
	}
	return d
}

// Tune replaces the detection parameters at runtime, applying defaults for
// zero fields. OnTurnComplete is not replaced. In-progress state is kept; a
// new quiet interval takes effect from the next speech block.
func (d *Detector) Tune(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.threshold = cfg.Threshold
	if d.threshold <= 0 {
		d.threshold = DefaultThreshold
	}
	d.quiet = cfg.QuietInterval
	if d.quiet <= 0 {
		d.quiet = DefaultQuietInterval
	}
	d.warmup = cfg.WarmupChunks
	if d.warmup <= 0 {
		d.warmup = DefaultWarmupChunks
	}
}

// Observe feeds one audio block into the detector. now is the block's
// arrival time; production callers pass time.Now().
//
// A speech block records now as the last-speech timestamp, cancels any
// pending silence timer, and (once the warm-up count is exceeded) arms a
// fresh timer for the quiet interval. Sub-threshold blocks never touch the
// speech timestamp and never arm a timer on their own, so an all-quiet
// stream produces no signal regardless of how long it runs.
func (d *Detector) Observe(block []int16, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	speech := pcm.MaxAbs(block) > d.threshold
	d.chunks++
	if !speech {
		return
	}

	d.lastSpeech = now
	d.cancelTimerLocked()

	if d.chunks <= d.warmup {
		return
	}

	gen := d.generation
	armedAt := now
	d.timer = time.AfterFunc(d.quiet, func() {
		d.fire(gen, armedAt)
	})
}

// fire runs on timer expiry. It signals only when this timer is still the
// current one and no speech has been observed since it was armed.
func (d *Detector) fire(gen uint64, armedAt time.Time) {
	d.mu.Lock()
	if gen != d.generation || d.lastSpeech.After(armedAt) {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.generation++
	cb := d.onComplete
	d.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// cancelTimerLocked stops any pending timer and invalidates in-flight fires.
func (d *Detector) cancelTimerLocked() {
	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a silence timer is currently armed.
func (d *Detector) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Chunks returns the number of blocks observed since creation or Reset.
func (d *Detector) Chunks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunks
}

// Reset clears all state: chunk count, speech timestamp, and any pending
// timer. Use when a new connection starts so warm-up applies afresh.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks = 0
	d.lastSpeech = time.Time{}
	d.cancelTimerLocked()
}
