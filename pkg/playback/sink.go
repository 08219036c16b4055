package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/BrightProgrammer7/OptiBlend/pkg/pcm"
)

// FuncSink adapts a function to the [Sink] interface.
type FuncSink func(ctx context.Context, pcm []byte) error

// Play calls f.
func (f FuncSink) Play(ctx context.Context, pcm []byte) error { return f(ctx, pcm) }

// WriterSink writes payloads to an io.Writer as raw s16le PCM. Play returns
// as soon as the write completes; useful for tests and for capturing a
// session's audio to a file.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Play writes the payload. Serialised so interleaved writes cannot corrupt
// the output stream.
func (s *WriterSink) Play(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(pcm); err != nil {
		return fmt.Errorf("playback: write: %w", err)
	}
	return nil
}

// FFplaySink plays payloads through an ffplay subprocess, one process per
// item. Play returns when the process exits, which is when the payload has
// finished sounding — exactly the completion signal the queue needs.
type FFplaySink struct {
	// Path is the ffplay executable. Defaults to "ffplay".
	Path string

	// SampleRate of the payloads in Hz. Defaults to [pcm.PlaybackRate].
	SampleRate int
}

// Play spawns ffplay reading s16le mono PCM from stdin and waits for it to
// finish. ctx cancellation kills the process (shutdown path only).
func (s *FFplaySink) Play(ctx context.Context, payload []byte) error {
	path := s.Path
	if path == "" {
		path = "ffplay"
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = pcm.PlaybackRate
	}

	cmd := exec.CommandContext(ctx, path,
		"-loglevel", "error",
		"-nodisp",
		"-autoexit",
		"-f", "s16le",
		"-ar", strconv.Itoa(rate),
		"-ch_layout", "mono",
		"-i", "pipe:0",
	)
	cmd.Stdin = bytes.NewReader(payload)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback: ffplay: %w (stderr: %s)", err, stderr.String())
	}
	return nil
}
