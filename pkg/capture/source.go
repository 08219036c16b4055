// Package capture acquires microphone audio and camera frames and relays
// them to the backend. An [AudioSource] yields fixed-size blocks of 16 kHz
// mono samples, a [FrameSource] yields JPEG-encoded frames, and a [Pipeline]
// drives both: it feeds every audio block through the end-of-turn detector,
// forwards media while a sender is attached, and drops (never buffers)
// while it is not.
package capture

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/BrightProgrammer7/OptiBlend/pkg/pcm"
)

// DefaultBlockSize is the number of samples per audio block, matching the
// block size the processing callback produces at [pcm.CaptureRate].
const DefaultBlockSize = 128

// DefaultFrameInterval is how often the pipeline grabs a video frame.
const DefaultFrameInterval = time.Second

// AudioSource yields successive blocks of mono 16-bit samples at
// [pcm.CaptureRate]. ReadBlock returns io.EOF when the source is exhausted.
type AudioSource interface {
	ReadBlock(ctx context.Context) ([]int16, error)
	Close() error
}

// FrameSource yields successive JPEG-encoded video frames. ReadFrame
// returns io.EOF when the source is exhausted.
type FrameSource interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// ── Synthetic sources ──────────────────────────────────────────────────────

// SilenceSource produces all-zero audio blocks. Used for demos without a
// microphone and as a quiet input in tests.
type SilenceSource struct {
	// BlockSize is the samples per block. Zero means DefaultBlockSize.
	BlockSize int

	// Interval paces blocks in real time. Zero yields blocks immediately.
	Interval time.Duration

	// Limit, when positive, caps the number of blocks before io.EOF.
	Limit int

	produced int
}

func (s *SilenceSource) ReadBlock(ctx context.Context) ([]int16, error) {
	if s.Limit > 0 && s.produced >= s.Limit {
		return nil, io.EOF
	}
	if err := pace(ctx, s.Interval); err != nil {
		return nil, err
	}
	n := s.BlockSize
	if n <= 0 {
		n = DefaultBlockSize
	}
	s.produced++
	return make([]int16, n), nil
}

func (s *SilenceSource) Close() error { return nil }

// ToneSource produces a continuous sine tone. With an Amplitude above the
// speech threshold it doubles as synthetic "speech" in tests and demos.
type ToneSource struct {
	// Freq is the tone frequency in Hz. Zero means 440.
	Freq float64

	// Amplitude is the peak sample value. Zero means 8192.
	Amplitude int16

	// BlockSize is the samples per block. Zero means DefaultBlockSize.
	BlockSize int

	// Interval paces blocks in real time. Zero yields blocks immediately.
	Interval time.Duration

	// Limit, when positive, caps the number of blocks before io.EOF.
	Limit int

	produced int
	phase    float64
}

func (s *ToneSource) ReadBlock(ctx context.Context) ([]int16, error) {
	if s.Limit > 0 && s.produced >= s.Limit {
		return nil, io.EOF
	}
	if err := pace(ctx, s.Interval); err != nil {
		return nil, err
	}
	freq := s.Freq
	if freq == 0 {
		freq = 440
	}
	amp := float64(s.Amplitude)
	if amp == 0 {
		amp = 8192
	}
	n := s.BlockSize
	if n <= 0 {
		n = DefaultBlockSize
	}
	step := 2 * math.Pi * freq / float64(pcm.CaptureRate)
	block := make([]int16, n)
	for i := range block {
		block[i] = int16(amp * math.Sin(s.phase))
		s.phase += step
	}
	s.produced++
	return block, nil
}

func (s *ToneSource) Close() error { return nil }

// StillFrameSource yields the same JPEG payload for every frame. Used when
// no camera is attached.
type StillFrameSource struct {
	// JPEG is the frame payload returned on every read.
	JPEG []byte

	// Limit, when positive, caps the number of frames before io.EOF.
	Limit int

	produced int
}

func (s *StillFrameSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if s.Limit > 0 && s.produced >= s.Limit {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.produced++
	return s.JPEG, nil
}

func (s *StillFrameSource) Close() error { return nil }

func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
