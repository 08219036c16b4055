package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/BrightProgrammer7/OptiBlend/pkg/pcm"
)

// FFmpegConfig configures an ffmpeg-backed capture source.
type FFmpegConfig struct {
	// Path is the ffmpeg executable. Empty means "ffmpeg" on PATH.
	Path string

	// InputFormat is the ffmpeg input format for device capture
	// ("alsa", "avfoundation", "dshow", "v4l2"). Empty treats Input as a
	// file or URL.
	InputFormat string

	// Input is the device identifier, file path, or URL to capture from.
	Input string

	// BlockSize is the samples per audio block. Zero means
	// DefaultBlockSize. Ignored by frame sources.
	BlockSize int

	// SampleRate is the device's native capture rate in Hz. When it
	// differs from [pcm.CaptureRate] the stream is captured natively and
	// resampled in Go, for hardware that cannot deliver 16 kHz. Zero asks
	// ffmpeg for [pcm.CaptureRate] directly. Ignored by frame sources.
	SampleRate int

	// FrameRate is frames per second for video capture. Zero means 1.
	// Ignored by audio sources.
	FrameRate int
}

func (c FFmpegConfig) path() string {
	if c.Path != "" {
		return c.Path
	}
	return "ffmpeg"
}

func (c FFmpegConfig) inputArgs() []string {
	args := []string{"-loglevel", "error"}
	if c.InputFormat != "" {
		args = append(args, "-f", c.InputFormat)
	}
	return append(args, "-i", c.Input)
}

// ffmpegProc owns a running ffmpeg subprocess whose stdout is the media
// stream. Closing cancels the process context, which kills ffmpeg and
// unblocks any pending stdout read.
type ffmpegProc struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *bytes.Buffer
}

func startFFmpeg(path string, args []string) (*ffmpegProc, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, path, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture: create stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("capture: start ffmpeg: %w", err)
	}

	return &ffmpegProc{cmd: cmd, cancel: cancel, stdout: stdout, stderr: &stderr}, nil
}

func (p *ffmpegProc) close() error {
	p.cancel()
	err := p.cmd.Wait()
	// Killing the process is the normal shutdown path, not a failure.
	if err != nil && p.cmd.ProcessState != nil && !p.cmd.ProcessState.Exited() {
		return nil
	}
	return err
}

// wrapExit annotates a stream error with ffmpeg's stderr so device and
// format problems surface in logs instead of as a bare EOF.
func (p *ffmpegProc) wrapExit(err error) error {
	if msg := bytes.TrimSpace(p.stderr.Bytes()); len(msg) > 0 {
		return fmt.Errorf("capture: ffmpeg: %s: %w", msg, err)
	}
	return err
}

// FFmpegAudioSource captures microphone audio through ffmpeg as mono 16-bit
// little-endian PCM. Devices pinned to another rate are captured natively
// and resampled to [pcm.CaptureRate] in Go.
type FFmpegAudioSource struct {
	proc      *ffmpegProc
	blockSize int
	srcRate   int
	buf       []byte
}

// NewFFmpegAudioSource starts the capture process.
func NewFFmpegAudioSource(cfg FFmpegConfig) (*FFmpegAudioSource, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = pcm.CaptureRate
	}
	args := append(cfg.inputArgs(),
		"-f", "s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", "1",
		"pipe:1",
	)
	proc, err := startFFmpeg(cfg.path(), args)
	if err != nil {
		return nil, err
	}
	n := cfg.BlockSize
	if n <= 0 {
		n = DefaultBlockSize
	}
	return &FFmpegAudioSource{
		proc:      proc,
		blockSize: n,
		srcRate:   rate,
		buf:       make([]byte, nativeBlockBytes(n, rate)),
	}, nil
}

// nativeBlockBytes is how many bytes of native-rate audio resample down to
// one blockSize block at [pcm.CaptureRate].
func nativeBlockBytes(blockSize, srcRate int) int {
	n := blockSize * srcRate / pcm.CaptureRate
	if n < 1 {
		n = 1
	}
	return n * 2
}

// ReadBlock blocks until a full block of samples arrives on the process
// pipe. The ctx is checked between blocks; a read already in progress is
// unblocked only by Close killing the process.
func (s *FFmpegAudioSource) ReadBlock(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.proc.stdout, s.buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, s.proc.wrapExit(err)
	}
	data := s.buf
	if s.srcRate != pcm.CaptureRate {
		data = pcm.ResampleMono16(data, s.srcRate, pcm.CaptureRate)
	}
	block, err := pcm.Samples(data)
	if err != nil {
		return nil, err
	}
	out := make([]int16, len(block))
	copy(out, block)
	return out, nil
}

func (s *FFmpegAudioSource) Close() error { return s.proc.close() }

// FFmpegFrameSource captures camera frames through ffmpeg as an MJPEG
// stream and splits it into individual JPEG images.
type FFmpegFrameSource struct {
	proc *ffmpegProc
	r    *bufio.Reader
}

// NewFFmpegFrameSource starts the capture process.
func NewFFmpegFrameSource(cfg FFmpegConfig) (*FFmpegFrameSource, error) {
	fps := cfg.FrameRate
	if fps <= 0 {
		fps = 1
	}
	args := append(cfg.inputArgs(),
		"-vf", fmt.Sprintf("fps=%d", fps),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
	proc, err := startFFmpeg(cfg.path(), args)
	if err != nil {
		return nil, err
	}
	return &FFmpegFrameSource{proc: proc, r: bufio.NewReaderSize(proc.stdout, 64<<10)}, nil
}

// ReadFrame returns the next complete JPEG from the stream by scanning for
// the SOI and EOI markers.
func (s *FFmpegFrameSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := readJPEG(s.r)
	if err != nil {
		return nil, s.proc.wrapExit(err)
	}
	return frame, nil
}

func (s *FFmpegFrameSource) Close() error { return s.proc.close() }

// readJPEG scans r for one SOI-to-EOI JPEG image. Entropy-coded JPEG data
// byte-stuffs 0xFF, so a bare FFD9 marker terminates the image.
func readJPEG(r *bufio.Reader) ([]byte, error) {
	// Seek the start-of-image marker.
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0xD8 {
			break
		}
	}

	frame := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frame = append(frame, b)
		if b == 0xFF {
			nb, err := r.ReadByte()
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return nil, err
			}
			frame = append(frame, nb)
			if nb == 0xD9 {
				return frame, nil
			}
		}
	}
}
