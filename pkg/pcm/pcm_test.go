package pcm_test

import (
	"errors"
	"math"
	"testing"

	"github.com/BrightProgrammer7/OptiBlend/pkg/pcm"
)

func TestEncodeFloat32_AsymmetricScale(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"positive full scale", 1.0, 32767},
		{"negative full scale", -1.0, -32768},
		{"zero", 0, 0},
		{"half positive", 0.5, 16383},   // 0.5 * 32767 truncated
		{"half negative", -0.5, -16384}, // -0.5 * 32768
		{"clamp above", 2.0, 32767},
		{"clamp below", -3.0, -32768},
		{"small negative", -1.0 / 32768.0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pcm.EncodeFloat32([]float32{tt.in})
			if len(got) != 1 {
				t.Fatalf("EncodeFloat32 returned %d samples; want 1", len(got))
			}
			if got[0] != tt.want {
				t.Errorf("EncodeFloat32(%v) = %d; want %d", tt.in, got[0], tt.want)
			}
		})
	}
}

func TestEncodeFloat32LE_LittleEndian(t *testing.T) {
	t.Parallel()
	got := pcm.EncodeFloat32LE([]float32{-1.0, 1.0})
	want := []byte{0x00, 0x80, 0xFF, 0x7F}
	if len(got) != len(want) {
		t.Fatalf("len = %d; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte[%d] = %#x; want %#x", i, got[i], want[i])
		}
	}
}

func TestDecodeInt16LE_DividesBy32768(t *testing.T) {
	t.Parallel()
	// -32768 decodes to exactly -1.0, +32767 to 32767/32768 — the decode
	// divisor does not switch on sign.
	data := pcm.Bytes([]int16{-32768, 32767, 16384})
	got, err := pcm.DecodeInt16LE(data)
	if err != nil {
		t.Fatalf("DecodeInt16LE: %v", err)
	}
	want := []float32{-1.0, 32767.0 / 32768.0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %v; want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeInt16LE_OddLength(t *testing.T) {
	t.Parallel()
	_, err := pcm.DecodeInt16LE([]byte{0x01, 0x02, 0x03})
	if !errors.Is(err, pcm.ErrOddLength) {
		t.Errorf("err = %v; want ErrOddLength", err)
	}
	if _, err := pcm.Samples([]byte{0x01}); !errors.Is(err, pcm.ErrOddLength) {
		t.Errorf("Samples err = %v; want ErrOddLength", err)
	}
}

// TestRoundTrip_WithinQuantizationStep sweeps the full sample range and
// verifies that one encode/decode pass stays within quantization error.
// This is deliberately not an equality round-trip: the scales differ by
// design, so the bound is what matters.
func TestRoundTrip_WithinQuantizationStep(t *testing.T) {
	t.Parallel()
	const tolerance = 2.0 / 32768.0
	for i := -1000; i <= 1000; i++ {
		s := float32(i) / 1000.0
		if got := pcm.RoundTripError(s); got > tolerance {
			t.Fatalf("round-trip error for %v = %v; want <= %v", s, got, tolerance)
		}
	}
	// Spot-check a few irrational-ish values.
	for _, s := range []float32{0.333333, -0.707106, 0.999969, -0.999969, float32(math.Pi - 3)} {
		if got := pcm.RoundTripError(s); got > tolerance {
			t.Errorf("round-trip error for %v = %v; want <= %v", s, got, tolerance)
		}
	}
}

func TestBytesSamples_Inverse(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, 12345, -23456, 32767, -32768}
	got, err := pcm.Samples(pcm.Bytes(in))
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample[%d] = %d; want %d", i, got[i], in[i])
		}
	}
}

func TestMaxAbs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []int16
		want int
	}{
		{"empty", nil, 0},
		{"all zero", []int16{0, 0, 0}, 0},
		{"positive peak", []int16{10, 250, 3}, 250},
		{"negative peak", []int16{-4000, 100}, 4000},
		{"min int16", []int16{-32768}, 32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := pcm.MaxAbs(tt.in); got != tt.want {
				t.Errorf("MaxAbs = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	t.Run("same rate returns input", func(t *testing.T) {
		t.Parallel()
		in := pcm.Bytes([]int16{1, 2, 3})
		out := pcm.ResampleMono16(in, 16000, 16000)
		if &out[0] != &in[0] {
			t.Error("expected input slice returned unchanged")
		}
	})

	t.Run("upsample doubles sample count", func(t *testing.T) {
		t.Parallel()
		in := pcm.Bytes(make([]int16, 160))
		out := pcm.ResampleMono16(in, 8000, 16000)
		if len(out) != 640 {
			t.Errorf("len = %d bytes; want 640", len(out))
		}
	})

	t.Run("downsample preserves constant signal", func(t *testing.T) {
		t.Parallel()
		samples := make([]int16, 480)
		for i := range samples {
			samples[i] = 1000
		}
		out, err := pcm.Samples(pcm.ResampleMono16(pcm.Bytes(samples), 48000, 16000))
		if err != nil {
			t.Fatalf("Samples: %v", err)
		}
		if len(out) != 160 {
			t.Fatalf("len = %d samples; want 160", len(out))
		}
		for i, v := range out {
			if v != 1000 {
				t.Fatalf("sample[%d] = %d; want 1000", i, v)
			}
		}
	})
}
