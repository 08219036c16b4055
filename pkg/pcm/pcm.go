// Package pcm provides conversions between floating-point audio samples and
// 16-bit signed little-endian PCM, plus linear resampling helpers.
//
// The encode and decode scales are deliberately asymmetric: encoding maps
// negative samples through 32768 and non-negative samples through 32767,
// while decoding always divides by 32768. Both ends of the wire protocol
// depend on exactly these scales; changing either shifts audio levels.
package pcm

import (
	"errors"
	"math"
)

// Capture and playback rates are fixed by the wire protocol.
const (
	// CaptureRate is the microphone sample rate in Hz.
	CaptureRate = 16000

	// PlaybackRate is the sample rate of audio received from the backend in Hz.
	PlaybackRate = 24000
)

// ErrOddLength is returned when a byte slice that should contain int16
// samples has an odd number of bytes.
var ErrOddLength = errors.New("pcm: odd byte count in int16 data")

// EncodeFloat32 converts float samples in [-1, 1] to 16-bit signed PCM.
// Each sample is clamped to [-1, 1] first; negative values scale by 32768,
// non-negative values by 32767, truncating toward zero.
func EncodeFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = encodeSample(s)
	}
	return out
}

// EncodeFloat32LE converts float samples in [-1, 1] directly to little-endian
// int16 PCM bytes, ready for base64 framing on the transport.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := encodeSample(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

func encodeSample(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// DecodeInt16LE converts little-endian int16 PCM bytes to float samples by
// dividing each value by 32768 regardless of sign. Returns [ErrOddLength]
// when the input cannot be split into whole samples.
func DecodeInt16LE(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}

// Samples reinterprets little-endian int16 PCM bytes as a sample slice.
// Returns [ErrOddLength] on a truncated trailing byte.
func Samples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out, nil
}

// Bytes serialises int16 samples to little-endian PCM bytes.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// MaxAbs returns the largest absolute sample value in the block. An empty
// block reports 0. Negation happens in int width, so math.MinInt16 reports
// 32768 rather than overflowing.
func MaxAbs(samples []int16) int {
	max := 0
	for _, v := range samples {
		a := int(v)
		if a < 0 {
			a = -a
		}
		if a > max {
			max = a
		}
	}
	return max
}

// ResampleMono16 converts little-endian int16 mono PCM from srcRate to
// dstRate by linear interpolation. Equal or non-positive rates and inputs
// shorter than one sample pass through unchanged; a trailing odd byte is
// dropped rather than failing mid-stream.
func ResampleMono16(data []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(data) < 2 {
		return data
	}

	src, _ := Samples(data[:len(data)&^1])
	outLen := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if outLen == 0 {
		return nil
	}

	dst := make([]int16, outLen)
	step := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * step
		j := int(pos)

		a := float64(src[j])
		b := a
		if j+1 < len(src) {
			b = float64(src[j+1])
		}
		dst[i] = int16(a + (pos-float64(j))*(b-a))
	}
	return Bytes(dst)
}

// RoundTripError returns the absolute difference between s and the value
// obtained by encoding then decoding s through the asymmetric scales.
// Worst case is under two decode steps (2/32768) for samples near +1.
func RoundTripError(s float32) float64 {
	decoded := float64(encodeSample(s)) / 32768.0
	return math.Abs(float64(s) - decoded)
}
