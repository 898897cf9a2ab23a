// Package audio provides output-device enumeration and loopback capture.
package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// SampleFormat identifies the in-memory encoding of a single sample.
type SampleFormat string

// Supported sample formats. All are little-endian and interleaved.
const (
	SampleInt16   SampleFormat = "int16"
	SampleInt24   SampleFormat = "int24"
	SampleInt32   SampleFormat = "int32"
	SampleFloat32 SampleFormat = "float32"
)

// ParseSampleFormat converts a user-supplied format name to a SampleFormat.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch SampleFormat(s) {
	case SampleInt16, SampleInt24, SampleInt32, SampleFloat32:
		return SampleFormat(s), nil
	}
	return "", fmt.Errorf("unknown sample format %q (want int16, int24, int32 or float32)", s)
}

// BitDepth returns the number of bits per sample.
func (f SampleFormat) BitDepth() int {
	switch f {
	case SampleInt16:
		return 16
	case SampleInt24:
		return 24
	case SampleInt32, SampleFloat32:
		return 32
	}
	return 0
}

// IsFloat reports whether samples are IEEE floats rather than integer PCM.
func (f SampleFormat) IsFloat() bool {
	return f == SampleFloat32
}

func (f SampleFormat) malgoFormat() malgo.FormatType {
	switch f {
	case SampleInt16:
		return malgo.FormatS16
	case SampleInt24:
		return malgo.FormatS24
	case SampleInt32:
		return malgo.FormatS32
	case SampleFloat32:
		return malgo.FormatF32
	}
	return malgo.FormatUnknown
}

func sampleFormatFromMalgo(ft malgo.FormatType) (SampleFormat, bool) {
	switch ft {
	case malgo.FormatS16:
		return SampleInt16, true
	case malgo.FormatS24:
		return SampleInt24, true
	case malgo.FormatS32:
		return SampleInt32, true
	case malgo.FormatF32:
		return SampleFloat32, true
	}
	return "", false
}

// Format describes a PCM stream. It is negotiated once when a capture
// session opens and is immutable afterwards.
type Format struct {
	SampleRate int          `json:"sample_rate"`
	Channels   int          `json:"channels"`
	Sample     SampleFormat `json:"sample_format"`
}

// BlockAlign returns the byte size of one interleaved frame across all channels.
func (f Format) BlockAlign() int {
	return f.Channels * f.Sample.BitDepth() / 8
}

// ByteRate returns the number of bytes produced per second.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %s", f.SampleRate, f.Channels, f.Sample)
}
