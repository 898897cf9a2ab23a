// Package wav streams interleaved PCM to a RIFF/WAVE file on disk.
package wav

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/looprec/looprec/internal/audio"
)

// headerSize is the byte length of the canonical RIFF + fmt + data header.
const headerSize = 44

// WAVE format tags.
const (
	formatPCM       = 1
	formatIEEEFloat = 3
)

// Offsets of the two size fields patched by Finalize.
const (
	riffSizeOffset = 4
	dataSizeOffset = 40
)

// Writer appends raw PCM to a WAV file. Create writes the header with
// placeholder size fields; Finalize patches them to the true byte counts,
// so the file is only a fully valid WAV once Finalize has run.
type Writer struct {
	mu           sync.Mutex
	f            *os.File
	buf          *bufio.Writer
	format       audio.Format
	bytesWritten int64
	closed       bool
}

// Create opens path for writing and emits the placeholder header. The file
// is removed again when the header cannot be written.
func Create(path string, format audio.Format) (*Writer, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 || format.Sample.BitDepth() == 0 {
		return nil, fmt.Errorf("invalid audio format: %s", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	w := &Writer{
		f:      f,
		buf:    bufio.NewWriterSize(f, 64<<10),
		format: format,
	}

	if err := w.writeHeader(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	return w, nil
}

// Write appends one chunk of interleaved little-endian samples.
func (w *Writer) Write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("write to finalized WAV file")
	}

	n, err := w.buf.Write(p)
	w.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return nil
}

// Finalize flushes buffered samples, patches the RIFF and data chunk sizes
// to the true byte counts and closes the file. A second call is a no-op.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("flush samples: %w", err)
	}

	data := w.bytesWritten
	// The RIFF size fields are 32-bit; clamp rather than wrap on captures
	// beyond 4 GiB so the header stays self-consistent as far as it can.
	if data > math.MaxUint32-(headerSize-8) {
		data = math.MaxUint32 - (headerSize - 8)
	}

	if err := w.patchSize(riffSizeOffset, uint32(data)+headerSize-8); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.patchSize(dataSizeOffset, uint32(data)); err != nil {
		_ = w.f.Close()
		return err
	}

	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("sync output file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}

// BytesWritten returns the number of sample bytes written so far.
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytesWritten
}

// Duration returns the audio duration represented by the written samples.
func (w *Writer) Duration() time.Duration {
	w.mu.Lock()
	bytes := w.bytesWritten
	w.mu.Unlock()

	rate := w.format.ByteRate()
	if rate == 0 {
		return 0
	}
	return time.Duration(bytes * int64(time.Second) / int64(rate))
}

// Format returns the stream format the file was created with.
func (w *Writer) Format() audio.Format {
	return w.format
}

// writeHeader emits the 44-byte RIFF header with zeroed size fields.
func (w *Writer) writeHeader() error {
	tag := uint16(formatPCM)
	if w.format.Sample.IsFloat() {
		tag = formatIEEEFloat
	}

	h := struct {
		RiffID   [4]byte
		RiffSize uint32
		WaveID   [4]byte

		FmtID         [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16

		DataID   [4]byte
		DataSize uint32
	}{
		RiffID:        [4]byte{'R', 'I', 'F', 'F'},
		WaveID:        [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   tag,
		NumChannels:   uint16(w.format.Channels),
		SampleRate:    uint32(w.format.SampleRate),
		ByteRate:      uint32(w.format.ByteRate()),
		BlockAlign:    uint16(w.format.BlockAlign()),
		BitsPerSample: uint16(w.format.Sample.BitDepth()),
	}

	return binary.Write(w.buf, binary.LittleEndian, &h)
}

// patchSize writes a little-endian uint32 at the given header offset.
func (w *Writer) patchSize(offset int64, v uint32) error {
	if _, err := w.f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek to header field: %w", err)
	}
	if err := binary.Write(w.f, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("patch header field: %w", err)
	}
	return nil
}
