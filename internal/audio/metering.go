package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// MinDB is the metering floor; anything quieter reads as silence.
const MinDB = -60.0

// clipLevel is slightly below full scale to catch near-clips.
const clipLevel = 0.9997

// Levels contains RMS and peak levels in dBFS for the first and last
// channel of the stream. Mono streams report the same value for both.
type Levels struct {
	RMSLeft   float64 `json:"rms_left"`
	RMSRight  float64 `json:"rms_right"`
	PeakLeft  float64 `json:"peak_left"`
	PeakRight float64 `json:"peak_right"`
	ClipLeft  int     `json:"clip_left,omitzero"`
	ClipRight int     `json:"clip_right,omitzero"`
}

// Meter accumulates level measurements over captured frames. It is safe
// for concurrent use: the writer goroutine feeds Process while the status
// reporter calls Snapshot.
type Meter struct {
	format Format

	mu          sync.Mutex
	sumSquaresL float64
	sumSquaresR float64
	peakL       float64
	peakR       float64
	clipL       int
	clipR       int
	samples     int
	sessionPeak float64
}

// NewMeter returns a Meter for interleaved PCM in the given format.
func NewMeter(format Format) *Meter {
	return &Meter{format: format, sessionPeak: 0}
}

// Process accumulates one frame of interleaved samples.
func (m *Meter) Process(p []byte) {
	block := m.format.BlockAlign()
	if block == 0 || len(p) < block {
		return
	}
	sampleBytes := m.format.Sample.BitDepth() / 8
	lastOffset := (m.format.Channels - 1) * sampleBytes

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i+block <= len(p); i += block {
		left := decodeSample(p[i:], m.format.Sample)
		right := left
		if m.format.Channels > 1 {
			right = decodeSample(p[i+lastOffset:], m.format.Sample)
		}

		m.sumSquaresL += left * left
		m.sumSquaresR += right * right

		if abs := math.Abs(left); abs > m.peakL {
			m.peakL = abs
		}
		if abs := math.Abs(right); abs > m.peakR {
			m.peakR = abs
		}
		if math.Abs(left) >= clipLevel {
			m.clipL++
		}
		if math.Abs(right) >= clipLevel {
			m.clipR++
		}
		m.samples++
	}

	if m.peakL > m.sessionPeak {
		m.sessionPeak = m.peakL
	}
	if m.peakR > m.sessionPeak {
		m.sessionPeak = m.peakR
	}
}

// Snapshot computes levels over the samples accumulated since the previous
// snapshot and resets the measurement window. The session peak is kept.
func (m *Meter) Snapshot() Levels {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.samples == 0 {
		return Levels{RMSLeft: MinDB, RMSRight: MinDB, PeakLeft: MinDB, PeakRight: MinDB}
	}

	l := Levels{
		RMSLeft:   toDB(math.Sqrt(m.sumSquaresL / float64(m.samples))),
		RMSRight:  toDB(math.Sqrt(m.sumSquaresR / float64(m.samples))),
		PeakLeft:  toDB(m.peakL),
		PeakRight: toDB(m.peakR),
		ClipLeft:  m.clipL,
		ClipRight: m.clipR,
	}

	m.sumSquaresL, m.sumSquaresR = 0, 0
	m.peakL, m.peakR = 0, 0
	m.clipL, m.clipR = 0, 0
	m.samples = 0

	return l
}

// SessionPeakDB returns the loudest peak seen over the whole session.
func (m *Meter) SessionPeakDB() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return toDB(m.sessionPeak)
}

// toDB converts a normalized magnitude to dBFS, clamped at MinDB.
func toDB(v float64) float64 {
	if v <= 0 {
		return MinDB
	}
	return math.Max(20*math.Log10(v), MinDB)
}

// decodeSample reads one sample and normalizes it to [-1, 1].
func decodeSample(p []byte, sf SampleFormat) float64 {
	switch sf {
	case SampleInt16:
		return float64(int16(binary.LittleEndian.Uint16(p))) / 32768.0
	case SampleInt24:
		v := int32(p[0]) | int32(p[1])<<8 | int32(p[2])<<16
		if v&0x800000 != 0 {
			v |= ^int32(0xFFFFFF)
		}
		return float64(v) / 8388608.0
	case SampleInt32:
		return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648.0
	case SampleFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	}
	return 0
}
