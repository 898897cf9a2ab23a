package audio

import "time"

// Frame is one capture callback's worth of interleaved PCM bytes.
// It is produced by the capture session, moved into a FrameBuffer and
// consumed by the file writer; nothing else touches Data.
type Frame struct {
	Data     []byte
	Captured time.Time
}
