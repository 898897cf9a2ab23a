package audio

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferFrames holds roughly one second of audio at the ~10 ms
// buffer period WASAPI uses in shared mode.
const DefaultBufferFrames = 128

// FrameBuffer is a bounded FIFO between the capture callback and the file
// writer. The producer side never blocks: when the buffer is full, Push
// drops the frame and counts it. The consumer side blocks in Pop until a
// frame arrives or the buffer is closed and drained.
type FrameBuffer struct {
	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewFrameBuffer returns a FrameBuffer holding at most capacity frames.
// A capacity below 1 falls back to DefaultBufferFrames.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity < 1 {
		capacity = DefaultBufferFrames
	}
	return &FrameBuffer{
		frames: make(chan Frame, capacity),
		done:   make(chan struct{}),
	}
}

// Push enqueues a frame without blocking. It returns false when the frame
// was not accepted, either because the buffer is full (the frame is counted
// as dropped) or because the buffer is closed.
func (b *FrameBuffer) Push(f Frame) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	select {
	case b.frames <- f:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Pop blocks until a frame is available or the buffer has been closed and
// fully drained. ok is false only at end of stream.
func (b *FrameBuffer) Pop() (f Frame, ok bool) {
	select {
	case f = <-b.frames:
		return f, true
	case <-b.done:
		// Closed: drain whatever is still queued before signaling EOF.
		select {
		case f = <-b.frames:
			return f, true
		default:
			return Frame{}, false
		}
	}
}

// Close signals that no more frames will be pushed. It is idempotent.
// Frames already queued remain available to Pop.
func (b *FrameBuffer) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Dropped returns the number of frames rejected because the buffer was full.
func (b *FrameBuffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Len returns the number of frames currently queued.
func (b *FrameBuffer) Len() int {
	return len(b.frames)
}
