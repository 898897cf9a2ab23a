package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// sessionState is the capture session lifecycle. Transitions are
// stateIdle -> stateOpened (Open), stateOpened -> stateRunning (Start) and
// stateRunning -> stateStopped (Stop or device failure). A stopped session
// cannot be restarted.
type sessionState int32

const (
	stateIdle sessionState = iota
	stateOpened
	stateRunning
	stateStopped
)

// Session captures the loopback stream of a single output device. Frames
// are delivered to the Start callback on the audio backend's delivery
// goroutine; the callback must only copy the frame into a FrameBuffer and
// return.
type Session struct {
	format Format

	onFrame atomic.Pointer[func(Frame)]

	mu       sync.Mutex
	state    sessionState
	stopping bool
	err      error
	device   *malgo.Device
	done     chan struct{}
}

// Open negotiates a capture format against the device's native mix formats
// and claims the device for loopback capture. Zero-valued fields of
// requested inherit the device mix format; explicit sample rate or channel
// requests the device cannot serve natively fail with ErrFormatNegotiation.
func (c *Context) Open(dev Device, requested Format) (*Session, error) {
	info, err := c.ctx.DeviceInfo(malgo.Playback, dev.ID, malgo.Shared)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, dev.Name, err)
	}

	format, err := negotiateFormat(nativeFormats(info), requested)
	if err != nil {
		return nil, err
	}

	s := &Session{
		format: format,
		state:  stateOpened,
		done:   make(chan struct{}),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Loopback)
	cfg.Capture.Format = format.Sample.malgoFormat()
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.Capture.DeviceID = dev.ID.Pointer()
	cfg.SampleRate = uint32(format.SampleRate)

	device, err := malgo.InitDevice(c.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.deliver,
		Stop: s.deviceStopped,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, dev.Name, err)
	}
	s.device = device

	slog.Debug("capture session opened", "device", dev.Name, "format", format.String())
	return s, nil
}

// Format returns the negotiated stream format. It never changes after Open.
func (s *Session) Format() Format {
	return s.format
}

// Start begins frame delivery to onFrame.
func (s *Session) Start(onFrame func(Frame)) error {
	if onFrame == nil {
		return fmt.Errorf("capture: nil frame callback")
	}

	s.mu.Lock()
	switch s.state {
	case stateRunning:
		s.mu.Unlock()
		return ErrAlreadyRunning
	case stateStopped:
		s.mu.Unlock()
		return ErrSessionStopped
	}
	s.onFrame.Store(&onFrame)
	s.state = stateRunning
	device := s.device
	s.mu.Unlock()

	if err := device.Start(); err != nil {
		s.mu.Lock()
		s.state = stateOpened
		s.mu.Unlock()
		return fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

// Stop halts delivery and releases the device. It is idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.stopping = true
	device := s.device
	s.device = nil
	s.mu.Unlock()

	if device != nil {
		// Uninit stops the stream before releasing it.
		device.Uninit()
	}

	s.mu.Lock()
	if s.state != stateStopped {
		s.state = stateStopped
		close(s.done)
	}
	s.mu.Unlock()
	return nil
}

// Done is closed once the session has stopped, whether by Stop or by the
// device going away.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, ErrDeviceLost when the device stopped on
// its own, or nil after a clean Stop. Only meaningful once Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// deliver runs on the audio backend's delivery goroutine. The backend
// reuses the input buffer after the callback returns, so the frame owns a
// copy of it.
func (s *Session) deliver(_, input []byte, _ uint32) {
	cb := s.onFrame.Load()
	if cb == nil || len(input) == 0 {
		return
	}
	data := make([]byte, len(input))
	copy(data, input)
	(*cb)(Frame{Data: data, Captured: time.Now()})
}

// deviceStopped fires when the backend halts the stream. A halt we did not
// request means the device was unplugged or reconfigured.
func (s *Session) deviceStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateRunning && !s.stopping {
		s.err = ErrDeviceLost
		s.state = stateStopped
		close(s.done)
	}
}

// nativeFormats flattens the device's native data formats.
func nativeFormats(info malgo.DeviceInfo) []Format {
	formats := make([]Format, 0, info.FormatCount)
	for _, df := range info.Formats[:info.FormatCount] {
		sf, ok := sampleFormatFromMalgo(df.Format)
		if !ok {
			continue
		}
		formats = append(formats, Format{
			SampleRate: int(df.SampleRate),
			Channels:   int(df.Channels),
			Sample:     sf,
		})
	}
	return formats
}

// fallbackFormat is used when a backend reports no native data formats.
var fallbackFormat = Format{SampleRate: 44100, Channels: 2, Sample: SampleInt16}

// negotiateFormat fixes the session format from the device's native data
// formats. Sample rate and channel count must be served natively because
// the recorder never resamples or remixes. A requested sample encoding is
// honored regardless: encoding conversion changes sample layout only, and
// the backend performs it losslessly at the capture boundary.
func negotiateFormat(native []Format, requested Format) (Format, error) {
	mix := fallbackFormat
	if len(native) > 0 {
		mix = native[0]
		if mix.SampleRate == 0 {
			mix.SampleRate = fallbackFormat.SampleRate
		}
		if mix.Channels == 0 {
			mix.Channels = fallbackFormat.Channels
		}
	}

	out := mix
	if requested.Sample != "" {
		out.Sample = requested.Sample
	}
	if requested.SampleRate == 0 && requested.Channels == 0 {
		return out, nil
	}

	if len(native) == 0 {
		// Nothing to validate against; let the backend refuse what it
		// cannot deliver.
		if requested.SampleRate != 0 {
			out.SampleRate = requested.SampleRate
		}
		if requested.Channels != 0 {
			out.Channels = requested.Channels
		}
		return out, nil
	}

	for _, n := range native {
		rate, channels := n.SampleRate, n.Channels
		// A zero in a native entry means the backend accepts any value.
		if requested.SampleRate != 0 {
			if rate != 0 && rate != requested.SampleRate {
				continue
			}
			rate = requested.SampleRate
		}
		if requested.Channels != 0 {
			if channels != 0 && channels != requested.Channels {
				continue
			}
			channels = requested.Channels
		}
		if rate == 0 {
			rate = mix.SampleRate
		}
		if channels == 0 {
			channels = mix.Channels
		}
		out.SampleRate = rate
		out.Channels = channels
		return out, nil
	}

	return Format{}, fmt.Errorf("%w: sample rate %d, %d channels", ErrFormatNegotiation, requested.SampleRate, requested.Channels)
}
