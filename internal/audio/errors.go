package audio

import "errors"

// Sentinel errors for device resolution and capture sessions.
var (
	// ErrNoDevices is returned when enumeration finds no output devices.
	ErrNoDevices = errors.New("no audio output devices available")

	// ErrDeviceNotFound is returned when a device selector matches nothing.
	ErrDeviceNotFound = errors.New("audio device not found")

	// ErrDeviceUnavailable is returned when a device exists but cannot be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrFormatNegotiation is returned when an explicitly requested format
	// is not natively supported by the device. The recorder never resamples.
	ErrFormatNegotiation = errors.New("requested format not supported by device")

	// ErrAlreadyRunning is returned by Start on a running session.
	ErrAlreadyRunning = errors.New("capture session already running")

	// ErrSessionStopped is returned by Start on a stopped session.
	ErrSessionStopped = errors.New("capture session already stopped")

	// ErrDeviceLost is surfaced when the device stops delivering on its own,
	// typically because it was unplugged or its format changed.
	ErrDeviceLost = errors.New("audio device lost")
)
