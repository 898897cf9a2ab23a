package audio

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gen2brain/malgo"
)

// Device describes an available audio output device. Loopback capture
// records the mix an output device is rendering, so enumeration runs over
// playback devices.
type Device struct {
	ID      malgo.DeviceID `json:"-"`
	Index   int            `json:"index"`
	Name    string         `json:"name"`
	Default bool           `json:"default"`
}

// Context owns the miniaudio context shared by device enumeration and
// capture sessions. Close must be called when done; any session opened
// from the context must be stopped first.
type Context struct {
	ctx *malgo.AllocatedContext
}

// NewContext initializes the OS audio backend.
func NewContext() (*Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("initialize audio context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

// Close tears down the audio backend.
func (c *Context) Close() error {
	if err := c.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninitialize audio context: %w", err)
	}
	c.ctx.Free()
	return nil
}

// Devices returns the available output devices, or ErrNoDevices when the
// enumeration comes back empty.
func (c *Context) Devices() ([]Device, error) {
	infos, err := c.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("enumerate output devices: %w", err)
	}
	if len(infos) == 0 {
		return nil, ErrNoDevices
	}

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, Device{
			ID:      info.ID,
			Index:   i,
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}

// Resolve picks an output device by selector: empty or "default" selects
// the default render device, a number selects by enumeration index, and
// anything else matches case-insensitively against device names.
func (c *Context) Resolve(selector string) (Device, error) {
	devices, err := c.Devices()
	if err != nil {
		return Device{}, err
	}
	return resolveDevice(devices, selector)
}

func resolveDevice(devices []Device, selector string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrNoDevices
	}

	sel := strings.TrimSpace(selector)
	if sel == "" || strings.EqualFold(sel, "default") {
		for _, d := range devices {
			if d.Default {
				return d, nil
			}
		}
		// The backend did not flag a default; the first device is the
		// most reasonable stand-in.
		return devices[0], nil
	}

	if idx, err := strconv.Atoi(sel); err == nil {
		if idx < 0 || idx >= len(devices) {
			return Device{}, fmt.Errorf("%w: index %d out of range (0-%d)", ErrDeviceNotFound, idx, len(devices)-1)
		}
		return devices[idx], nil
	}

	lower := strings.ToLower(sel)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), lower) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, selector)
}
