//go:build windows

package util

import "os"

// ShutdownSignals returns the signals that request a graceful stop.
// Windows only delivers an interrupt for Ctrl-C and Ctrl-Break.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
