//go:build !windows

package util

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the signals that request a graceful stop.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}
