package core

import (
	"errors"
)

var (
	// ErrStale reports a swapchain that no longer matches the surface. It is
	// consumed by the frame scheduler and never returned to callers.
	ErrStale            = errors.New("surface chain out of date")
	ErrCapacityExceeded = errors.New("suballocation capacity exceeded")
	ErrDeviceLost       = errors.New("device lost")
	ErrFatal            = errors.New("fatal renderer error")
	ErrInvalidState     = errors.New("invalid state")
)

// IsFatal reports whether err must stop the frame loop. Only a stale
// surface is recoverable; capacity and state violations are fatal like a
// lost device.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrStale)
}
