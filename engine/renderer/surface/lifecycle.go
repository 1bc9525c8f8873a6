// Package surface keeps the swapchain and its render targets in step with
// the window.
package surface

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

type State int

const (
	StateInvalid State = iota
	StateValid
	StateSuboptimal
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "VALID"
	case StateSuboptimal:
		return "SUBOPTIMAL"
	}
	return "INVALID"
}

// Status is what acquire and present report to the frame loop.
type Status int

const (
	StatusOK Status = iota
	StatusStale
	StatusSuboptimal
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusStale:
		return "STALE"
	case StatusSuboptimal:
		return "SUBOPTIMAL"
	}
	return "FATAL"
}

type Lifecycle struct {
	device  driver.Device
	factory driver.SwapchainFactory
	window  driver.Window
	timeout time.Duration

	chain   driver.Swapchain
	targets []driver.RenderTarget
	state   State
	chainID uuid.UUID
	// last driver result behind a StatusFatal
	lastResult driver.Result

	resizeGeneration uint64
	builtGeneration  uint64
}

// New does not build anything; call Create once the device is ready.
// timeout bounds image acquisition, zero waits forever.
func New(device driver.Device, factory driver.SwapchainFactory, window driver.Window, timeout time.Duration) *Lifecycle {
	return &Lifecycle{
		device:  device,
		factory: factory,
		window:  window,
		timeout: timeout,
		state:   StateInvalid,
	}
}

func (l *Lifecycle) Create() error {
	extent := l.window.DrawableSize()
	if extent.IsZero() {
		return fmt.Errorf("cannot create swapchain for a %dx%d surface: %w", extent.Width, extent.Height, core.ErrInvalidState)
	}
	return l.build(extent)
}

func (l *Lifecycle) build(extent driver.Extent) error {
	chain, err := l.factory.CreateSwapchain(extent, l.chain)
	if err != nil {
		l.state = StateInvalid
		return fmt.Errorf("failed to create swapchain: %w", err)
	}
	if l.chain != nil {
		l.chain.Destroy()
	}
	l.chain = chain

	l.targets = make([]driver.RenderTarget, 0, chain.ImageCount())
	for i := 0; i < chain.ImageCount(); i++ {
		rt, err := chain.NewRenderTarget(i)
		if err != nil {
			l.destroyTargets()
			l.state = StateInvalid
			return fmt.Errorf("failed to create render target %d: %w", i, err)
		}
		l.targets = append(l.targets, rt)
	}
	l.state = StateValid
	l.chainID = uuid.New()
	l.builtGeneration = l.resizeGeneration
	ext := chain.Extent()
	core.LogInfo("swapchain %s ready: %dx%d, %d images", l.chainID, ext.Width, ext.Height, chain.ImageCount())
	return nil
}

func (l *Lifecycle) destroyTargets() {
	for _, rt := range l.targets {
		rt.Destroy()
	}
	l.targets = nil
}

// Acquire never touches an INVALID chain; it reports StatusStale so the
// caller recreates first.
func (l *Lifecycle) Acquire(signal driver.Semaphore) (uint32, Status) {
	if l.chain == nil || l.state == StateInvalid {
		return 0, StatusStale
	}
	idx, res := l.chain.AcquireNextImage(signal, l.timeout)
	switch res {
	case driver.Success:
		return idx, StatusOK
	case driver.Suboptimal:
		// The image is usable; the present that follows triggers the rebuild.
		l.state = StateSuboptimal
		return idx, StatusOK
	case driver.OutOfDate:
		l.state = StateInvalid
		return 0, StatusStale
	}
	l.lastResult = res
	core.LogError("failed to acquire swapchain image: %s", res)
	return 0, StatusFatal
}

func (l *Lifecycle) Present(imageIndex uint32, wait driver.Semaphore) Status {
	if l.chain == nil {
		return StatusStale
	}
	res := l.chain.Present(imageIndex, wait)
	switch res {
	case driver.Success:
		if l.state == StateSuboptimal {
			return StatusSuboptimal
		}
		return StatusOK
	case driver.Suboptimal:
		l.state = StateSuboptimal
		return StatusSuboptimal
	case driver.OutOfDate:
		l.state = StateInvalid
		return StatusStale
	}
	l.lastResult = res
	core.LogError("failed to present swapchain image: %s", res)
	return StatusFatal
}

// Recreate rebuilds the chain at the current drawable size. While the
// window is minimized the rebuild is deferred: it returns false and the
// chain stays INVALID until a later call sees a non-zero size.
func (l *Lifecycle) Recreate() (bool, error) {
	extent := l.window.DrawableSize()
	if extent.IsZero() {
		l.state = StateInvalid
		core.LogDebug("swapchain recreate deferred, surface is %dx%d", extent.Width, extent.Height)
		return false, nil
	}
	// Every frame that may still reference the old images must retire first.
	if err := l.device.WaitIdle(); err != nil {
		return false, fmt.Errorf("failed to drain device before swapchain recreate: %w", err)
	}
	l.destroyTargets()
	if err := l.build(extent); err != nil {
		return false, err
	}
	return true, nil
}

// NotifyResized marks the chain INVALID so the next acquire reports stale.
func (l *Lifecycle) NotifyResized() {
	l.resizeGeneration++
	if l.chain != nil {
		l.state = StateInvalid
	}
}

func (l *Lifecycle) Destroy() {
	l.destroyTargets()
	if l.chain != nil {
		l.chain.Destroy()
		l.chain = nil
	}
	l.state = StateInvalid
}

func (l *Lifecycle) State() State {
	return l.state
}

// Extent is the size the chain was built at, or zero before Create.
func (l *Lifecycle) Extent() driver.Extent {
	if l.chain == nil {
		return driver.Extent{}
	}
	return l.chain.Extent()
}

func (l *Lifecycle) ImageCount() int {
	return len(l.targets)
}

func (l *Lifecycle) RenderTarget(imageIndex uint32) driver.RenderTarget {
	if int(imageIndex) >= len(l.targets) {
		return nil
	}
	return l.targets[imageIndex]
}

func (l *Lifecycle) RenderTargets() []driver.RenderTarget {
	return l.targets
}

func (l *Lifecycle) ChainID() uuid.UUID {
	return l.chainID
}

// PendingResize reports a resize notification newer than the current chain.
func (l *Lifecycle) PendingResize() bool {
	return l.resizeGeneration != l.builtGeneration
}

// LastResult is the driver result behind the most recent StatusFatal.
func (l *Lifecycle) LastResult() driver.Result {
	return l.lastResult
}
