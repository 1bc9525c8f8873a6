package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/descriptor"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/frame"
	"github.com/spaghettifunk/tempo/engine/renderer/memory"
	"github.com/spaghettifunk/tempo/engine/renderer/surface"
)

type RendererType uint8

const (
	Vulkan RendererType = iota
)

type Config struct {
	FramesInFlight int
	// ArenaCapacity is the size of the per-frame uniform arena in bytes.
	ArenaCapacity uint64
	MinAlignment  uint64
	// FenceTimeout bounds fence waits and image acquisition. Zero waits
	// forever.
	FenceTimeout time.Duration
}

// GlobalsLayout is the descriptor layout every frame binds: the per-frame
// uniform block at binding 0.
var GlobalsLayout = []driver.DescriptorBinding{
	{Binding: frame.GlobalsBinding, Kind: driver.DescriptorUniformBuffer, Stages: driver.ShaderStageAllGraphics},
}

// Renderer owns the frame loop objects for one window.
type Renderer struct {
	device    driver.Device
	recorder  frame.Recorder
	surface   *surface.Lifecycle
	ring      *frame.SyncRing
	arena     *memory.Suballocator
	binder    *descriptor.Binder
	scheduler *frame.Scheduler

	// backend objects released after everything above, in reverse order
	teardown []func()
	closed   bool
}

// NewWithDevice builds the renderer over an existing device. The surface is
// created immediately, so the window must have a non-zero size.
func NewWithDevice(device driver.Device, factory driver.SwapchainFactory, window driver.Window, recorder frame.Recorder, cfg Config) (*Renderer, error) {
	if cfg.FramesInFlight < 1 {
		return nil, fmt.Errorf("%w: frames in flight must be positive, got %d", core.ErrInvalidState, cfg.FramesInFlight)
	}
	r := &Renderer{device: device, recorder: recorder}

	r.surface = surface.New(device, factory, window, cfg.FenceTimeout)
	if err := r.surface.Create(); err != nil {
		r.Shutdown()
		return nil, fmt.Errorf("failed to create surface: %w", err)
	}

	var err error
	if r.ring, err = frame.NewSyncRing(device, cfg.FramesInFlight, cfg.FenceTimeout); err != nil {
		r.Shutdown()
		return nil, err
	}
	if r.arena, err = memory.NewSuballocator(device, cfg.ArenaCapacity, driver.BufferUsageUniform, cfg.MinAlignment); err != nil {
		r.Shutdown()
		return nil, err
	}
	if r.binder, err = descriptor.NewBinder(device, GlobalsLayout, cfg.FramesInFlight); err != nil {
		r.Shutdown()
		return nil, err
	}
	r.scheduler, err = frame.NewScheduler(frame.SchedulerConfig{
		Device:    device,
		Ring:      r.ring,
		Surface:   r.surface,
		Allocator: r.arena,
		Binder:    r.binder,
		Recorder:  recorder,
	})
	if err != nil {
		r.Shutdown()
		return nil, err
	}

	core.LogInfo("Renderer initialized with %d frames in flight, %d byte arena.", cfg.FramesInFlight, cfg.ArenaCapacity)
	return r, nil
}

// DrawFrame runs one tick. A returned error means the renderer cannot go on.
func (r *Renderer) DrawFrame(globals frame.Globals) (frame.Outcome, error) {
	if r.closed {
		return frame.Outcome{}, fmt.Errorf("%w: renderer is shut down", core.ErrInvalidState)
	}
	out, err := r.scheduler.Tick(globals)
	if err != nil {
		if errors.Is(err, core.ErrDeviceLost) {
			core.LogError("device lost on frame %d: %s", r.scheduler.FrameNumber(), err)
		} else {
			core.LogError("frame %d failed: %s", r.scheduler.FrameNumber(), err)
		}
		return out, err
	}
	if out.Deferred {
		core.LogDebug("surface rebuild deferred, window has no area")
	}
	return out, nil
}

// OnResized marks the swapchain stale. The rebuild happens on the next tick
// that finds the window with a non-zero size.
func (r *Renderer) OnResized(width, height uint32) {
	core.LogDebug("window resized to %dx%d", width, height)
	r.surface.NotifyResized()
}

// SetClearColor forwards to the recorder when it supports it.
func (r *Renderer) SetClearColor(color [4]float32) {
	if c, ok := r.recorder.(interface{ SetClearColor([4]float32) }); ok {
		c.SetClearColor(color)
	}
}

func (r *Renderer) Extent() driver.Extent {
	return r.surface.Extent()
}

func (r *Renderer) Surface() *surface.Lifecycle {
	return r.surface
}

func (r *Renderer) Scheduler() *frame.Scheduler {
	return r.scheduler
}

// Shutdown drains the device and destroys everything in reverse creation
// order. It is safe to call more than once.
func (r *Renderer) Shutdown() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.device != nil {
		if err = r.device.WaitIdle(); err != nil {
			core.LogError("failed to wait for device idle on shutdown: %s", err)
		}
	}
	if r.scheduler != nil {
		r.scheduler.Destroy()
	}
	if r.binder != nil {
		r.binder.Destroy()
	}
	if r.arena != nil {
		r.arena.Release()
	}
	if r.ring != nil {
		r.ring.Destroy()
	}
	if r.surface != nil {
		r.surface.Destroy()
	}
	for i := len(r.teardown) - 1; i >= 0; i-- {
		r.teardown[i]()
	}
	r.teardown = nil
	core.LogInfo("Renderer shut down.")
	return err
}
