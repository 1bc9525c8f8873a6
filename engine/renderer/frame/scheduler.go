package frame

import (
	"fmt"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/descriptor"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/memory"
	"github.com/spaghettifunk/tempo/engine/renderer/surface"
)

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateSubmitted
	StatePresenting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiring:
		return "ACQUIRING"
	case StateRecording:
		return "RECORDING"
	case StateSubmitted:
		return "SUBMITTED"
	case StatePresenting:
		return "PRESENTING"
	}
	return "UNKNOWN"
}

// GlobalsBinding is the descriptor binding of the per-frame uniform block.
const GlobalsBinding = 0

// Frame is what a Recorder gets to draw one tick.
type Frame struct {
	Slot        int
	ImageIndex  uint32
	Number      uint64
	Target      driver.RenderTarget
	Extent      driver.Extent
	Descriptors driver.DescriptorSet
	Globals     memory.Suballocation
}

// Recorder fills a command buffer that is already begun. It must not wait,
// submit or present.
type Recorder interface {
	Record(cb driver.CommandBuffer, f *Frame) error
}

// Outcome describes what one Tick did.
type Outcome struct {
	Slot       int
	ImageIndex uint32
	// Skipped is set when acquisition found the surface stale and the tick
	// ended after recreating it.
	Skipped bool
	// Recreated is set when the surface was rebuilt during the tick.
	Recreated bool
	// Deferred is set when a rebuild was needed but the window had no area.
	Deferred bool
}

type slotResources struct {
	commandBuffer driver.CommandBuffer
	globals       memory.Suballocation
}

// Scheduler runs the per-tick protocol over a SyncRing and a surface.
type Scheduler struct {
	device    driver.Device
	ring      *SyncRing
	surface   *surface.Lifecycle
	allocator *memory.Suballocator
	binder    *descriptor.Binder
	recorder  Recorder

	slots []slotResources
	// imagesInFlight maps a swapchain image to the slot that last submitted
	// work rendering to it, -1 when none.
	imagesInFlight []int
	current        int
	state          State
	frameNumber    uint64
}

type SchedulerConfig struct {
	Device    driver.Device
	Ring      *SyncRing
	Surface   *surface.Lifecycle
	Allocator *memory.Suballocator
	Binder    *descriptor.Binder
	Recorder  Recorder
}

// NewScheduler allocates one command buffer and one uniform block per ring
// slot. The surface must already be created.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Ring == nil || cfg.Surface == nil || cfg.Allocator == nil || cfg.Binder == nil || cfg.Recorder == nil {
		return nil, fmt.Errorf("scheduler config is incomplete: %w", core.ErrInvalidState)
	}
	if cfg.Binder.Slots() != cfg.Ring.Len() {
		return nil, fmt.Errorf("binder has %d slots, ring has %d: %w", cfg.Binder.Slots(), cfg.Ring.Len(), core.ErrInvalidState)
	}
	s := &Scheduler{
		device:    cfg.Device,
		ring:      cfg.Ring,
		surface:   cfg.Surface,
		allocator: cfg.Allocator,
		binder:    cfg.Binder,
		recorder:  cfg.Recorder,
		slots:     make([]slotResources, cfg.Ring.Len()),
		state:     StateIdle,
	}
	for i := range s.slots {
		cb, err := s.device.NewCommandBuffer()
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("failed to create command buffer for slot %d: %w", i, err)
		}
		s.slots[i].commandBuffer = cb
		region, err := s.allocator.Allocate(GlobalsSize)
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("failed to allocate globals for slot %d: %w", i, err)
		}
		s.slots[i].globals = region
	}
	s.resetImagesInFlight()
	return s, nil
}

func (s *Scheduler) resetImagesInFlight() {
	s.imagesInFlight = make([]int, s.surface.ImageCount())
	for i := range s.imagesInFlight {
		s.imagesInFlight[i] = -1
	}
}

// ResetGlobals rewinds the allocator and hands every slot a fresh uniform
// block, rebinding it on the next use. The device must be idle. It must be
// called whenever the allocator is reset by anyone else, since regions from
// an older generation can no longer be written.
func (s *Scheduler) ResetGlobals() error {
	s.allocator.Reset()
	s.binder.Invalidate()
	for i := range s.slots {
		region, err := s.allocator.Allocate(GlobalsSize)
		if err != nil {
			return fmt.Errorf("failed to reallocate globals for slot %d: %w: %w", i, core.ErrFatal, err)
		}
		s.slots[i].globals = region
	}
	core.LogDebug("frame globals reallocated at arena generation %d", s.allocator.Generation())
	return nil
}

// recreate rebuilds the surface. Recreate drains the device, so every image
// is free afterwards and the globals can be reallocated.
func (s *Scheduler) recreate(out *Outcome) error {
	rebuilt, err := s.surface.Recreate()
	if err != nil {
		core.LogError("swapchain recreate failed: %s", err)
		return fmt.Errorf("recreate surface: %w", core.ErrFatal)
	}
	if rebuilt {
		out.Recreated = true
		s.resetImagesInFlight()
		if err := s.ResetGlobals(); err != nil {
			return err
		}
	} else {
		out.Deferred = true
	}
	return nil
}

// Tick runs one frame. Stale surfaces are handled here and never returned.
// A returned error is fatal for the frame loop.
func (s *Scheduler) Tick(globals Globals) (Outcome, error) {
	cur := s.current
	out := Outcome{Slot: cur}

	// A reported resize already makes this acquire stale. The slot is not
	// waited on because nothing is recorded into it.
	if s.surface.PendingResize() {
		out.Skipped = true
		return out, s.recreate(&out)
	}

	s.state = StateAcquiring
	if err := s.ring.WaitSlot(cur); err != nil {
		s.state = StateIdle
		return out, err
	}

	acquired := s.ring.ImageAcquired(cur)
	imageIndex, status := s.surface.Acquire(acquired)
	switch status {
	case surface.StatusOK:
	case surface.StatusStale, surface.StatusSuboptimal:
		s.state = StateIdle
		out.Skipped = true
		return out, s.recreate(&out)
	default:
		s.state = StateIdle
		return out, s.statusError("acquire", status)
	}
	out.ImageIndex = imageIndex

	if int(imageIndex) < len(s.imagesInFlight) {
		if owner := s.imagesInFlight[imageIndex]; owner >= 0 && owner != cur {
			if err := s.ring.waitRetired(owner); err != nil {
				s.state = StateIdle
				return out, err
			}
		}
		s.imagesInFlight[imageIndex] = cur
	}

	// From here on a failure leaves the fence unsignaled and the acquire
	// semaphore pending, so the slot cannot be used again.
	if err := s.ring.ResetSlot(cur); err != nil {
		s.state = StateIdle
		return out, fmt.Errorf("slot %d: %w: %w", cur, core.ErrFatal, err)
	}
	s.state = StateRecording
	if err := s.record(cur, imageIndex, globals); err != nil {
		s.state = StateIdle
		core.LogError("recording slot %d failed: %s", cur, err)
		return out, err
	}

	if err := s.device.Submit(driver.SubmitInfo{
		CommandBuffer: s.slots[cur].commandBuffer,
		Wait:          acquired,
		Signal:        s.ring.RenderComplete(cur),
		Fence:         s.ring.Fence(cur),
	}); err != nil {
		s.state = StateIdle
		core.LogError("queue submit failed for slot %d: %s", cur, err)
		return out, fmt.Errorf("submit slot %d: %w: %w", cur, core.ErrFatal, err)
	}
	if err := s.ring.MarkSubmitted(cur); err != nil {
		s.state = StateIdle
		return out, fmt.Errorf("slot %d: %w: %w", cur, core.ErrFatal, err)
	}
	s.state = StateSubmitted

	s.state = StatePresenting
	status = s.surface.Present(imageIndex, s.ring.RenderComplete(cur))
	s.current = (s.current + 1) % s.ring.Len()
	s.frameNumber++
	s.state = StateIdle
	switch status {
	case surface.StatusOK:
	case surface.StatusStale, surface.StatusSuboptimal:
		return out, s.recreate(&out)
	default:
		return out, s.statusError("present", status)
	}
	return out, nil
}

func (s *Scheduler) record(cur int, imageIndex uint32, globals Globals) error {
	if !s.ring.Ready(cur) {
		return fmt.Errorf("recording slot %d before wait and reset: %w: %w", cur, core.ErrFatal, core.ErrInvalidState)
	}
	res := &s.slots[cur]
	if err := s.allocator.Update(res.globals, globals.Bytes()); err != nil {
		return fmt.Errorf("write globals for slot %d: %w: %w", cur, core.ErrFatal, err)
	}
	set := descriptor.ResourceSet{{
		Binding: GlobalsBinding,
		Kind:    driver.DescriptorUniformBuffer,
		Region:  res.globals,
	}}
	if _, err := s.binder.Bind(cur, set); err != nil {
		return fmt.Errorf("bind globals for slot %d: %w: %w", cur, core.ErrFatal, err)
	}

	cb := res.commandBuffer
	if err := cb.Reset(); err != nil {
		return fmt.Errorf("reset command buffer %d: %w: %w", cur, core.ErrFatal, err)
	}
	if err := cb.Begin(); err != nil {
		return fmt.Errorf("begin command buffer %d: %w: %w", cur, core.ErrFatal, err)
	}
	target := s.surface.RenderTarget(imageIndex)
	f := &Frame{
		Slot:        cur,
		ImageIndex:  imageIndex,
		Number:      s.frameNumber,
		Target:      target,
		Extent:      s.surface.Extent(),
		Descriptors: s.binder.Set(cur),
		Globals:     res.globals,
	}
	if err := s.recorder.Record(cb, f); err != nil {
		return fmt.Errorf("record slot %d: %w: %w", cur, core.ErrFatal, err)
	}
	if err := cb.End(); err != nil {
		return fmt.Errorf("end command buffer %d: %w: %w", cur, core.ErrFatal, err)
	}
	return nil
}

func (s *Scheduler) statusError(op string, status surface.Status) error {
	if s.surface.LastResult() == driver.DeviceLost {
		return fmt.Errorf("%s: %w", op, core.ErrDeviceLost)
	}
	return fmt.Errorf("%s returned %s (%s): %w", op, status, s.surface.LastResult(), core.ErrFatal)
}

// Current is the slot the next Tick uses.
func (s *Scheduler) Current() int {
	return s.current
}

func (s *Scheduler) State() State {
	return s.state
}

// FrameNumber counts presented ticks.
func (s *Scheduler) FrameNumber() uint64 {
	return s.frameNumber
}

func (s *Scheduler) CommandBuffer(slot int) driver.CommandBuffer {
	return s.slots[slot].commandBuffer
}

func (s *Scheduler) Globals(slot int) memory.Suballocation {
	return s.slots[slot].globals
}

// Destroy frees the command buffers. The device must be idle.
func (s *Scheduler) Destroy() {
	for i := range s.slots {
		if s.slots[i].commandBuffer != nil {
			s.slots[i].commandBuffer.Destroy()
			s.slots[i].commandBuffer = nil
		}
	}
}
