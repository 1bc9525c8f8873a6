// Package frame drives frames in flight: the ring of per-slot
// synchronization primitives and the scheduler that runs one tick at a time
// over it.
package frame

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

type slotPhase int

const (
	// a submission may still reference the slot
	phaseSubmitted slotPhase = iota
	// the fence fired and has not been reset
	phaseWaited
	// the fence is unsignaled and ready for the next submission
	phaseReset
)

type syncSlot struct {
	fence          driver.Fence
	imageAcquired  driver.Semaphore
	renderComplete driver.Semaphore
	// mirrors the fence so an already signaled fence is not waited on again
	signaled bool
	phase    slotPhase
	waits    uint64
}

// SyncRing holds one fence and two semaphores per frame in flight.
type SyncRing struct {
	slots   []syncSlot
	timeout time.Duration
}

// NewSyncRing creates n slots. Fences start signaled so the first wait on
// each slot returns immediately. A zero timeout waits forever.
func NewSyncRing(device driver.Device, n int, timeout time.Duration) (*SyncRing, error) {
	if n < 1 {
		return nil, fmt.Errorf("sync ring needs at least one slot: %w", core.ErrInvalidState)
	}
	r := &SyncRing{slots: make([]syncSlot, n), timeout: timeout}
	for i := range r.slots {
		s := &r.slots[i]
		var err error
		if s.imageAcquired, err = device.NewSemaphore(); err != nil {
			r.Destroy()
			return nil, fmt.Errorf("failed to create image acquired semaphore %d: %w", i, err)
		}
		if s.renderComplete, err = device.NewSemaphore(); err != nil {
			r.Destroy()
			return nil, fmt.Errorf("failed to create render complete semaphore %d: %w", i, err)
		}
		if s.fence, err = device.NewFence(true); err != nil {
			r.Destroy()
			return nil, fmt.Errorf("failed to create in flight fence %d: %w", i, err)
		}
		s.signaled = true
		s.phase = phaseSubmitted
	}
	return r, nil
}

func (r *SyncRing) Len() int {
	return len(r.slots)
}

func (r *SyncRing) slot(i int) (*syncSlot, error) {
	if i < 0 || i >= len(r.slots) {
		return nil, fmt.Errorf("sync slot %d out of range [0,%d): %w", i, len(r.slots), core.ErrInvalidState)
	}
	return &r.slots[i], nil
}

// WaitSlot blocks until the last submission on slot i completed. It is the
// wait that precedes reuse of the slot and is counted by Waits.
func (r *SyncRing) WaitSlot(i int) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	s.waits++
	return r.wait(s, i)
}

// waitRetired waits for slot i's last submission on behalf of another slot,
// such as the previous owner of a swapchain image. It is not counted.
func (r *SyncRing) waitRetired(i int) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	return r.wait(s, i)
}

func (r *SyncRing) wait(s *syncSlot, i int) error {
	if !s.signaled {
		switch res := s.fence.Wait(r.timeout); res {
		case driver.Success:
		case driver.Timeout:
			core.LogError("in flight fence %d timed out after %s", i, r.timeout)
			return fmt.Errorf("fence %d timed out: %w", i, core.ErrDeviceLost)
		case driver.DeviceLost:
			core.LogError("in flight fence %d wait: device lost", i)
			return fmt.Errorf("fence %d: %w", i, core.ErrDeviceLost)
		default:
			core.LogError("in flight fence %d wait: %s", i, res)
			return fmt.Errorf("fence %d wait returned %s: %w", i, res, core.ErrFatal)
		}
		s.signaled = true
	}
	if s.phase == phaseSubmitted {
		s.phase = phaseWaited
	}
	return nil
}

// ResetSlot arms slot i's fence for the next submission. It is only legal
// once the fence was waited on since the slot was last submitted.
func (r *SyncRing) ResetSlot(i int) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	switch s.phase {
	case phaseReset:
		return nil
	case phaseSubmitted:
		return fmt.Errorf("reset of slot %d before waiting on it: %w", i, core.ErrInvalidState)
	}
	if err := s.fence.Reset(); err != nil {
		return fmt.Errorf("failed to reset fence %d: %w", i, err)
	}
	s.signaled = false
	s.phase = phaseReset
	return nil
}

// MarkSubmitted records that a submission signaling slot i's fence was
// issued.
func (r *SyncRing) MarkSubmitted(i int) error {
	s, err := r.slot(i)
	if err != nil {
		return err
	}
	if s.phase != phaseReset {
		return fmt.Errorf("submit on slot %d without a reset fence: %w", i, core.ErrInvalidState)
	}
	s.phase = phaseSubmitted
	return nil
}

// Ready reports whether slot i has been waited on and reset, the only state
// in which its command buffer may be recorded.
func (r *SyncRing) Ready(i int) bool {
	s, err := r.slot(i)
	return err == nil && s.phase == phaseReset
}

func (r *SyncRing) Fence(i int) driver.Fence {
	return r.slots[i].fence
}

func (r *SyncRing) ImageAcquired(i int) driver.Semaphore {
	return r.slots[i].imageAcquired
}

func (r *SyncRing) RenderComplete(i int) driver.Semaphore {
	return r.slots[i].renderComplete
}

// Waits is how many times WaitSlot was called on slot i. Waits on behalf of
// an image's previous owner are not included.
func (r *SyncRing) Waits(i int) uint64 {
	return r.slots[i].waits
}

// Destroy releases every primitive. The device must be idle.
func (r *SyncRing) Destroy() {
	for i := range r.slots {
		s := &r.slots[i]
		if s.fence != nil {
			s.fence.Destroy()
			s.fence = nil
		}
		if s.imageAcquired != nil {
			s.imageAcquired.Destroy()
			s.imageAcquired = nil
		}
		if s.renderComplete != nil {
			s.renderComplete.Destroy()
			s.renderComplete = nil
		}
	}
}
