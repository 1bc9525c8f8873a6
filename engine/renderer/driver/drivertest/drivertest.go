// Package drivertest provides in-memory implementations of the driver
// contracts. Every object records what was done to it and any misuse of
// the synchronization protocol is collected in Device.Violations.
package drivertest

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

var ErrInjected = errors.New("injected failure")

type Device struct {
	Log        []string
	Violations []string
	Submits    []driver.SubmitInfo

	LimitsValue driver.Limits
	// WaitResult is returned by every fence wait when not Success.
	WaitResult driver.Result
	SubmitErr  error
	BufferErr  error
	WaitIdles  int

	Fences         []*Fence
	Semaphores     []*Semaphore
	CommandBuffers []*CommandBuffer
	Buffers        []*Buffer
	Pools          []*DescriptorPool
}

func NewDevice() *Device {
	return &Device{
		LimitsValue: driver.Limits{
			MinUniformBufferOffsetAlignment: 256,
			MinStorageBufferOffsetAlignment: 64,
		},
	}
}

func (d *Device) record(format string, args ...interface{}) {
	d.Log = append(d.Log, fmt.Sprintf(format, args...))
}

func (d *Device) violate(format string, args ...interface{}) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

// Count returns how many log entries equal entry.
func (d *Device) Count(entry string) int {
	n := 0
	for _, l := range d.Log {
		if l == entry {
			n++
		}
	}
	return n
}

func (d *Device) NewFence(signaled bool) (driver.Fence, error) {
	f := &Fence{ID: len(d.Fences), Signaled: signaled, dev: d}
	d.Fences = append(d.Fences, f)
	return f, nil
}

func (d *Device) NewSemaphore() (driver.Semaphore, error) {
	s := &Semaphore{ID: len(d.Semaphores), dev: d}
	d.Semaphores = append(d.Semaphores, s)
	return s, nil
}

func (d *Device) NewCommandBuffer() (driver.CommandBuffer, error) {
	cb := &CommandBuffer{ID: len(d.CommandBuffers), dev: d}
	d.CommandBuffers = append(d.CommandBuffers, cb)
	return cb, nil
}

func (d *Device) NewBuffer(size uint64, usage driver.BufferUsage) (driver.Buffer, error) {
	if d.BufferErr != nil {
		return nil, d.BufferErr
	}
	b := &Buffer{ID: len(d.Buffers), Data: make([]byte, size), Usage: usage}
	d.Buffers = append(d.Buffers, b)
	d.record("create buffer#%d", b.ID)
	return b, nil
}

func (d *Device) NewDescriptorPool(layout []driver.DescriptorBinding, sets int) (driver.DescriptorPool, error) {
	p := &DescriptorPool{Layout: layout}
	for i := 0; i < sets; i++ {
		p.sets = append(p.sets, &DescriptorSet{ID: i})
	}
	d.Pools = append(d.Pools, p)
	return p, nil
}

func (d *Device) Submit(info driver.SubmitInfo) error {
	if d.SubmitErr != nil {
		return d.SubmitErr
	}
	cb := info.CommandBuffer.(*CommandBuffer)
	fence := info.Fence.(*Fence)
	d.record("submit cb#%d fence#%d", cb.ID, fence.ID)

	if cb.inFlight != nil && !cb.inFlight.Signaled {
		d.violate("cb#%d submitted while a previous submission is pending", cb.ID)
	}
	if fence.Signaled {
		d.violate("fence#%d submitted while signaled", fence.ID)
	}
	if fence.pending {
		d.violate("fence#%d already attached to a pending submission", fence.ID)
	}
	if info.Wait != nil {
		w := info.Wait.(*Semaphore)
		if !w.Signaled {
			d.violate("submit waits on unsignaled semaphore#%d", w.ID)
		}
		w.Signaled = false
	}
	if info.Signal != nil {
		s := info.Signal.(*Semaphore)
		if s.Signaled {
			d.violate("submit signals already signaled semaphore#%d", s.ID)
		}
		s.Signaled = true
	}
	fence.pending = true
	cb.inFlight = fence
	d.Submits = append(d.Submits, info)
	return nil
}

// WaitIdle completes every pending submission.
func (d *Device) WaitIdle() error {
	d.WaitIdles++
	d.record("wait idle")
	for _, f := range d.Fences {
		if f.pending {
			f.pending = false
			f.Signaled = true
		}
	}
	return nil
}

func (d *Device) Limits() driver.Limits {
	return d.LimitsValue
}

type Fence struct {
	ID        int
	Signaled  bool
	Waits     int
	Resets    int
	Destroyed bool
	pending   bool
	dev       *Device
}

// Wait completes the pending submission, as if the GPU finished it.
func (f *Fence) Wait(timeout time.Duration) driver.Result {
	f.Waits++
	f.dev.record("wait fence#%d", f.ID)
	if f.dev.WaitResult != driver.Success {
		return f.dev.WaitResult
	}
	f.pending = false
	f.Signaled = true
	return driver.Success
}

func (f *Fence) Reset() error {
	f.Resets++
	f.dev.record("reset fence#%d", f.ID)
	if f.pending {
		f.dev.violate("fence#%d reset while its submission is pending", f.ID)
	}
	f.Signaled = false
	return nil
}

func (f *Fence) Destroy() {
	if f.pending {
		f.dev.violate("fence#%d destroyed while pending", f.ID)
	}
	f.Destroyed = true
}

type Semaphore struct {
	ID        int
	Signaled  bool
	Destroyed bool
	dev       *Device
}

func (s *Semaphore) Destroy() {
	s.Destroyed = true
}

type CommandBuffer struct {
	ID        int
	Recording bool
	Begins    int
	Destroyed bool
	inFlight  *Fence
	dev       *Device
}

func (c *CommandBuffer) Reset() error {
	c.dev.record("reset cb#%d", c.ID)
	if c.inFlight != nil && !c.inFlight.Signaled {
		c.dev.violate("cb#%d reset while in flight", c.ID)
	}
	c.Recording = false
	return nil
}

func (c *CommandBuffer) Begin() error {
	c.dev.record("begin cb#%d", c.ID)
	if c.inFlight != nil && !c.inFlight.Signaled {
		c.dev.violate("cb#%d recorded while in flight", c.ID)
	}
	c.Begins++
	c.Recording = true
	return nil
}

func (c *CommandBuffer) End() error {
	c.dev.record("end cb#%d", c.ID)
	c.Recording = false
	return nil
}

func (c *CommandBuffer) Destroy() {
	c.Destroyed = true
}

type Buffer struct {
	ID        int
	Data      []byte
	Usage     driver.BufferUsage
	Mapped    bool
	Destroyed bool
}

func (b *Buffer) Size() uint64 {
	return uint64(len(b.Data))
}

func (b *Buffer) Map() ([]byte, error) {
	if b.Mapped {
		return nil, errors.New("buffer already mapped")
	}
	b.Mapped = true
	return b.Data, nil
}

func (b *Buffer) Unmap() {
	b.Mapped = false
}

func (b *Buffer) Destroy() {
	b.Destroyed = true
}

type DescriptorPool struct {
	Layout    []driver.DescriptorBinding
	Destroyed bool
	sets      []*DescriptorSet
}

func (p *DescriptorPool) Sets() []driver.DescriptorSet {
	out := make([]driver.DescriptorSet, len(p.sets))
	for i, s := range p.sets {
		out[i] = s
	}
	return out
}

func (p *DescriptorPool) Set(i int) *DescriptorSet {
	return p.sets[i]
}

func (p *DescriptorPool) Destroy() {
	p.Destroyed = true
}

type DescriptorSet struct {
	ID     int
	Writes [][]driver.DescriptorWrite
	Err    error
}

func (s *DescriptorSet) Update(writes []driver.DescriptorWrite) error {
	if s.Err != nil {
		return s.Err
	}
	s.Writes = append(s.Writes, append([]driver.DescriptorWrite(nil), writes...))
	return nil
}

type Image struct {
	Size driver.Extent
}

func (i *Image) Extent() driver.Extent {
	return i.Size
}

type Window struct {
	Size driver.Extent
}

func NewWindow(width, height uint32) *Window {
	return &Window{Size: driver.Extent{Width: width, Height: height}}
}

func (w *Window) DrawableSize() driver.Extent {
	return w.Size
}

func (w *Window) Resize(width, height uint32) {
	w.Size = driver.Extent{Width: width, Height: height}
}
