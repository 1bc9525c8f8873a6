// Package memory hands out regions of one persistently mapped, host visible
// buffer. Regions are carved from an append-only cursor and are only
// reclaimed all at once.
package memory

import (
	"fmt"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

// Suballocation is a view into the shared backing buffer. It does not own
// the buffer.
type Suballocation struct {
	Buffer     driver.Buffer
	Offset     uint64
	Size       uint64
	Generation uint64
}

// IsValid reports whether the region was ever handed out.
func (s Suballocation) IsValid() bool {
	return s.Buffer != nil && s.Size > 0
}

type Suballocator struct {
	device     driver.Device
	capacity   uint64
	alignment  uint64
	usage      driver.BufferUsage
	buffer     driver.Buffer
	mapped     []byte
	cursor     uint64
	generation uint64
}

// NewSuballocator does not touch the device; the backing buffer is created
// on the first Allocate. minAlignment raises the device alignment if it is
// larger.
func NewSuballocator(device driver.Device, capacity uint64, usage driver.BufferUsage, minAlignment uint64) (*Suballocator, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("suballocator capacity must be positive: %w", core.ErrInvalidState)
	}
	limits := device.Limits()
	align := limits.MinUniformBufferOffsetAlignment
	if usage&driver.BufferUsageStorage != 0 && limits.MinStorageBufferOffsetAlignment > align {
		align = limits.MinStorageBufferOffsetAlignment
	}
	if minAlignment > align {
		align = minAlignment
	}
	if align == 0 {
		align = 1
	}
	return &Suballocator{
		device:    device,
		capacity:  capacity,
		alignment: align,
		usage:     usage,
	}, nil
}

// AlignSize rounds size up to a multiple of align.
func AlignSize(size, align uint64) uint64 {
	if align <= 1 || size%align == 0 {
		return size
	}
	nb := size / align
	return (nb + 1) * align
}

func (a *Suballocator) ensureBacking() error {
	if a.buffer != nil {
		return nil
	}
	buf, err := a.device.NewBuffer(a.capacity, a.usage)
	if err != nil {
		return fmt.Errorf("failed to create suballocator backing buffer: %w", err)
	}
	mapped, err := buf.Map()
	if err != nil {
		buf.Destroy()
		return fmt.Errorf("failed to map suballocator backing buffer: %w", err)
	}
	a.buffer = buf
	a.mapped = mapped
	a.generation++
	core.LogDebug("suballocator backing buffer created: %d bytes, alignment %d, generation %d", a.capacity, a.alignment, a.generation)
	return nil
}

// Allocate returns the next size bytes, rounded up to the alignment, right
// after the previous allocation. On ErrCapacityExceeded the cursor is left
// untouched.
func (a *Suballocator) Allocate(size uint64) (Suballocation, error) {
	if size == 0 {
		return Suballocation{}, fmt.Errorf("zero sized allocation: %w", core.ErrInvalidState)
	}
	aligned := AlignSize(size, a.alignment)
	if aligned > a.capacity-a.cursor || aligned < size {
		return Suballocation{}, fmt.Errorf("requested %d bytes, %d of %d remaining: %w", aligned, a.capacity-a.cursor, a.capacity, core.ErrCapacityExceeded)
	}
	if err := a.ensureBacking(); err != nil {
		return Suballocation{}, err
	}
	s := Suballocation{
		Buffer:     a.buffer,
		Offset:     a.cursor,
		Size:       aligned,
		Generation: a.generation,
	}
	a.cursor += aligned
	return s, nil
}

func (a *Suballocator) region(s Suballocation, n int) ([]byte, error) {
	if s.Buffer == nil || s.Buffer != a.buffer || s.Generation != a.generation {
		return nil, fmt.Errorf("suballocation from generation %d, allocator at %d: %w", s.Generation, a.generation, core.ErrInvalidState)
	}
	if uint64(n) > s.Size {
		return nil, fmt.Errorf("write of %d bytes exceeds region of %d: %w", n, s.Size, core.ErrInvalidState)
	}
	return a.mapped[s.Offset : s.Offset+s.Size], nil
}

// Write copies data to the start of the region. The backing memory is
// coherent so no flush is needed.
func (a *Suballocator) Write(s Suballocation, data []byte) error {
	dst, err := a.region(s, len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// Update rewrites a region that may already hold data. The caller must have
// waited on the fence of every frame that read it.
func (a *Suballocator) Update(s Suballocation, data []byte) error {
	return a.Write(s, data)
}

// Reset rewinds the cursor and invalidates every region handed out so far.
// The backing buffer is kept.
func (a *Suballocator) Reset() {
	a.cursor = 0
	if a.buffer != nil {
		a.generation++
	}
}

// Release unmaps and destroys the backing buffer. The next Allocate creates
// a new one.
func (a *Suballocator) Release() {
	if a.buffer == nil {
		return
	}
	a.buffer.Unmap()
	a.buffer.Destroy()
	a.buffer = nil
	a.mapped = nil
	a.cursor = 0
}

func (a *Suballocator) Capacity() uint64 {
	return a.capacity
}

func (a *Suballocator) Used() uint64 {
	return a.cursor
}

func (a *Suballocator) Remaining() uint64 {
	return a.capacity - a.cursor
}

func (a *Suballocator) Alignment() uint64 {
	return a.alignment
}

func (a *Suballocator) Generation() uint64 {
	return a.generation
}

// Buffer is nil until the first allocation.
func (a *Suballocator) Buffer() driver.Buffer {
	return a.buffer
}
