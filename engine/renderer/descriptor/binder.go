// Package descriptor ties per-frame resources to per-frame descriptor sets.
package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/memory"
)

// Resource is one binding in a ResourceSet. Buffer resources point at a
// suballocation, image resources at a sampled image.
type Resource struct {
	Binding uint32
	Kind    driver.DescriptorKind
	Region  memory.Suballocation
	Image   driver.SampledImage
}

type ResourceSet []Resource

// bindingState is what was last written for one binding of one slot. A
// binding is rewritten when any of it differs.
type bindingState struct {
	written    bool
	buffer     driver.Buffer
	generation uint64
	offset     uint64
	size       uint64
	image      driver.SampledImage
}

func (s bindingState) matches(r Resource) bool {
	if !s.written {
		return false
	}
	if r.Kind == driver.DescriptorCombinedImageSampler {
		return s.image == r.Image
	}
	return s.buffer == r.Region.Buffer &&
		s.generation == r.Region.Generation &&
		s.offset == r.Region.Offset &&
		s.size == r.Region.Size
}

type Binder struct {
	pool   driver.DescriptorPool
	sets   []driver.DescriptorSet
	layout map[uint32]driver.DescriptorBinding
	states []map[uint32]bindingState
}

// NewBinder allocates one descriptor set per frame slot.
func NewBinder(device driver.Device, layout []driver.DescriptorBinding, slots int) (*Binder, error) {
	if slots < 1 {
		return nil, fmt.Errorf("binder needs at least one slot: %w", core.ErrInvalidState)
	}
	pool, err := device.NewDescriptorPool(layout, slots)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor pool: %w", err)
	}
	b := &Binder{
		pool:   pool,
		sets:   pool.Sets(),
		layout: make(map[uint32]driver.DescriptorBinding, len(layout)),
		states: make([]map[uint32]bindingState, slots),
	}
	if len(b.sets) != slots {
		pool.Destroy()
		return nil, fmt.Errorf("descriptor pool returned %d sets, want %d: %w", len(b.sets), slots, core.ErrInvalidState)
	}
	for _, l := range layout {
		b.layout[l.Binding] = l
	}
	for i := range b.states {
		b.states[i] = make(map[uint32]bindingState)
	}
	return b, nil
}

// Bind writes the descriptors of set into slot's descriptor set, skipping
// bindings whose resource has not changed since the last Bind on that slot.
// It returns the number of descriptors written. The caller must have waited
// on the slot's fence.
func (b *Binder) Bind(slot int, set ResourceSet) (int, error) {
	if slot < 0 || slot >= len(b.sets) {
		return 0, fmt.Errorf("descriptor slot %d out of range [0,%d): %w", slot, len(b.sets), core.ErrInvalidState)
	}
	states := b.states[slot]
	var writes []driver.DescriptorWrite
	for _, r := range set {
		l, ok := b.layout[r.Binding]
		if !ok {
			return 0, fmt.Errorf("binding %d is not part of the layout: %w", r.Binding, core.ErrInvalidState)
		}
		if l.Kind != r.Kind {
			return 0, fmt.Errorf("binding %d kind mismatch: %w", r.Binding, core.ErrInvalidState)
		}
		if states[r.Binding].matches(r) {
			continue
		}
		w := driver.DescriptorWrite{Binding: r.Binding, Kind: r.Kind}
		if r.Kind == driver.DescriptorCombinedImageSampler {
			if r.Image == nil {
				return 0, fmt.Errorf("binding %d has no image: %w", r.Binding, core.ErrInvalidState)
			}
			w.Image = r.Image
		} else {
			if !r.Region.IsValid() {
				return 0, fmt.Errorf("binding %d has no buffer region: %w", r.Binding, core.ErrInvalidState)
			}
			w.Buffer = r.Region.Buffer
			w.Offset = r.Region.Offset
			w.Range = r.Region.Size
		}
		writes = append(writes, w)
	}
	if len(writes) == 0 {
		return 0, nil
	}
	if err := b.sets[slot].Update(writes); err != nil {
		return 0, fmt.Errorf("failed to update descriptor set %d: %w", slot, err)
	}
	for _, r := range set {
		states[r.Binding] = bindingState{
			written:    true,
			buffer:     r.Region.Buffer,
			generation: r.Region.Generation,
			offset:     r.Region.Offset,
			size:       r.Region.Size,
			image:      r.Image,
		}
	}
	return len(writes), nil
}

// Invalidate forces every binding of every slot to be rewritten, as needed
// after a layout change.
func (b *Binder) Invalidate() {
	for i := range b.states {
		b.states[i] = make(map[uint32]bindingState)
	}
}

func (b *Binder) Set(slot int) driver.DescriptorSet {
	if slot < 0 || slot >= len(b.sets) {
		return nil
	}
	return b.sets[slot]
}

func (b *Binder) Slots() int {
	return len(b.sets)
}

func (b *Binder) Destroy() {
	if b.pool != nil {
		b.pool.Destroy()
		b.pool = nil
	}
	b.sets = nil
}
