package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/driver/drivertest"
)

func newAllocator(t *testing.T, capacity uint64) (*Suballocator, *drivertest.Device) {
	t.Helper()
	dev := drivertest.NewDevice()
	a, err := NewSuballocator(dev, capacity, driver.BufferUsageUniform, 0)
	require.NoError(t, err)
	return a, dev
}

func TestAlignSize(t *testing.T) {
	assert.Equal(t, uint64(256), AlignSize(1, 256))
	assert.Equal(t, uint64(256), AlignSize(256, 256))
	assert.Equal(t, uint64(512), AlignSize(257, 256))
	assert.Equal(t, uint64(7), AlignSize(7, 1))
}

func TestAllocateIsLazyAndContiguous(t *testing.T) {
	a, dev := newAllocator(t, 4096)
	assert.Nil(t, a.Buffer())
	assert.Empty(t, dev.Buffers)

	var prev Suballocation
	for i, size := range []uint64{144, 256, 1, 300} {
		s, err := a.Allocate(size)
		require.NoError(t, err)
		assert.Zero(t, s.Offset%a.Alignment())
		assert.GreaterOrEqual(t, s.Size, size)
		if i > 0 {
			assert.Equal(t, prev.Offset+prev.Size, s.Offset, "allocation %d", i)
		} else {
			assert.Zero(t, s.Offset)
		}
		prev = s
	}
	require.Len(t, dev.Buffers, 1)
	assert.True(t, dev.Buffers[0].Mapped)
	assert.Equal(t, uint64(256*5), a.Used())
}

func TestAllocateCapacityExceededLeavesCursor(t *testing.T) {
	a, _ := newAllocator(t, 1024)
	_, err := a.Allocate(512)
	require.NoError(t, err)
	used := a.Used()

	_, err = a.Allocate(600)
	require.ErrorIs(t, err, core.ErrCapacityExceeded)
	assert.Equal(t, used, a.Used())

	s, err := a.Allocate(512)
	require.NoError(t, err)
	assert.Equal(t, uint64(512), s.Offset)
	assert.Zero(t, a.Remaining())

	_, err = a.Allocate(1)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestAllocateZeroSize(t *testing.T) {
	a, _ := newAllocator(t, 1024)
	_, err := a.Allocate(0)
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestWriteAndUpdate(t *testing.T) {
	a, dev := newAllocator(t, 1024)
	first, err := a.Allocate(4)
	require.NoError(t, err)
	second, err := a.Allocate(4)
	require.NoError(t, err)

	require.NoError(t, a.Write(first, []byte{1, 2, 3, 4}))
	require.NoError(t, a.Write(second, []byte{9, 9}))
	require.NoError(t, a.Update(first, []byte{5, 6}))

	data := dev.Buffers[0].Data
	assert.Equal(t, []byte{5, 6, 3, 4}, data[0:4])
	assert.Equal(t, []byte{9, 9}, data[second.Offset:second.Offset+2])

	err = a.Write(first, make([]byte, first.Size+1))
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestResetInvalidatesRegions(t *testing.T) {
	a, dev := newAllocator(t, 1024)
	old, err := a.Allocate(16)
	require.NoError(t, err)
	gen := a.Generation()

	a.Reset()
	assert.Zero(t, a.Used())
	assert.Equal(t, gen+1, a.Generation())
	assert.ErrorIs(t, a.Write(old, []byte{1}), core.ErrInvalidState)

	fresh, err := a.Allocate(16)
	require.NoError(t, err)
	assert.Zero(t, fresh.Offset)
	assert.Len(t, dev.Buffers, 1, "reset keeps the backing buffer")
}

func TestReleaseRecreatesBacking(t *testing.T) {
	a, dev := newAllocator(t, 1024)
	old, err := a.Allocate(16)
	require.NoError(t, err)

	a.Release()
	assert.True(t, dev.Buffers[0].Destroyed)
	assert.False(t, dev.Buffers[0].Mapped)
	assert.Nil(t, a.Buffer())

	fresh, err := a.Allocate(16)
	require.NoError(t, err)
	require.Len(t, dev.Buffers, 2)
	assert.NotEqual(t, old.Generation, fresh.Generation)
	assert.ErrorIs(t, a.Write(old, []byte{1}), core.ErrInvalidState)
}

func TestStorageAlignmentAndOverride(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.LimitsValue.MinUniformBufferOffsetAlignment = 16
	dev.LimitsValue.MinStorageBufferOffsetAlignment = 64

	a, err := NewSuballocator(dev, 1024, driver.BufferUsageStorage, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), a.Alignment())

	a, err = NewSuballocator(dev, 1024, driver.BufferUsageUniform, 128)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), a.Alignment())

	_, err = NewSuballocator(dev, 0, driver.BufferUsageUniform, 0)
	assert.ErrorIs(t, err, core.ErrInvalidState)
}
