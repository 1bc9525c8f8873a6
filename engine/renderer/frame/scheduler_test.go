package frame

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/descriptor"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/tempo/engine/renderer/memory"
	"github.com/spaghettifunk/tempo/engine/renderer/surface"
)

type recorded struct {
	slot   int
	image  uint32
	extent driver.Extent
	target driver.Extent
}

type fakeRecorder struct {
	frames []recorded
	err    error
}

func (r *fakeRecorder) Record(cb driver.CommandBuffer, f *Frame) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, recorded{
		slot:   f.Slot,
		image:  f.ImageIndex,
		extent: f.Extent,
		target: f.Target.Extent(),
	})
	return nil
}

type harness struct {
	dev       *drivertest.Device
	win       *drivertest.Window
	surf      *drivertest.Surface
	life      *surface.Lifecycle
	ring      *SyncRing
	alloc     *memory.Suballocator
	recorder  *fakeRecorder
	scheduler *Scheduler
}

func newHarness(t *testing.T, slots int, width, height uint32) *harness {
	t.Helper()
	return newHarnessWithImages(t, slots, 3, width, height)
}

func newHarnessWithImages(t *testing.T, slots, images int, width, height uint32) *harness {
	t.Helper()
	h := &harness{
		dev:      drivertest.NewDevice(),
		win:      drivertest.NewWindow(width, height),
		recorder: &fakeRecorder{},
	}
	h.surf = drivertest.NewSurface(h.dev, h.win)
	h.surf.ImageCount = images
	h.life = surface.New(h.dev, h.surf, h.win, 0)
	require.NoError(t, h.life.Create())

	var err error
	h.ring, err = NewSyncRing(h.dev, slots, 0)
	require.NoError(t, err)
	h.alloc, err = memory.NewSuballocator(h.dev, 64*1024, driver.BufferUsageUniform, 0)
	require.NoError(t, err)
	binder, err := descriptor.NewBinder(h.dev, []driver.DescriptorBinding{
		{Binding: GlobalsBinding, Kind: driver.DescriptorUniformBuffer, Stages: driver.ShaderStageAllGraphics},
	}, slots)
	require.NoError(t, err)

	h.scheduler, err = NewScheduler(SchedulerConfig{
		Device:    h.dev,
		Ring:      h.ring,
		Surface:   h.life,
		Allocator: h.alloc,
		Binder:    binder,
		Recorder:  h.recorder,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) tick(t *testing.T) Outcome {
	t.Helper()
	out, err := h.scheduler.Tick(Globals{})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, h.scheduler.State())
	return out
}

func TestSchedulerCyclesSlots(t *testing.T) {
	h := newHarness(t, 3, 800, 600)

	var slots []int
	waitsBeforeUse := make([]uint64, 3)
	for i := 0; i < 10; i++ {
		cur := h.scheduler.Current()
		before := h.ring.Waits(cur)
		out := h.tick(t)
		require.False(t, out.Skipped)
		slots = append(slots, out.Slot)
		assert.Equal(t, before+1, h.ring.Waits(cur), "tick %d waits once on its slot", i)
		waitsBeforeUse[cur]++
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}, slots)
	for i := 0; i < 3; i++ {
		assert.Equal(t, waitsBeforeUse[i], h.ring.Waits(i))
	}
	assert.Equal(t, uint64(10), h.scheduler.FrameNumber())
	assert.Len(t, h.dev.Submits, 10)
	assert.Empty(t, h.dev.Violations)
}

func TestSchedulerWaitsBeforeEveryCommandBufferReuse(t *testing.T) {
	for _, tc := range []struct {
		name   string
		slots  int
		images int
		ticks  int
		// the only driver waits are the reuse waits
		exact bool
	}{
		{"three slots three images", 3, 3, 10, true},
		// From the fourth tick on each image was last rendered by the other
		// slot, which adds waits on its fence.
		{"two slots three images", 2, 3, 6, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarnessWithImages(t, tc.slots, tc.images, 800, 600)
			uses := make([]uint64, tc.slots)
			for i := 0; i < tc.ticks; i++ {
				out := h.tick(t)
				uses[out.Slot]++
			}
			// Each reuse of a command buffer is preceded by a driver wait on
			// the fence of its previous submission.
			for slot := 0; slot < tc.slots; slot++ {
				cb := h.dev.CommandBuffers[slot]
				fence := h.dev.Fences[slot]
				if tc.exact {
					assert.Equal(t, cb.Begins-1, fence.Waits, "slot %d", slot)
				} else {
					assert.GreaterOrEqual(t, fence.Waits, cb.Begins-1, "slot %d", slot)
				}
				assert.Equal(t, uses[slot], h.ring.Waits(slot), "slot %d counts only its own waits", slot)
			}
			assert.Empty(t, h.dev.Violations)
		})
	}
}

func TestSchedulerOrdering(t *testing.T) {
	h := newHarness(t, 2, 800, 600)
	h.dev.Log = nil
	h.tick(t)
	h.tick(t)
	h.tick(t)

	// Third tick reuses slot 0: wait, acquire, reset, record, submit, present.
	want := []string{
		"wait fence#0",
		"acquire swapchain#0",
		"reset fence#0",
		"reset cb#0",
		"begin cb#0",
		"end cb#0",
		"submit cb#0 fence#0",
		"present swapchain#0 image#2",
	}
	got := h.dev.Log[len(h.dev.Log)-len(want):]
	assert.Equal(t, want, got)
}

func TestSchedulerWritesGlobalsAndBindsOnce(t *testing.T) {
	h := newHarness(t, 2, 800, 600)
	g := Globals{Time: 2, Viewport: [2]float32{800, 600}}
	for i := 0; i < 4; i++ {
		_, err := h.scheduler.Tick(g)
		require.NoError(t, err)
	}
	buf := h.dev.Buffers[0]
	for slot := 0; slot < 2; slot++ {
		region := h.scheduler.Globals(slot)
		assert.Equal(t, g.Bytes(), buf.Data[region.Offset:region.Offset+GlobalsSize])
		assert.Len(t, h.dev.Pools[0].Set(slot).Writes, 1, "bound once per slot")
	}
}

func TestSchedulerResizeStaleOnAcquire(t *testing.T) {
	h := newHarness(t, 3, 800, 600)
	h.tick(t)
	h.tick(t)
	submits := len(h.dev.Submits)
	cur := h.scheduler.Current()

	h.win.Resize(1024, 768)
	out := h.tick(t)
	assert.True(t, out.Skipped)
	assert.True(t, out.Recreated)
	assert.Equal(t, cur, h.scheduler.Current(), "stale acquire does not advance")
	assert.Len(t, h.dev.Submits, submits, "nothing submitted against the stale image")

	out = h.tick(t)
	assert.False(t, out.Skipped, "no two skipped frames in a row")
	assert.Equal(t, cur, out.Slot)
	last := h.recorder.frames[len(h.recorder.frames)-1]
	assert.Equal(t, driver.Extent{Width: 1024, Height: 768}, last.extent)
	assert.Equal(t, driver.Extent{Width: 1024, Height: 768}, last.target)
	for _, p := range h.surf.Current().Presents {
		assert.Equal(t, driver.Extent{Width: 1024, Height: 768}, p.Extent)
	}
	assert.Empty(t, h.dev.Violations)
}

func TestSchedulerResizeSuboptimalOnPresent(t *testing.T) {
	h := newHarness(t, 3, 800, 600)
	h.surf.SuboptimalOnResize = true
	h.tick(t)

	h.win.Resize(1024, 768)
	var skipped int
	var recreated bool
	for i := 0; i < 4; i++ {
		out := h.tick(t)
		if out.Skipped {
			skipped++
		}
		recreated = recreated || out.Recreated
	}
	assert.Zero(t, skipped)
	assert.True(t, recreated)
	assert.Equal(t, driver.Extent{Width: 1024, Height: 768}, h.life.Extent())
	assert.Equal(t, uint64(5), h.scheduler.FrameNumber(), "present always advances")
	assert.Empty(t, h.dev.Violations)
}

func TestSchedulerMinimizedDefersRecreate(t *testing.T) {
	h := newHarness(t, 2, 800, 600)
	h.tick(t)
	h.win.Resize(0, 0)

	for i := 0; i < 5; i++ {
		out := h.tick(t)
		assert.True(t, out.Skipped)
		assert.True(t, out.Deferred)
		assert.False(t, out.Recreated)
	}
	assert.Zero(t, h.surf.ZeroSizeAttempts, "no zero sized rebuild attempted")
	assert.Len(t, h.surf.Created, 1)
	assert.Len(t, h.dev.Submits, 1)

	h.win.Resize(800, 600)
	out := h.tick(t)
	assert.True(t, out.Skipped)
	assert.True(t, out.Recreated)
	out = h.tick(t)
	assert.False(t, out.Skipped)
	assert.Empty(t, h.dev.Violations)
}

func TestSchedulerFatalAcquire(t *testing.T) {
	h := newHarness(t, 2, 800, 600)
	h.surf.AcquireResults = []driver.Result{driver.SurfaceLost}
	_, err := h.scheduler.Tick(Globals{})
	require.ErrorIs(t, err, core.ErrFatal)
	assert.False(t, errors.Is(err, core.ErrStale))

	h.surf.AcquireResults = []driver.Result{driver.DeviceLost}
	_, err = h.scheduler.Tick(Globals{})
	assert.ErrorIs(t, err, core.ErrDeviceLost)
}

func TestSchedulerDeviceLostOnWait(t *testing.T) {
	h := newHarness(t, 1, 800, 600)
	h.tick(t)
	h.dev.WaitResult = driver.DeviceLost
	_, err := h.scheduler.Tick(Globals{})
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.True(t, core.IsFatal(err))
}

func TestSchedulerSubmitAndRecordFailures(t *testing.T) {
	h := newHarness(t, 2, 800, 600)
	h.recorder.err = fmt.Errorf("pipeline missing")
	_, err := h.scheduler.Tick(Globals{})
	assert.ErrorIs(t, err, core.ErrFatal)

	h = newHarness(t, 2, 800, 600)
	h.dev.SubmitErr = drivertest.ErrInjected
	_, err = h.scheduler.Tick(Globals{})
	assert.ErrorIs(t, err, core.ErrFatal)
	assert.ErrorIs(t, err, drivertest.ErrInjected)
}

func TestSchedulerImagesInFlight(t *testing.T) {
	// Two images, three slots: image reuse outpaces slot reuse.
	dev := drivertest.NewDevice()
	win := drivertest.NewWindow(800, 600)
	surf := drivertest.NewSurface(dev, win)
	surf.ImageCount = 2
	life := surface.New(dev, surf, win, 0)
	require.NoError(t, life.Create())
	ring, err := NewSyncRing(dev, 3, 0)
	require.NoError(t, err)
	alloc, err := memory.NewSuballocator(dev, 64*1024, driver.BufferUsageUniform, 0)
	require.NoError(t, err)
	binder, err := descriptor.NewBinder(dev, []driver.DescriptorBinding{
		{Binding: GlobalsBinding, Kind: driver.DescriptorUniformBuffer},
	}, 3)
	require.NoError(t, err)
	s, err := NewScheduler(SchedulerConfig{Device: dev, Ring: ring, Surface: life, Allocator: alloc, Binder: binder, Recorder: &fakeRecorder{}})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Tick(Globals{})
		require.NoError(t, err)
	}
	// Tick 3 (slot 2) acquired image 0, last rendered by slot 0.
	assert.Equal(t, 1, dev.Fences[0].Waits)
	assert.Equal(t, uint64(1), ring.Waits(0), "waits for an image owner are not counted")
	assert.Empty(t, dev.Violations)
}

func TestSchedulerStaleGlobalsAreFatal(t *testing.T) {
	h := newHarness(t, 2, 800, 600)
	h.tick(t)
	h.tick(t)

	h.alloc.Reset()
	_, err := h.scheduler.Tick(Globals{})
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.ErrorIs(t, err, core.ErrFatal)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, StateIdle, h.scheduler.State())
	assert.Len(t, h.dev.Submits, 2, "nothing submitted after the failed write")
}

func TestSchedulerResetGlobals(t *testing.T) {
	h := newHarness(t, 2, 800, 600)
	h.tick(t)
	h.tick(t)
	before := h.alloc.Generation()

	require.NoError(t, h.dev.WaitIdle())
	h.alloc.Reset()
	require.NoError(t, h.scheduler.ResetGlobals())
	assert.Greater(t, h.alloc.Generation(), before)
	assert.Equal(t, 2*memory.AlignSize(GlobalsSize, h.alloc.Alignment()), h.alloc.Used())

	g := Globals{Time: 4}
	for i := 0; i < 2; i++ {
		_, err := h.scheduler.Tick(g)
		require.NoError(t, err)
	}
	buf := h.dev.Buffers[0]
	for slot := 0; slot < 2; slot++ {
		region := h.scheduler.Globals(slot)
		assert.Equal(t, h.alloc.Generation(), region.Generation)
		assert.Equal(t, g.Bytes(), buf.Data[region.Offset:region.Offset+GlobalsSize])
		assert.Len(t, h.dev.Pools[0].Set(slot).Writes, 2, "rebound after the reset")
	}
	assert.Empty(t, h.dev.Violations)
}

func TestSchedulerRecreateReallocatesGlobals(t *testing.T) {
	h := newHarness(t, 2, 800, 600)
	h.tick(t)
	before := h.alloc.Generation()

	h.win.Resize(1024, 768)
	out := h.tick(t)
	require.True(t, out.Recreated)
	assert.Greater(t, h.alloc.Generation(), before)
	assert.Equal(t, 2*memory.AlignSize(GlobalsSize, h.alloc.Alignment()), h.alloc.Used(), "the arena does not grow across rebuilds")

	h.tick(t)
	h.tick(t)
	assert.Empty(t, h.dev.Violations)
}

func TestSchedulerPendingResizeSkipsAcquire(t *testing.T) {
	h := newHarness(t, 2, 800, 600)
	h.surf.SuboptimalOnResize = true
	h.tick(t)
	h.tick(t)
	chain := h.surf.Current()
	acquires := chain.Acquires
	cur := h.scheduler.Current()
	waits := h.ring.Waits(cur)

	h.win.Resize(1024, 768)
	h.life.NotifyResized()
	out := h.tick(t)
	assert.True(t, out.Skipped)
	assert.True(t, out.Recreated)
	assert.Equal(t, acquires, chain.Acquires, "the old chain is not acquired from")
	assert.Equal(t, waits, h.ring.Waits(cur), "a skipped tick does not wait on its slot")
	assert.False(t, h.life.PendingResize())

	out = h.tick(t)
	assert.False(t, out.Skipped)
	assert.Equal(t, cur, out.Slot)
	assert.Equal(t, driver.Extent{Width: 1024, Height: 768}, h.recorder.frames[len(h.recorder.frames)-1].extent)
	assert.Empty(t, h.dev.Violations)
}

func TestNewSchedulerValidatesConfig(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{})
	assert.ErrorIs(t, err, core.ErrInvalidState)
}
