package surface

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/driver/drivertest"
)

type fixture struct {
	dev     *drivertest.Device
	win     *drivertest.Window
	surface *drivertest.Surface
	life    *Lifecycle
}

func newFixture(t *testing.T, width, height uint32) *fixture {
	t.Helper()
	dev := drivertest.NewDevice()
	win := drivertest.NewWindow(width, height)
	surf := drivertest.NewSurface(dev, win)
	f := &fixture{dev: dev, win: win, surface: surf, life: New(dev, surf, win, 0)}
	require.NoError(t, f.life.Create())
	return f
}

func (f *fixture) semaphore(t *testing.T) driver.Semaphore {
	t.Helper()
	s, err := f.dev.NewSemaphore()
	require.NoError(t, err)
	return s
}

func assertTargetsMatch(t *testing.T, l *Lifecycle, want driver.Extent) {
	t.Helper()
	require.NotEmpty(t, l.RenderTargets())
	for i, rt := range l.RenderTargets() {
		assert.Equal(t, want, rt.Extent(), "render target %d", i)
	}
	assert.Equal(t, want, l.Extent())
}

func TestCreateBuildsTargetsPerImage(t *testing.T) {
	f := newFixture(t, 800, 600)
	assert.Equal(t, StateValid, f.life.State())
	assert.Equal(t, 3, f.life.ImageCount())
	assertTargetsMatch(t, f.life, driver.Extent{Width: 800, Height: 600})
	assert.NotEqual(t, uuid.Nil, f.life.ChainID())
}

func TestCreateRejectsZeroSurface(t *testing.T) {
	dev := drivertest.NewDevice()
	win := drivertest.NewWindow(0, 600)
	surf := drivertest.NewSurface(dev, win)
	l := New(dev, surf, win, 0)
	assert.ErrorIs(t, l.Create(), core.ErrInvalidState)
	assert.Zero(t, surf.ZeroSizeAttempts)
}

func TestAcquireStaleAfterResize(t *testing.T) {
	f := newFixture(t, 800, 600)
	sem := f.semaphore(t)

	idx, status := f.life.Acquire(sem)
	require.Equal(t, StatusOK, status)
	assert.Equal(t, uint32(0), idx)
	assert.Equal(t, StatusOK, f.life.Present(idx, sem))

	f.win.Resize(1024, 768)
	_, status = f.life.Acquire(sem)
	assert.Equal(t, StatusStale, status)
	assert.Equal(t, StateInvalid, f.life.State())

	// INVALID chains are not handed to the driver again.
	acquires := f.surface.Current().Acquires
	_, status = f.life.Acquire(sem)
	assert.Equal(t, StatusStale, status)
	assert.Equal(t, acquires, f.surface.Current().Acquires)
}

func TestRecreateMatchesWindowExtent(t *testing.T) {
	f := newFixture(t, 800, 600)
	old := f.surface.Current()
	oldTargets := f.life.RenderTargets()
	oldID := f.life.ChainID()

	f.win.Resize(1024, 768)
	rebuilt, err := f.life.Recreate()
	require.NoError(t, err)
	require.True(t, rebuilt)

	assert.Equal(t, StateValid, f.life.State())
	assertTargetsMatch(t, f.life, driver.Extent{Width: 1024, Height: 768})
	assert.Equal(t, 1, f.dev.WaitIdles, "device drained before teardown")
	assert.True(t, old.Destroyed)
	assert.Same(t, old, f.surface.Current().Retired)
	for _, rt := range oldTargets {
		assert.True(t, rt.(*drivertest.RenderTarget).Destroyed)
	}
	assert.NotEqual(t, oldID, f.life.ChainID())
}

func TestRecreateDeferredWhileMinimized(t *testing.T) {
	f := newFixture(t, 800, 600)
	sem := f.semaphore(t)
	f.win.Resize(0, 0)

	for i := 0; i < 3; i++ {
		rebuilt, err := f.life.Recreate()
		require.NoError(t, err)
		assert.False(t, rebuilt)
		assert.Equal(t, StateInvalid, f.life.State())
		_, status := f.life.Acquire(sem)
		assert.Equal(t, StatusStale, status)
	}
	assert.Zero(t, f.surface.ZeroSizeAttempts)
	assert.Len(t, f.surface.Created, 1)
	assert.Zero(t, f.dev.WaitIdles)

	f.win.Resize(640, 480)
	rebuilt, err := f.life.Recreate()
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assertTargetsMatch(t, f.life, driver.Extent{Width: 640, Height: 480})
}

func TestPresentSuboptimal(t *testing.T) {
	f := newFixture(t, 800, 600)
	f.surface.SuboptimalOnResize = true
	sem := f.semaphore(t)

	idx, status := f.life.Acquire(sem)
	require.Equal(t, StatusOK, status)
	f.win.Resize(900, 600)
	assert.Equal(t, StatusSuboptimal, f.life.Present(idx, sem))
	assert.Equal(t, StateSuboptimal, f.life.State())
}

func TestAcquireSuboptimalMarksChain(t *testing.T) {
	f := newFixture(t, 800, 600)
	f.surface.AcquireResults = []driver.Result{driver.Suboptimal}
	sem := f.semaphore(t)

	idx, status := f.life.Acquire(sem)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, StateSuboptimal, f.life.State())
	assert.Equal(t, StatusSuboptimal, f.life.Present(idx, sem))
}

func TestAcquireFatal(t *testing.T) {
	f := newFixture(t, 800, 600)
	f.surface.AcquireResults = []driver.Result{driver.SurfaceLost}
	_, status := f.life.Acquire(f.semaphore(t))
	assert.Equal(t, StatusFatal, status)
	assert.Equal(t, driver.SurfaceLost, f.life.LastResult())
}

func TestNotifyResized(t *testing.T) {
	f := newFixture(t, 800, 600)
	assert.False(t, f.life.PendingResize())

	f.life.NotifyResized()
	assert.True(t, f.life.PendingResize())
	_, status := f.life.Acquire(f.semaphore(t))
	assert.Equal(t, StatusStale, status)

	_, err := f.life.Recreate()
	require.NoError(t, err)
	assert.False(t, f.life.PendingResize())
}

func TestDestroy(t *testing.T) {
	f := newFixture(t, 800, 600)
	chain := f.surface.Current()
	f.life.Destroy()
	assert.True(t, chain.Destroyed)
	assert.Empty(t, f.life.RenderTargets())
	assert.Equal(t, driver.Extent{}, f.life.Extent())
	assert.Empty(t, f.dev.Violations)
}
