package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/tempo/engine/renderer/frame"
)

type colorRecorder struct {
	frames int
	color  [4]float32
}

func (r *colorRecorder) Record(cb driver.CommandBuffer, f *frame.Frame) error {
	r.frames++
	return nil
}

func (r *colorRecorder) SetClearColor(color [4]float32) {
	r.color = color
}

type fixture struct {
	dev      *drivertest.Device
	win      *drivertest.Window
	surf     *drivertest.Surface
	recorder *colorRecorder
	r        *Renderer
}

func testConfig() Config {
	return Config{FramesInFlight: 2, ArenaCapacity: 64 * 1024}
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		dev:      drivertest.NewDevice(),
		win:      drivertest.NewWindow(800, 600),
		recorder: &colorRecorder{},
	}
	f.surf = drivertest.NewSurface(f.dev, f.win)
	var err error
	f.r, err = NewWithDevice(f.dev, f.surf, f.win, f.recorder, cfg)
	require.NoError(t, err)
	return f
}

func (f *fixture) draw(t *testing.T) frame.Outcome {
	t.Helper()
	out, err := f.r.DrawFrame(frame.Globals{})
	require.NoError(t, err)
	return out
}

func TestRendererDrawsFrames(t *testing.T) {
	f := newFixture(t, testConfig())
	for i := 0; i < 5; i++ {
		out := f.draw(t)
		assert.False(t, out.Skipped)
		assert.Equal(t, i%2, out.Slot)
	}
	assert.Equal(t, 5, f.recorder.frames)
	assert.Equal(t, uint64(5), f.r.Scheduler().FrameNumber())
	assert.Len(t, f.dev.Submits, 5)
	assert.Empty(t, f.dev.Violations)
}

func TestRendererResize(t *testing.T) {
	f := newFixture(t, testConfig())
	f.draw(t)

	f.win.Resize(1024, 768)
	f.r.OnResized(1024, 768)
	out := f.draw(t)
	assert.True(t, out.Skipped)
	assert.True(t, out.Recreated)
	assert.Equal(t, driver.Extent{Width: 1024, Height: 768}, f.r.Extent())

	out = f.draw(t)
	assert.False(t, out.Skipped)
	for _, rt := range f.r.Surface().RenderTargets() {
		assert.Equal(t, driver.Extent{Width: 1024, Height: 768}, rt.Extent())
	}
	assert.Empty(t, f.dev.Violations)
}

func TestRendererMinimizeDefersRebuild(t *testing.T) {
	f := newFixture(t, testConfig())
	f.draw(t)

	f.win.Resize(0, 0)
	f.r.OnResized(0, 0)
	for i := 0; i < 3; i++ {
		out := f.draw(t)
		assert.True(t, out.Skipped)
		assert.True(t, out.Deferred)
	}
	assert.Len(t, f.surf.Created, 1)

	f.win.Resize(640, 480)
	f.r.OnResized(640, 480)
	out := f.draw(t)
	assert.True(t, out.Recreated)
	assert.False(t, f.draw(t).Skipped)
	assert.Equal(t, driver.Extent{Width: 640, Height: 480}, f.r.Extent())
}

func TestRendererSetClearColor(t *testing.T) {
	f := newFixture(t, testConfig())
	f.r.SetClearColor([4]float32{0.1, 0.2, 0.3, 1})
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, f.recorder.color)
}

func TestRendererShutdownReleasesEverything(t *testing.T) {
	f := newFixture(t, testConfig())
	f.draw(t)
	f.draw(t)
	f.draw(t)

	require.NoError(t, f.r.Shutdown())
	assert.Equal(t, 1, f.dev.WaitIdles)
	for _, fence := range f.dev.Fences {
		assert.True(t, fence.Destroyed)
	}
	for _, cb := range f.dev.CommandBuffers {
		assert.True(t, cb.Destroyed)
	}
	for _, b := range f.dev.Buffers {
		assert.True(t, b.Destroyed)
	}
	for _, p := range f.dev.Pools {
		assert.True(t, p.Destroyed)
	}
	assert.True(t, f.surf.Current().Destroyed)
	assert.Empty(t, f.dev.Violations)

	require.NoError(t, f.r.Shutdown())
	assert.Equal(t, 1, f.dev.WaitIdles)

	_, err := f.r.DrawFrame(frame.Globals{})
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestRendererRejectsBadSetup(t *testing.T) {
	dev := drivertest.NewDevice()
	win := drivertest.NewWindow(800, 600)

	_, err := NewWithDevice(dev, drivertest.NewSurface(dev, win), win, &colorRecorder{}, Config{ArenaCapacity: 1024})
	assert.ErrorIs(t, err, core.ErrInvalidState)

	minimized := drivertest.NewWindow(0, 0)
	_, err = NewWithDevice(dev, drivertest.NewSurface(dev, minimized), minimized, &colorRecorder{}, testConfig())
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestRendererArenaTooSmall(t *testing.T) {
	dev := drivertest.NewDevice()
	win := drivertest.NewWindow(800, 600)
	surf := drivertest.NewSurface(dev, win)

	// Room for one aligned globals block, not two.
	_, err := NewWithDevice(dev, surf, win, &colorRecorder{}, Config{FramesInFlight: 2, ArenaCapacity: 256})
	require.ErrorIs(t, err, core.ErrCapacityExceeded)
	for _, b := range dev.Buffers {
		assert.True(t, b.Destroyed)
	}
	assert.True(t, surf.Current().Destroyed)
}
