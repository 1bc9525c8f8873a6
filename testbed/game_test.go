package testbed

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/tempo/engine"
	"github.com/spaghettifunk/tempo/engine/config"
	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/frame"
)

func key(k glfw.Key) core.EventContext {
	context := core.EventContext{}
	context.Data.U16[0] = uint16(k)
	return context
}

func TestOrbitAndPause(t *testing.T) {
	g := NewTestGame(&engine.ApplicationConfig{Settings: config.Default()})
	require.NoError(t, g.FnInitialize())
	require.NoError(t, g.FnOnResize(800, 600))

	state := g.State.(*gameState)
	start := state.WorldCamera.Position()

	require.NoError(t, g.FnUpdate(1.0))
	moved := state.WorldCamera.Position()
	assert.False(t, start.Compare(moved, 0.0001))

	bus := core.NewEventBus()
	g.RegisterEvents(bus)
	assert.True(t, bus.Fire(core.EVENT_CODE_KEY_PRESSED, nil, key(glfw.KeySpace)))
	require.NoError(t, g.FnUpdate(1.0))
	assert.True(t, moved.Compare(state.WorldCamera.Position(), 0.0001))

	assert.False(t, bus.Fire(core.EVENT_CODE_KEY_PRESSED, nil, key(glfw.KeyA)))
}

func TestRenderWritesCameraMatrices(t *testing.T) {
	g := NewTestGame(&engine.ApplicationConfig{Settings: config.Default()})
	require.NoError(t, g.FnInitialize())
	require.NoError(t, g.FnOnResize(800, 600))

	var globals frame.Globals
	require.NoError(t, g.FnRender(&globals, 0.016))

	state := g.State.(*gameState)
	assert.Equal(t, state.WorldCamera.View(), globals.View)
	assert.NotEqual(t, frame.Globals{}.Projection, globals.Projection)
}
