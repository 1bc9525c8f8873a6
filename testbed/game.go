package testbed

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/tempo/engine"
	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/components"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/frame"
)

// Radians per second.
const orbitSpeed float32 = 0.5

type TestGame struct {
	*engine.Game
}

type gameState struct {
	WorldCamera *components.Camera

	width  uint32
	height uint32
	paused bool
}

func NewTestGame(app *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State:             &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.State.(*gameState)
	state.WorldCamera = components.NewCamera()
	state.WorldCamera.Distance = 10.0
	state.WorldCamera.Pitch(0.3)
	return nil
}

// Bus hooks need the engine, which exists only after New.
func (g *TestGame) RegisterEvents(bus *core.EventBus) {
	bus.Register(core.EVENT_CODE_KEY_PRESSED, g, g.gameOnKey)
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	if !state.paused {
		state.WorldCamera.Yaw(orbitSpeed * float32(deltaTime))
	}
	return nil
}

func (g *TestGame) Render(globals *frame.Globals, deltaTime float64) error {
	state := g.State.(*gameState)
	globals.View = state.WorldCamera.View()
	globals.Projection = state.WorldCamera.Projection(driver.Extent{Width: state.width, Height: state.height})
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("TestGame Shutdown fn....")
	return nil
}

func (g *TestGame) gameOnKey(code core.SystemEventCode, sender, listener interface{}, context core.EventContext) bool {
	state := g.State.(*gameState)
	switch glfw.Key(context.Data.U16[0]) {
	case glfw.KeySpace:
		state.paused = !state.paused
		core.LogInfo("camera orbit paused: %t", state.paused)
		return true
	case glfw.KeyR:
		state.WorldCamera.Reset()
		state.WorldCamera.Distance = 10.0
		return true
	}
	return false
}
