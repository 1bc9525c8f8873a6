package engine

import (
	"github.com/spaghettifunk/tempo/engine/renderer/frame"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render fills the per-frame uniform block. Time, DeltaTime and Viewport are
// set by the engine before the call.
type Render func(globals *frame.Globals, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
