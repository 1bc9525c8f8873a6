package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/tempo/engine/config"
	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/platform"
	"github.com/spaghettifunk/tempo/engine/renderer"
	"github.com/spaghettifunk/tempo/engine/renderer/frame"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// How long a minimized window blocks waiting for events before the loop
// checks for quit again.
const suspendedWaitSeconds = 0.1

type frameRenderer interface {
	DrawFrame(globals frame.Globals) (frame.Outcome, error)
	OnResized(width, height uint32)
	SetClearColor(color [4]float32)
	Shutdown() error
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	settings     *config.Config
	bus          *core.EventBus
	platform     *platform.Platform
	renderer     frameRenderer
	watcher      *config.Watcher
	clock        *core.Clock
	metrics      *core.FrameMetrics

	isRunning   atomic.Bool
	isSuspended bool
	width       uint32
	height      uint32

	// written by the config watcher goroutine, applied on the main loop
	mu      sync.Mutex
	pending *config.Config

	shutdownOnce sync.Once
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil || g.ApplicationConfig.Settings == nil {
		return nil, fmt.Errorf("%w: game has no application config", core.ErrInvalidState)
	}
	settings := g.ApplicationConfig.Settings
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	bus := core.NewEventBus()

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		settings:     settings,
		bus:          bus,
		platform:     platform.New(bus),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		width:        settings.Application.Width,
		height:       settings.Application.Height,
	}
	e.isRunning.Store(true)
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	core.SetLogLevel(e.settings.LogLevel())
	e.registerEvents()

	app := e.settings.Application
	if err := e.platform.Startup(app.Name, app.PosX, app.PosY, app.Width, app.Height); err != nil {
		return err
	}
	// The framebuffer can differ from the requested window size on HiDPI.
	size := e.platform.DrawableSize()
	e.width, e.height = size.Width, size.Height

	r, err := renderer.NewVulkan(renderer.VulkanConfig{
		Config:          rendererConfig(e.settings),
		ApplicationName: app.Name,
		PresentMode:     e.settings.Renderer.PresentMode,
		Validation:      e.settings.Renderer.Validation,
		ClearColor:      e.settings.Renderer.ClearColor,
	}, e.platform)
	if err != nil {
		core.LogError("failed to create the renderer: %s", err)
		return err
	}
	e.renderer = r

	if path := e.gameInstance.ApplicationConfig.ConfigPath; path != "" {
		w, err := config.NewWatcher(path, e.onConfigChanged)
		if err != nil {
			// Hot reload is a convenience, run without it.
			core.LogWarn("config hot reload disabled: %s", err)
		} else {
			e.watcher = w
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) registerEvents() {
	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.bus.Register(core.EVENT_CODE_KEY_RELEASED, e, e.onKey)
	e.bus.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
}

// Bus is where the platform and the game exchange events.
func (e *Engine) Bus() *core.EventBus {
	return e.bus
}

func rendererConfig(settings *config.Config) renderer.Config {
	return renderer.Config{
		FramesInFlight: settings.Renderer.FramesInFlight,
		ArenaCapacity:  settings.Renderer.ArenaCapacity,
		MinAlignment:   settings.Renderer.MinAlignment,
		FenceTimeout:   settings.FenceTimeout(),
	}
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("%w: engine is not initialized", core.ErrInvalidState)
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	var sinceReport time.Duration

	for e.isRunning.Load() {
		var open bool
		if e.isSuspended {
			open = e.platform.WaitMessages(suspendedWaitSeconds)
		} else {
			open = e.platform.PumpMessages()
		}
		if !open {
			e.isRunning.Store(false)
			break
		}
		e.applyPendingConfig()

		if e.isSuspended {
			continue
		}

		e.clock.Update()
		delta := e.clock.Delta().Seconds()
		frameStart := platform.GetAbsoluteTime()

		if err := e.runFrame(delta); err != nil {
			return err
		}

		e.metrics.Update(platform.GetAbsoluteTime() - frameStart)
		sinceReport += e.clock.Delta()
		if sinceReport >= time.Second {
			sinceReport = 0
			fps, frameTime := e.metrics.Frame()
			core.LogDebug("FPS: %5.1f (%4.2fms)", fps, frameTime)
		}
	}
	return nil
}

// runFrame ticks once and stops the loop on a fatal error. The renderer
// recovers from stale surfaces on its own, so in practice every error it
// returns ends the loop.
func (e *Engine) runFrame(delta float64) error {
	err := e.tick(delta)
	if err == nil {
		return nil
	}
	if !core.IsFatal(err) {
		core.LogWarn("frame skipped: %s", err)
		return nil
	}
	core.LogError("frame loop stopped: %s", err)
	e.isRunning.Store(false)
	return err
}

// tick runs the game hooks and draws one frame.
func (e *Engine) tick(delta float64) error {
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return fmt.Errorf("%w: game update failed: %s", core.ErrFatal, err)
		}
	}

	globals := frame.Globals{
		Time:      float32(e.clock.Elapsed().Seconds()),
		DeltaTime: float32(delta),
		Viewport:  [2]float32{float32(e.width), float32(e.height)},
	}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(&globals, delta); err != nil {
			return fmt.Errorf("%w: game render failed: %s", core.ErrFatal, err)
		}
	}

	_, err := e.renderer.DrawFrame(globals)
	return err
}

// Quit asks the loop to stop after the current frame. Safe from any
// goroutine.
func (e *Engine) Quit() {
	e.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
}

func (e *Engine) Shutdown() error {
	var err error
	e.shutdownOnce.Do(func() {
		e.currentStage = EngineStageShuttingDown
		if e.watcher != nil {
			e.watcher.Close()
		}
		if e.gameInstance.FnShutdown != nil {
			if gerr := e.gameInstance.FnShutdown(); gerr != nil {
				core.LogError("game shutdown failed: %s", gerr)
			}
		}
		if e.renderer != nil {
			err = e.renderer.Shutdown()
		}
		if perr := e.platform.Shutdown(); perr != nil && err == nil {
			err = perr
		}
		e.bus.Shutdown()
	})
	return err
}

// GetFramebufferSize returns the width and height (in this order) of the
// application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender, listener interface{}, context core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		e.platform.RequestClose()
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender, listener interface{}, context core.EventContext) bool {
	keyCode := context.Data.U16[0]
	if code == core.EVENT_CODE_KEY_PRESSED {
		core.LogDebug("key %d pressed in window.", keyCode)
	} else {
		core.LogDebug("key %d released in window.", keyCode)
	}
	// Let the game see keys too.
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender, listener interface{}, context core.EventContext) bool {
	width := context.Data.U32[0]
	height := context.Data.U32[1]

	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// The renderer defers the rebuild itself while the window has no area.
	if e.renderer != nil {
		e.renderer.OnResized(width, height)
	}

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return true
}

func (e *Engine) onConfigChanged(cfg *config.Config) {
	e.mu.Lock()
	e.pending = cfg
	e.mu.Unlock()
}

// applyPendingConfig applies the settings that can change at runtime. Window
// geometry and the renderer sizing need a restart.
func (e *Engine) applyPendingConfig() {
	e.mu.Lock()
	cfg := e.pending
	e.pending = nil
	e.mu.Unlock()
	if cfg == nil {
		return
	}

	if cfg.Log.Level != e.settings.Log.Level {
		core.SetLogLevel(cfg.LogLevel())
		core.LogInfo("log level set to %s", cfg.Log.Level)
	}
	if cfg.Renderer.ClearColor != e.settings.Renderer.ClearColor && e.renderer != nil {
		e.renderer.SetClearColor(cfg.Renderer.ClearColor)
	}
	if rendererConfig(cfg) != rendererConfig(e.settings) || cfg.Renderer.PresentMode != e.settings.Renderer.PresentMode {
		core.LogWarn("renderer sizing changed in config, restart to apply")
	}
	e.settings = cfg
}
