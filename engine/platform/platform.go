package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the glfw window and turns its callbacks into events on the
// bus.
type Platform struct {
	Window  *glfw.Window
	bus     *core.EventBus
	started bool
}

func New(bus *core.EventBus) *Platform {
	return &Platform{bus: bus}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	p.started = true
	if !glfw.VulkanSupported() {
		p.Shutdown()
		return fmt.Errorf("glfw reports no Vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		p.Shutdown()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		fireKey(p.bus, p, key, action)
	})
	p.Window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		fireResized(p.bus, p, width, height)
	})
	p.Window.SetCloseCallback(func(w *glfw.Window) {
		p.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
	})
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func fireKey(bus *core.EventBus, sender interface{}, key glfw.Key, action glfw.Action) {
	context := core.EventContext{}
	context.Data.U16[0] = uint16(key)
	switch action {
	case glfw.Press:
		if key == glfw.KeyEscape {
			bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, sender, core.EventContext{})
			return
		}
		bus.Fire(core.EVENT_CODE_KEY_PRESSED, sender, context)
	case glfw.Release:
		bus.Fire(core.EVENT_CODE_KEY_RELEASED, sender, context)
	}
}

func fireResized(bus *core.EventBus, sender interface{}, width, height int) {
	context := core.EventContext{}
	context.Data.U32[0] = uint32(max(width, 0))
	context.Data.U32[1] = uint32(max(height, 0))
	bus.Fire(core.EVENT_CODE_RESIZED, sender, context)
}

// PumpMessages processes pending window events and reports whether the
// window is still open.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// WaitMessages blocks until an event arrives or timeout seconds pass. Used
// while minimized, when there is nothing to draw.
func (p *Platform) WaitMessages(timeout float64) bool {
	glfw.WaitEventsTimeout(timeout)
	return !p.Window.ShouldClose()
}

// RequestClose may be called from any goroutine.
func (p *Platform) RequestClose() {
	if p.Window == nil {
		return
	}
	p.Window.SetShouldClose(true)
	glfw.PostEmptyEvent()
}

func (p *Platform) DrawableSize() driver.Extent {
	width, height := p.Window.GetFramebufferSize()
	return driver.Extent{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))}
}

func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateWindowSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

func (p *Platform) InstanceProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func GetAbsoluteTime() float64 {
	return glfw.GetTime()
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	if p.started {
		glfw.Terminate()
		p.started = false
	}
	return nil
}
