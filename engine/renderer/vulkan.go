package renderer

import (
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/vulkan"
)

// VulkanWindow is what the Vulkan renderer needs from the platform window.
type VulkanWindow interface {
	driver.Window
	vulkan.WindowSurface
}

type VulkanConfig struct {
	Config
	ApplicationName string
	PresentMode     string
	Validation      bool
	ClearColor      [4]float32
}

// NewVulkan bootstraps Vulkan on window and builds a renderer that clears
// the screen every frame.
func NewVulkan(cfg VulkanConfig, window VulkanWindow) (*Renderer, error) {
	context, err := vulkan.Bootstrap(vulkan.BootstrapConfig{
		ApplicationName: cfg.ApplicationName,
		Validation:      cfg.Validation,
	}, window)
	if err != nil {
		return nil, err
	}

	presenter := vulkan.NewVulkanPresenter(context, cfg.PresentMode)
	recorder := vulkan.NewClearRecorder(presenter, cfg.ClearColor)

	r, err := NewWithDevice(context.Device, presenter, window, recorder, cfg.Config)
	if err != nil {
		presenter.Destroy()
		context.Destroy()
		return nil, err
	}
	r.teardown = append(r.teardown, context.Destroy, presenter.Destroy)
	return r, nil
}
