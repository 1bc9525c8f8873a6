package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
	"github.com/spaghettifunk/tempo/engine/renderer/frame"
)

// ClearRecorder records the main render pass over the frame target: it
// clears color and depth and sets a full-target viewport and scissor.
type ClearRecorder struct {
	presenter *VulkanPresenter

	mu    sync.RWMutex
	color [4]float32
}

func NewClearRecorder(presenter *VulkanPresenter, color [4]float32) *ClearRecorder {
	return &ClearRecorder{presenter: presenter, color: color}
}

// SetClearColor may be called from any goroutine and applies from the next
// recorded frame.
func (r *ClearRecorder) SetClearColor(color [4]float32) {
	r.mu.Lock()
	r.color = color
	r.mu.Unlock()
}

func (r *ClearRecorder) ClearColor() [4]float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.color
}

func (r *ClearRecorder) Record(cb driver.CommandBuffer, f *frame.Frame) error {
	commandBuffer, ok := cb.(*VulkanCommandBuffer)
	if !ok {
		return fmt.Errorf("%w: foreign command buffer", core.ErrInvalidState)
	}
	target, ok := f.Target.(*VulkanRenderTarget)
	if !ok || target.Framebuffer == nil {
		return fmt.Errorf("%w: frame %d has no vulkan render target", core.ErrInvalidState, f.Number)
	}
	width, height := f.Extent.Width, f.Extent.Height

	r.presenter.Renderpass.Begin(commandBuffer, target.Framebuffer, width, height, r.ClearColor())

	viewport := vk.Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})

	r.presenter.Renderpass.End(commandBuffer)
	return nil
}
