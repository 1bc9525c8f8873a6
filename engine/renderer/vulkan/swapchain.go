package vulkan

import (
	"fmt"
	stdmath "math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/math"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

// VulkanPresenter creates swapchains for the context surface and owns the
// render pass every swapchain framebuffer is compatible with.
type VulkanPresenter struct {
	context     *VulkanContext
	presentMode vk.PresentMode

	ImageFormat vk.SurfaceFormat
	Renderpass  *VulkanRenderpass
}

// ParsePresentMode maps a configured mode name to Vulkan. Unknown names
// fall back to FIFO, the only mode every implementation must support.
func ParsePresentMode(name string) vk.PresentMode {
	switch name {
	case "mailbox":
		return vk.PresentModeMailbox
	case "immediate":
		return vk.PresentModeImmediate
	}
	return vk.PresentModeFifo
}

func NewVulkanPresenter(context *VulkanContext, presentMode string) *VulkanPresenter {
	return &VulkanPresenter{
		context:     context,
		presentMode: ParsePresentMode(presentMode),
	}
}

func querySurfaceSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) ([]vk.SurfaceFormat, []vk.PresentMode) {
	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		return nil, nil
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	if formatCount != 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, formats); res != vk.Success {
			return nil, nil
		}
		for i := range formats {
			formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil); res != vk.Success {
		return formats, nil
	}
	modes := make([]vk.PresentMode, modeCount)
	if modeCount != 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, modes); res != vk.Success {
			return formats, nil
		}
	}
	return formats, modes
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

func choosePresentMode(wanted vk.PresentMode, modes []vk.PresentMode) vk.PresentMode {
	for _, mode := range modes {
		if mode == wanted {
			return mode
		}
	}
	if wanted != vk.PresentModeFifo {
		core.LogWarn("requested present mode %d not supported, using FIFO", wanted)
	}
	return vk.PresentModeFifo
}

// CreateSwapchain builds a swapchain sized to extent, clamped to what the
// surface allows. old is passed as the retiring chain and stays owned by
// the caller.
func (p *VulkanPresenter) CreateSwapchain(extent driver.Extent, old driver.Swapchain) (driver.Swapchain, error) {
	context := p.context
	device := context.Device

	var capabilities vk.SurfaceCapabilities
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(device.PhysicalDevice, context.Surface, &capabilities)); err != nil {
		return nil, err
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	formats, modes := querySurfaceSupport(device.PhysicalDevice, context.Surface)
	if len(formats) == 0 || len(modes) == 0 {
		return nil, fmt.Errorf("surface reports no formats or present modes")
	}

	imageFormat := chooseSurfaceFormat(formats)
	if p.Renderpass == nil {
		renderpass, err := RenderpassCreate(context, imageFormat.Format, 1.0, 0)
		if err != nil {
			return nil, err
		}
		p.Renderpass = renderpass
		p.ImageFormat = imageFormat
	} else if imageFormat.Format != p.ImageFormat.Format {
		return nil, fmt.Errorf("%w: surface format changed from %d to %d", core.ErrFatal, p.ImageFormat.Format, imageFormat.Format)
	}
	presentMode := choosePresentMode(p.presentMode, modes)

	swapchainExtent := vk.Extent2D{Width: extent.Width, Height: extent.Height}
	if capabilities.CurrentExtent.Width != stdmath.MaxUint32 {
		swapchainExtent = capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	swapchainExtent.Width = math.Clamp(swapchainExtent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	swapchainExtent.Height = math.Clamp(swapchainExtent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
	if swapchainExtent.Width == 0 || swapchainExtent.Height == 0 {
		return nil, fmt.Errorf("%w: surface extent is zero", core.ErrInvalidState)
	}

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      imageFormat.Format,
		ImageColorSpace:  imageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	}
	if prev, ok := old.(*VulkanSwapchain); ok && prev != nil {
		swapchainCreateInfo.OldSwapchain = prev.Handle
	}

	var handle vk.Swapchain
	if err := resultError("vkCreateSwapchain", vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	swapchain := &VulkanSwapchain{
		presenter: p,
		Handle:    handle,
		extent:    driver.Extent{Width: swapchainExtent.Width, Height: swapchainExtent.Height},
	}

	var count uint32
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(device.LogicalDevice, handle, &count, nil)); err != nil {
		swapchain.Destroy()
		return nil, err
	}
	swapchain.Images = make([]vk.Image, count)
	if err := resultError("vkGetSwapchainImages", vk.GetSwapchainImages(device.LogicalDevice, handle, &count, swapchain.Images)); err != nil {
		swapchain.Destroy()
		return nil, err
	}

	core.LogInfo("Swapchain created: %dx%d, %d images.", swapchainExtent.Width, swapchainExtent.Height, count)
	return swapchain, nil
}

// VulkanSwapchain only owns the VkSwapchainKHR. Views and framebuffers live
// in the render targets created from it.
type VulkanSwapchain struct {
	presenter *VulkanPresenter

	Handle vk.Swapchain
	Images []vk.Image
	extent driver.Extent
}

func (vs *VulkanSwapchain) Extent() driver.Extent {
	return vs.extent
}

func (vs *VulkanSwapchain) ImageCount() int {
	return len(vs.Images)
}

func (vs *VulkanSwapchain) AcquireNextImage(signal driver.Semaphore, timeout time.Duration) (uint32, driver.Result) {
	device := vs.presenter.context.Device
	var imageIndex uint32
	result := vk.AcquireNextImage(device.LogicalDevice, vs.Handle, device.timeout(timeout), semaphoreHandle(signal), vk.NullFence, &imageIndex)
	return imageIndex, toDriverResult(result)
}

func (vs *VulkanSwapchain) Present(imageIndex uint32, wait driver.Semaphore) driver.Result {
	context := vs.presenter.context
	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{vs.Handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if s := semaphoreHandle(wait); s != vk.NullSemaphore {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{s}
	}

	var result vk.Result
	context.locks.SafeQueueCall(uint32(context.Device.PresentQueueIndex), func() error {
		result = vk.QueuePresent(context.Device.PresentQueue, &presentInfo)
		return nil
	})
	return toDriverResult(result)
}

// NewRenderTarget creates the color view, a depth attachment and the
// framebuffer for one swapchain image.
func (vs *VulkanSwapchain) NewRenderTarget(imageIndex int) (driver.RenderTarget, error) {
	if imageIndex < 0 || imageIndex >= len(vs.Images) {
		return nil, fmt.Errorf("%w: image index %d out of range", core.ErrInvalidState, imageIndex)
	}
	context := vs.presenter.context
	target := &VulkanRenderTarget{context: context, extent: vs.extent}

	view, err := createImageView(context, vs.Images[imageIndex], vs.presenter.ImageFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, err
	}
	target.ColorView = view

	depth, err := ImageCreate(
		context,
		vs.extent.Width,
		vs.extent.Height,
		context.Device.DepthFormat,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		target.Destroy()
		return nil, err
	}
	target.Depth = depth

	framebuffer, err := FramebufferCreate(context, vs.presenter.Renderpass, vs.extent.Width, vs.extent.Height, []vk.ImageView{target.ColorView, depth.View})
	if err != nil {
		target.Destroy()
		return nil, err
	}
	target.Framebuffer = framebuffer
	return target, nil
}

func (vs *VulkanSwapchain) Destroy() {
	if vs.Handle == vk.NullSwapchain {
		return
	}
	context := vs.presenter.context
	// Images are owned by the swapchain and go away with it.
	vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
	vs.Handle = vk.NullSwapchain
	vs.Images = nil
}

type VulkanRenderTarget struct {
	context *VulkanContext
	extent  driver.Extent

	ColorView   vk.ImageView
	Depth       *VulkanImage
	Framebuffer *VulkanFramebuffer
}

func (rt *VulkanRenderTarget) Extent() driver.Extent {
	return rt.extent
}

func (rt *VulkanRenderTarget) Destroy() {
	if rt.Framebuffer != nil {
		rt.Framebuffer.Destroy()
		rt.Framebuffer = nil
	}
	if rt.Depth != nil {
		rt.Depth.Destroy()
		rt.Depth = nil
	}
	if rt.ColorView != nil {
		vk.DestroyImageView(rt.context.Device.LogicalDevice, rt.ColorView, rt.context.Allocator)
		rt.ColorView = nil
	}
}

// Destroy releases the render pass. Every swapchain and render target made
// by this presenter must already be destroyed.
func (p *VulkanPresenter) Destroy() {
	if p.Renderpass != nil {
		p.Renderpass.Destroy()
		p.Renderpass = nil
	}
}
