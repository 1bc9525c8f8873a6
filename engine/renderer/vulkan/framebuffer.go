package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
)

type VulkanFramebuffer struct {
	context *VulkanContext

	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		context:     context,
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if err := resultError("vkCreateFramebuffer", vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy() {
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(vfb.context.Device.LogicalDevice, vfb.Handle, vfb.context.Allocator)
		vfb.Handle = nil
	}
	vfb.Attachments = nil
	vfb.Renderpass = nil
}
