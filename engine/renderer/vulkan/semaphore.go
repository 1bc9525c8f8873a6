package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
)

type VulkanSemaphore struct {
	context *VulkanContext
	Handle  vk.Semaphore
}

func NewSemaphore(context *VulkanContext) (*VulkanSemaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var handle vk.Semaphore
	if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanSemaphore{context: context, Handle: handle}, nil
}

func (s *VulkanSemaphore) Destroy() {
	if s.Handle != vk.NullSemaphore {
		vk.DestroySemaphore(s.context.Device.LogicalDevice, s.Handle, s.context.Allocator)
		s.Handle = vk.NullSemaphore
	}
}

func semaphoreHandle(s interface{}) vk.Semaphore {
	if vs, ok := s.(*VulkanSemaphore); ok && vs != nil {
		return vs.Handle
	}
	return vk.NullSemaphore
}
