package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
)

// VulkanContext owns the instance level objects shared by every other
// Vulkan object of a renderer.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback
	validation    bool

	Device *VulkanDevice

	locks *VulkanLockPool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// Destroy tears down the device, surface and instance. Every object
// created from the device must already be destroyed.
func (vc *VulkanContext) Destroy() {
	if vc.Device != nil {
		core.LogDebug("Destroying Vulkan device...")
		vc.Device.destroy()
		vc.Device = nil
	}

	core.LogDebug("Destroying Vulkan surface...")
	if vc.Surface != vk.NullSurface {
		vk.DestroySurface(vc.Instance, vc.Surface, vc.Allocator)
		vc.Surface = vk.NullSurface
	}

	if vc.validation && vc.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugCallback, vc.Allocator)
		vc.debugCallback = vk.NullDebugReportCallback
	}

	if vc.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
}
