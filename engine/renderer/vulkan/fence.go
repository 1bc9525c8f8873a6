package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

type VulkanFence struct {
	context    *VulkanContext
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		context: context,
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if err := resultError("vkCreateFence", vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(vf.context.Device.LogicalDevice, vf.Handle, vf.context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

func (vf *VulkanFence) Wait(timeout time.Duration) driver.Result {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return driver.Success
	}
	result := vk.WaitForFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, vf.context.Device.timeout(timeout))
	switch result {
	case vk.Success:
		vf.IsSignaled = true
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(result))
	}
	return toDriverResult(result)
}

func (vf *VulkanFence) Reset() error {
	if err := resultError("vkResetFences", vk.ResetFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle})); err != nil {
		core.LogError(err.Error())
		return err
	}
	vf.IsSignaled = false
	return nil
}
