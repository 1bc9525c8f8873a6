package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	context *VulkanContext
	pool    vk.CommandPool

	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		context: context,
		pool:    pool,
		State:   COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY

	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Destroy() {
	if v.Handle == nil {
		return
	}
	vk.FreeCommandBuffers(v.context.Device.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

// Begin starts a one time submit recording, which is what a per-frame
// command buffer is.
func (v *VulkanCommandBuffer) Begin() error {
	return v.BeginWith(true, false, false)
}

func (v *VulkanCommandBuffer) BeginWith(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	if v.State != COMMAND_BUFFER_STATE_READY {
		return fmt.Errorf("%w: begin on command buffer in state %d", core.ErrInvalidState, v.State)
	}

	vBeginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		vBeginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, vBeginInfo)); err != nil {
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

// Reset returns the buffer to the initial state. The fence guarding its
// last submission must already have been waited on.
func (v *VulkanCommandBuffer) Reset() error {
	if err := resultError("vkResetCommandBuffer", vk.ResetCommandBuffer(v.Handle, 0)); err != nil {
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}
