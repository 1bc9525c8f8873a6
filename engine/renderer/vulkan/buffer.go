package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

// VulkanBuffer is a host visible, host coherent buffer. It backs the
// per-frame arena so writes through the mapping need no explicit flush.
type VulkanBuffer struct {
	context *VulkanContext

	Handle vk.Buffer
	Memory vk.DeviceMemory
	size   uint64
	usage  vk.BufferUsageFlags

	mapped []byte
}

func vulkanBufferUsage(usage driver.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if usage&driver.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if usage&driver.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if usage&driver.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage&driver.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage&driver.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	return vk.BufferUsageFlags(flags)
}

func NewVulkanBuffer(context *VulkanContext, size uint64, usage driver.BufferUsage) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero sized buffer", core.ErrInvalidState)
	}
	buffer := &VulkanBuffer{
		context: context,
		size:    size,
		usage:   vulkanBufferUsage(usage),
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       buffer.usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}

	var handle vk.Buffer
	if err := resultError("vkCreateBuffer", vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &requirements)
	requirements.Deref()

	memoryFlags := uint32(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, memoryFlags)
	if memoryIndex == -1 {
		buffer.Destroy()
		err := fmt.Errorf("unable to create vulkan buffer because the required memory type index was not found")
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory)); err != nil {
		buffer.Destroy()
		core.LogError("unable to create vulkan buffer because the required memory allocation failed: %s", err)
		return nil, err
	}
	buffer.Memory = memory

	if err := resultError("vkBindBufferMemory", vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0)); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

func (b *VulkanBuffer) Size() uint64 {
	return b.size
}

func (b *VulkanBuffer) Map() ([]byte, error) {
	if b.mapped != nil {
		return nil, fmt.Errorf("%w: buffer already mapped", core.ErrInvalidState)
	}
	var data unsafe.Pointer
	if err := resultError("vkMapMemory", vk.MapMemory(b.context.Device.LogicalDevice, b.Memory, 0, vk.DeviceSize(b.size), 0, &data)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	b.mapped = unsafe.Slice((*byte)(data), b.size)
	return b.mapped, nil
}

func (b *VulkanBuffer) Unmap() {
	if b.mapped == nil {
		return
	}
	vk.UnmapMemory(b.context.Device.LogicalDevice, b.Memory)
	b.mapped = nil
}

func (b *VulkanBuffer) Destroy() {
	b.Unmap()
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.context.Device.LogicalDevice, b.Memory, b.context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(b.context.Device.LogicalDevice, b.Handle, b.context.Allocator)
		b.Handle = vk.NullBuffer
	}
	b.size = 0
}
