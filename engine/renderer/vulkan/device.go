package vulkan

import (
	"fmt"
	"runtime"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

// VulkanDevice is the logical device plus the queues and the graphics
// command pool. It implements driver.Device.
type VulkanDevice struct {
	context *VulkanContext

	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Transfer             bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	TransferFamilyIndex int32
}

func DeviceCreate(context *VulkanContext) (*VulkanDevice, error) {
	device := &VulkanDevice{
		context:            context,
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
		TransferQueueIndex: -1,
	}
	if err := selectPhysicalDevice(context, device); err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(device.GraphicsQueueIndex)}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, uint32(device.PresentQueueIndex))
	}
	if device.TransferQueueIndex != device.GraphicsQueueIndex && device.TransferQueueIndex != device.PresentQueueIndex {
		indices = append(indices, uint32(device.TransferQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		context.locks.SetQueueFamily(index)
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: device.Features.SamplerAnisotropy,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	portabilityRequired, err := hasDeviceExtension(device.PhysicalDevice, "VK_KHR_portability_subset")
	if err != nil {
		return nil, err
	}
	if portabilityRequired {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logical vk.Device
	if err := resultError("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.GraphicsQueueIndex), 0, &queue)
	device.GraphicsQueue = queue
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.PresentQueueIndex), 0, &queue)
	device.PresentQueue = queue
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.TransferQueueIndex), 0, &queue)
	device.TransferQueue = queue
	core.LogInfo("Queues obtained.")

	// Command buffers are reset one at a time by the frame scheduler.
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool)); err != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		return nil, err
	}
	device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	if !DeviceDetectDepthFormat(device) {
		device.destroy()
		return nil, fmt.Errorf("failed to find a supported depth format")
	}

	return device, nil
}

func (d *VulkanDevice) destroy() {
	d.GraphicsQueue = nil
	d.PresentQueue = nil
	d.TransferQueue = nil

	core.LogDebug("Destroying command pools...")
	if d.GraphicsCommandPool != nil {
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, d.context.Allocator)
		d.GraphicsCommandPool = nil
	}

	core.LogDebug("Destroying logical device...")
	if d.LogicalDevice != nil {
		vk.DestroyDevice(d.LogicalDevice, d.context.Allocator)
		d.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	d.PhysicalDevice = nil
	d.GraphicsQueueIndex = -1
	d.PresentQueueIndex = -1
	d.TransferQueueIndex = -1
}

func (d *VulkanDevice) Limits() driver.Limits {
	return driver.Limits{
		MinUniformBufferOffsetAlignment: uint64(d.Properties.Limits.MinUniformBufferOffsetAlignment),
		MinStorageBufferOffsetAlignment: uint64(d.Properties.Limits.MinStorageBufferOffsetAlignment),
	}
}

func (d *VulkanDevice) NewFence(signaled bool) (driver.Fence, error) {
	return NewFence(d.context, signaled)
}

func (d *VulkanDevice) NewSemaphore() (driver.Semaphore, error) {
	return NewSemaphore(d.context)
}

func (d *VulkanDevice) NewCommandBuffer() (driver.CommandBuffer, error) {
	return NewVulkanCommandBuffer(d.context, d.GraphicsCommandPool, true)
}

func (d *VulkanDevice) NewBuffer(size uint64, usage driver.BufferUsage) (driver.Buffer, error) {
	return NewVulkanBuffer(d.context, size, usage)
}

func (d *VulkanDevice) NewDescriptorPool(layout []driver.DescriptorBinding, sets int) (driver.DescriptorPool, error) {
	return NewVulkanDescriptorPool(d.context, layout, sets)
}

// Submit hands one command buffer to the graphics queue. The wait semaphore
// is waited on at the color attachment output stage.
func (d *VulkanDevice) Submit(info driver.SubmitInfo) error {
	cb, ok := info.CommandBuffer.(*VulkanCommandBuffer)
	if !ok {
		return fmt.Errorf("%w: foreign command buffer", core.ErrInvalidState)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if s, ok := info.Wait.(*VulkanSemaphore); ok && s != nil {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{s.Handle}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if s, ok := info.Signal.(*VulkanSemaphore); ok && s != nil {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{s.Handle}
	}
	fence := vk.NullFence
	if f, ok := info.Fence.(*VulkanFence); ok && f != nil {
		fence = f.Handle
	}

	err := d.context.locks.SafeQueueCall(uint32(d.GraphicsQueueIndex), func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
	if err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	if f, ok := info.Fence.(*VulkanFence); ok && f != nil {
		f.IsSignaled = false
	}
	return nil
}

func (d *VulkanDevice) WaitIdle() error {
	return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.LogicalDevice))
}

func (d *VulkanDevice) timeout(t time.Duration) uint64 {
	if t <= 0 {
		return vk.MaxUint64
	}
	return uint64(t.Nanoseconds())
}

func hasDeviceExtension(physicalDevice vk.PhysicalDevice, name string) (bool, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil); res != vk.Success {
		return false, resultError("vkEnumerateDeviceExtensionProperties", res)
	}
	if count == 0 {
		return false, nil
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, available); res != vk.Success {
		return false, resultError("vkEnumerateDeviceExtensionProperties", res)
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].ExtensionName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}

func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.LinearTilingFeatures&flags == flags || properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

func selectPhysicalDevice(context *VulkanContext, device *VulkanDevice) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		DiscreteGPU:          true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}
	if runtime.GOOS == "darwin" {
		requirements.DiscreteGPU = false
	}

	// Prefer a discrete GPU and fall back to anything that meets the rest.
	for _, discrete := range []bool{requirements.DiscreteGPU, false} {
		requirements.DiscreteGPU = discrete
		for _, physicalDevice := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
			properties.Deref()
			properties.Limits.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
			features.Deref()

			var memory vk.PhysicalDeviceMemoryProperties
			vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
			memory.Deref()

			queueInfo, ok := physicalDeviceMeetsRequirements(physicalDevice, context.Surface, &properties, &requirements)
			if !ok {
				continue
			}

			logDeviceInfo(&properties, &memory)
			device.PhysicalDevice = physicalDevice
			device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
			device.PresentQueueIndex = queueInfo.PresentFamilyIndex
			device.TransferQueueIndex = queueInfo.TransferFamilyIndex
			device.Properties = properties
			device.Features = features
			device.Memory = memory
			core.LogInfo("Physical device selected.")
			return nil
		}
	}

	err := fmt.Errorf("no physical devices were found which meet the requirements")
	core.LogError(err.Error())
	return err
}

func logDeviceInfo(properties *vk.PhysicalDeviceProperties, memory *vk.PhysicalDeviceMemoryProperties) {
	core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)

	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		heap := memory.MemoryHeaps[j]
		heap.Deref()
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}

func physicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		PresentFamilyIndex:  -1,
		TransferFamilyIndex: -1,
	}

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("Device is not a discrete GPU, and one is required. Skipping.")
		return queueInfo, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	minTransferScore := 255
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		currentTransferScore := 0
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)

		if flags&vk.QueueGraphicsBit != 0 {
			if queueInfo.GraphicsFamilyIndex < 0 {
				queueInfo.GraphicsFamilyIndex = int32(i)
			}
			currentTransferScore++
		}
		if flags&vk.QueueComputeBit != 0 {
			currentTransferScore++
		}
		// The lowest scoring transfer family is most likely a dedicated one.
		if flags&vk.QueueTransferBit != 0 && currentTransferScore <= minTransferScore {
			minTransferScore = currentTransferScore
			queueInfo.TransferFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return queueInfo, false
		}
		// Presenting from the graphics family avoids a queue ownership transfer.
		if supportsPresent == vk.True && (queueInfo.PresentFamilyIndex < 0 || int32(i) == queueInfo.GraphicsFamilyIndex) {
			queueInfo.PresentFamilyIndex = int32(i)
		}
	}

	core.LogDebug("Graphics: %d | Present: %d | Transfer: %d | %s",
		queueInfo.GraphicsFamilyIndex,
		queueInfo.PresentFamilyIndex,
		queueInfo.TransferFamilyIndex,
		vk.ToString(properties.DeviceName[:]))

	if (requirements.Graphics && queueInfo.GraphicsFamilyIndex < 0) ||
		(requirements.Present && queueInfo.PresentFamilyIndex < 0) ||
		(requirements.Transfer && queueInfo.TransferFamilyIndex < 0) {
		return queueInfo, false
	}

	formats, modes := querySurfaceSupport(device, surface)
	if len(formats) == 0 || len(modes) == 0 {
		core.LogDebug("Required swapchain support not present, skipping device.")
		return queueInfo, false
	}

	for _, name := range requirements.DeviceExtensionNames {
		found, err := hasDeviceExtension(device, name)
		if err != nil || !found {
			core.LogDebug("Required extension not found: '%s', skipping device.", name)
			return queueInfo, false
		}
	}

	return queueInfo, true
}
