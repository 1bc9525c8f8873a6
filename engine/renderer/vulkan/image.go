package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
)

// VulkanImage is a device local image with a single view. Swapchain images
// are not VulkanImages since the presentation engine owns their memory.
type VulkanImage struct {
	context *VulkanContext

	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

func ImageCreate(context *VulkanContext, width, height uint32, format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags, aspectFlags vk.ImageAspectFlags) (*VulkanImage, error) {
	image := &VulkanImage{
		context: context,
		Width:   width,
		Height:  height,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var handle vk.Image
	if err := resultError("vkCreateImage", vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	image.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, image.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(memoryFlags))
	if memoryType == -1 {
		image.Destroy()
		return nil, fmt.Errorf("required memory type not found, image not valid")
	}

	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if err := resultError("vkAllocateMemory", vk.AllocateMemory(context.Device.LogicalDevice, &memoryAllocateInfo, context.Allocator, &memory)); err != nil {
		image.Destroy()
		return nil, err
	}
	image.Memory = memory

	if err := resultError("vkBindImageMemory", vk.BindImageMemory(context.Device.LogicalDevice, image.Handle, image.Memory, 0)); err != nil {
		image.Destroy()
		return nil, err
	}

	view, err := createImageView(context, image.Handle, format, aspectFlags)
	if err != nil {
		image.Destroy()
		return nil, err
	}
	image.View = view
	return image, nil
}

func createImageView(context *VulkanContext, image vk.Image, format vk.Format, aspectFlags vk.ImageAspectFlags) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if err := resultError("vkCreateImageView", vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return view, nil
}

func (image *VulkanImage) Destroy() {
	if image.View != nil {
		vk.DestroyImageView(image.context.Device.LogicalDevice, image.View, image.context.Allocator)
		image.View = nil
	}
	if image.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(image.context.Device.LogicalDevice, image.Memory, image.context.Allocator)
		image.Memory = vk.NullDeviceMemory
	}
	if image.Handle != nil {
		vk.DestroyImage(image.context.Device.LogicalDevice, image.Handle, image.context.Allocator)
		image.Handle = nil
	}
}
