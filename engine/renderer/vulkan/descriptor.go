package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/tempo/engine/core"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

// SampledImageView is implemented by driver.SampledImage values that come
// from this backend.
type SampledImageView interface {
	driver.SampledImage
	ImageView() vk.ImageView
	Sampler() vk.Sampler
}

func descriptorType(kind driver.DescriptorKind) vk.DescriptorType {
	switch kind {
	case driver.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case driver.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func shaderStages(stages driver.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlagBits
	if stages&driver.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageVertexBit
	}
	if stages&driver.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFragmentBit
	}
	if stages&driver.ShaderStageCompute != 0 {
		flags |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(flags)
}

// VulkanDescriptorPool holds one set layout and a fixed number of sets
// allocated from a pool sized exactly for them.
type VulkanDescriptorPool struct {
	context *VulkanContext

	Layout vk.DescriptorSetLayout
	Handle vk.DescriptorPool
	sets   []driver.DescriptorSet
}

func NewVulkanDescriptorPool(context *VulkanContext, bindings []driver.DescriptorBinding, sets int) (*VulkanDescriptorPool, error) {
	if sets <= 0 || len(bindings) == 0 {
		return nil, fmt.Errorf("%w: descriptor pool needs bindings and sets", core.ErrInvalidState)
	}
	pool := &VulkanDescriptorPool{context: context}
	device := context.Device.LogicalDevice

	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	counts := map[vk.DescriptorType]uint32{}
	for i, b := range bindings {
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorType(b.Kind),
			DescriptorCount: 1,
			StageFlags:      shaderStages(b.Stages),
		}
		counts[descriptorType(b.Kind)] += uint32(sets)
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(device, &layoutInfo, context.Allocator, &layout)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	pool.Layout = layout

	poolSizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	for typ, count := range counts {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: typ, DescriptorCount: count})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(sets),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var handle vk.DescriptorPool
	if err := resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &handle)); err != nil {
		pool.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	pool.Handle = handle

	for i := 0; i < sets; i++ {
		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool.Handle,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{pool.Layout},
		}
		var set vk.DescriptorSet
		if err := resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(device, &allocInfo, &set)); err != nil {
			pool.Destroy()
			core.LogError(err.Error())
			return nil, err
		}
		pool.sets = append(pool.sets, &VulkanDescriptorSet{context: context, Handle: set})
	}
	return pool, nil
}

func (p *VulkanDescriptorPool) Sets() []driver.DescriptorSet {
	return p.sets
}

// Destroy frees the pool, which frees its sets with it.
func (p *VulkanDescriptorPool) Destroy() {
	device := p.context.Device.LogicalDevice
	if p.Handle != nil {
		vk.DestroyDescriptorPool(device, p.Handle, p.context.Allocator)
		p.Handle = nil
	}
	if p.Layout != nil {
		vk.DestroyDescriptorSetLayout(device, p.Layout, p.context.Allocator)
		p.Layout = nil
	}
	p.sets = nil
}

type VulkanDescriptorSet struct {
	context *VulkanContext
	Handle  vk.DescriptorSet
}

// Update writes the given bindings. The set must not be in use by a
// pending submission.
func (s *VulkanDescriptorSet) Update(writes []driver.DescriptorWrite) error {
	if len(writes) == 0 {
		return nil
	}
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.Handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  descriptorType(w.Kind),
		}
		switch w.Kind {
		case driver.DescriptorUniformBuffer, driver.DescriptorStorageBuffer:
			buffer, ok := w.Buffer.(*VulkanBuffer)
			if !ok {
				return fmt.Errorf("%w: binding %d has no vulkan buffer", core.ErrInvalidState, w.Binding)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer.Handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		case driver.DescriptorCombinedImageSampler:
			image, ok := w.Image.(SampledImageView)
			if !ok {
				return fmt.Errorf("%w: binding %d has no vulkan image", core.ErrInvalidState, w.Binding)
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     image.Sampler(),
				ImageView:   image.ImageView(),
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		}
		vkWrites = append(vkWrites, write)
	}
	vk.UpdateDescriptorSets(s.context.Device.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
	return nil
}
