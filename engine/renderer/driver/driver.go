// Package driver declares the GPU and window contracts the frame core is
// written against. The Vulkan backend implements them for real hardware and
// drivertest implements them in memory.
package driver

import "time"

// Result is the outcome of a driver call that can legitimately fail at
// runtime, mirroring the codes the presentation engine reports.
type Result int

const (
	Success Result = iota
	NotReady
	Timeout
	Suboptimal
	OutOfDate
	SurfaceLost
	DeviceLost
	OutOfMemory
	Unknown
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NotReady:
		return "not ready"
	case Timeout:
		return "timeout"
	case Suboptimal:
		return "suboptimal"
	case OutOfDate:
		return "out of date"
	case SurfaceLost:
		return "surface lost"
	case DeviceLost:
		return "device lost"
	case OutOfMemory:
		return "out of memory"
	}
	return "unknown"
}

// Extent is a 2D size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports a surface that cannot be rendered to, as happens while the
// window is minimized.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Limits are the device properties the allocator and binder care about.
type Limits struct {
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
}

type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageTransferSrc
)

type Destroyer interface {
	Destroy()
}

// Fence is a GPU-to-CPU signal.
type Fence interface {
	Destroyer
	// Wait blocks until the fence is signaled. A zero timeout waits forever.
	Wait(timeout time.Duration) Result
	Reset() error
}

// Semaphore is a GPU-to-GPU signal.
type Semaphore interface {
	Destroyer
}

type CommandBuffer interface {
	Destroyer
	Reset() error
	Begin() error
	End() error
}

// Buffer is host visible and host coherent memory.
type Buffer interface {
	Destroyer
	Size() uint64
	// Map returns the whole buffer as a byte slice valid until Unmap.
	Map() ([]byte, error)
	Unmap()
}

type DescriptorKind int

const (
	DescriptorUniformBuffer DescriptorKind = iota
	DescriptorStorageBuffer
	DescriptorCombinedImageSampler
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageFragment
)

type DescriptorBinding struct {
	Binding uint32
	Kind    DescriptorKind
	Stages  ShaderStage
}

// SampledImage is an image view paired with its sampler.
type SampledImage interface {
	Extent() Extent
}

type DescriptorWrite struct {
	Binding uint32
	Kind    DescriptorKind
	Buffer  Buffer
	Offset  uint64
	Range   uint64
	Image   SampledImage
}

type DescriptorSet interface {
	Update(writes []DescriptorWrite) error
}

// DescriptorPool owns a fixed number of sets sharing one layout.
type DescriptorPool interface {
	Destroyer
	Sets() []DescriptorSet
}

type SubmitInfo struct {
	CommandBuffer CommandBuffer
	// Wait is waited on at the color attachment output stage.
	Wait   Semaphore
	Signal Semaphore
	Fence  Fence
}

type Device interface {
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)
	NewCommandBuffer() (CommandBuffer, error)
	NewBuffer(size uint64, usage BufferUsage) (Buffer, error)
	NewDescriptorPool(layout []DescriptorBinding, sets int) (DescriptorPool, error)
	Submit(info SubmitInfo) error
	WaitIdle() error
	Limits() Limits
}

// RenderTarget is everything a recorder needs to draw into one swapchain
// image: the color view, the depth attachment and the framebuffer.
type RenderTarget interface {
	Destroyer
	Extent() Extent
}

type Swapchain interface {
	Destroyer
	Extent() Extent
	ImageCount() int
	AcquireNextImage(signal Semaphore, timeout time.Duration) (uint32, Result)
	Present(imageIndex uint32, wait Semaphore) Result
	NewRenderTarget(imageIndex int) (RenderTarget, error)
}

type SwapchainFactory interface {
	// CreateSwapchain builds a chain for extent. old may be nil; when set it
	// is handed to the presentation engine for retirement and the caller
	// still destroys it.
	CreateSwapchain(extent Extent, old Swapchain) (Swapchain, error)
}

type Window interface {
	DrawableSize() Extent
}
