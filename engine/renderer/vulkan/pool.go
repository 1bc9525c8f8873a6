package vulkan

import "sync"

// VulkanLockPool serializes access to queues. Vulkan requires external
// synchronization of a VkQueue, and graphics and present may share one.
type VulkanLockPool struct {
	mu           sync.Mutex
	queueMutexes map[uint32]*sync.Mutex // queue family index as key
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) queueLock(index uint32) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	l, exists := vs.queueMutexes[index]
	if !exists {
		l = &sync.Mutex{}
		vs.queueMutexes[index] = l
	}
	return l
}

func (vs *VulkanLockPool) SetQueueFamily(index uint32) {
	vs.queueLock(index)
}

func (vs *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	l := vs.queueLock(queueFamilyIndex)
	l.Lock()
	defer l.Unlock()

	return fn()
}
