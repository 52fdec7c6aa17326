package vkfg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// QueueManager owns the compute and graphics command pools and the per-frame
// primary command buffers recorded by the frame graph. The two pools may sit
// on the same queue family; the manager does not care.
type QueueManager struct {
	Device vk.Device

	ComputeQueue  vk.Queue
	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	computePool  vk.CommandPool
	graphicsPool vk.CommandPool

	computeBuffers  [MaxFramesInFlight]vk.CommandBuffer
	graphicsBuffers [MaxFramesInFlight]vk.CommandBuffer

	framesReset uint64
}

// QueueManagerConfig carries the queue handles and family indices the manager
// builds its pools on.
type QueueManagerConfig struct {
	ComputeQueue        vk.Queue
	GraphicsQueue       vk.Queue
	PresentQueue        vk.Queue
	ComputeFamilyIndex  uint32
	GraphicsFamilyIndex uint32
}

func NewQueueManager(device vk.Device, cfg QueueManagerConfig) (*QueueManager, error) {
	m := &QueueManager{
		Device:        device,
		ComputeQueue:  cfg.ComputeQueue,
		GraphicsQueue: cfg.GraphicsQueue,
		PresentQueue:  cfg.PresentQueue,
	}

	var err error
	m.computePool, err = createCommandPool(device, cfg.ComputeFamilyIndex)
	if err != nil {
		return nil, fmt.Errorf("create compute command pool: %w", err)
	}
	m.graphicsPool, err = createCommandPool(device, cfg.GraphicsFamilyIndex)
	if err != nil {
		m.Destroy()
		return nil, fmt.Errorf("create graphics command pool: %w", err)
	}

	if err := allocateCommandBuffers(device, m.computePool, m.computeBuffers[:]); err != nil {
		m.Destroy()
		return nil, fmt.Errorf("allocate compute command buffers: %w", err)
	}
	if err := allocateCommandBuffers(device, m.graphicsPool, m.graphicsBuffers[:]); err != nil {
		m.Destroy()
		return nil, fmt.Errorf("allocate graphics command buffers: %w", err)
	}
	return m, nil
}

func createCommandPool(device vk.Device, familyIndex uint32) (vk.CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: familyIndex,
	}
	var pool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(device, &info, nil, &pool)); err != nil {
		return vk.NullCommandPool, err
	}
	return pool, nil
}

func allocateCommandBuffers(device vk.Device, pool vk.CommandPool, out []vk.CommandBuffer) error {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(len(out)),
	}
	return vk.Error(vk.AllocateCommandBuffers(device, &info, out))
}

func (m *QueueManager) ComputeCommandBuffer(frameIndex uint32) vk.CommandBuffer {
	return m.computeBuffers[frameIndex%MaxFramesInFlight]
}

func (m *QueueManager) GraphicsCommandBuffer(frameIndex uint32) vk.CommandBuffer {
	return m.graphicsBuffers[frameIndex%MaxFramesInFlight]
}

// ResetFrame resets both of the frame's command buffers for re-recording. The
// caller guarantees the frame's fences were waited first.
func (m *QueueManager) ResetFrame(frameIndex uint32) error {
	slot := frameIndex % MaxFramesInFlight
	if err := vk.Error(vk.ResetCommandBuffer(m.computeBuffers[slot], 0)); err != nil {
		return fmt.Errorf("reset compute command buffer: %w", err)
	}
	if err := vk.Error(vk.ResetCommandBuffer(m.graphicsBuffers[slot], 0)); err != nil {
		return fmt.Errorf("reset graphics command buffer: %w", err)
	}
	m.framesReset++
	return nil
}

// FramesReset reports how many frame resets have run, for diagnostics.
func (m *QueueManager) FramesReset() uint64 { return m.framesReset }

func (m *QueueManager) Destroy() {
	if m.computePool != vk.NullCommandPool {
		vk.DestroyCommandPool(m.Device, m.computePool, nil)
		m.computePool = vk.NullCommandPool
	}
	if m.graphicsPool != vk.NullCommandPool {
		vk.DestroyCommandPool(m.Device, m.graphicsPool, nil)
		m.graphicsPool = vk.NullCommandPool
	}
}
