package vkfg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// FrameStateManager tracks, per frame-in-flight slot, which queues were
// actually submitted last time the slot was used, and waits only those
// fences. Waiting a fence that was never submitted again would stall on its
// stale signaled state at best and deadlock at worst.
type FrameStateManager struct {
	device vk.Device
	sync   SyncProvider

	computeUsed  [MaxFramesInFlight]bool
	graphicsUsed [MaxFramesInFlight]bool
}

// NewFrameStateManager starts every slot marked fully used; the fences are
// created signaled, so the first wait per slot returns immediately.
func NewFrameStateManager(device vk.Device, sync SyncProvider) (*FrameStateManager, error) {
	if sync == nil {
		return nil, fmt.Errorf("frame state manager requires a sync provider")
	}
	m := &FrameStateManager{device: device, sync: sync}
	for i := 0; i < MaxFramesInFlight; i++ {
		m.computeUsed[i] = true
		m.graphicsUsed[i] = true
	}
	return m, nil
}

// MarkFrameUsage records which queues this frame's submission actually used.
func (m *FrameStateManager) MarkFrameUsage(frameIndex uint32, result ExecutionResult) {
	slot := frameIndex % MaxFramesInFlight
	m.computeUsed[slot] = result.ComputeUsed
	m.graphicsUsed[slot] = result.GraphicsUsed
}

// ComputeUsed reports whether the slot's last submission included compute.
func (m *FrameStateManager) ComputeUsed(frameIndex uint32) bool {
	return m.computeUsed[frameIndex%MaxFramesInFlight]
}

// GraphicsUsed reports whether the slot's last submission included graphics.
func (m *FrameStateManager) GraphicsUsed(frameIndex uint32) bool {
	return m.graphicsUsed[frameIndex%MaxFramesInFlight]
}

// WaitForFrame blocks until the slot's previously submitted work completes,
// then resets the fences it waited so they can be resubmitted.
func (m *FrameStateManager) WaitForFrame(frameIndex uint32) error {
	slot := frameIndex % MaxFramesInFlight

	var fences []vk.Fence
	if m.graphicsUsed[slot] {
		fences = append(fences, m.sync.InFlightFence(frameIndex))
	}
	if m.computeUsed[slot] {
		fences = append(fences, m.sync.ComputeFence(frameIndex))
	}
	if len(fences) == 0 {
		return nil
	}

	if err := vk.Error(vk.WaitForFences(m.device, uint32(len(fences)), fences, vk.True, vk.MaxUint64)); err != nil {
		return fmt.Errorf("wait frame %d fences: %w", frameIndex, err)
	}
	if err := vk.Error(vk.ResetFences(m.device, uint32(len(fences)), fences)); err != nil {
		return fmt.Errorf("reset frame %d fences: %w", frameIndex, err)
	}
	return nil
}
