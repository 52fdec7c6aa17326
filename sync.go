package vkfg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// FrameSync owns the per-frame-in-flight semaphores and fences used by the
// submission layer. Fences start signaled so the first wait on each slot
// passes immediately.
type FrameSync struct {
	Device vk.Device

	imageAvailable  [MaxFramesInFlight]vk.Semaphore
	renderFinished  [MaxFramesInFlight]vk.Semaphore
	computeFinished [MaxFramesInFlight]vk.Semaphore
	inFlight        [MaxFramesInFlight]vk.Fence
	compute         [MaxFramesInFlight]vk.Fence
}

func NewFrameSync(device vk.Device) (*FrameSync, error) {
	s := &FrameSync{Device: device}

	semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	for i := 0; i < MaxFramesInFlight; i++ {
		if err := vk.Error(vk.CreateSemaphore(device, &semInfo, nil, &s.imageAvailable[i])); err != nil {
			s.Destroy()
			return nil, fmt.Errorf("create image-available semaphore %d: %w", i, err)
		}
		if err := vk.Error(vk.CreateSemaphore(device, &semInfo, nil, &s.renderFinished[i])); err != nil {
			s.Destroy()
			return nil, fmt.Errorf("create render-finished semaphore %d: %w", i, err)
		}
		if err := vk.Error(vk.CreateSemaphore(device, &semInfo, nil, &s.computeFinished[i])); err != nil {
			s.Destroy()
			return nil, fmt.Errorf("create compute-finished semaphore %d: %w", i, err)
		}
		if err := vk.Error(vk.CreateFence(device, &fenceInfo, nil, &s.inFlight[i])); err != nil {
			s.Destroy()
			return nil, fmt.Errorf("create in-flight fence %d: %w", i, err)
		}
		if err := vk.Error(vk.CreateFence(device, &fenceInfo, nil, &s.compute[i])); err != nil {
			s.Destroy()
			return nil, fmt.Errorf("create compute fence %d: %w", i, err)
		}
	}
	return s, nil
}

func (s *FrameSync) ImageAvailableSemaphore(frameIndex uint32) vk.Semaphore {
	return s.imageAvailable[frameIndex%MaxFramesInFlight]
}

func (s *FrameSync) RenderFinishedSemaphore(frameIndex uint32) vk.Semaphore {
	return s.renderFinished[frameIndex%MaxFramesInFlight]
}

func (s *FrameSync) ComputeFinishedSemaphore(frameIndex uint32) vk.Semaphore {
	return s.computeFinished[frameIndex%MaxFramesInFlight]
}

func (s *FrameSync) InFlightFence(frameIndex uint32) vk.Fence {
	return s.inFlight[frameIndex%MaxFramesInFlight]
}

func (s *FrameSync) ComputeFence(frameIndex uint32) vk.Fence {
	return s.compute[frameIndex%MaxFramesInFlight]
}

func (s *FrameSync) Destroy() {
	for i := 0; i < MaxFramesInFlight; i++ {
		if s.imageAvailable[i] != vk.NullSemaphore {
			vk.DestroySemaphore(s.Device, s.imageAvailable[i], nil)
			s.imageAvailable[i] = vk.NullSemaphore
		}
		if s.renderFinished[i] != vk.NullSemaphore {
			vk.DestroySemaphore(s.Device, s.renderFinished[i], nil)
			s.renderFinished[i] = vk.NullSemaphore
		}
		if s.computeFinished[i] != vk.NullSemaphore {
			vk.DestroySemaphore(s.Device, s.computeFinished[i], nil)
			s.computeFinished[i] = vk.NullSemaphore
		}
		if s.inFlight[i] != vk.NullFence {
			vk.DestroyFence(s.Device, s.inFlight[i], nil)
			s.inFlight[i] = vk.NullFence
		}
		if s.compute[i] != vk.NullFence {
			vk.DestroyFence(s.Device, s.compute[i], nil)
			s.compute[i] = vk.NullFence
		}
	}
}
