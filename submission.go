package vkfg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// SubmissionResult is the outcome of a queue present. RecreationNeeded means
// the swapchain is out of date or suboptimal and must be rebuilt before the
// next present.
type SubmissionResult struct {
	Success          bool
	RecreationNeeded bool
	LastResult       vk.Result
}

// CommandSubmissionService submits the frame's recorded command buffers and
// presents the acquired image. Compute submits first and signals its
// semaphore; graphics waits on it at the vertex stages that consume the
// simulation output, so the two queues overlap everywhere else.
type CommandSubmissionService struct {
	queues *QueueManager
	sync   SyncProvider
}

func NewCommandSubmissionService(queues *QueueManager, sync SyncProvider) (*CommandSubmissionService, error) {
	if queues == nil {
		return nil, fmt.Errorf("submission service requires a queue manager")
	}
	if sync == nil {
		return nil, fmt.Errorf("submission service requires a sync provider")
	}
	return &CommandSubmissionService{queues: queues, sync: sync}, nil
}

// SubmitFrame submits whichever queues the execution result marked used.
// imageAcquired gates the image-available wait; a frame recorded without an
// acquired swapchain image (no graphics work) must not wait the semaphore.
func (s *CommandSubmissionService) SubmitFrame(frameIndex uint32, result ExecutionResult, imageAcquired bool) error {
	if result.ComputeUsed {
		cmd := s.queues.ComputeCommandBuffer(frameIndex)
		submit := vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			CommandBufferCount:   1,
			PCommandBuffers:      []vk.CommandBuffer{cmd},
			SignalSemaphoreCount: 1,
			PSignalSemaphores:    []vk.Semaphore{s.sync.ComputeFinishedSemaphore(frameIndex)},
		}
		err := vk.Error(vk.QueueSubmit(s.queues.ComputeQueue, 1, []vk.SubmitInfo{submit}, s.sync.ComputeFence(frameIndex)))
		if err != nil {
			return fmt.Errorf("submit compute frame %d: %w", frameIndex, err)
		}
	}

	if result.GraphicsUsed {
		var waitSemaphores []vk.Semaphore
		var waitStages []vk.PipelineStageFlags
		if imageAcquired {
			waitSemaphores = append(waitSemaphores, s.sync.ImageAvailableSemaphore(frameIndex))
			waitStages = append(waitStages, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
		}
		if result.ComputeUsed {
			waitSemaphores = append(waitSemaphores, s.sync.ComputeFinishedSemaphore(frameIndex))
			waitStages = append(waitStages, vk.PipelineStageFlags(vk.PipelineStageVertexInputBit|vk.PipelineStageVertexShaderBit))
		}

		cmd := s.queues.GraphicsCommandBuffer(frameIndex)
		submit := vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waitSemaphores)),
			PWaitSemaphores:      waitSemaphores,
			PWaitDstStageMask:    waitStages,
			CommandBufferCount:   1,
			PCommandBuffers:      []vk.CommandBuffer{cmd},
			SignalSemaphoreCount: 1,
			PSignalSemaphores:    []vk.Semaphore{s.sync.RenderFinishedSemaphore(frameIndex)},
		}
		err := vk.Error(vk.QueueSubmit(s.queues.GraphicsQueue, 1, []vk.SubmitInfo{submit}, s.sync.InFlightFence(frameIndex)))
		if err != nil {
			return fmt.Errorf("submit graphics frame %d: %w", frameIndex, err)
		}
	}
	return nil
}

// Present queues the acquired image for presentation, waiting on the frame's
// render-finished semaphore. OutOfDate and Suboptimal are not failures; they
// request a swapchain rebuild.
func (s *CommandSubmissionService) Present(frameIndex uint32, swapchain vk.Swapchain, imageIndex uint32) SubmissionResult {
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s.sync.RenderFinishedSemaphore(frameIndex)},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{swapchain},
		PImageIndices:      []uint32{imageIndex},
	}
	res := vk.QueuePresent(s.queues.PresentQueue, &info)
	switch res {
	case vk.Success:
		return SubmissionResult{Success: true, LastResult: res}
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return SubmissionResult{Success: true, RecreationNeeded: true, LastResult: res}
	default:
		return SubmissionResult{Success: false, LastResult: res}
	}
}
