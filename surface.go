package vkfg

import (
	"fmt"
	"log"
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// acquireTimeout bounds a swapchain image acquire. An acquire that sits
// longer than this means the presentation engine is wedged; better to fail
// the frame than hang the render loop.
const acquireTimeout = 2 * time.Second

// AcquireResult is the outcome of one swapchain image acquisition.
type AcquireResult struct {
	ImageIndex       uint32
	Success          bool
	RecreationNeeded bool
}

// PresentationSurface wraps swapchain image acquisition. It refuses
// re-entrant acquires and refuses to acquire while a recreation is in
// progress; both situations otherwise corrupt the semaphore pairing between
// acquire and submit.
type PresentationSurface struct {
	device    vk.Device
	swapchain SwapchainTarget
	sync      SyncProvider

	acquisitionInProgress bool
	recreationInProgress  bool
	timeoutCount          uint32
}

func NewPresentationSurface(device vk.Device, swapchain SwapchainTarget, sync SyncProvider) (*PresentationSurface, error) {
	if swapchain == nil {
		return nil, fmt.Errorf("presentation surface requires a swapchain")
	}
	if sync == nil {
		return nil, fmt.Errorf("presentation surface requires a sync provider")
	}
	return &PresentationSurface{device: device, swapchain: swapchain, sync: sync}, nil
}

// AcquireNextImage acquires the next swapchain image, signaling the frame's
// image-available semaphore.
func (p *PresentationSurface) AcquireNextImage(frameIndex uint32) AcquireResult {
	if p.acquisitionInProgress {
		log.Printf("Presentation surface: re-entrant acquire refused")
		return AcquireResult{}
	}
	if p.recreationInProgress {
		return AcquireResult{RecreationNeeded: true}
	}
	p.acquisitionInProgress = true
	defer func() { p.acquisitionInProgress = false }()

	var imageIndex uint32
	res := vk.AcquireNextImage(p.device, p.swapchain.Handle(), uint64(acquireTimeout.Nanoseconds()),
		p.sync.ImageAvailableSemaphore(frameIndex), vk.NullFence, &imageIndex)

	switch res {
	case vk.Success:
		return AcquireResult{ImageIndex: imageIndex, Success: true}
	case vk.Suboptimal:
		return AcquireResult{ImageIndex: imageIndex, Success: true, RecreationNeeded: true}
	case vk.ErrorOutOfDate:
		return AcquireResult{RecreationNeeded: true}
	case vk.Timeout, vk.NotReady:
		p.timeoutCount++
		log.Printf("Presentation surface: acquire timed out (%d total)", p.timeoutCount)
		return AcquireResult{}
	default:
		log.Printf("Presentation surface: acquire failed: %d", res)
		return AcquireResult{}
	}
}

// BeginRecreation blocks acquires while the swapchain is being rebuilt.
func (p *PresentationSurface) BeginRecreation() { p.recreationInProgress = true }

// EndRecreation re-enables acquisition after a rebuild.
func (p *PresentationSurface) EndRecreation() { p.recreationInProgress = false }

// RecreationInProgress reports whether acquires are currently blocked.
func (p *PresentationSurface) RecreationInProgress() bool { return p.recreationInProgress }
