package vkfg

import (
	"errors"
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

// RenderFrameDirectorConfig wires the director to every collaborator it
// drives. All fields are required.
type RenderFrameDirectorConfig struct {
	Graph      *FrameGraph
	Surface    *PresentationSurface
	Submission *CommandSubmissionService
	FrameState *FrameStateManager
	Registry   *ResourceRegistry

	Pipelines PipelineManager
	Entities  EntityManager
	Resources GraphicsResources
	Camera    CameraSource
	Swapchain SwapchainTarget

	// Samples overrides the graphics node's MSAA sample count when nonzero.
	Samples vk.SampleCountFlagBits
}

// RenderFrameDirector owns the per-frame sequence: wait, acquire, record,
// submit, present. Node registration and graph compilation happen exactly
// once, on the first frame; after that each frame only rebinds the acquired
// swapchain image.
type RenderFrameDirector struct {
	cfg RenderFrameDirectorConfig

	movement *EntityComputeNode
	physics  *PhysicsComputeNode
	graphics *EntityGraphicsNode
	present  *SwapchainPresentNode

	setupDone   bool
	globalFrame uint32
}

func NewRenderFrameDirector(cfg RenderFrameDirectorConfig) (*RenderFrameDirector, error) {
	if cfg.Graph == nil || cfg.Surface == nil || cfg.Submission == nil || cfg.FrameState == nil || cfg.Registry == nil {
		return nil, errors.New("render frame director requires graph, surface, submission, frame state and registry")
	}
	if cfg.Pipelines == nil || cfg.Entities == nil || cfg.Resources == nil || cfg.Camera == nil || cfg.Swapchain == nil {
		return nil, errors.New("render frame director requires all rendering collaborators")
	}
	return &RenderFrameDirector{cfg: cfg}, nil
}

// Setup imports the entity buffers, registers the four pipeline nodes in
// simulation order and compiles the graph. Called implicitly by the first
// RenderFrame.
func (d *RenderFrameDirector) Setup() error {
	if d.setupDone {
		return nil
	}
	if err := d.cfg.Registry.ImportEntityResources(d.cfg.Graph); err != nil {
		return fmt.Errorf("director setup: %w", err)
	}

	var err error
	d.movement, err = NewEntityComputeNode(d.cfg.Pipelines, d.cfg.Entities, d.cfg.Registry.MovementData())
	if err != nil {
		return fmt.Errorf("director setup: %w", err)
	}
	d.physics, err = NewPhysicsComputeNode(d.cfg.Pipelines, d.cfg.Entities, d.cfg.Registry.PhysicsData())
	if err != nil {
		return fmt.Errorf("director setup: %w", err)
	}
	d.graphics, err = NewEntityGraphicsNode(d.cfg.Pipelines, d.cfg.Entities, d.cfg.Resources, d.cfg.Camera, d.cfg.Swapchain, d.cfg.Registry.GraphicsData())
	if err != nil {
		return fmt.Errorf("director setup: %w", err)
	}
	if d.cfg.Samples != 0 {
		d.graphics.SetSampleCount(d.cfg.Samples)
	}
	d.present = NewSwapchainPresentNode()

	d.cfg.Graph.AddNode(d.movement)
	d.cfg.Graph.AddNode(d.physics)
	d.cfg.Graph.AddNode(d.graphics)
	d.cfg.Graph.AddNode(d.present)

	report, err := d.cfg.Graph.Compile()
	if err != nil {
		return fmt.Errorf("director setup: %w", err)
	}
	if len(report.Dropped) > 0 {
		log.Printf("Render frame director: compiled with %d dropped nodes", len(report.Dropped))
	}
	d.setupDone = true
	return nil
}

// RenderFrame runs one full frame. The returned bool asks the caller to
// recreate the swapchain; after rebuilding, the caller must invoke
// NotifySwapchainRecreated before the next frame.
func (d *RenderFrameDirector) RenderFrame(now, deltaTime float32) (bool, error) {
	if !d.setupDone {
		if err := d.Setup(); err != nil {
			return false, err
		}
	}

	// Skip the whole frame, acquire included, while the GPU is unhealthy.
	// Acquiring and then not presenting would leave the image-available
	// semaphore signaled with no consumer.
	if td := d.cfg.Graph.Timeout(); td != nil && !td.IsGPUHealthy() {
		d.globalFrame++
		return false, nil
	}

	frameIndex := d.globalFrame % MaxFramesInFlight

	if err := d.cfg.FrameState.WaitForFrame(frameIndex); err != nil {
		return false, fmt.Errorf("render frame %d: %w", d.globalFrame, err)
	}

	acq := d.cfg.Surface.AcquireNextImage(frameIndex)
	if acq.RecreationNeeded && !acq.Success {
		d.cfg.Surface.BeginRecreation()
		return true, nil
	}
	if !acq.Success {
		return false, fmt.Errorf("render frame %d: swapchain acquire failed", d.globalFrame)
	}

	imageIndex := int(acq.ImageIndex)
	imgId := d.cfg.Graph.ImportSwapchainImage(
		fmt.Sprintf("swapchain-image-%d", imageIndex), imageIndex,
		d.cfg.Swapchain.Image(imageIndex), d.cfg.Swapchain.ImageView(imageIndex),
		d.cfg.Swapchain.ImageFormat(), d.cfg.Swapchain.Extent())

	d.graphics.SetImageIndex(imageIndex)
	d.graphics.SetCurrentSwapchainImageId(imgId)
	d.present.SetImageIndex(imageIndex)
	d.present.SetCurrentSwapchainImageId(imgId)

	result, err := d.cfg.Graph.Execute(frameIndex, now, deltaTime, d.globalFrame)
	d.cfg.FrameState.MarkFrameUsage(frameIndex, result)
	if err != nil {
		return false, fmt.Errorf("render frame %d: %w", d.globalFrame, err)
	}

	if err := d.cfg.Submission.SubmitFrame(frameIndex, result, true); err != nil {
		return false, fmt.Errorf("render frame %d: %w", d.globalFrame, err)
	}

	recreate := acq.RecreationNeeded
	if result.GraphicsUsed {
		pres := d.cfg.Submission.Present(frameIndex, d.cfg.Swapchain.Handle(), acq.ImageIndex)
		if !pres.Success {
			return false, fmt.Errorf("render frame %d: present failed: %d", d.globalFrame, pres.LastResult)
		}
		recreate = recreate || pres.RecreationNeeded
	}

	d.globalFrame++
	if recreate {
		d.cfg.Surface.BeginRecreation()
		return true, nil
	}
	return false, nil
}

// NotifySwapchainRecreated drops the cached swapchain resources and unblocks
// acquisition after the caller rebuilt the swapchain.
func (d *RenderFrameDirector) NotifySwapchainRecreated() {
	d.cfg.Graph.RemoveSwapchainResources()
	d.cfg.Surface.EndRecreation()
}

// GlobalFrameCounter returns the monotonically increasing frame number.
func (d *RenderFrameDirector) GlobalFrameCounter() uint32 { return d.globalFrame }
