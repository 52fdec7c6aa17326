package vkfg

import (
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// EntityBuffer is one externally-owned SoA buffer with its byte size.
type EntityBuffer struct {
	Buffer vk.Buffer
	Size   vk.DeviceSize
}

// EntityBuffers enumerates every SoA buffer the entity manager owns. The
// frame graph imports them; it never creates or destroys them.
type EntityBuffers struct {
	Velocity           EntityBuffer
	MovementParams     EntityBuffer
	RuntimeState       EntityBuffer
	Color              EntityBuffer
	ModelMatrix        EntityBuffer
	SpatialMap         EntityBuffer
	SpatialNext        EntityBuffer
	ControlParams      EntityBuffer
	ParticleVelocity   EntityBuffer
	ParticleInvMass    EntityBuffer
	BodyData           EntityBuffer
	BodyParams         EntityBuffer
	DistanceConstraint EntityBuffer
	Position           EntityBuffer
	CurrentPosition    EntityBuffer
	TargetPosition     EntityBuffer
}

// EntityManager is the narrow surface of the entity-management collaborator
// consumed by the graph nodes and resource registry.
type EntityManager interface {
	EntityCount() uint32
	Buffers() EntityBuffers
	ComputeDescriptorSet() vk.DescriptorSet
	GraphicsDescriptorSet(frameIndex uint32) vk.DescriptorSet
}

// Descriptor layout names resolved through the pipeline manager. Lookups are
// expected to be cheap (cached) after first use.
const (
	LayoutEntityCompute  = "entity-compute"
	LayoutEntityGraphics = "entity-graphics"
)

// ComputePipelineSpec selects a cached compute pipeline.
type ComputePipelineSpec struct {
	Shader           string
	DescriptorLayout vk.DescriptorSetLayout
	PushConstantSize uint32
}

// GraphicsPipelineSpec selects a cached graphics pipeline.
type GraphicsPipelineSpec struct {
	Shader           string
	RenderPass       vk.RenderPass
	DescriptorLayout vk.DescriptorSetLayout
	PushConstantSize uint32
	Samples          vk.SampleCountFlagBits
}

// PipelineManager is the pipeline/layout cache collaborator. A null handle
// return means the lookup failed; nodes treat that as a per-frame error, not a
// panic.
type PipelineManager interface {
	DescriptorLayout(name string) vk.DescriptorSetLayout
	ComputePipeline(spec ComputePipelineSpec) (vk.Pipeline, vk.PipelineLayout)
	GraphicsPipeline(spec GraphicsPipelineSpec) (vk.Pipeline, vk.PipelineLayout)
	RenderPass(colorFormat vk.Format, samples vk.SampleCountFlagBits) vk.RenderPass
}

// RecoveryRecommendation is the timeout detector's advice for the next
// dispatch.
type RecoveryRecommendation struct {
	ShouldReduceWorkload     bool
	RecommendedMaxWorkgroups uint32
	ShouldSplitDispatches    bool
}

// TimeoutDetector observes wall-clock dispatch durations. It cannot cancel
// in-flight GPU work; it shapes the workload of subsequent dispatches and can
// mark the device unhealthy so the frame loop aborts early.
type TimeoutDetector interface {
	IsGPUHealthy() bool
	RecoveryRecommendation() RecoveryRecommendation
	BeginComputeDispatch(name string, workgroups uint32)
	EndComputeDispatch()
}

// SwapchainTarget is the read-only swapchain surface the graph consumes.
// Recreation happens through a separate collaborator; the graph never mutates
// the swapchain.
type SwapchainTarget interface {
	Handle() vk.Swapchain
	ImageCount() int
	Image(index int) vk.Image
	ImageView(index int) vk.ImageView
	ImageFormat() vk.Format
	Extent() vk.Extent2D
	Framebuffer(index int) vk.Framebuffer
}

// GraphicsResources supplies the shared triangle geometry and per-frame
// uniform staging for the graphics node.
type GraphicsResources interface {
	VertexBuffer() vk.Buffer
	IndexBuffer() vk.Buffer
	IndexCount() uint32
	// UniformBufferMapped returns the persistently mapped uniform memory for
	// the given frame-in-flight slot, or nil if unavailable.
	UniformBufferMapped(frameIndex uint32) []byte
}

// CameraSource provides view/projection matrices for the graphics node.
type CameraSource interface {
	ViewMatrix() mgl32.Mat4
	ProjectionMatrix() mgl32.Mat4
}

// MemoryMonitor reports GPU memory pressure. All hooks are best-effort; the
// graph never fails a frame on their account.
type MemoryMonitor interface {
	IsMemoryPressureCritical() bool
	PerformResourceCleanup()
	EvictNonCriticalResources()
}

// QueueProvider hands out the per-frame command buffers the graph records
// into, one compute and one graphics per frame-in-flight slot.
type QueueProvider interface {
	ComputeCommandBuffer(frameIndex uint32) vk.CommandBuffer
	GraphicsCommandBuffer(frameIndex uint32) vk.CommandBuffer
	ResetFrame(frameIndex uint32) error
}

// SyncProvider owns the per-frame-in-flight synchronization primitives used by
// the submission layer.
type SyncProvider interface {
	ImageAvailableSemaphore(frameIndex uint32) vk.Semaphore
	RenderFinishedSemaphore(frameIndex uint32) vk.Semaphore
	ComputeFinishedSemaphore(frameIndex uint32) vk.Semaphore
	InFlightFence(frameIndex uint32) vk.Fence
	ComputeFence(frameIndex uint32) vk.Fence
}
