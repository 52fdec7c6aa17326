package vkfg

import (
	"errors"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// vertexPushConstants is the 16-byte push constant block of the entity vertex
// shader.
type vertexPushConstants struct {
	time      float32
	deltaTime float32
	count     uint32
	_         uint32
}

// cameraUniform is the per-frame uniform block layout, written through the
// persistently mapped uniform buffer.
type cameraUniform struct {
	view mgl32.Mat4
	proj mgl32.Mat4
}

// EntityGraphicsNodeData names the per-instance buffers the draw consumes.
type EntityGraphicsNodeData struct {
	Position ResourceId
	Color    ResourceId
}

// EntityGraphicsNode draws every entity with one instanced indexed draw. The
// instance position stream is the physics finalize output, so the node always
// runs after the compute nodes in the compiled order.
type EntityGraphicsNode struct {
	pipelines PipelineManager
	entities  EntityManager
	resources GraphicsResources
	camera    CameraSource
	swapchain SwapchainTarget
	data      EntityGraphicsNodeData

	pipeline      vk.Pipeline
	layout        vk.PipelineLayout
	renderPass    vk.RenderPass
	pipelineDirty bool
	cachedFormat  vk.Format

	samples vk.SampleCountFlagBits

	imageIndex   int
	swapchainImg ResourceId

	lastUniform  [MaxFramesInFlight]cameraUniform
	uniformKnown [MaxFramesInFlight]bool

	ctx        FrameContext
	emptyCount uint32
}

func NewEntityGraphicsNode(pipelines PipelineManager, entities EntityManager, resources GraphicsResources, camera CameraSource, swapchain SwapchainTarget, data EntityGraphicsNodeData) (*EntityGraphicsNode, error) {
	if pipelines == nil || entities == nil || resources == nil || camera == nil || swapchain == nil {
		return nil, errors.New("entity graphics node requires all collaborators")
	}
	return &EntityGraphicsNode{
		pipelines:     pipelines,
		entities:      entities,
		resources:     resources,
		camera:        camera,
		swapchain:     swapchain,
		data:          data,
		pipelineDirty: true,
		samples:       vk.SampleCountFlagBits(vk.SampleCount4Bit),
	}, nil
}

func (n *EntityGraphicsNode) Name() string { return "EntityGraphics" }

func (n *EntityGraphicsNode) Inputs() []ResourceDependency {
	return []ResourceDependency{
		{Resource: n.data.Position, Access: AccessRead, Stage: StageVertexShader},
		{Resource: n.data.Color, Access: AccessRead, Stage: StageVertexShader},
	}
}

func (n *EntityGraphicsNode) Outputs() []ResourceDependency {
	return []ResourceDependency{
		{Resource: n.swapchainImg, Access: AccessWrite, Stage: StageColorAttachment},
	}
}

// SetSampleCount selects the MSAA sample count used for the render pass and
// pipeline. Must be called before the node initializes.
func (n *EntityGraphicsNode) SetSampleCount(samples vk.SampleCountFlagBits) {
	if samples != n.samples {
		n.samples = samples
		n.pipelineDirty = true
	}
}

// SetImageIndex selects the acquired swapchain image for this frame.
func (n *EntityGraphicsNode) SetImageIndex(index int) { n.imageIndex = index }

// SetCurrentSwapchainImageId binds the graph resource id of the acquired
// swapchain image, so the dependency declarations track the live image.
func (n *EntityGraphicsNode) SetCurrentSwapchainImageId(id ResourceId) { n.swapchainImg = id }

func (n *EntityGraphicsNode) ensurePipeline() bool {
	format := n.swapchain.ImageFormat()
	if format != n.cachedFormat {
		n.pipelineDirty = true
		n.cachedFormat = format
	}
	if !n.pipelineDirty {
		return n.pipeline != vk.NullPipeline
	}
	n.renderPass = n.pipelines.RenderPass(format, n.samples)
	if n.renderPass == vk.NullRenderPass {
		return false
	}
	layout := n.pipelines.DescriptorLayout(LayoutEntityGraphics)
	if layout == vk.NullDescriptorSetLayout {
		return false
	}
	n.pipeline, n.layout = n.pipelines.GraphicsPipeline(GraphicsPipelineSpec{
		Shader:           "entity",
		RenderPass:       n.renderPass,
		DescriptorLayout: layout,
		PushConstantSize: uint32(unsafe.Sizeof(vertexPushConstants{})),
		Samples:          n.samples,
	})
	if n.pipeline == vk.NullPipeline || n.layout == vk.NullPipelineLayout {
		return false
	}
	n.pipelineDirty = false
	return true
}

func (n *EntityGraphicsNode) InitializeNode(g *FrameGraph) bool {
	return n.ensurePipeline()
}

func (n *EntityGraphicsNode) PrepareFrame(fc FrameContext) {
	n.ctx = fc
	n.updateUniforms(fc.FrameIndex)
}

// updateUniforms writes the camera matrices into the frame's mapped uniform
// buffer, skipping the copy when nothing changed since the slot's last write.
func (n *EntityGraphicsNode) updateUniforms(frameIndex uint32) {
	mapped := n.resources.UniformBufferMapped(frameIndex)
	if mapped == nil {
		return
	}
	u := cameraUniform{view: n.camera.ViewMatrix(), proj: n.camera.ProjectionMatrix()}
	slot := frameIndex % MaxFramesInFlight
	if n.uniformKnown[slot] && u == n.lastUniform[slot] {
		return
	}
	src := toBytes(unsafe.Pointer(&u), int(unsafe.Sizeof(u)))
	copy(mapped, src)
	n.lastUniform[slot] = u
	n.uniformKnown[slot] = true
}

func (n *EntityGraphicsNode) Execute(cmd vk.CommandBuffer, g *FrameGraph) {
	if !n.ensurePipeline() {
		return
	}
	rec := g.Recorder()
	extent := n.swapchain.Extent()

	// Multisampled target and resolve target clear to the same color.
	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor([]float32{0.1, 0.1, 0.2, 1.0})
	clearValues[1].SetColor([]float32{0.1, 0.1, 0.2, 1.0})

	rec.CmdBeginRenderPass(cmd, vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  n.renderPass,
		Framebuffer: n.swapchain.Framebuffer(n.imageIndex),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	})

	count := n.entities.EntityCount()
	if count == 0 {
		logEvery(&n.emptyCount, 300, "EntityGraphics: no entities, clearing only")
		rec.CmdEndRenderPass(cmd)
		return
	}

	rec.CmdBindGraphicsPipeline(cmd, n.pipeline)
	rec.CmdSetViewport(cmd, vk.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MaxDepth: 1.0,
	})
	rec.CmdSetScissor(cmd, vk.Rect2D{Extent: extent})

	rec.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, n.layout,
		[]vk.DescriptorSet{n.entities.GraphicsDescriptorSet(n.ctx.FrameIndex)})

	pc := vertexPushConstants{
		time:      n.ctx.Time,
		deltaTime: n.ctx.DeltaTime,
		count:     count,
	}
	rec.CmdPushConstants(cmd, n.layout, vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		toBytes(unsafe.Pointer(&pc), int(unsafe.Sizeof(pc))))

	rec.CmdBindVertexBuffers(cmd,
		[]vk.Buffer{
			n.resources.VertexBuffer(),
			g.BufferHandle(n.data.Position),
			g.BufferHandle(n.data.Color),
		},
		[]vk.DeviceSize{0, 0, 0})
	rec.CmdBindIndexBuffer(cmd, n.resources.IndexBuffer(), 0, vk.IndexTypeUint32)
	rec.CmdDrawIndexed(cmd, n.resources.IndexCount(), count*TrianglesPerBody, 0, 0, 0)

	rec.CmdEndRenderPass(cmd)
}

func (n *EntityGraphicsNode) ReleaseFrame(frameIndex uint32) {}

func (n *EntityGraphicsNode) NeedsComputeQueue() bool  { return false }
func (n *EntityGraphicsNode) NeedsGraphicsQueue() bool { return true }
