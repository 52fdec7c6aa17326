package vkfg

import (
	"errors"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// movementPushConstants is the 32-byte push constant block of the movement
// shader. Layout matches the GLSL std430 block field for field; the trailing
// padding keeps the block 16-byte aligned.
type movementPushConstants struct {
	time        float32
	deltaTime   float32
	entityCount uint32
	frame       uint32

	entityOffset uint32
	_            [3]uint32
}

// EntityComputeNodeData names the graph resources the movement pass touches.
type EntityComputeNodeData struct {
	Velocity       ResourceId
	MovementParams ResourceId
	RuntimeState   ResourceId
}

// EntityComputeNode advances per-entity movement state on the compute queue.
// It reads movement parameters and integrates velocity and runtime state in
// place, one thread per entity.
type EntityComputeNode struct {
	pipelines PipelineManager
	entities  EntityManager
	data      EntityComputeNodeData

	pipeline      vk.Pipeline
	layout        vk.PipelineLayout
	pipelineDirty bool

	maxWorkgroups uint32
	forceChunking bool

	ctx        FrameContext
	emptyCount uint32
}

func NewEntityComputeNode(pipelines PipelineManager, entities EntityManager, data EntityComputeNodeData) (*EntityComputeNode, error) {
	if pipelines == nil {
		return nil, errors.New("entity compute node requires a pipeline manager")
	}
	if entities == nil {
		return nil, errors.New("entity compute node requires an entity manager")
	}
	return &EntityComputeNode{
		pipelines:     pipelines,
		entities:      entities,
		data:          data,
		pipelineDirty: true,
		maxWorkgroups: MaxWorkgroupsPerChunk,
	}, nil
}

func (n *EntityComputeNode) Name() string { return "EntityCompute" }

func (n *EntityComputeNode) Inputs() []ResourceDependency {
	return []ResourceDependency{
		{Resource: n.data.Velocity, Access: AccessRead, Stage: StageComputeShader},
		{Resource: n.data.MovementParams, Access: AccessRead, Stage: StageComputeShader},
		{Resource: n.data.RuntimeState, Access: AccessRead, Stage: StageComputeShader},
	}
}

func (n *EntityComputeNode) Outputs() []ResourceDependency {
	return []ResourceDependency{
		{Resource: n.data.Velocity, Access: AccessWrite, Stage: StageComputeShader},
		{Resource: n.data.RuntimeState, Access: AccessWrite, Stage: StageComputeShader},
	}
}

// SetForceChunking switches the node to chunked dispatch even when the whole
// workload fits one dispatch.
func (n *EntityComputeNode) SetForceChunking(force bool) { n.forceChunking = force }

// SetMaxWorkgroupsPerChunk overrides the chunk ceiling. Zero restores the
// default.
func (n *EntityComputeNode) SetMaxWorkgroupsPerChunk(max uint32) {
	if max == 0 {
		max = MaxWorkgroupsPerChunk
	}
	n.maxWorkgroups = max
}

func (n *EntityComputeNode) ensurePipeline() bool {
	if !n.pipelineDirty {
		return n.pipeline != vk.NullPipeline
	}
	layout := n.pipelines.DescriptorLayout(LayoutEntityCompute)
	if layout == vk.NullDescriptorSetLayout {
		return false
	}
	n.pipeline, n.layout = n.pipelines.ComputePipeline(ComputePipelineSpec{
		Shader:           "entity_movement",
		DescriptorLayout: layout,
		PushConstantSize: uint32(unsafe.Sizeof(movementPushConstants{})),
	})
	if n.pipeline == vk.NullPipeline || n.layout == vk.NullPipelineLayout {
		return false
	}
	n.pipelineDirty = false
	return true
}

func (n *EntityComputeNode) InitializeNode(g *FrameGraph) bool {
	return n.ensurePipeline()
}

func (n *EntityComputeNode) PrepareFrame(fc FrameContext) { n.ctx = fc }

func (n *EntityComputeNode) Execute(cmd vk.CommandBuffer, g *FrameGraph) {
	count := n.entities.EntityCount()
	if count == 0 {
		logEvery(&n.emptyCount, 300, "EntityCompute: no entities, skipping dispatch")
		return
	}
	if !n.ensurePipeline() {
		return
	}

	ceiling := effectiveWorkgroupCeiling(n.maxWorkgroups, g.Timeout())
	plan := planDispatch(count, ceiling, n.forceChunking)

	pc := movementPushConstants{
		time:        n.ctx.Time,
		deltaTime:   n.ctx.DeltaTime,
		entityCount: count,
		frame:       n.ctx.GlobalFrame,
	}
	dispatched := runDispatch(g.Recorder(), cmd, computeDispatch{
		pipeline: n.pipeline,
		layout:   n.layout,
		set:      n.entities.ComputeDescriptorSet(),
	}, plan, "entity-movement", g.Timeout(), func(offset uint32) []byte {
		pc.entityOffset = offset
		return toBytes(unsafe.Pointer(&pc), int(unsafe.Sizeof(pc)))
	})
	if dispatched {
		// Movement results feed the vertex shader of the graphics pass.
		emitComputeBarrier(g.Recorder(), cmd, destVertexShader)
	}
}

func (n *EntityComputeNode) ReleaseFrame(frameIndex uint32) {}

func (n *EntityComputeNode) NeedsComputeQueue() bool  { return true }
func (n *EntityComputeNode) NeedsGraphicsQueue() bool { return false }
