package vkfg

import (
	"errors"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// physicsPushConstants is the 32-byte push constant block shared by every
// physics pass. The mode field selects the pass inside the single shader.
type physicsPushConstants struct {
	time            float32
	deltaTime       float32
	bodyCount       uint32
	particleCount   uint32
	constraintCount uint32
	frame           uint32
	elementOffset   uint32
	mode            uint32
}

// Physics pass selectors, one shader entry point switched by push constant.
const (
	physicsModeIntegrate     = 0
	physicsModeClearSpatial  = 1
	physicsModeBuildSpatial  = 2
	physicsModeSolveDistance = 3
	physicsModeSolveArea     = 4
	physicsModeCollide       = 5
	physicsModeFinalize      = 6
)

// PhysicsComputeNodeData names the graph resources the solver touches.
type PhysicsComputeNodeData struct {
	Position           ResourceId
	CurrentPosition    ResourceId
	TargetPosition     ResourceId
	ParticleVelocity   ResourceId
	ParticleInvMass    ResourceId
	BodyData           ResourceId
	BodyParams         ResourceId
	DistanceConstraint ResourceId
	SpatialMap         ResourceId
	SpatialNext        ResourceId
	Velocity           ResourceId
	ControlParams      ResourceId
	RuntimeState       ResourceId
}

// PhysicsComputeNode runs the position-based soft-body solver: integration,
// spatial hash rebuild, iterated constraint projection with collision, then
// finalization that publishes render positions for the vertex input stage.
type PhysicsComputeNode struct {
	pipelines PipelineManager
	entities  EntityManager
	data      PhysicsComputeNodeData

	pipeline      vk.Pipeline
	layout        vk.PipelineLayout
	pipelineDirty bool

	maxWorkgroups uint32
	forceChunking bool

	ctx        FrameContext
	emptyCount uint32
}

func NewPhysicsComputeNode(pipelines PipelineManager, entities EntityManager, data PhysicsComputeNodeData) (*PhysicsComputeNode, error) {
	if pipelines == nil {
		return nil, errors.New("physics compute node requires a pipeline manager")
	}
	if entities == nil {
		return nil, errors.New("physics compute node requires an entity manager")
	}
	return &PhysicsComputeNode{
		pipelines:     pipelines,
		entities:      entities,
		data:          data,
		pipelineDirty: true,
		maxWorkgroups: MaxWorkgroupsPerChunk,
	}, nil
}

func (n *PhysicsComputeNode) Name() string { return "PhysicsCompute" }

func (n *PhysicsComputeNode) Inputs() []ResourceDependency {
	deps := []ResourceDependency{
		{Resource: n.data.Velocity, Access: AccessRead, Stage: StageComputeShader},
		{Resource: n.data.ControlParams, Access: AccessRead, Stage: StageComputeShader},
		{Resource: n.data.BodyParams, Access: AccessRead, Stage: StageComputeShader},
		{Resource: n.data.ParticleInvMass, Access: AccessRead, Stage: StageComputeShader},
		{Resource: n.data.DistanceConstraint, Access: AccessRead, Stage: StageComputeShader},
		{Resource: n.data.RuntimeState, Access: AccessRead, Stage: StageComputeShader},
	}
	for _, rw := range []ResourceId{n.data.CurrentPosition, n.data.TargetPosition, n.data.ParticleVelocity, n.data.BodyData, n.data.SpatialMap, n.data.SpatialNext} {
		deps = append(deps, ResourceDependency{Resource: rw, Access: AccessReadWrite, Stage: StageComputeShader})
	}
	return deps
}

func (n *PhysicsComputeNode) Outputs() []ResourceDependency {
	return []ResourceDependency{
		{Resource: n.data.Position, Access: AccessWrite, Stage: StageComputeShader},
		{Resource: n.data.Velocity, Access: AccessWrite, Stage: StageComputeShader},
	}
}

func (n *PhysicsComputeNode) SetForceChunking(force bool) { n.forceChunking = force }

func (n *PhysicsComputeNode) SetMaxWorkgroupsPerChunk(max uint32) {
	if max == 0 {
		max = MaxWorkgroupsPerChunk
	}
	n.maxWorkgroups = max
}

func (n *PhysicsComputeNode) ensurePipeline() bool {
	if !n.pipelineDirty {
		return n.pipeline != vk.NullPipeline
	}
	layout := n.pipelines.DescriptorLayout(LayoutEntityCompute)
	if layout == vk.NullDescriptorSetLayout {
		return false
	}
	n.pipeline, n.layout = n.pipelines.ComputePipeline(ComputePipelineSpec{
		Shader:           "soft_body_physics",
		DescriptorLayout: layout,
		PushConstantSize: uint32(unsafe.Sizeof(physicsPushConstants{})),
	})
	if n.pipeline == vk.NullPipeline || n.layout == vk.NullPipelineLayout {
		return false
	}
	n.pipelineDirty = false
	return true
}

func (n *PhysicsComputeNode) InitializeNode(g *FrameGraph) bool {
	return n.ensurePipeline()
}

func (n *PhysicsComputeNode) PrepareFrame(fc FrameContext) { n.ctx = fc }

func (n *PhysicsComputeNode) Execute(cmd vk.CommandBuffer, g *FrameGraph) {
	bodyCount := n.entities.EntityCount()
	if bodyCount == 0 {
		logEvery(&n.emptyCount, 300, "PhysicsCompute: no bodies, skipping dispatch")
		return
	}
	if !n.ensurePipeline() {
		return
	}

	particleCount := bodyCount * ParticlesPerBody
	constraintCount := bodyCount * ConstraintsPerBody
	ceiling := effectiveWorkgroupCeiling(n.maxWorkgroups, g.Timeout())

	pc := physicsPushConstants{
		time:            n.ctx.Time,
		deltaTime:       n.ctx.DeltaTime,
		bodyCount:       bodyCount,
		particleCount:   particleCount,
		constraintCount: constraintCount,
		frame:           n.ctx.GlobalFrame,
	}

	d := computeDispatch{
		pipeline: n.pipeline,
		layout:   n.layout,
		set:      n.entities.ComputeDescriptorSet(),
	}

	dispatchPass := func(name string, mode, elementCount uint32, dest barrierDest) {
		plan := planDispatch(elementCount, ceiling, n.forceChunking)
		dispatched := runDispatch(g.Recorder(), cmd, d, plan, name, g.Timeout(), func(offset uint32) []byte {
			pc.mode = mode
			pc.elementOffset = offset
			return toBytes(unsafe.Pointer(&pc), int(unsafe.Sizeof(pc)))
		})
		if dispatched {
			emitComputeBarrier(g.Recorder(), cmd, dest)
		}
	}

	dispatchPass("physics-integrate", physicsModeIntegrate, particleCount, destComputeShader)
	dispatchPass("physics-clear-spatial", physicsModeClearSpatial, SpatialGridCells, destComputeShader)
	dispatchPass("physics-build-spatial", physicsModeBuildSpatial, particleCount, destComputeShader)

	for iter := 0; iter < SolverIterations; iter++ {
		dispatchPass("physics-solve-distance", physicsModeSolveDistance, constraintCount, destComputeShader)
		dispatchPass("physics-solve-area", physicsModeSolveArea, bodyCount, destComputeShader)
		dispatchPass("physics-collide", physicsModeCollide, particleCount, destComputeShader)
	}

	// Finalize publishes render positions consumed as vertex attributes.
	dispatchPass("physics-finalize", physicsModeFinalize, particleCount, destVertexInput)
}

func (n *PhysicsComputeNode) ReleaseFrame(frameIndex uint32) {}

func (n *PhysicsComputeNode) NeedsComputeQueue() bool  { return true }
func (n *PhysicsComputeNode) NeedsGraphicsQueue() bool { return false }
