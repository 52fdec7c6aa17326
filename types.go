package vkfg

// ResourceId identifies a buffer or image tracked by the frame graph. Ids are
// opaque and only valid for the frame graph instance that issued them.
type ResourceId uint32

// NodeId identifies a registered frame graph node.
type NodeId uint32

const (
	InvalidResource ResourceId = 0
	InvalidNode     NodeId     = 0
)

// ResourceAccess describes how a node touches a resource, used for dependency
// tracking and barrier construction.
type ResourceAccess int

const (
	AccessRead ResourceAccess = iota
	AccessWrite
	AccessReadWrite
)

func (a ResourceAccess) String() string {
	switch a {
	case AccessRead:
		return "Read"
	case AccessWrite:
		return "Write"
	case AccessReadWrite:
		return "ReadWrite"
	}
	return "Unknown"
}

// PipelineStage is the pipeline stage at which a declared dependency is
// consumed or produced.
type PipelineStage int

const (
	StageComputeShader PipelineStage = iota
	StageVertexShader
	StageFragmentShader
	StageColorAttachment
	StageDepthAttachment
	StageTransfer
)

func (s PipelineStage) String() string {
	switch s {
	case StageComputeShader:
		return "ComputeShader"
	case StageVertexShader:
		return "VertexShader"
	case StageFragmentShader:
		return "FragmentShader"
	case StageColorAttachment:
		return "ColorAttachment"
	case StageDepthAttachment:
		return "DepthAttachment"
	case StageTransfer:
		return "Transfer"
	}
	return "Unknown"
}

// ResourceDependency declares one resource a node reads or writes.
type ResourceDependency struct {
	Resource ResourceId
	Access   ResourceAccess
	Stage    PipelineStage
}

// FrameContext carries per-frame timing into node lifecycle calls. GlobalFrame
// increases monotonically across the run and never cycles with the
// frame-in-flight index.
type FrameContext struct {
	FrameIndex  uint32
	Time        float32
	DeltaTime   float32
	GlobalFrame uint32
}

const (
	// MaxFramesInFlight is the number of frame slots that may be recorded or
	// executing concurrently.
	MaxFramesInFlight = 2

	// ThreadsPerWorkgroup matches the local_size_x of every compute shader in
	// the simulation. Total work = workgroups * ThreadsPerWorkgroup.
	ThreadsPerWorkgroup = 256

	// MaxWorkgroupsPerChunk is the default ceiling on a single dispatch before
	// the nodes fall back to chunked dispatch.
	MaxWorkgroupsPerChunk = 2048

	// MaxDispatchWorkgroups is the Vulkan per-dimension dispatch limit. A
	// dispatch that would exceed it is refused, never clamped.
	MaxDispatchWorkgroups = 65535

	// UnhealthyWorkgroupCeiling is the conservative per-dispatch ceiling
	// applied while the timeout detector reports the GPU unhealthy.
	UnhealthyWorkgroupCeiling = 512

	// MaxEntities is the upper bound enforced by the entity manager.
	MaxEntities = 131072

	// SpatialGridCells is the fixed cell count of the collision spatial hash.
	// The clear pass always covers exactly this many cells, independent of
	// entity count.
	SpatialGridCells = 4096

	// SolverIterations is the PBD constraint projection iteration count.
	SolverIterations = 8

	ParticlesPerBody   = 3
	ConstraintsPerBody = 3
	TrianglesPerBody   = 1
)
