package vkfg

import (
	"log"

	vk "github.com/vulkan-go/vulkan"
)

// FrameGraphNode is one unit of GPU work. Implementations declare the buffers
// and images they touch via Inputs/Outputs; the graph compiler turns those
// declarations into an execution order and barrier batches, so omitting a
// buffer from the lists is a correctness bug, not a performance one.
//
// Lifecycle: InitializeNode is called once during Compile. Per frame the graph
// calls PrepareFrame, Execute and ReleaseFrame in that order. Inputs/Outputs
// must be stable for a given resource id for the lifetime of one compiled
// execution order.
type FrameGraphNode interface {
	Name() string

	Inputs() []ResourceDependency
	Outputs() []ResourceDependency

	// InitializeNode performs one-time setup (pipeline and layout resolution).
	// Returning false fails compilation.
	InitializeNode(g *FrameGraph) bool

	// PrepareFrame receives per-frame timing. It must not record commands.
	PrepareFrame(fc FrameContext)

	// Execute records the node's work into cmd.
	Execute(cmd vk.CommandBuffer, g *FrameGraph)

	// ReleaseFrame performs per-frame cleanup.
	ReleaseFrame(frameIndex uint32)

	NeedsComputeQueue() bool
	NeedsGraphicsQueue() bool
}

// logEvery increments counter and emits the message on the first call and
// every nth call after that. Nodes own their counters explicitly; there is no
// hidden global state behind throttled logging.
func logEvery(counter *uint32, n uint32, format string, args ...interface{}) {
	*counter++
	if n == 0 || *counter%n == 1 || n == 1 {
		log.Printf(format, args...)
	}
}
