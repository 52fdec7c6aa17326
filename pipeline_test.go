package vkfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

// buildFullPipeline registers the four production nodes against fakes, the
// same order the render frame director uses.
func buildFullPipeline(t *testing.T, bodies uint32) (*FrameGraph, *fakeRecorder, *fakeQueues) {
	t.Helper()
	g, rec, queues := newTestGraph()

	entities := &fakeEntities{count: bodies}
	pipelines := &fakePipelines{}
	reg, err := NewResourceRegistry(entities)
	require.NoError(t, err)
	require.NoError(t, reg.ImportEntityResources(g))

	movement, err := NewEntityComputeNode(pipelines, entities, reg.MovementData())
	require.NoError(t, err)
	physics, err := NewPhysicsComputeNode(pipelines, entities, reg.PhysicsData())
	require.NoError(t, err)
	graphics, err := NewEntityGraphicsNode(pipelines, entities, newFakeGraphicsResources(), &fakeCamera{},
		&fakeSwapchainTarget{extent: vk.Extent2D{Width: 640, Height: 480}, format: vk.FormatB8g8r8a8Unorm},
		reg.GraphicsData())
	require.NoError(t, err)
	present := NewSwapchainPresentNode()

	g.AddNode(movement)
	g.AddNode(physics)
	g.AddNode(graphics)
	g.AddNode(present)
	return g, rec, queues
}

func TestFullPipelineCompilesInSimulationOrder(t *testing.T) {
	g, _, _ := buildFullPipeline(t, 16)

	report, err := g.Compile()
	require.NoError(t, err)
	assert.Empty(t, report.Cycles)
	assert.Empty(t, report.Dropped)

	order := g.ExecutionOrder()
	require.Len(t, order, 4)
	var names []string
	for _, id := range order {
		names = append(names, g.Node(id).Name())
	}
	assert.Equal(t, []string{"EntityCompute", "PhysicsCompute", "EntityGraphics", "SwapchainPresent"}, names)
}

func TestFullPipelineRecordsOneFrame(t *testing.T) {
	const bodies = 16
	g, rec, queues := buildFullPipeline(t, bodies)

	_, err := g.Compile()
	require.NoError(t, err)

	result, err := g.Execute(0, 1.0, 0.016, 0)
	require.NoError(t, err)
	assert.True(t, result.ComputeUsed)
	assert.True(t, result.GraphicsUsed)
	assert.Equal(t, 1, queues.resetCalls)

	// Both command buffers open and close once.
	assert.Equal(t, 2, rec.count("begin"))
	assert.Equal(t, 2, rec.count("end"))

	// Movement plus the full physics pass sequence, all single dispatches at
	// this entity count.
	const wantDispatches = 1 + 3 + 3*SolverIterations + 1
	assert.Equal(t, wantDispatches, rec.count("dispatch"))

	assert.Equal(t, 1, rec.count("beginRenderPass"))
	assert.Equal(t, 1, rec.count("endRenderPass"))
	assert.Equal(t, 1, rec.count("drawIndexed"))

	// Compute work stays on the compute buffer, the render pass on graphics.
	// Handle identity, not pointee equality.
	computeCmd := queues.ComputeCommandBuffer(0)
	graphicsCmd := queues.GraphicsCommandBuffer(0)
	for _, op := range rec.ops {
		switch op.kind {
		case "dispatch":
			assert.Same(t, computeCmd, op.cmd)
		case "beginRenderPass", "drawIndexed", "endRenderPass":
			assert.Same(t, graphicsCmd, op.cmd)
		}
	}
}

func TestFullPipelineSecondFrameUsesOtherSlot(t *testing.T) {
	g, rec, queues := buildFullPipeline(t, 4)

	_, err := g.Compile()
	require.NoError(t, err)

	_, err = g.Execute(0, 0, 0.016, 0)
	require.NoError(t, err)
	_, err = g.Execute(1, 0.016, 0.016, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, queues.resetCalls)

	seen := map[vk.CommandBuffer]bool{}
	for _, op := range rec.ops {
		if op.kind == "begin" {
			seen[op.cmd] = true
		}
	}
	// Two frame slots, a compute and a graphics buffer each.
	assert.Len(t, seen, 4)
}
