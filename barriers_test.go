package vkfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func compileNodes(t *testing.T, g *FrameGraph) barrierSet {
	t.Helper()
	_, err := g.Compile()
	require.NoError(t, err)
	return g.barriers
}

func TestPlanBarriersReadAfterWrite(t *testing.T) {
	g, _, _ := newTestGraph()
	a := g.CreateBuffer("a", 64, 0)

	writer := newRecNode("writer").writes(a)
	reader := newRecNode("reader").reads(a)
	g.AddNode(writer)
	readerId := g.AddNode(reader)

	set := compileNodes(t, g)
	barriers := set.byConsumer[readerId]
	require.Len(t, barriers, 1)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), barriers[0].srcStage)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), barriers[0].dstStage)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderWriteBit), barriers[0].srcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), barriers[0].dstAccess)
}

func TestPlanBarriersNoHazardNoBarrier(t *testing.T) {
	g, _, _ := newTestGraph()
	a := g.CreateBuffer("a", 64, 0)
	b := g.CreateBuffer("b", 64, 0)

	first := newRecNode("first").writes(a)
	second := newRecNode("second").writes(b)
	firstId := g.AddNode(first)
	secondId := g.AddNode(second)

	set := compileNodes(t, g)
	assert.Empty(t, set.byConsumer[firstId])
	assert.Empty(t, set.byConsumer[secondId])
}

func TestPlanBarriersCoalescesIdenticalBarriers(t *testing.T) {
	g, _, _ := newTestGraph()
	a := g.CreateBuffer("a", 64, 0)
	b := g.CreateBuffer("b", 64, 0)

	// One producer writes both buffers; the consumer reads both at the same
	// stage, so a single barrier covers both hazards.
	producer := newRecNode("producer").writes(a)
	producer.writes(b)
	consumer := newRecNode("consumer").reads(a)
	consumer.reads(b)
	g.AddNode(producer)
	consumerId := g.AddNode(consumer)

	set := compileNodes(t, g)
	assert.Len(t, set.byConsumer[consumerId], 1)
}

func TestPlanBarriersComputeToVertexStage(t *testing.T) {
	g, _, _ := newTestGraph()
	pos := g.CreateBuffer("position", 64, 0)

	producer := newRecNode("producer").writes(pos)
	consumer := newRecNode("consumer")
	consumer.compute = false
	consumer.graphics = true
	consumer.inputs = []ResourceDependency{{Resource: pos, Access: AccessRead, Stage: StageVertexShader}}

	g.AddNode(producer)
	consumerId := g.AddNode(consumer)

	set := compileNodes(t, g)
	barriers := set.byConsumer[consumerId]
	require.Len(t, barriers, 1)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), barriers[0].srcStage)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit), barriers[0].dstStage)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), barriers[0].dstAccess)
}

func TestEmitComputeBarrierDestinations(t *testing.T) {
	rec := &fakeRecorder{}
	cmd := fakeCommandBuffer(0)

	emitComputeBarrier(rec, cmd, destComputeShader)
	emitComputeBarrier(rec, cmd, destVertexShader)
	emitComputeBarrier(rec, cmd, destVertexInput)

	require.Equal(t, 3, rec.count("barrier"))
}
