package vkfg

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Handle fabrication for tests. Vulkan handles are opaque pointers here, so
// distinct static bytes give distinct valid-looking handles without a device.
var handleArena [1024]byte

func fakeHandle(i int) unsafe.Pointer {
	return unsafe.Pointer(&handleArena[i])
}

func fakeCommandBuffer(i int) vk.CommandBuffer {
	return vk.CommandBuffer(fakeHandle(i))
}

func fakePipeline(i int) vk.Pipeline {
	return vk.Pipeline(fakeHandle(i))
}

func fakePipelineLayout(i int) vk.PipelineLayout {
	return vk.PipelineLayout(fakeHandle(i))
}

func fakeDescriptorSetLayout(i int) vk.DescriptorSetLayout {
	return vk.DescriptorSetLayout(fakeHandle(i))
}

func fakeDescriptorSet(i int) vk.DescriptorSet {
	return vk.DescriptorSet(fakeHandle(i))
}

func fakeBuffer(i int) vk.Buffer {
	return vk.Buffer(fakeHandle(i))
}

// recordedOp is one call observed by the fake recorder.
type recordedOp struct {
	kind   string
	cmd    vk.CommandBuffer
	x      uint32
	data   []byte
	detail string
	clears []vk.ClearValue
}

// fakeRecorder captures every recorded command for assertions.
type fakeRecorder struct {
	ops       []recordedOp
	beginErrs map[vk.CommandBuffer]error
}

func (r *fakeRecorder) record(kind string, cmd vk.CommandBuffer) {
	r.ops = append(r.ops, recordedOp{kind: kind, cmd: cmd})
}

func (r *fakeRecorder) BeginCommandBuffer(cmd vk.CommandBuffer) error {
	if err := r.beginErrs[cmd]; err != nil {
		return err
	}
	r.record("begin", cmd)
	return nil
}

func (r *fakeRecorder) EndCommandBuffer(cmd vk.CommandBuffer) error {
	r.record("end", cmd)
	return nil
}

func (r *fakeRecorder) CmdBindComputePipeline(cmd vk.CommandBuffer, pipeline vk.Pipeline) {
	r.record("bindComputePipeline", cmd)
}

func (r *fakeRecorder) CmdBindGraphicsPipeline(cmd vk.CommandBuffer, pipeline vk.Pipeline) {
	r.record("bindGraphicsPipeline", cmd)
}

func (r *fakeRecorder) CmdBindDescriptorSets(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, sets []vk.DescriptorSet) {
	r.record("bindDescriptorSets", cmd)
}

func (r *fakeRecorder) CmdPushConstants(cmd vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, data []byte) {
	cp := append([]byte{}, data...)
	r.ops = append(r.ops, recordedOp{kind: "pushConstants", cmd: cmd, data: cp})
}

func (r *fakeRecorder) CmdDispatch(cmd vk.CommandBuffer, x, y, z uint32) {
	r.ops = append(r.ops, recordedOp{kind: "dispatch", cmd: cmd, x: x})
}

func (r *fakeRecorder) CmdMemoryBarrier(cmd vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	r.ops = append(r.ops, recordedOp{
		kind:   "barrier",
		cmd:    cmd,
		detail: fmt.Sprintf("src=%d dst=%d srcAccess=%d dstAccess=%d", srcStage, dstStage, srcAccess, dstAccess),
	})
}

func (r *fakeRecorder) CmdBeginRenderPass(cmd vk.CommandBuffer, info vk.RenderPassBeginInfo) {
	clears := append([]vk.ClearValue{}, info.PClearValues...)
	r.ops = append(r.ops, recordedOp{kind: "beginRenderPass", cmd: cmd, clears: clears})
}

func (r *fakeRecorder) CmdEndRenderPass(cmd vk.CommandBuffer) {
	r.record("endRenderPass", cmd)
}

func (r *fakeRecorder) CmdSetViewport(cmd vk.CommandBuffer, viewport vk.Viewport) {
	r.record("setViewport", cmd)
}

func (r *fakeRecorder) CmdSetScissor(cmd vk.CommandBuffer, scissor vk.Rect2D) {
	r.record("setScissor", cmd)
}

func (r *fakeRecorder) CmdBindVertexBuffers(cmd vk.CommandBuffer, buffers []vk.Buffer, offsets []vk.DeviceSize) {
	r.record("bindVertexBuffers", cmd)
}

func (r *fakeRecorder) CmdBindIndexBuffer(cmd vk.CommandBuffer, buffer vk.Buffer, offset vk.DeviceSize, indexType vk.IndexType) {
	r.record("bindIndexBuffer", cmd)
}

func (r *fakeRecorder) CmdDrawIndexed(cmd vk.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.ops = append(r.ops, recordedOp{kind: "drawIndexed", cmd: cmd, x: instanceCount})
}

func (r *fakeRecorder) count(kind string) int {
	n := 0
	for _, op := range r.ops {
		if op.kind == kind {
			n++
		}
	}
	return n
}

func (r *fakeRecorder) dispatchSizes() []uint32 {
	var sizes []uint32
	for _, op := range r.ops {
		if op.kind == "dispatch" {
			sizes = append(sizes, op.x)
		}
	}
	return sizes
}

// fakeQueues hands out stable fake command buffers.
type fakeQueues struct {
	resetCalls int
	resetErr   error
}

func (q *fakeQueues) ComputeCommandBuffer(frameIndex uint32) vk.CommandBuffer {
	return fakeCommandBuffer(int(frameIndex%MaxFramesInFlight) * 2)
}

func (q *fakeQueues) GraphicsCommandBuffer(frameIndex uint32) vk.CommandBuffer {
	return fakeCommandBuffer(int(frameIndex%MaxFramesInFlight)*2 + 1)
}

func (q *fakeQueues) ResetFrame(frameIndex uint32) error {
	q.resetCalls++
	return q.resetErr
}

// fakeEntities is a minimal EntityManager.
type fakeEntities struct {
	count uint32
}

func (e *fakeEntities) EntityCount() uint32 { return e.count }

func (e *fakeEntities) Buffers() EntityBuffers {
	var b EntityBuffers
	bufs := []*EntityBuffer{
		&b.Velocity, &b.MovementParams, &b.RuntimeState, &b.Color,
		&b.ModelMatrix, &b.SpatialMap, &b.SpatialNext, &b.ControlParams,
		&b.ParticleVelocity, &b.ParticleInvMass, &b.BodyData, &b.BodyParams,
		&b.DistanceConstraint, &b.Position, &b.CurrentPosition, &b.TargetPosition,
	}
	for i, pb := range bufs {
		*pb = EntityBuffer{Buffer: fakeBuffer(100 + i), Size: 1024}
	}
	return b
}

func (e *fakeEntities) ComputeDescriptorSet() vk.DescriptorSet { return fakeDescriptorSet(50) }

func (e *fakeEntities) GraphicsDescriptorSet(frameIndex uint32) vk.DescriptorSet {
	return fakeDescriptorSet(51 + int(frameIndex%MaxFramesInFlight))
}

// fakePipelines returns stable fake pipeline handles for every lookup.
type fakePipelines struct {
	failLayouts bool
}

func (p *fakePipelines) DescriptorLayout(name string) vk.DescriptorSetLayout {
	if p.failLayouts {
		return vk.NullDescriptorSetLayout
	}
	return fakeDescriptorSetLayout(60)
}

func (p *fakePipelines) ComputePipeline(spec ComputePipelineSpec) (vk.Pipeline, vk.PipelineLayout) {
	return fakePipeline(61), fakePipelineLayout(62)
}

func (p *fakePipelines) GraphicsPipeline(spec GraphicsPipelineSpec) (vk.Pipeline, vk.PipelineLayout) {
	return fakePipeline(63), fakePipelineLayout(64)
}

func (p *fakePipelines) RenderPass(colorFormat vk.Format, samples vk.SampleCountFlagBits) vk.RenderPass {
	return vk.RenderPass(fakeHandle(65))
}

// fakeDetector is a scriptable TimeoutDetector.
type fakeDetector struct {
	healthy        bool
	recommendation RecoveryRecommendation
	begins         []uint32
	ends           int

	// unhealthyAfter flips healthy to false once this many dispatches ended.
	unhealthyAfter int
}

func newFakeDetector() *fakeDetector {
	return &fakeDetector{healthy: true, unhealthyAfter: -1}
}

func (d *fakeDetector) IsGPUHealthy() bool { return d.healthy }

func (d *fakeDetector) RecoveryRecommendation() RecoveryRecommendation { return d.recommendation }

func (d *fakeDetector) BeginComputeDispatch(name string, workgroups uint32) {
	d.begins = append(d.begins, workgroups)
}

func (d *fakeDetector) EndComputeDispatch() {
	d.ends++
	if d.unhealthyAfter >= 0 && d.ends >= d.unhealthyAfter {
		d.healthy = false
	}
}

// recNode is a configurable test node that records its lifecycle.
type recNode struct {
	name     string
	inputs   []ResourceDependency
	outputs  []ResourceDependency
	compute  bool
	graphics bool

	initOK   bool
	initRuns int
	prepared []FrameContext
	executed int
	released int

	onExecute func(cmd vk.CommandBuffer, g *FrameGraph)
}

func newRecNode(name string) *recNode {
	return &recNode{name: name, compute: true, initOK: true}
}

func (n *recNode) Name() string                  { return n.name }
func (n *recNode) Inputs() []ResourceDependency  { return n.inputs }
func (n *recNode) Outputs() []ResourceDependency { return n.outputs }

func (n *recNode) InitializeNode(g *FrameGraph) bool {
	n.initRuns++
	return n.initOK
}

func (n *recNode) PrepareFrame(fc FrameContext) {
	n.prepared = append(n.prepared, fc)
}

func (n *recNode) Execute(cmd vk.CommandBuffer, g *FrameGraph) {
	n.executed++
	if n.onExecute != nil {
		n.onExecute(cmd, g)
	}
}

func (n *recNode) ReleaseFrame(frameIndex uint32) { n.released++ }

func (n *recNode) NeedsComputeQueue() bool  { return n.compute }
func (n *recNode) NeedsGraphicsQueue() bool { return n.graphics }

func (n *recNode) reads(id ResourceId) *recNode {
	n.inputs = append(n.inputs, ResourceDependency{Resource: id, Access: AccessRead, Stage: StageComputeShader})
	return n
}

func (n *recNode) writes(id ResourceId) *recNode {
	n.outputs = append(n.outputs, ResourceDependency{Resource: id, Access: AccessWrite, Stage: StageComputeShader})
	return n
}

func (n *recNode) readsWrites(id ResourceId) *recNode {
	n.inputs = append(n.inputs, ResourceDependency{Resource: id, Access: AccessReadWrite, Stage: StageComputeShader})
	return n
}

// newTestGraph builds a graph on fakes and returns the pieces.
func newTestGraph() (*FrameGraph, *fakeRecorder, *fakeQueues) {
	rec := &fakeRecorder{}
	queues := &fakeQueues{}
	g, err := NewFrameGraph(nil, rec, queues, nil)
	if err != nil {
		panic(err)
	}
	return g, rec, queues
}
