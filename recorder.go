package vkfg

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// CommandRecorder is the dispatch table the graph and its nodes record through.
// Everything that ends up in a command buffer goes through this interface, so
// scheduling and dispatch behavior can be exercised without a device.
type CommandRecorder interface {
	BeginCommandBuffer(cmd vk.CommandBuffer) error
	EndCommandBuffer(cmd vk.CommandBuffer) error

	CmdBindComputePipeline(cmd vk.CommandBuffer, pipeline vk.Pipeline)
	CmdBindGraphicsPipeline(cmd vk.CommandBuffer, pipeline vk.Pipeline)
	CmdBindDescriptorSets(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, sets []vk.DescriptorSet)
	CmdPushConstants(cmd vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, data []byte)
	CmdDispatch(cmd vk.CommandBuffer, x, y, z uint32)
	CmdMemoryBarrier(cmd vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags)

	CmdBeginRenderPass(cmd vk.CommandBuffer, info vk.RenderPassBeginInfo)
	CmdEndRenderPass(cmd vk.CommandBuffer)
	CmdSetViewport(cmd vk.CommandBuffer, viewport vk.Viewport)
	CmdSetScissor(cmd vk.CommandBuffer, scissor vk.Rect2D)
	CmdBindVertexBuffers(cmd vk.CommandBuffer, buffers []vk.Buffer, offsets []vk.DeviceSize)
	CmdBindIndexBuffer(cmd vk.CommandBuffer, buffer vk.Buffer, offset vk.DeviceSize, indexType vk.IndexType)
	CmdDrawIndexed(cmd vk.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

// VulkanRecorder is the live CommandRecorder backed by the native vulkan API.
type VulkanRecorder struct{}

func NewVulkanRecorder() *VulkanRecorder {
	return &VulkanRecorder{}
}

func (r *VulkanRecorder) BeginCommandBuffer(cmd vk.CommandBuffer) error {
	var beginInfo = vk.CommandBufferBeginInfo{}
	beginInfo.SType = vk.StructureTypeCommandBufferBeginInfo
	return vk.Error(vk.BeginCommandBuffer(cmd, &beginInfo))
}

func (r *VulkanRecorder) EndCommandBuffer(cmd vk.CommandBuffer) error {
	return vk.Error(vk.EndCommandBuffer(cmd))
}

func (r *VulkanRecorder) CmdBindComputePipeline(cmd vk.CommandBuffer, pipeline vk.Pipeline) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointCompute, pipeline)
}

func (r *VulkanRecorder) CmdBindGraphicsPipeline(cmd vk.CommandBuffer, pipeline vk.Pipeline) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, pipeline)
}

func (r *VulkanRecorder) CmdBindDescriptorSets(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, sets []vk.DescriptorSet) {
	vk.CmdBindDescriptorSets(cmd, bindPoint, layout, 0, uint32(len(sets)), sets, 0, nil)
}

func (r *VulkanRecorder) CmdPushConstants(cmd vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, data []byte) {
	vk.CmdPushConstants(cmd, layout, stages, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (r *VulkanRecorder) CmdDispatch(cmd vk.CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(cmd, x, y, z)
}

func (r *VulkanRecorder) CmdMemoryBarrier(cmd vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}

func (r *VulkanRecorder) CmdBeginRenderPass(cmd vk.CommandBuffer, info vk.RenderPassBeginInfo) {
	vk.CmdBeginRenderPass(cmd, &info, vk.SubpassContentsInline)
}

func (r *VulkanRecorder) CmdEndRenderPass(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}

func (r *VulkanRecorder) CmdSetViewport(cmd vk.CommandBuffer, viewport vk.Viewport) {
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{viewport})
}

func (r *VulkanRecorder) CmdSetScissor(cmd vk.CommandBuffer, scissor vk.Rect2D) {
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{scissor})
}

func (r *VulkanRecorder) CmdBindVertexBuffers(cmd vk.CommandBuffer, buffers []vk.Buffer, offsets []vk.DeviceSize) {
	vk.CmdBindVertexBuffers(cmd, 0, uint32(len(buffers)), buffers, offsets)
}

func (r *VulkanRecorder) CmdBindIndexBuffer(cmd vk.CommandBuffer, buffer vk.Buffer, offset vk.DeviceSize, indexType vk.IndexType) {
	vk.CmdBindIndexBuffer(cmd, buffer, offset, indexType)
}

func (r *VulkanRecorder) CmdDrawIndexed(cmd vk.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cmd, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}
