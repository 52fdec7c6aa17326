package vkfg

import (
	"log"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// dispatchChunk is one CmdDispatch of a possibly chunked workload. The
// element offset is pushed to the shader so global invocation ids stay dense.
type dispatchChunk struct {
	elementOffset uint32
	groupCount    uint32
}

type dispatchPlan struct {
	totalGroups uint32
	chunks      []dispatchChunk
	refused     bool
}

// planDispatch splits elementCount worth of work into dispatch chunks of at
// most maxWorkgroups workgroups each. A workload whose total workgroups
// exceed the Vulkan per-dimension limit is refused outright, before the
// single-versus-chunked choice; clamping or splitting it anyway would drop or
// hide work without any signal to the caller.
func planDispatch(elementCount, maxWorkgroups uint32, forceChunking bool) dispatchPlan {
	var p dispatchPlan
	if elementCount == 0 {
		return p
	}
	p.totalGroups = (elementCount + ThreadsPerWorkgroup - 1) / ThreadsPerWorkgroup
	if p.totalGroups > MaxDispatchWorkgroups {
		p.refused = true
		return p
	}

	if !forceChunking && p.totalGroups <= maxWorkgroups {
		p.chunks = []dispatchChunk{{elementOffset: 0, groupCount: p.totalGroups}}
		return p
	}

	chunkGroups := maxWorkgroups
	if chunkGroups == 0 {
		chunkGroups = 1
	}
	for done := uint32(0); done < p.totalGroups; done += chunkGroups {
		groups := p.totalGroups - done
		if groups > chunkGroups {
			groups = chunkGroups
		}
		p.chunks = append(p.chunks, dispatchChunk{
			elementOffset: done * ThreadsPerWorkgroup,
			groupCount:    groups,
		})
	}
	return p
}

// effectiveWorkgroupCeiling folds the timeout detector's recommendation into
// the configured ceiling. An unhealthy GPU clamps hard to the conservative
// ceiling regardless of the configured value.
func effectiveWorkgroupCeiling(configured uint32, td TimeoutDetector) uint32 {
	ceiling := configured
	if td == nil {
		return ceiling
	}
	if rec := td.RecoveryRecommendation(); rec.ShouldReduceWorkload && rec.RecommendedMaxWorkgroups > 0 && rec.RecommendedMaxWorkgroups < ceiling {
		ceiling = rec.RecommendedMaxWorkgroups
	}
	if !td.IsGPUHealthy() && ceiling > UnhealthyWorkgroupCeiling {
		ceiling = UnhealthyWorkgroupCeiling
	}
	return ceiling
}

// barrierDest selects who consumes the results of a compute pass.
type barrierDest int

const (
	destComputeShader barrierDest = iota
	destVertexShader
	destVertexInput
)

func emitComputeBarrier(rec CommandRecorder, cmd vk.CommandBuffer, dest barrierDest) {
	src := vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	srcAccess := vk.AccessFlags(vk.AccessShaderWriteBit)
	switch dest {
	case destVertexShader:
		rec.CmdMemoryBarrier(cmd, src,
			vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit),
			srcAccess, vk.AccessFlags(vk.AccessShaderReadBit))
	case destVertexInput:
		rec.CmdMemoryBarrier(cmd, src,
			vk.PipelineStageFlags(vk.PipelineStageVertexInputBit|vk.PipelineStageVertexShaderBit),
			srcAccess, vk.AccessFlags(vk.AccessVertexAttributeReadBit|vk.AccessShaderReadBit))
	default:
		rec.CmdMemoryBarrier(cmd, src, src,
			srcAccess, vk.AccessFlags(vk.AccessShaderReadBit|vk.AccessShaderWriteBit))
	}
}

// computeDispatch is the bound state for one compute pass.
type computeDispatch struct {
	pipeline vk.Pipeline
	layout   vk.PipelineLayout
	set      vk.DescriptorSet
}

// runDispatch records the chunks of one compute pass and reports whether
// anything was dispatched. encode produces the push constant block for a
// given element offset. Wall-clock timing of every chunk is reported to the
// timeout detector when one is attached. Chunks after the first are separated
// by compute-to-compute barriers so a chunk never races its predecessor.
func runDispatch(rec CommandRecorder, cmd vk.CommandBuffer, d computeDispatch, plan dispatchPlan, name string, td TimeoutDetector, encode func(elementOffset uint32) []byte) bool {
	if plan.refused {
		log.Printf("Dispatch %q refused: %d workgroups exceeds device limit %d", name, plan.totalGroups, uint32(MaxDispatchWorkgroups))
		return false
	}
	if len(plan.chunks) == 0 {
		return false
	}

	rec.CmdBindComputePipeline(cmd, d.pipeline)
	rec.CmdBindDescriptorSets(cmd, vk.PipelineBindPointCompute, d.layout, []vk.DescriptorSet{d.set})

	for i, chunk := range plan.chunks {
		if i > 0 {
			emitComputeBarrier(rec, cmd, destComputeShader)
		}
		rec.CmdPushConstants(cmd, d.layout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), encode(chunk.elementOffset))
		if td != nil {
			td.BeginComputeDispatch(name, chunk.groupCount)
		}
		rec.CmdDispatch(cmd, chunk.groupCount, 1, 1)
		if td != nil {
			td.EndComputeDispatch()
		}
	}
	return true
}

// toBytes views a push constant struct as its raw bytes. The caller keeps the
// struct alive for the duration of the record call.
func toBytes(ptr unsafe.Pointer, size int) []byte {
	return unsafe.Slice((*byte)(ptr), size)
}
