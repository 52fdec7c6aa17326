package vkfg

import (
	vk "github.com/vulkan-go/vulkan"
)

// barrier is one compile-time planned memory barrier, recorded immediately
// before its consumer node executes.
type barrier struct {
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	resource  ResourceId
}

// barrierSet holds the planned barriers of one compiled execution order,
// keyed by the consumer node. Nodes still issue their own intra-pass barriers
// while recording; these cover only cross-node hazards.
type barrierSet struct {
	byConsumer map[NodeId][]barrier
}

func stageFlags(s PipelineStage) vk.PipelineStageFlags {
	switch s {
	case StageComputeShader:
		return vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	case StageVertexShader:
		return vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)
	case StageFragmentShader:
		return vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case StageColorAttachment:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case StageDepthAttachment:
		return vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	case StageTransfer:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	}
	return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
}

func writeAccessFlags(s PipelineStage) vk.AccessFlags {
	switch s {
	case StageColorAttachment:
		return vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	case StageDepthAttachment:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	case StageTransfer:
		return vk.AccessFlags(vk.AccessTransferWriteBit)
	}
	return vk.AccessFlags(vk.AccessShaderWriteBit)
}

func readAccessFlags(s PipelineStage) vk.AccessFlags {
	switch s {
	case StageColorAttachment:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit)
	case StageDepthAttachment:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit)
	case StageTransfer:
		return vk.AccessFlags(vk.AccessTransferReadBit)
	}
	return vk.AccessFlags(vk.AccessShaderReadBit)
}

// planBarriers walks the compiled execution order and records, for every
// read-after-write hazard between nodes, a barrier attached to the consumer.
// Identical barriers for one consumer coalesce into a single entry.
func planBarriers(order []NodeId, entries map[NodeId]*nodeEntry) barrierSet {
	type lastWrite struct {
		node  NodeId
		stage PipelineStage
	}
	writers := make(map[ResourceId]lastWrite)
	set := barrierSet{byConsumer: make(map[NodeId][]barrier)}

	add := func(consumer NodeId, b barrier) {
		for _, existing := range set.byConsumer[consumer] {
			if existing.srcStage == b.srcStage && existing.dstStage == b.dstStage &&
				existing.srcAccess == b.srcAccess && existing.dstAccess == b.dstAccess {
				return
			}
		}
		set.byConsumer[consumer] = append(set.byConsumer[consumer], b)
	}

	for _, id := range order {
		e := entries[id]
		for _, dep := range e.node.Inputs() {
			if dep.Access == AccessWrite {
				continue
			}
			w, ok := writers[dep.Resource]
			if !ok || w.node == id {
				continue
			}
			add(id, barrier{
				srcStage:  stageFlags(w.stage),
				dstStage:  stageFlags(dep.Stage),
				srcAccess: writeAccessFlags(w.stage),
				dstAccess: readAccessFlags(dep.Stage),
				resource:  dep.Resource,
			})
		}
		for _, dep := range e.node.Outputs() {
			if dep.Access == AccessRead {
				continue
			}
			writers[dep.Resource] = lastWrite{node: id, stage: dep.Stage}
		}
		// ReadWrite inputs also publish a write.
		for _, dep := range e.node.Inputs() {
			if dep.Access == AccessReadWrite {
				writers[dep.Resource] = lastWrite{node: id, stage: dep.Stage}
			}
		}
	}
	return set
}

func (s *barrierSet) emitFor(id NodeId, cmd vk.CommandBuffer, rec CommandRecorder) {
	for _, b := range s.byConsumer[id] {
		rec.CmdMemoryBarrier(cmd, b.srcStage, b.dstStage, b.srcAccess, b.dstAccess)
	}
}
