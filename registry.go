package vkfg

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// ResourceRegistry imports the entity manager's SoA buffers into a frame
// graph and hands out their resource ids by name. Import is idempotent; the
// underlying table returns the existing id for a buffer handle it has seen.
type ResourceRegistry struct {
	entities EntityManager

	velocity           ResourceId
	movementParams     ResourceId
	runtimeState       ResourceId
	color              ResourceId
	modelMatrix        ResourceId
	spatialMap         ResourceId
	spatialNext        ResourceId
	controlParams      ResourceId
	particleVelocity   ResourceId
	particleInvMass    ResourceId
	bodyData           ResourceId
	bodyParams         ResourceId
	distanceConstraint ResourceId
	position           ResourceId
	currentPosition    ResourceId
	targetPosition     ResourceId
}

func NewResourceRegistry(entities EntityManager) (*ResourceRegistry, error) {
	if entities == nil {
		return nil, errors.New("resource registry requires an entity manager")
	}
	return &ResourceRegistry{entities: entities}, nil
}

// ImportEntityResources registers every entity buffer with the graph. The
// render position buffer is the one buffer bound both as a storage buffer in
// compute and as a vertex attribute stream, so it carries both usage bits.
func (r *ResourceRegistry) ImportEntityResources(g *FrameGraph) error {
	b := r.entities.Buffers()

	storage := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	storageVertex := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageVertexBufferBit)

	imports := []struct {
		name  string
		buf   EntityBuffer
		usage vk.BufferUsageFlags
		dst   *ResourceId
	}{
		{"entity-velocity", b.Velocity, storage, &r.velocity},
		{"entity-movement-params", b.MovementParams, storage, &r.movementParams},
		{"entity-runtime-state", b.RuntimeState, storage, &r.runtimeState},
		{"entity-color", b.Color, storageVertex, &r.color},
		{"entity-model-matrix", b.ModelMatrix, storage, &r.modelMatrix},
		{"spatial-map", b.SpatialMap, storage, &r.spatialMap},
		{"spatial-next", b.SpatialNext, storage, &r.spatialNext},
		{"entity-control-params", b.ControlParams, storage, &r.controlParams},
		{"particle-velocity", b.ParticleVelocity, storage, &r.particleVelocity},
		{"particle-inv-mass", b.ParticleInvMass, storage, &r.particleInvMass},
		{"body-data", b.BodyData, storage, &r.bodyData},
		{"body-params", b.BodyParams, storage, &r.bodyParams},
		{"distance-constraint", b.DistanceConstraint, storage, &r.distanceConstraint},
		{"render-position", b.Position, storageVertex, &r.position},
		{"current-position", b.CurrentPosition, storage, &r.currentPosition},
		{"target-position", b.TargetPosition, storage, &r.targetPosition},
	}
	for _, im := range imports {
		if im.buf.Buffer == vk.NullBuffer {
			return fmt.Errorf("import entity resources: %s buffer is null", im.name)
		}
		*im.dst = g.ImportExternalBuffer(im.name, im.buf.Buffer, im.buf.Size, im.usage)
	}
	return nil
}

// MovementData returns the resource bindings for the movement compute node.
func (r *ResourceRegistry) MovementData() EntityComputeNodeData {
	return EntityComputeNodeData{
		Velocity:       r.velocity,
		MovementParams: r.movementParams,
		RuntimeState:   r.runtimeState,
	}
}

// PhysicsData returns the resource bindings for the physics compute node.
func (r *ResourceRegistry) PhysicsData() PhysicsComputeNodeData {
	return PhysicsComputeNodeData{
		Position:           r.position,
		CurrentPosition:    r.currentPosition,
		TargetPosition:     r.targetPosition,
		ParticleVelocity:   r.particleVelocity,
		ParticleInvMass:    r.particleInvMass,
		BodyData:           r.bodyData,
		BodyParams:         r.bodyParams,
		DistanceConstraint: r.distanceConstraint,
		SpatialMap:         r.spatialMap,
		SpatialNext:        r.spatialNext,
		Velocity:           r.velocity,
		ControlParams:      r.controlParams,
		RuntimeState:       r.runtimeState,
	}
}

// GraphicsData returns the resource bindings for the graphics node.
func (r *ResourceRegistry) GraphicsData() EntityGraphicsNodeData {
	return EntityGraphicsNodeData{
		Position: r.position,
		Color:    r.color,
	}
}

func (r *ResourceRegistry) VelocityId() ResourceId     { return r.velocity }
func (r *ResourceRegistry) PositionId() ResourceId     { return r.position }
func (r *ResourceRegistry) ColorId() ResourceId        { return r.color }
func (r *ResourceRegistry) RuntimeStateId() ResourceId { return r.runtimeState }
