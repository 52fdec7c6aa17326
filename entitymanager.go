package vkfg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

const (
	vec4Size = 16
	mat4Size = 64
)

// SoAEntityManager owns the simulation's structure-of-arrays buffers in one
// device-local arena and the descriptor sets binding them. Entity data itself
// lives on the GPU; the manager only tracks the live count.
type SoAEntityManager struct {
	device vk.Device
	arena  *BufferArena
	sets   *EntityDescriptorSets

	buffers     EntityBuffers
	entityCount uint32
	maxEntities uint32
}

// NewSoAEntityManager sizes every buffer for maxEntities bodies and binds
// them into the compute descriptor set.
func NewSoAEntityManager(device vk.Device, physicalDevice vk.PhysicalDevice, maxEntities uint32) (*SoAEntityManager, error) {
	if maxEntities == 0 || maxEntities > MaxEntities {
		return nil, fmt.Errorf("entity manager: max entities %d out of range (1..%d)", maxEntities, uint32(MaxEntities))
	}

	m := &SoAEntityManager{device: device, maxEntities: maxEntities}

	particles := vk.DeviceSize(maxEntities) * ParticlesPerBody
	constraints := vk.DeviceSize(maxEntities) * ConstraintsPerBody
	bodies := vk.DeviceSize(maxEntities)

	type bufferPlan struct {
		size  vk.DeviceSize
		extra vk.BufferUsageFlags
		dst   *EntityBuffer
	}
	plans := []bufferPlan{
		{bodies * vec4Size, 0, &m.buffers.Velocity},
		{bodies * vec4Size, 0, &m.buffers.MovementParams},
		{bodies * vec4Size, 0, &m.buffers.RuntimeState},
		{bodies * vec4Size, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), &m.buffers.Color},
		{bodies * mat4Size, 0, &m.buffers.ModelMatrix},
		{SpatialGridCells * 4, 0, &m.buffers.SpatialMap},
		{particles * 4, 0, &m.buffers.SpatialNext},
		{bodies * vec4Size, 0, &m.buffers.ControlParams},
		{particles * vec4Size, 0, &m.buffers.ParticleVelocity},
		{particles * 4, 0, &m.buffers.ParticleInvMass},
		{bodies * vec4Size, 0, &m.buffers.BodyData},
		{bodies * vec4Size, 0, &m.buffers.BodyParams},
		{constraints * vec4Size, 0, &m.buffers.DistanceConstraint},
		{particles * vec4Size, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), &m.buffers.Position},
		{particles * vec4Size, 0, &m.buffers.CurrentPosition},
		{particles * vec4Size, 0, &m.buffers.TargetPosition},
	}

	var total vk.DeviceSize
	for _, p := range plans {
		// Per-buffer alignment slack; 256 covers storage buffer alignment on
		// every device we target.
		total += p.size + 256
	}

	var err error
	m.arena, err = NewBufferArena(device, physicalDevice, total, false)
	if err != nil {
		return nil, fmt.Errorf("entity manager: %w", err)
	}

	storage := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit)
	for _, p := range plans {
		buf, err := m.arena.CreateBuffer(p.size, storage|p.extra)
		if err != nil {
			m.Destroy()
			return nil, fmt.Errorf("entity manager: %w", err)
		}
		*p.dst = EntityBuffer{Buffer: buf, Size: p.size}
	}

	m.sets, err = NewEntityDescriptorSets(device)
	if err != nil {
		m.Destroy()
		return nil, fmt.Errorf("entity manager: %w", err)
	}
	m.sets.WriteComputeBuffers(m.buffers)
	return m, nil
}

func (m *SoAEntityManager) EntityCount() uint32 { return m.entityCount }

// SetEntityCount clamps to the sized capacity.
func (m *SoAEntityManager) SetEntityCount(count uint32) {
	if count > m.maxEntities {
		count = m.maxEntities
	}
	m.entityCount = count
}

func (m *SoAEntityManager) MaxEntityCount() uint32 { return m.maxEntities }

func (m *SoAEntityManager) Buffers() EntityBuffers { return m.buffers }

func (m *SoAEntityManager) ComputeDescriptorSet() vk.DescriptorSet { return m.sets.ComputeSet() }

func (m *SoAEntityManager) GraphicsDescriptorSet(frameIndex uint32) vk.DescriptorSet {
	return m.sets.GraphicsSet(frameIndex)
}

// DescriptorSets exposes the layouts for pipeline cache registration and the
// graphics set writes during application setup.
func (m *SoAEntityManager) DescriptorSets() *EntityDescriptorSets { return m.sets }

func (m *SoAEntityManager) Destroy() {
	if m.sets != nil {
		m.sets.Destroy()
		m.sets = nil
	}
	if m.arena != nil {
		m.arena.Destroy()
		m.arena = nil
	}
}
