package vkfg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// entityComputeBindings is the number of storage buffer bindings in the
// compute descriptor set, one per SoA buffer in binding order.
const entityComputeBindings = 16

// EntityDescriptorSets owns the descriptor layouts, pool and sets binding the
// entity SoA buffers to the compute and graphics pipelines. The compute set
// is shared across frames; the graphics sets are per frame-in-flight because
// each frame has its own uniform buffer.
type EntityDescriptorSets struct {
	device vk.Device
	pool   vk.DescriptorPool

	computeLayout  vk.DescriptorSetLayout
	graphicsLayout vk.DescriptorSetLayout

	computeSet   vk.DescriptorSet
	graphicsSets [MaxFramesInFlight]vk.DescriptorSet
}

func NewEntityDescriptorSets(device vk.Device) (*EntityDescriptorSets, error) {
	s := &EntityDescriptorSets{device: device}

	computeBindings := make([]vk.DescriptorSetLayoutBinding, entityComputeBindings)
	for i := range computeBindings {
		computeBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		}
	}
	if err := s.createLayout(computeBindings, &s.computeLayout); err != nil {
		return nil, fmt.Errorf("compute descriptor layout: %w", err)
	}

	graphicsBindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
		{
			Binding:         1,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
	}
	if err := s.createLayout(graphicsBindings, &s.graphicsLayout); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("graphics descriptor layout: %w", err)
	}

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: entityComputeBindings + MaxFramesInFlight},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: MaxFramesInFlight},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1 + MaxFramesInFlight,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := vk.Error(vk.CreateDescriptorPool(device, &poolInfo, nil, &s.pool)); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("descriptor pool: %w", err)
	}

	if err := s.allocateSets(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *EntityDescriptorSets) createLayout(bindings []vk.DescriptorSetLayoutBinding, out *vk.DescriptorSetLayout) error {
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	return vk.Error(vk.CreateDescriptorSetLayout(s.device, &info, nil, out))
}

func (s *EntityDescriptorSets) allocateSets() error {
	layouts := []vk.DescriptorSetLayout{s.computeLayout}
	for i := 0; i < MaxFramesInFlight; i++ {
		layouts = append(layouts, s.graphicsLayout)
	}
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     s.pool,
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, len(layouts))
	if err := vk.Error(vk.AllocateDescriptorSets(s.device, &info, &sets[0])); err != nil {
		return fmt.Errorf("allocate descriptor sets: %w", err)
	}
	s.computeSet = sets[0]
	for i := 0; i < MaxFramesInFlight; i++ {
		s.graphicsSets[i] = sets[1+i]
	}
	return nil
}

// ComputeLayout is published to the pipeline cache under LayoutEntityCompute.
func (s *EntityDescriptorSets) ComputeLayout() vk.DescriptorSetLayout { return s.computeLayout }

// GraphicsLayout is published to the pipeline cache under LayoutEntityGraphics.
func (s *EntityDescriptorSets) GraphicsLayout() vk.DescriptorSetLayout { return s.graphicsLayout }

func (s *EntityDescriptorSets) ComputeSet() vk.DescriptorSet { return s.computeSet }

func (s *EntityDescriptorSets) GraphicsSet(frameIndex uint32) vk.DescriptorSet {
	return s.graphicsSets[frameIndex%MaxFramesInFlight]
}

// WriteComputeBuffers points the compute set's storage bindings at the SoA
// buffers. Binding order matches the shader's buffer block order and the
// field order of EntityBuffers.
func (s *EntityDescriptorSets) WriteComputeBuffers(b EntityBuffers) {
	ordered := []EntityBuffer{
		b.Velocity, b.MovementParams, b.RuntimeState, b.Color,
		b.ModelMatrix, b.SpatialMap, b.SpatialNext, b.ControlParams,
		b.ParticleVelocity, b.ParticleInvMass, b.BodyData, b.BodyParams,
		b.DistanceConstraint, b.Position, b.CurrentPosition, b.TargetPosition,
	}

	bufferInfos := make([]vk.DescriptorBufferInfo, len(ordered))
	writes := make([]vk.WriteDescriptorSet, len(ordered))
	for i, buf := range ordered {
		bufferInfos[i] = vk.DescriptorBufferInfo{
			Buffer: buf.Buffer,
			Offset: 0,
			Range:  buf.Size,
		}
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.computeSet,
			DstBinding:      uint32(i),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			PBufferInfo:     bufferInfos[i : i+1],
		}
	}
	vk.UpdateDescriptorSets(s.device, uint32(len(writes)), writes, 0, nil)
}

// WriteGraphicsBuffers binds one frame's uniform buffer and the shared model
// matrix storage buffer into that frame's graphics set.
func (s *EntityDescriptorSets) WriteGraphicsBuffers(frameIndex uint32, uniform vk.Buffer, uniformSize vk.DeviceSize, modelMatrix EntityBuffer) {
	set := s.GraphicsSet(frameIndex)
	infos := []vk.DescriptorBufferInfo{
		{Buffer: uniform, Offset: 0, Range: uniformSize},
		{Buffer: modelMatrix.Buffer, Offset: 0, Range: modelMatrix.Size},
	}
	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo:     infos[0:1],
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      1,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			PBufferInfo:     infos[1:2],
		},
	}
	vk.UpdateDescriptorSets(s.device, uint32(len(writes)), writes, 0, nil)
}

func (s *EntityDescriptorSets) Destroy() {
	if s.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(s.device, s.pool, nil)
		s.pool = vk.NullDescriptorPool
	}
	if s.computeLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(s.device, s.computeLayout, nil)
		s.computeLayout = vk.NullDescriptorSetLayout
	}
	if s.graphicsLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(s.device, s.graphicsLayout, nil)
		s.graphicsLayout = vk.NullDescriptorSetLayout
	}
}
