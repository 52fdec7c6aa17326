package vkfg

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// blockAllocation is one suballocation inside a BufferArena.
type blockAllocation struct {
	Offset uint64
	Size   uint64
}

func (a *blockAllocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// blockAllocator hands out aligned, non-overlapping ranges of a fixed-size
// block. Allocations are kept sorted by offset; freeing opens the gap for
// reuse.
type blockAllocator struct {
	size   uint64
	allocs []*blockAllocation
}

func alignUp(v uint64, align uint64) uint64 {
	m := v % align
	if m == 0 {
		return v
	}
	return v - m + align
}

func (p *blockAllocator) allocate(size, align uint64) *blockAllocation {
	if size == 0 || size > p.size {
		return nil
	}
	if align == 0 {
		align = 1
	}

	if len(p.allocs) == 0 {
		na := &blockAllocation{Offset: 0, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}

	if p.allocs[0].Offset >= size {
		na := &blockAllocation{Offset: 0, Size: size}
		p.allocs = append([]*blockAllocation{na}, p.allocs...)
		return na
	}

	for i := 0; i+1 < len(p.allocs); i++ {
		lo := alignUp(p.allocs[i].Offset+p.allocs[i].Size, align)
		hi := p.allocs[i+1].Offset
		if hi > lo && hi-lo >= size {
			na := &blockAllocation{Offset: lo, Size: size}
			p.allocs = append(p.allocs[:i+1], append([]*blockAllocation{na}, p.allocs[i+1:]...)...)
			return na
		}
	}

	last := p.allocs[len(p.allocs)-1]
	lo := alignUp(last.Offset+last.Size, align)
	if lo <= p.size && p.size-lo >= size {
		na := &blockAllocation{Offset: lo, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}
	return nil
}

func (p *blockAllocator) free(fa *blockAllocation) {
	for i, a := range p.allocs {
		if a == fa {
			p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
			return
		}
	}
}

func (p *blockAllocator) String() string {
	return fmt.Sprintf("%v", p.allocs)
}

// BufferArena suballocates buffers out of one device memory block. The
// simulation's SoA buffers all live in a single allocation so buffer creation
// during setup never fragments device memory, and a host-visible arena maps
// once and stays mapped.
type BufferArena struct {
	device vk.Device
	memory vk.DeviceMemory
	size   vk.DeviceSize
	alloc  blockAllocator
	mapped unsafe.Pointer

	buffers []vk.Buffer
	offsets map[vk.Buffer]uint64
}

// NewBufferArena allocates the backing memory. hostVisible arenas are created
// host-coherent and persistently mapped; otherwise the memory is device
// local.
func NewBufferArena(device vk.Device, physicalDevice vk.PhysicalDevice, size vk.DeviceSize, hostVisible bool) (*BufferArena, error) {
	a := &BufferArena{
		device:  device,
		size:    size,
		alloc:   blockAllocator{size: uint64(size)},
		offsets: make(map[vk.Buffer]uint64),
	}

	props := vk.MemoryPropertyDeviceLocalBit
	if hostVisible {
		props = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}

	// Probe memory requirements with a throwaway buffer so the arena memory
	// type is compatible with the buffers later bound to it.
	probe, err := createRawBuffer(device, 256, vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit|vk.BufferUsageVertexBufferBit|vk.BufferUsageUniformBufferBit|vk.BufferUsageIndexBufferBit|vk.BufferUsageTransferDstBit))
	if err != nil {
		return nil, fmt.Errorf("buffer arena probe: %w", err)
	}
	var mr vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, probe, &mr)
	mr.Deref()
	vk.DestroyBuffer(device, probe, nil)

	typeIndex, err := findMemoryType(physicalDevice, mr.MemoryTypeBits, props)
	if err != nil {
		return nil, fmt.Errorf("buffer arena: %w", err)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  size,
		MemoryTypeIndex: typeIndex,
	}
	if err := vk.Error(vk.AllocateMemory(device, &allocInfo, nil, &a.memory)); err != nil {
		return nil, fmt.Errorf("buffer arena allocate %d bytes: %w", size, err)
	}

	if hostVisible {
		if err := vk.Error(vk.MapMemory(device, a.memory, 0, size, 0, &a.mapped)); err != nil {
			vk.FreeMemory(device, a.memory, nil)
			return nil, fmt.Errorf("buffer arena map: %w", err)
		}
	}
	return a, nil
}

func createRawBuffer(device vk.Device, size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(device, &info, nil, &buffer)); err != nil {
		return vk.NullBuffer, err
	}
	return buffer, nil
}

func findMemoryType(physicalDevice vk.PhysicalDevice, typeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &mp)
	mp.Deref()

	for i := uint32(0); i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		if typeBits&(1<<i) != 0 &&
			vk.MemoryPropertyFlagBits(mt.PropertyFlags)&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no matching memory type for bits %#x", typeBits)
}

// CreateBuffer creates a buffer and binds it into the arena's memory.
func (a *BufferArena) CreateBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, error) {
	buffer, err := createRawBuffer(a.device, size, usage)
	if err != nil {
		return vk.NullBuffer, fmt.Errorf("arena create buffer: %w", err)
	}

	var mr vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(a.device, buffer, &mr)
	mr.Deref()

	alloc := a.alloc.allocate(uint64(mr.Size), uint64(mr.Alignment))
	if alloc == nil {
		vk.DestroyBuffer(a.device, buffer, nil)
		return vk.NullBuffer, fmt.Errorf("arena exhausted: need %d bytes of %d", mr.Size, a.size)
	}

	if err := vk.Error(vk.BindBufferMemory(a.device, buffer, a.memory, vk.DeviceSize(alloc.Offset))); err != nil {
		a.alloc.free(alloc)
		vk.DestroyBuffer(a.device, buffer, nil)
		return vk.NullBuffer, fmt.Errorf("arena bind buffer: %w", err)
	}

	a.buffers = append(a.buffers, buffer)
	a.offsets[buffer] = alloc.Offset
	return buffer, nil
}

// Mapped returns the persistently mapped bytes behind a buffer, or nil for a
// device-local arena.
func (a *BufferArena) Mapped(buffer vk.Buffer, size int) []byte {
	if a.mapped == nil {
		return nil
	}
	offset, ok := a.offsets[buffer]
	if !ok {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Add(a.mapped, uintptr(offset))), size)
}

func (a *BufferArena) Destroy() {
	for _, b := range a.buffers {
		vk.DestroyBuffer(a.device, b, nil)
	}
	a.buffers = nil
	if a.mapped != nil {
		vk.UnmapMemory(a.device, a.memory)
		a.mapped = nil
	}
	if a.memory != vk.NullDeviceMemory {
		vk.FreeMemory(a.device, a.memory, nil)
		a.memory = vk.NullDeviceMemory
	}
}
