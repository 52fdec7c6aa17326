package vkfg

import (
	"log"

	vk "github.com/vulkan-go/vulkan"
)

type resourceKind int

const (
	resourceBuffer resourceKind = iota
	resourceImage
)

// Resource is one graph-tracked buffer or image. External resources are owned
// by a collaborator and merely imported; the graph never destroys them.
type Resource struct {
	Id       ResourceId
	Name     string
	Kind     resourceKind
	External bool

	// Buffer resources
	Buffer vk.Buffer
	Size   vk.DeviceSize
	Usage  vk.BufferUsageFlags

	// Image resources
	Image  vk.Image
	View   vk.ImageView
	Format vk.Format
	Extent vk.Extent2D

	// Swapchain images are re-imported per image index and removed together
	// on swapchain recreation.
	Swapchain      bool
	SwapchainIndex int
}

// resourceTable owns every Resource the graph knows about. Ids are assigned
// sequentially starting at 1; 0 is InvalidResource. The table is reset as a
// whole, never freed piecemeal mid-frame.
type resourceTable struct {
	resources map[ResourceId]*Resource
	order     []ResourceId
	nextId    ResourceId

	// importedBuffers makes re-import of the same handle return a stable id.
	importedBuffers map[vk.Buffer]ResourceId
	// swapchainIds caches the resource id per swapchain image index.
	swapchainIds map[int]ResourceId

	monitor MemoryMonitor
}

func newResourceTable() resourceTable {
	return resourceTable{
		resources:       make(map[ResourceId]*Resource),
		nextId:          1,
		importedBuffers: make(map[vk.Buffer]ResourceId),
		swapchainIds:    make(map[int]ResourceId),
	}
}

func (t *resourceTable) add(r *Resource) ResourceId {
	r.Id = t.nextId
	t.nextId++
	t.resources[r.Id] = r
	t.order = append(t.order, r.Id)
	return r.Id
}

func (t *resourceTable) createBuffer(name string, size vk.DeviceSize, usage vk.BufferUsageFlags) ResourceId {
	return t.add(&Resource{Name: name, Kind: resourceBuffer, Size: size, Usage: usage})
}

func (t *resourceTable) createImage(name string, format vk.Format, extent vk.Extent2D, _ vk.ImageUsageFlags) ResourceId {
	return t.add(&Resource{Name: name, Kind: resourceImage, Format: format, Extent: extent})
}

func (t *resourceTable) importExternalBuffer(name string, buffer vk.Buffer, size vk.DeviceSize, usage vk.BufferUsageFlags) ResourceId {
	if id, ok := t.importedBuffers[buffer]; ok {
		return id
	}
	id := t.add(&Resource{Name: name, Kind: resourceBuffer, External: true, Buffer: buffer, Size: size, Usage: usage})
	t.importedBuffers[buffer] = id
	return id
}

func (t *resourceTable) importExternalImage(name string, image vk.Image, view vk.ImageView, format vk.Format, extent vk.Extent2D) ResourceId {
	return t.add(&Resource{Name: name, Kind: resourceImage, External: true, Image: image, View: view, Format: format, Extent: extent})
}

// importSwapchainImage imports the swapchain image for the given image index,
// returning the cached id when the index was imported before. Swapchain
// resources are the only ones re-imported per frame.
func (t *resourceTable) importSwapchainImage(name string, index int, image vk.Image, view vk.ImageView, format vk.Format, extent vk.Extent2D) ResourceId {
	if id, ok := t.swapchainIds[index]; ok {
		return id
	}
	id := t.add(&Resource{
		Name: name, Kind: resourceImage, External: true,
		Image: image, View: view, Format: format, Extent: extent,
		Swapchain: true, SwapchainIndex: index,
	})
	t.swapchainIds[index] = id
	return id
}

func (t *resourceTable) get(id ResourceId) *Resource {
	return t.resources[id]
}

func (t *resourceTable) buffer(id ResourceId) vk.Buffer {
	if r := t.resources[id]; r != nil && r.Kind == resourceBuffer {
		return r.Buffer
	}
	return vk.NullBuffer
}

func (t *resourceTable) imageView(id ResourceId) vk.ImageView {
	if r := t.resources[id]; r != nil && r.Kind == resourceImage {
		return r.View
	}
	return vk.NullImageView
}

// removeSwapchainResources drops every cached swapchain image. Called on
// swapchain recreation; the next frame re-imports fresh images.
func (t *resourceTable) removeSwapchainResources() {
	for index, id := range t.swapchainIds {
		delete(t.resources, id)
		delete(t.swapchainIds, index)
		for i, oid := range t.order {
			if oid == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
}

// reset drops every resource binding. Node identities survive a reset; ids do
// not.
func (t *resourceTable) reset() {
	t.resources = make(map[ResourceId]*Resource)
	t.order = nil
	t.nextId = 1
	t.importedBuffers = make(map[vk.Buffer]ResourceId)
	t.swapchainIds = make(map[int]ResourceId)
}

func (t *resourceTable) isMemoryPressureCritical() bool {
	return t.monitor != nil && t.monitor.IsMemoryPressureCritical()
}

func (t *resourceTable) performResourceCleanup() {
	if t.monitor != nil {
		t.monitor.PerformResourceCleanup()
	}
}

func (t *resourceTable) evictNonCriticalResources() {
	if t.monitor != nil {
		t.monitor.EvictNonCriticalResources()
	}
}

func (t *resourceTable) debugPrint() {
	log.Printf("Resources (%d):", len(t.order))
	for _, id := range t.order {
		r := t.resources[id]
		kind := "buffer"
		if r.Kind == resourceImage {
			kind = "image"
		}
		log.Printf("  ID %d: %s (%s external=%v)", id, r.Name, kind, r.External)
	}
}
