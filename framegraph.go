package vkfg

import (
	"errors"
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

// ErrNotCompiled is returned by Execute before a successful Compile.
var ErrNotCompiled = errors.New("frame graph has not been compiled")

type nodeEntry struct {
	id          NodeId
	node        FrameGraphNode
	initialized bool
}

// ExecutionResult reports which queues a frame actually recorded work for, so
// the submission layer can skip empty submits and their fences.
type ExecutionResult struct {
	ComputeUsed  bool
	GraphicsUsed bool
}

// FrameGraph schedules registered nodes against declared resource
// dependencies. Registration and compilation are not concurrency-safe;
// Execute is intended to be driven from a single render loop goroutine.
type FrameGraph struct {
	device   vk.Device
	recorder CommandRecorder
	queues   QueueProvider
	timeout  TimeoutDetector

	resources resourceTable

	entries   map[NodeId]*nodeEntry
	nodeOrder []NodeId
	nextNode  NodeId

	execOrder  []NodeId
	compiled   bool
	barriers   barrierSet
	lastReport CompileReport

	ctx FrameContext
}

// NewFrameGraph wires the graph to its collaborators. The timeout detector may
// be nil; the graph then never throttles or aborts on GPU health.
func NewFrameGraph(device vk.Device, recorder CommandRecorder, queues QueueProvider, timeout TimeoutDetector) (*FrameGraph, error) {
	if recorder == nil {
		return nil, errors.New("frame graph requires a command recorder")
	}
	if queues == nil {
		return nil, errors.New("frame graph requires a queue provider")
	}
	return &FrameGraph{
		device:    device,
		recorder:  recorder,
		queues:    queues,
		timeout:   timeout,
		resources: newResourceTable(),
		entries:   make(map[NodeId]*nodeEntry),
		nextNode:  1,
	}, nil
}

// AddNode registers a node. Adding a node invalidates the compiled execution
// order; Compile must run again before the next Execute.
func (g *FrameGraph) AddNode(node FrameGraphNode) NodeId {
	id := g.nextNode
	g.nextNode++
	g.entries[id] = &nodeEntry{id: id, node: node}
	g.nodeOrder = append(g.nodeOrder, id)
	g.compiled = false
	return id
}

func (g *FrameGraph) nodeName(id NodeId) string {
	if e, ok := g.entries[id]; ok {
		return e.node.Name()
	}
	return fmt.Sprintf("node-%d", id)
}

// Node returns the registered node for id, or nil.
func (g *FrameGraph) Node(id NodeId) FrameGraphNode {
	if e, ok := g.entries[id]; ok {
		return e.node
	}
	return nil
}

// Compile derives the execution order and barrier plan from the declared
// dependencies. Cycles do not fail compilation outright: the maximal
// cycle-free subgraph still compiles and the cyclic remainder is reported in
// the returned report. Compilation is transactional; on failure the previous
// execution order and compiled state are restored untouched.
func (g *FrameGraph) Compile() (CompileReport, error) {
	prevOrder := g.execOrder
	prevCompiled := g.compiled

	restore := func() {
		g.execOrder = prevOrder
		g.compiled = prevCompiled
	}

	edges := buildEdges(g.nodeOrder, g.entries)
	order, leftover := topoSort(g.nodeOrder, edges)

	report := CompileReport{}
	if len(leftover) > 0 {
		report.Cycles = findCycles(g.nodeOrder, edges)
		report.Dropped = leftover
		report.Suggestions = g.cycleSuggestions(report.Cycles)
		logCompileReport(report, g.nodeName)
	}
	if len(order) == 0 && len(g.nodeOrder) > 0 {
		restore()
		return report, fmt.Errorf("compile: all %d nodes are cyclic, nothing to execute", len(g.nodeOrder))
	}

	for _, id := range order {
		e := g.entries[id]
		if e.initialized {
			continue
		}
		if !e.node.InitializeNode(g) {
			restore()
			return report, fmt.Errorf("compile: node %q failed to initialize", e.node.Name())
		}
		e.initialized = true
	}

	g.execOrder = order
	g.barriers = planBarriers(order, g.entries)
	g.lastReport = report
	g.compiled = true
	return report, nil
}

// IsCompiled reports whether a compiled execution order is current.
func (g *FrameGraph) IsCompiled() bool { return g.compiled }

// LastCompileReport returns the report of the most recent successful Compile.
func (g *FrameGraph) LastCompileReport() CompileReport { return g.lastReport }

// ExecutionOrder exposes the compiled node order, primarily for diagnostics.
func (g *FrameGraph) ExecutionOrder() []NodeId {
	return append([]NodeId{}, g.execOrder...)
}

// Execute records one frame. It begins only the command buffers some node in
// the compiled order actually needs, emits the planned inter-node barriers
// before each consumer, and reports which queues received work. If the
// timeout detector marks the GPU unhealthy, remaining nodes are skipped and
// the frame ends early with whatever was already recorded.
func (g *FrameGraph) Execute(frameIndex uint32, time, deltaTime float32, globalFrame uint32) (ExecutionResult, error) {
	var result ExecutionResult
	if !g.compiled {
		return result, ErrNotCompiled
	}

	if g.resources.isMemoryPressureCritical() {
		log.Printf("Frame graph: critical memory pressure, running resource cleanup")
		g.resources.performResourceCleanup()
		g.resources.evictNonCriticalResources()
	}

	if g.timeout != nil && !g.timeout.IsGPUHealthy() {
		log.Printf("Frame graph: GPU unhealthy, skipping frame %d", globalFrame)
		return result, nil
	}

	for _, id := range g.execOrder {
		e := g.entries[id]
		if e.node.NeedsComputeQueue() {
			result.ComputeUsed = true
		}
		if e.node.NeedsGraphicsQueue() {
			result.GraphicsUsed = true
		}
	}
	if !result.ComputeUsed && !result.GraphicsUsed {
		return result, nil
	}

	if err := g.queues.ResetFrame(frameIndex); err != nil {
		return ExecutionResult{}, fmt.Errorf("reset frame %d: %w", frameIndex, err)
	}

	var computeCmd, graphicsCmd vk.CommandBuffer
	if result.ComputeUsed {
		computeCmd = g.queues.ComputeCommandBuffer(frameIndex)
		if err := g.recorder.BeginCommandBuffer(computeCmd); err != nil {
			return ExecutionResult{}, fmt.Errorf("begin compute command buffer: %w", err)
		}
	}
	if result.GraphicsUsed {
		graphicsCmd = g.queues.GraphicsCommandBuffer(frameIndex)
		if err := g.recorder.BeginCommandBuffer(graphicsCmd); err != nil {
			return ExecutionResult{}, fmt.Errorf("begin graphics command buffer: %w", err)
		}
	}

	g.ctx = FrameContext{
		FrameIndex:  frameIndex,
		Time:        time,
		DeltaTime:   deltaTime,
		GlobalFrame: globalFrame,
	}

	for _, id := range g.execOrder {
		if g.timeout != nil && !g.timeout.IsGPUHealthy() {
			log.Printf("Frame graph: GPU became unhealthy, aborting remaining nodes at %q", g.nodeName(id))
			break
		}
		e := g.entries[id]
		cmd := graphicsCmd
		if e.node.NeedsComputeQueue() {
			cmd = computeCmd
		}
		e.node.PrepareFrame(g.ctx)
		if cmd != nil {
			g.barriers.emitFor(id, cmd, g.recorder)
			e.node.Execute(cmd, g)
		}
		e.node.ReleaseFrame(frameIndex)
	}

	if result.ComputeUsed {
		if err := g.recorder.EndCommandBuffer(computeCmd); err != nil {
			return ExecutionResult{}, fmt.Errorf("end compute command buffer: %w", err)
		}
	}
	if result.GraphicsUsed {
		if err := g.recorder.EndCommandBuffer(graphicsCmd); err != nil {
			return ExecutionResult{}, fmt.Errorf("end graphics command buffer: %w", err)
		}
	}
	return result, nil
}

// Context returns the timing of the frame currently being recorded.
func (g *FrameGraph) Context() FrameContext { return g.ctx }

// Recorder exposes the command recorder so nodes share one dispatch path.
func (g *FrameGraph) Recorder() CommandRecorder { return g.recorder }

// Timeout returns the timeout detector, which may be nil.
func (g *FrameGraph) Timeout() TimeoutDetector { return g.timeout }

// Device returns the logical device the graph was created for.
func (g *FrameGraph) Device() vk.Device { return g.device }

// Reset drops every resource. A current compiled order survives so the
// per-frame reset path stays cheap; an order invalidated by a later AddNode
// is cleared. Registered nodes and their one-time initialization are kept.
func (g *FrameGraph) Reset() {
	g.resources.reset()
	if !g.compiled {
		g.execOrder = nil
		g.lastReport = CompileReport{}
	}
}

// Resource management. Create calls are rejected once compiled because the
// barrier plan is derived from the resource set; imports stay allowed since
// swapchain images arrive per frame.

func (g *FrameGraph) CreateBuffer(name string, size vk.DeviceSize, usage vk.BufferUsageFlags) ResourceId {
	if g.compiled {
		log.Printf("Frame graph: CreateBuffer(%q) after compile rejected", name)
		return InvalidResource
	}
	return g.resources.createBuffer(name, size, usage)
}

func (g *FrameGraph) CreateImage(name string, format vk.Format, extent vk.Extent2D, usage vk.ImageUsageFlags) ResourceId {
	if g.compiled {
		log.Printf("Frame graph: CreateImage(%q) after compile rejected", name)
		return InvalidResource
	}
	return g.resources.createImage(name, format, extent, usage)
}

func (g *FrameGraph) ImportExternalBuffer(name string, buffer vk.Buffer, size vk.DeviceSize, usage vk.BufferUsageFlags) ResourceId {
	return g.resources.importExternalBuffer(name, buffer, size, usage)
}

func (g *FrameGraph) ImportExternalImage(name string, image vk.Image, view vk.ImageView, format vk.Format, extent vk.Extent2D) ResourceId {
	return g.resources.importExternalImage(name, image, view, format, extent)
}

func (g *FrameGraph) ImportSwapchainImage(name string, index int, image vk.Image, view vk.ImageView, format vk.Format, extent vk.Extent2D) ResourceId {
	return g.resources.importSwapchainImage(name, index, image, view, format, extent)
}

// RemoveSwapchainResources drops cached swapchain image resources after a
// swapchain recreation.
func (g *FrameGraph) RemoveSwapchainResources() {
	g.resources.removeSwapchainResources()
}

func (g *FrameGraph) GetResource(id ResourceId) *Resource { return g.resources.get(id) }

func (g *FrameGraph) BufferHandle(id ResourceId) vk.Buffer { return g.resources.buffer(id) }

func (g *FrameGraph) ImageViewHandle(id ResourceId) vk.ImageView { return g.resources.imageView(id) }

// SetMemoryMonitor attaches an optional memory pressure monitor.
func (g *FrameGraph) SetMemoryMonitor(m MemoryMonitor) { g.resources.monitor = m }

// DebugPrintResources logs the full resource table.
func (g *FrameGraph) DebugPrintResources() { g.resources.debugPrint() }
