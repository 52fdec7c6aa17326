/*
Package vkfg implements a frame graph for Vulkan driving a GPU resident
soft-body simulation. Work is expressed as nodes which declare the buffers
and images they read and write; the graph compiles those declarations into a
deterministic execution order and a set of memory barriers, then records each
frame into per-queue command buffers.

Overview

A frame is produced in four stages which map onto the package's node types:

	EntityCompute		integrates per-entity movement state
	PhysicsCompute		runs the position based dynamics solver
	EntityGraphics		draws every entity with one instanced draw
	SwapchainPresent	anchors presentation ordering

The two compute nodes record on the compute queue and the graphics node on
the graphics queue; a semaphore makes the vertex stages of the draw wait for
the compute results, so the queues overlap everywhere else. Which queues a
frame actually used is reported back to the submission layer, and the frame
state manager only waits fences for queues that were submitted.

Compilation

AddNode registers nodes in any order. Compile derives writer to reader edges
from the declared dependencies and topologically sorts them; ties are broken
by registration order, so compiling the same graph always produces the same
order. Dependency cycles do not abort the whole graph: the cyclic nodes are
dropped, every cycle is reported as a chain of node and resource names with a
suggestion for breaking it, and the remaining nodes still execute. A failed
compile restores the previous execution order untouched.

Dispatch sizing

Compute passes run 256 threads per workgroup. Workloads above the configured
workgroup ceiling are split into chunks separated by barriers, with the
element offset delivered by push constant. A dispatch that would exceed the
Vulkan per-dimension limit is refused rather than clamped. The optional GPU
timeout detector observes dispatch durations and lowers the ceiling when
dispatches run long, marking the device unhealthy after repeated critical
stalls so the frame loop can back off.

Supporting pieces

BufferArena suballocates the simulation's structure-of-arrays buffers out of
a single device memory block. SoAEntityManager sizes and owns those buffers
and their descriptor sets. ShaderPipelineCache caches pipelines, layouts and
render passes by lookup key. RenderFrameDirector ties the whole sequence
together: wait, acquire, record, submit, present, and swapchain recreation.

Most of the scheduling logic records through the CommandRecorder interface
rather than calling Vulkan directly, so ordering and dispatch behavior can be
exercised in tests without a device.
*/
package vkfg
