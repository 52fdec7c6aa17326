package vkfg

import (
	vk "github.com/vulkan-go/vulkan"
)

// SwapchainPresentNode anchors presentation in the dependency graph. It
// records no commands; the queue present itself happens in the submission
// service after the graphics fence work is submitted. Declaring the acquired
// swapchain image as an input keeps the node ordered after every writer of
// that image.
type SwapchainPresentNode struct {
	swapchainImg ResourceId
	imageIndex   int
}

func NewSwapchainPresentNode() *SwapchainPresentNode {
	return &SwapchainPresentNode{}
}

func (n *SwapchainPresentNode) Name() string { return "SwapchainPresent" }

func (n *SwapchainPresentNode) Inputs() []ResourceDependency {
	return []ResourceDependency{
		{Resource: n.swapchainImg, Access: AccessRead, Stage: StageColorAttachment},
	}
}

func (n *SwapchainPresentNode) Outputs() []ResourceDependency { return nil }

func (n *SwapchainPresentNode) SetImageIndex(index int) { n.imageIndex = index }

func (n *SwapchainPresentNode) SetCurrentSwapchainImageId(id ResourceId) { n.swapchainImg = id }

func (n *SwapchainPresentNode) InitializeNode(g *FrameGraph) bool { return true }

func (n *SwapchainPresentNode) PrepareFrame(fc FrameContext) {}

func (n *SwapchainPresentNode) Execute(cmd vk.CommandBuffer, g *FrameGraph) {}

func (n *SwapchainPresentNode) ReleaseFrame(frameIndex uint32) {}

func (n *SwapchainPresentNode) NeedsComputeQueue() bool { return false }

// NeedsGraphicsQueue keeps the present anchor on the graphics timeline so the
// frame still counts as using graphics even when nothing draws.
func (n *SwapchainPresentNode) NeedsGraphicsQueue() bool { return true }
