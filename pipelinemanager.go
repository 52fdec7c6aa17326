package vkfg

import (
	"fmt"
	"log"
	"os"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// ShaderPipelineCache is the concrete PipelineManager. Shader blobs are
// registered up front by name; descriptor set layouts are registered by the
// code that owns the matching descriptor pools. Pipelines, layouts and render
// passes are created on first lookup and cached for the lifetime of the
// cache.
type ShaderPipelineCache struct {
	device vk.Device

	shaders map[string][]byte
	layouts map[string]vk.DescriptorSetLayout

	modules map[string]vk.ShaderModule

	computePipelines map[ComputePipelineSpec]cachedPipeline
	graphicsPipes    map[GraphicsPipelineSpec]cachedPipeline

	renderPasses map[renderPassKey]vk.RenderPass

	vkCache vk.PipelineCache
}

type cachedPipeline struct {
	pipeline vk.Pipeline
	layout   vk.PipelineLayout
}

type renderPassKey struct {
	format  vk.Format
	samples vk.SampleCountFlagBits
}

func NewShaderPipelineCache(device vk.Device) (*ShaderPipelineCache, error) {
	c := &ShaderPipelineCache{
		device:           device,
		shaders:          make(map[string][]byte),
		layouts:          make(map[string]vk.DescriptorSetLayout),
		modules:          make(map[string]vk.ShaderModule),
		computePipelines: make(map[ComputePipelineSpec]cachedPipeline),
		graphicsPipes:    make(map[GraphicsPipelineSpec]cachedPipeline),
		renderPasses:     make(map[renderPassKey]vk.RenderPass),
	}
	info := vk.PipelineCacheCreateInfo{SType: vk.StructureTypePipelineCacheCreateInfo}
	if err := vk.Error(vk.CreatePipelineCache(device, &info, nil, &c.vkCache)); err != nil {
		return nil, fmt.Errorf("create pipeline cache: %w", err)
	}
	return c, nil
}

// RegisterShader associates a SPIR-V blob with a name like
// "soft_body_physics.comp".
func (c *ShaderPipelineCache) RegisterShader(name string, spirv []byte) {
	c.shaders[name] = spirv
}

// RegisterShaderFile loads a SPIR-V file from disk.
func (c *ShaderPipelineCache) RegisterShaderFile(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load shader %q: %w", name, err)
	}
	c.shaders[name] = data
	return nil
}

// RegisterDescriptorLayout publishes a descriptor set layout under a name the
// nodes resolve at pipeline build time.
func (c *ShaderPipelineCache) RegisterDescriptorLayout(name string, layout vk.DescriptorSetLayout) {
	c.layouts[name] = layout
}

func (c *ShaderPipelineCache) DescriptorLayout(name string) vk.DescriptorSetLayout {
	return c.layouts[name]
}

func (c *ShaderPipelineCache) shaderModule(name string) vk.ShaderModule {
	if m, ok := c.modules[name]; ok {
		return m
	}
	data, ok := c.shaders[name]
	if !ok {
		log.Printf("Pipeline cache: shader %q not registered", name)
		return vk.NullShaderModule
	}
	var module vk.ShaderModule
	err := vk.Error(vk.CreateShaderModule(c.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data)),
		PCode:    sliceUint32(data),
	}, nil, &module))
	if err != nil {
		log.Printf("Pipeline cache: create shader module %q: %v", name, err)
		return vk.NullShaderModule
	}
	c.modules[name] = module
	return module
}

func (c *ShaderPipelineCache) pipelineLayout(descriptorLayout vk.DescriptorSetLayout, pushConstantSize uint32, stages vk.ShaderStageFlags) (vk.PipelineLayout, error) {
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{descriptorLayout},
	}
	if pushConstantSize > 0 {
		info.PushConstantRangeCount = 1
		info.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: stages,
			Offset:     0,
			Size:       pushConstantSize,
		}}
	}
	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(c.device, &info, nil, &layout)); err != nil {
		return vk.NullPipelineLayout, err
	}
	return layout, nil
}

// ComputePipeline builds or returns the cached compute pipeline for spec.
func (c *ShaderPipelineCache) ComputePipeline(spec ComputePipelineSpec) (vk.Pipeline, vk.PipelineLayout) {
	if p, ok := c.computePipelines[spec]; ok {
		return p.pipeline, p.layout
	}

	module := c.shaderModule(spec.Shader + ".comp")
	if module == vk.NullShaderModule {
		return vk.NullPipeline, vk.NullPipelineLayout
	}
	layout, err := c.pipelineLayout(spec.DescriptorLayout, spec.PushConstantSize, vk.ShaderStageFlags(vk.ShaderStageComputeBit))
	if err != nil {
		log.Printf("Pipeline cache: compute layout %q: %v", spec.Shader, err)
		return vk.NullPipeline, vk.NullPipelineLayout
	}

	stage := vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageComputeBit,
		Module: module,
		PName:  "main\x00",
	}
	pipelines := make([]vk.Pipeline, 1)
	err = vk.Error(vk.CreateComputePipelines(c.device, c.vkCache, 1, []vk.ComputePipelineCreateInfo{{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stage,
		Layout: layout,
	}}, nil, pipelines))
	if err != nil {
		log.Printf("Pipeline cache: compute pipeline %q: %v", spec.Shader, err)
		return vk.NullPipeline, vk.NullPipelineLayout
	}

	c.computePipelines[spec] = cachedPipeline{pipeline: pipelines[0], layout: layout}
	return pipelines[0], layout
}

// RenderPass builds or returns the cached single-subpass render pass for the
// given color format and sample count. Multisampled passes carry a resolve
// attachment; presentation always happens from the single-sampled target.
func (c *ShaderPipelineCache) RenderPass(colorFormat vk.Format, samples vk.SampleCountFlagBits) vk.RenderPass {
	key := renderPassKey{format: colorFormat, samples: samples}
	if rp, ok := c.renderPasses[key]; ok {
		return rp
	}

	multisampled := samples != vk.SampleCount1Bit

	attachments := []vk.AttachmentDescription{{
		Format:         colorFormat,
		Samples:        samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}

	colorRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorRef,
	}

	if multisampled {
		attachments[0].FinalLayout = vk.ImageLayoutColorAttachmentOptimal
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		})
		subpass.PResolveAttachments = []vk.AttachmentReference{{
			Attachment: 1,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	var rp vk.RenderPass
	err := vk.Error(vk.CreateRenderPass(c.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &rp))
	if err != nil {
		log.Printf("Pipeline cache: render pass for format %d: %v", colorFormat, err)
		return vk.NullRenderPass
	}
	c.renderPasses[key] = rp
	return rp
}

// GraphicsPipeline builds or returns the cached entity graphics pipeline.
// Binding 0 is the shared triangle geometry; bindings 1 and 2 are the
// per-instance position and color streams written by the physics finalize
// pass.
func (c *ShaderPipelineCache) GraphicsPipeline(spec GraphicsPipelineSpec) (vk.Pipeline, vk.PipelineLayout) {
	if p, ok := c.graphicsPipes[spec]; ok {
		return p.pipeline, p.layout
	}

	vert := c.shaderModule(spec.Shader + ".vert")
	frag := c.shaderModule(spec.Shader + ".frag")
	if vert == vk.NullShaderModule || frag == vk.NullShaderModule {
		return vk.NullPipeline, vk.NullPipelineLayout
	}
	layout, err := c.pipelineLayout(spec.DescriptorLayout, spec.PushConstantSize, vk.ShaderStageFlags(vk.ShaderStageVertexBit))
	if err != nil {
		log.Printf("Pipeline cache: graphics layout %q: %v", spec.Shader, err)
		return vk.NullPipeline, vk.NullPipelineLayout
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vert,
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: frag,
			PName:  "main\x00",
		},
	}

	bindings := []vk.VertexInputBindingDescription{
		{Binding: 0, Stride: 2 * 4, InputRate: vk.VertexInputRateVertex},
		{Binding: 1, Stride: 4 * 4, InputRate: vk.VertexInputRateInstance},
		{Binding: 2, Stride: 4 * 4, InputRate: vk.VertexInputRateInstance},
	}
	attributes := []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 0},
		{Location: 1, Binding: 1, Format: vk.FormatR32g32b32a32Sfloat, Offset: 0},
		{Location: 2, Binding: 2, Format: vk.FormatR32g32b32a32Sfloat, Offset: 0},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1.0,
	}
	samples := spec.Samples
	if samples == 0 {
		samples = vk.SampleCount1Bit
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: samples,
	}
	blendAttachment := []vk.PipelineColorBlendAttachmentState{{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit |
			vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
	}}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    blendAttachment,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	pipelines := make([]vk.Pipeline, 1)
	err = vk.Error(vk.CreateGraphicsPipelines(c.device, c.vkCache, 1, []vk.GraphicsPipelineCreateInfo{{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterization,
		PMultisampleState:   &multisample,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamic,
		Layout:              layout,
		RenderPass:          spec.RenderPass,
	}}, nil, pipelines))
	if err != nil {
		log.Printf("Pipeline cache: graphics pipeline %q: %v", spec.Shader, err)
		return vk.NullPipeline, vk.NullPipelineLayout
	}

	c.graphicsPipes[spec] = cachedPipeline{pipeline: pipelines[0], layout: layout}
	return pipelines[0], layout
}

// Destroy releases every cached object.
func (c *ShaderPipelineCache) Destroy() {
	for _, p := range c.computePipelines {
		vk.DestroyPipeline(c.device, p.pipeline, nil)
		vk.DestroyPipelineLayout(c.device, p.layout, nil)
	}
	for _, p := range c.graphicsPipes {
		vk.DestroyPipeline(c.device, p.pipeline, nil)
		vk.DestroyPipelineLayout(c.device, p.layout, nil)
	}
	for _, rp := range c.renderPasses {
		vk.DestroyRenderPass(c.device, rp, nil)
	}
	for _, m := range c.modules {
		vk.DestroyShaderModule(c.device, m, nil)
	}
	if c.vkCache != vk.NullPipelineCache {
		vk.DestroyPipelineCache(c.device, c.vkCache, nil)
		c.vkCache = vk.NullPipelineCache
	}
	c.computePipelines = make(map[ComputePipelineSpec]cachedPipeline)
	c.graphicsPipes = make(map[GraphicsPipelineSpec]cachedPipeline)
	c.renderPasses = make(map[renderPassKey]vk.RenderPass)
	c.modules = make(map[string]vk.ShaderModule)
}

func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
