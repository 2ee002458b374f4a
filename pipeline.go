package vkpace

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/sync/errgroup"
)

// Vertex is the fixed pipeline's vertex layout: position and color.
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
}

func vertexBindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}

// bytesToBytecode reinterprets a SPIR-V blob as the little-endian
// 32-bit words the shader module API consumes.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}

	return byteCode
}

// Resources owns the fixed pipeline and everything the scheduler
// replays each frame: the render pass, descriptor plumbing, geometry
// buffers, per-target uniform buffers and the pre-recorded command
// buffers. Commands are recorded once and never re-recorded.
type Resources struct {
	ctx *DeviceContext

	RenderPass          core1_0.RenderPass
	DescriptorSetLayout core1_0.DescriptorSetLayout
	PipelineLayout      core1_0.PipelineLayout
	Pipeline            core1_0.Pipeline

	descriptorPool core1_0.DescriptorPool

	vertexBuffer core1_0.Buffer
	vertexMemory core1_0.DeviceMemory
	indexBuffer  core1_0.Buffer
	indexMemory  core1_0.DeviceMemory
	indexCount   int

	transferPool core1_0.CommandPool
}

// BuildResources creates the fixed pipeline and populates each
// presentation target with its uniform buffer, descriptor set and
// pre-recorded command buffer.
func BuildResources(ctx *DeviceContext, cfg *Config, targets *TargetSet) (*Resources, error) {
	r := &Resources{ctx: ctx, indexCount: len(cfg.Indices)}

	err := r.createRenderPass()
	if err != nil {
		r.destroyPartial(targets)
		return nil, err
	}

	err = r.createDescriptorSetLayout()
	if err != nil {
		r.destroyPartial(targets)
		return nil, err
	}

	err = r.createPipeline(cfg)
	if err != nil {
		r.destroyPartial(targets)
		return nil, err
	}

	err = targets.CreateFramebuffers(r.RenderPass)
	if err != nil {
		r.destroyPartial(targets)
		return nil, err
	}

	err = r.createGeometryBuffers(cfg)
	if err != nil {
		r.destroyPartial(targets)
		return nil, err
	}

	err = r.createUniformBuffers(targets)
	if err != nil {
		r.destroyPartial(targets)
		return nil, err
	}

	err = r.createDescriptorSets(targets)
	if err != nil {
		r.destroyPartial(targets)
		return nil, err
	}

	err = r.recordCommandBuffers(targets)
	if err != nil {
		r.destroyPartial(targets)
		return nil, err
	}

	return r, nil
}

func (r *Resources) createRenderPass() error {
	renderPass, _, err := r.ctx.Device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         r.ctx.SurfaceFormat.Format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         r.ctx.DepthFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating render pass")
	}

	r.RenderPass = renderPass
	return nil
}

func (r *Resources) createDescriptorSetLayout() error {
	var err error
	r.DescriptorSetLayout, _, err = r.ctx.Device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating descriptor set layout")
	}

	return nil
}

func (r *Resources) createPipeline(cfg *Config) error {
	vertShader, _, err := r.ctx.Device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(cfg.VertexShader),
	})
	if err != nil {
		return errors.Wrap(err, "creating vertex shader module")
	}
	defer r.ctx.Device.DestroyShaderModule(vertShader, nil)

	fragShader, _, err := r.ctx.Device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(cfg.FragmentShader),
	})
	if err != nil {
		return errors.Wrap(err, "creating fragment shader module")
	}
	defer r.ctx.Device.DestroyShaderModule(fragShader, nil)

	r.PipelineLayout, _, err = r.ctx.Device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			r.DescriptorSetLayout,
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating pipeline layout")
	}

	pipelines, _, err := r.ctx.Device.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: vertShader,
					Name:   "main",
				},
				{
					Stage:  core1_0.StageFragment,
					Module: fragShader,
					Name:   "main",
				},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   vertexBindingDescriptions(),
				VertexAttributeDescriptions: vertexAttributeDescriptions(),
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               core1_0.PrimitiveTopologyTriangleList,
				PrimitiveRestartEnable: false,
			},
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{
					{
						X:        0,
						Y:        0,
						Width:    float32(r.ctx.Extent.Width),
						Height:   float32(r.ctx.Extent.Height),
						MinDepth: 0,
						MaxDepth: 1,
					},
				},
				Scissors: []core1_0.Rect2D{
					{
						Offset: core1_0.Offset2D{X: 0, Y: 0},
						Extent: r.ctx.Extent,
					},
				},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				DepthClampEnable:        false,
				RasterizerDiscardEnable: false,

				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    core1_0.CullModeBack,
				FrontFace:   core1_0.FrontFaceCounterClockwise,

				DepthBiasEnable: false,

				LineWidth: 1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				SampleShadingEnable:  false,
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
				DepthTestEnable:  true,
				DepthWriteEnable: true,
				DepthCompareOp:   core1_0.CompareOpLess,
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOpEnabled: false,
				LogicOp:        core1_0.LogicOpCopy,

				BlendConstants: [4]float32{0, 0, 0, 0},
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						BlendEnabled:   false,
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			Layout:            r.PipelineLayout,
			RenderPass:        r.RenderPass,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return errors.Wrap(err, "creating graphics pipeline")
	}
	r.Pipeline = pipelines[0]

	return nil
}

func (r *Resources) createGeometryBuffers(cfg *Config) error {
	pool, _, err := r.ctx.Device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: r.ctx.GraphicsFamily,
	})
	if err != nil {
		return errors.Wrap(err, "creating transfer command pool")
	}
	r.transferPool = pool

	r.vertexBuffer, r.vertexMemory, err = r.createDeviceLocalBuffer(cfg.Vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "creating vertex buffer")
	}

	r.indexBuffer, r.indexMemory, err = r.createDeviceLocalBuffer(cfg.Indices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrap(err, "creating index buffer")
	}

	return nil
}

// createDeviceLocalBuffer stages data through a host-visible buffer
// into a device-local one.
func (r *Resources) createDeviceLocalBuffer(data any, usage core1_0.BufferUsageFlags) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	bufferSize := binary.Size(data)

	stagingBuffer, stagingMemory, err := createBuffer(r.ctx, bufferSize, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if stagingBuffer.Initialized() {
		defer r.ctx.Device.DestroyBuffer(stagingBuffer, nil)
	}
	if stagingMemory.Initialized() {
		defer r.ctx.Device.FreeMemory(stagingMemory, nil)
	}
	if err != nil {
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	err = writeData(r.ctx.Device, stagingMemory, 0, data)
	if err != nil {
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	buffer, memory, err := createBuffer(r.ctx, bufferSize, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return buffer, memory, err
	}

	return buffer, memory, r.copyBuffer(stagingBuffer, buffer, bufferSize)
}

func (r *Resources) copyBuffer(src, dst core1_0.Buffer, size int) error {
	buffers, _, err := r.ctx.Device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        r.transferPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return err
	}
	buffer := buffers[0]
	defer r.ctx.Device.FreeCommandBuffers(buffer)

	_, err = r.ctx.Device.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return err
	}

	err = r.ctx.Device.CmdCopyBuffer(buffer, src, dst,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
	if err != nil {
		return err
	}

	_, err = r.ctx.Device.EndCommandBuffer(buffer)
	if err != nil {
		return err
	}

	_, err = r.ctx.Device.QueueSubmit(r.ctx.GraphicsQueue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return err
	}

	_, err = r.ctx.Device.QueueWaitIdle(r.ctx.GraphicsQueue)
	return err
}

func (r *Resources) createUniformBuffers(targets *TargetSet) error {
	bufferSize := int(unsafe.Sizeof(UniformBufferObject{}))

	for i, target := range targets.Targets {
		buffer, memory, err := createBuffer(r.ctx, bufferSize, core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			return errors.Wrapf(err, "creating uniform buffer %d", i)
		}

		target.UniformBuffer = buffer
		target.UniformMemory = memory
	}

	return nil
}

func (r *Resources) createDescriptorSets(targets *TargetSet) error {
	targetCount := len(targets.Targets)

	var err error
	r.descriptorPool, _, err = r.ctx.Device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: targetCount,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: targetCount,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating descriptor pool")
	}

	allocLayouts := make([]core1_0.DescriptorSetLayout, targetCount)
	for i := range allocLayouts {
		allocLayouts[i] = r.DescriptorSetLayout
	}

	sets, _, err := r.ctx.Device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: r.descriptorPool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "allocating descriptor sets")
	}

	for i, target := range targets.Targets {
		target.DescriptorSet = sets[i]

		err = r.ctx.Device.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
			{
				DstSet:          target.DescriptorSet,
				DstBinding:      0,
				DstArrayElement: 0,

				DescriptorType: core1_0.DescriptorTypeUniformBuffer,

				BufferInfo: []core1_0.DescriptorBufferInfo{
					{
						Buffer: target.UniformBuffer,
						Offset: 0,
						Range:  int(unsafe.Sizeof(UniformBufferObject{})),
					},
				},
			},
		}, nil)
		if err != nil {
			return errors.Wrapf(err, "writing descriptor set %d", i)
		}
	}

	return nil
}

// recordCommandBuffers records one primary command buffer per target,
// once, to be replayed every frame. Each target gets its own command
// pool so recording can proceed in parallel; pools are not safe for
// concurrent allocation.
func (r *Resources) recordCommandBuffers(targets *TargetSet) error {
	group := errgroup.Group{}

	for i := range targets.Targets {
		target := targets.Targets[i]
		group.Go(func() error {
			return r.recordTarget(target)
		})
	}

	return group.Wait()
}

func (r *Resources) recordTarget(target *PresentationTarget) error {
	pool, _, err := r.ctx.Device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: r.ctx.GraphicsFamily,
	})
	if err != nil {
		return errors.Wrap(err, "creating command pool")
	}
	target.CommandPool = pool

	buffers, _, err := r.ctx.Device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return errors.Wrap(err, "allocating command buffer")
	}
	target.CommandBuffer = buffers[0]

	buffer := target.CommandBuffer
	_, err = r.ctx.Device.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return err
	}

	err = r.ctx.Device.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  r.RenderPass,
			Framebuffer: target.Framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: r.ctx.Extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{0, 0, 0, 1},
				core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
			},
		})
	if err != nil {
		return err
	}

	r.ctx.Device.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, r.Pipeline)
	r.ctx.Device.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{r.vertexBuffer}, []int{0})
	r.ctx.Device.CmdBindIndexBuffer(buffer, r.indexBuffer, 0, core1_0.IndexTypeUInt32)
	r.ctx.Device.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, r.PipelineLayout, 0, []core1_0.DescriptorSet{
		target.DescriptorSet,
	}, nil)
	r.ctx.Device.CmdDrawIndexed(buffer, r.indexCount, 1, 0, 0, 0)
	r.ctx.Device.CmdEndRenderPass(buffer)

	_, err = r.ctx.Device.EndCommandBuffer(buffer)
	return err
}

// Destroy releases resources so that every dependent goes before its
// dependency: uniform buffers, descriptor pool, geometry buffers,
// command pools, then the targets' framebuffers and depth buffer, and
// only then the pipeline, pipeline layout and render pass the
// framebuffers were created from. The descriptor set layout is not
// released here; it outlives the swapchain (destroyDescriptorSetLayout).
func (r *Resources) Destroy(targets *TargetSet) {
	device := r.ctx.Device

	for _, target := range targets.Targets {
		if target.UniformBuffer.Initialized() {
			device.DestroyBuffer(target.UniformBuffer, nil)
			target.UniformBuffer = core1_0.Buffer{}
		}
		if target.UniformMemory.Initialized() {
			device.FreeMemory(target.UniformMemory, nil)
			target.UniformMemory = core1_0.DeviceMemory{}
		}
	}

	if r.descriptorPool.Initialized() {
		device.DestroyDescriptorPool(r.descriptorPool, nil)
		r.descriptorPool = core1_0.DescriptorPool{}
	}

	if r.indexBuffer.Initialized() {
		device.DestroyBuffer(r.indexBuffer, nil)
		r.indexBuffer = core1_0.Buffer{}
	}
	if r.indexMemory.Initialized() {
		device.FreeMemory(r.indexMemory, nil)
		r.indexMemory = core1_0.DeviceMemory{}
	}

	if r.vertexBuffer.Initialized() {
		device.DestroyBuffer(r.vertexBuffer, nil)
		r.vertexBuffer = core1_0.Buffer{}
	}
	if r.vertexMemory.Initialized() {
		device.FreeMemory(r.vertexMemory, nil)
		r.vertexMemory = core1_0.DeviceMemory{}
	}

	for _, target := range targets.Targets {
		if target.CommandBuffer.Initialized() {
			device.FreeCommandBuffers(target.CommandBuffer)
			target.CommandBuffer = core1_0.CommandBuffer{}
		}
		if target.CommandPool.Initialized() {
			device.DestroyCommandPool(target.CommandPool, nil)
			target.CommandPool = core1_0.CommandPool{}
		}
	}

	if r.transferPool.Initialized() {
		device.DestroyCommandPool(r.transferPool, nil)
		r.transferPool = core1_0.CommandPool{}
	}

	targets.destroyFramebuffers()
	targets.destroyDepth()

	if r.Pipeline.Initialized() {
		device.DestroyPipeline(r.Pipeline, nil)
		r.Pipeline = core1_0.Pipeline{}
	}

	if r.PipelineLayout.Initialized() {
		device.DestroyPipelineLayout(r.PipelineLayout, nil)
		r.PipelineLayout = core1_0.PipelineLayout{}
	}

	if r.RenderPass.Initialized() {
		device.DestroyRenderPass(r.RenderPass, nil)
		r.RenderPass = core1_0.RenderPass{}
	}
}

func (r *Resources) destroyDescriptorSetLayout() {
	if r.DescriptorSetLayout.Initialized() {
		r.ctx.Device.DestroyDescriptorSetLayout(r.DescriptorSetLayout, nil)
		r.DescriptorSetLayout = core1_0.DescriptorSetLayout{}
	}
}

// destroyPartial tears down a Resources whose build failed, descriptor
// set layout included: everything that referenced the layout is
// already gone, so it need not wait for the swapchain.
func (r *Resources) destroyPartial(targets *TargetSet) {
	r.Destroy(targets)
	r.destroyDescriptorSetLayout()
}
