package vkpace

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// PresentationTarget bundles everything correlated with one swapchain
// image. Index i in the target list always refers to the same logical
// image; the aggregate replaces the parallel arrays the correlation
// would otherwise live in.
type PresentationTarget struct {
	Image core1_0.Image // owned by the swapchain
	View  core1_0.ImageView

	Framebuffer core1_0.Framebuffer

	UniformBuffer core1_0.Buffer
	UniformMemory core1_0.DeviceMemory
	DescriptorSet core1_0.DescriptorSet

	CommandPool   core1_0.CommandPool
	CommandBuffer core1_0.CommandBuffer
}

// TargetSet owns the swapchain, its presentation targets and the
// single depth buffer shared by all of them. The target count is fixed
// once the swapchain exists.
type TargetSet struct {
	ctx *DeviceContext

	SwapchainExtension khr_swapchain.ExtensionDriver
	Swapchain          khr_swapchain.Swapchain

	Targets []*PresentationTarget

	DepthImage  core1_0.Image
	DepthMemory core1_0.DeviceMemory
	DepthView   core1_0.ImageView
}

// swapImageCount resolves the negotiated image count: one more than
// the minimum, capped by the maximum when the surface reports one
// (zero means unbounded).
func swapImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < count {
		count = capabilities.MaxImageCount
	}
	return count
}

// imageSharing resolves how swapchain images are shared between the
// graphics and presentation families. Distinct families require
// concurrent access; exclusive mode across two families is undefined
// behavior on the underlying API, so this is correctness, not tuning.
func imageSharing(graphicsFamily, presentFamily int) (core1_0.SharingMode, []int) {
	if graphicsFamily != presentFamily {
		return core1_0.SharingModeConcurrent, []int{graphicsFamily, presentFamily}
	}
	return core1_0.SharingModeExclusive, nil
}

// BuildTargets creates the swapchain, one color view per presentable
// image and the shared depth buffer. Framebuffers follow once the
// render pass exists (CreateFramebuffers). Every failure is fatal; no
// retry.
func BuildTargets(ctx *DeviceContext) (*TargetSet, error) {
	set := &TargetSet{ctx: ctx}
	set.SwapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(ctx.Device)

	sharingMode, familyIndices := imageSharing(ctx.GraphicsFamily, ctx.PresentFamily)

	swapchain, _, err := set.SwapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: ctx.Surface,

		MinImageCount:    swapImageCount(ctx.Capabilities),
		ImageFormat:      ctx.SurfaceFormat.Format,
		ImageColorSpace:  ctx.SurfaceFormat.ColorSpace,
		ImageExtent:      ctx.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: familyIndices,

		PreTransform:   ctx.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    ctx.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "creating swapchain"), ErrSwapchainCreation)
	}
	set.Swapchain = swapchain

	images, _, err := set.SwapchainExtension.GetSwapchainImages(swapchain)
	if err != nil {
		set.Destroy()
		return nil, errors.Wrap(err, "retrieving swapchain images")
	}

	for i, image := range images {
		view, err := createImageView(ctx, image, ctx.SurfaceFormat.Format, core1_0.ImageAspectColor)
		if err != nil {
			set.Destroy()
			return nil, errors.Mark(errors.Wrapf(err, "creating image view %d", i), ErrImageViewCreation)
		}

		set.Targets = append(set.Targets, &PresentationTarget{
			Image: image,
			View:  view,
		})
	}

	// A single depth buffer serves every target: depth contents never
	// persist across frames.
	set.DepthImage, set.DepthMemory, err = createImage(ctx,
		ctx.Extent.Width,
		ctx.Extent.Height,
		ctx.DepthFormat,
		core1_0.ImageTilingOptimal,
		core1_0.ImageUsageDepthStencilAttachment,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		set.Destroy()
		return nil, errors.Wrap(err, "creating depth image")
	}

	set.DepthView, err = createImageView(ctx, set.DepthImage, ctx.DepthFormat, core1_0.ImageAspectDepth)
	if err != nil {
		set.Destroy()
		return nil, errors.Mark(errors.Wrap(err, "creating depth image view"), ErrImageViewCreation)
	}

	return set, nil
}

// CreateFramebuffers builds one framebuffer per target, combining the
// target's color view with the shared depth view.
func (set *TargetSet) CreateFramebuffers(renderPass core1_0.RenderPass) error {
	for i, target := range set.Targets {
		framebuffer, _, err := set.ctx.Device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass: renderPass,
			Layers:     1,
			Attachments: []core1_0.ImageView{
				target.View,
				set.DepthView,
			},
			Width:  set.ctx.Extent.Width,
			Height: set.ctx.Extent.Height,
		})
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "creating framebuffer %d", i), ErrFramebufferCreation)
		}

		target.Framebuffer = framebuffer
	}

	return nil
}

// destroyFramebuffers releases each target's framebuffer. Must run
// before the render pass the framebuffers were created from is
// destroyed, so Resources.Destroy calls this ahead of its own
// teardown.
func (set *TargetSet) destroyFramebuffers() {
	device := set.ctx.Device

	for _, target := range set.Targets {
		if target.Framebuffer.Initialized() {
			device.DestroyFramebuffer(target.Framebuffer, nil)
			target.Framebuffer = core1_0.Framebuffer{}
		}
	}
}

func (set *TargetSet) destroyDepth() {
	device := set.ctx.Device

	if set.DepthView.Initialized() {
		device.DestroyImageView(set.DepthView, nil)
		set.DepthView = core1_0.ImageView{}
	}

	if set.DepthImage.Initialized() {
		device.DestroyImage(set.DepthImage, nil)
		set.DepthImage = core1_0.Image{}
	}

	if set.DepthMemory.Initialized() {
		device.FreeMemory(set.DepthMemory, nil)
		set.DepthMemory = core1_0.DeviceMemory{}
	}
}

// Destroy releases everything in reverse creation order: framebuffers,
// depth resources, image views, then the swapchain. In a full teardown
// the framebuffers and depth buffer are already gone by the time this
// runs; the helpers are idempotent.
func (set *TargetSet) Destroy() {
	device := set.ctx.Device

	set.destroyFramebuffers()
	set.destroyDepth()

	for _, target := range set.Targets {
		if target.View.Initialized() {
			device.DestroyImageView(target.View, nil)
			target.View = core1_0.ImageView{}
		}
	}

	if set.Swapchain.Initialized() {
		set.SwapchainExtension.DestroySwapchain(set.Swapchain, nil)
		set.Swapchain = khr_swapchain.Swapchain{}
	}
}
