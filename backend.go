package vkpace

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// FrameSlot owns the synchronization primitives for one in-flight
// frame: the fence is signaled exactly when the GPU has finished the
// slot's most recent submission. Slots are created signaled so the
// first throttle wait passes immediately.
type FrameSlot struct {
	ImageAvailable core1_0.Semaphore
	RenderFinished core1_0.Semaphore
	InFlight       core1_0.Fence
}

// vulkanBackend implements FrameBackend over the real device.
type vulkanBackend struct {
	ctx     *DeviceContext
	targets *TargetSet
	slots   []FrameSlot
}

func newVulkanBackend(ctx *DeviceContext, targets *TargetSet, framesInFlight int) (*vulkanBackend, error) {
	backend := &vulkanBackend{ctx: ctx, targets: targets}

	for i := 0; i < framesInFlight; i++ {
		var slot FrameSlot
		var err error

		slot.ImageAvailable, _, err = ctx.Device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			backend.Destroy()
			return nil, errors.Wrapf(err, "creating image-available semaphore %d", i)
		}

		slot.RenderFinished, _, err = ctx.Device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			ctx.Device.DestroySemaphore(slot.ImageAvailable, nil)
			backend.Destroy()
			return nil, errors.Wrapf(err, "creating render-finished semaphore %d", i)
		}

		slot.InFlight, _, err = ctx.Device.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			ctx.Device.DestroySemaphore(slot.RenderFinished, nil)
			ctx.Device.DestroySemaphore(slot.ImageAvailable, nil)
			backend.Destroy()
			return nil, errors.Wrapf(err, "creating in-flight fence %d", i)
		}

		backend.slots = append(backend.slots, slot)
	}

	return backend, nil
}

func (b *vulkanBackend) WaitSlot(slot int) error {
	_, err := b.ctx.Device.WaitForFences(true, common.NoTimeout, b.slots[slot].InFlight)
	return err
}

func (b *vulkanBackend) ResetSlot(slot int) error {
	_, err := b.ctx.Device.ResetFences(b.slots[slot].InFlight)
	return err
}

func (b *vulkanBackend) Acquire(slot int) (int, error) {
	imageIndex, res, err := b.targets.SwapchainExtension.AcquireNextImage(b.targets.Swapchain, common.NoTimeout, &b.slots[slot].ImageAvailable, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		// No recreation path in this design; stale surfaces are fatal.
		return 0, errors.Newf("swapchain out of date on acquire")
	}
	if err != nil {
		return 0, errors.Wrap(err, "acquiring swapchain image")
	}
	return imageIndex, nil
}

func (b *vulkanBackend) UpdateUniform(imageIndex int, elapsedSeconds float64) error {
	return writeUniform(b.ctx, b.targets.Targets[imageIndex], elapsedSeconds)
}

func (b *vulkanBackend) Submit(slot, imageIndex int) error {
	_, err := b.ctx.Device.QueueSubmit(b.ctx.GraphicsQueue, &b.slots[slot].InFlight,
		core1_0.SubmitInfo{
			WaitSemaphores: []core1_0.Semaphore{b.slots[slot].ImageAvailable},
			// Earlier stages may overlap with acquisition latency; only
			// color output waits for the image.
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{b.targets.Targets[imageIndex].CommandBuffer},
			SignalSemaphores: []core1_0.Semaphore{b.slots[slot].RenderFinished},
		},
	)
	return err
}

func (b *vulkanBackend) Present(slot, imageIndex int) error {
	res, err := b.targets.SwapchainExtension.QueuePresent(b.ctx.PresentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{b.slots[slot].RenderFinished},
		Swapchains:     []khr_swapchain.Swapchain{b.targets.Swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate {
		return errors.Newf("swapchain out of date on present")
	}
	if err != nil {
		return errors.Wrap(err, "presenting swapchain image")
	}
	return nil
}

func (b *vulkanBackend) WaitIdle() error {
	_, err := b.ctx.Device.DeviceWaitIdle()
	return err
}

// Destroy releases fences first, then semaphores.
func (b *vulkanBackend) Destroy() {
	for i := range b.slots {
		if b.slots[i].InFlight.Initialized() {
			b.ctx.Device.DestroyFence(b.slots[i].InFlight, nil)
			b.slots[i].InFlight = core1_0.Fence{}
		}
	}

	for i := range b.slots {
		if b.slots[i].RenderFinished.Initialized() {
			b.ctx.Device.DestroySemaphore(b.slots[i].RenderFinished, nil)
			b.slots[i].RenderFinished = core1_0.Semaphore{}
		}
		if b.slots[i].ImageAvailable.Initialized() {
			b.ctx.Device.DestroySemaphore(b.slots[i].ImageAvailable, nil)
			b.slots[i].ImageAvailable = core1_0.Semaphore{}
		}
	}

	b.slots = nil
}
