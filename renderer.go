package vkpace

import (
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// Renderer wires the startup phases in their only valid order:
// instance, surface, negotiation, targets, resources, scheduler. Data
// flows strictly downward through that list once; only the scheduler
// has runtime state.
type Renderer struct {
	cfg      *Config
	provider SurfaceProvider

	instance   *Instance
	surfaceExt khr_surface.ExtensionDriver
	surface    khr_surface.Surface

	ctx       *DeviceContext
	targets   *TargetSet
	resources *Resources
	backend   *vulkanBackend
	scheduler *Scheduler
}

// NewRenderer performs the full startup sequence. Any failure tears
// down what was already built and is terminal for the caller; nothing
// in this package retries.
func NewRenderer(global core1_0.GlobalDriver, cfg *Config, provider SurfaceProvider) (*Renderer, error) {
	r := &Renderer{cfg: cfg, provider: provider}

	var err error
	r.instance, err = BuildInstance(global, cfg, provider)
	if err != nil {
		return nil, err
	}

	r.surfaceExt = khr_surface.CreateExtensionDriverFromCoreDriver(r.instance.Driver)
	r.surface, err = provider.CreateSurface(r.instance.Driver, r.surfaceExt)
	if err != nil {
		r.Close()
		return nil, err
	}

	r.ctx, err = Negotiate(r.instance.Driver, r.surfaceExt, r.surface, cfg)
	if err != nil {
		r.Close()
		return nil, err
	}

	r.targets, err = BuildTargets(r.ctx)
	if err != nil {
		r.Close()
		return nil, err
	}

	r.resources, err = BuildResources(r.ctx, cfg, r.targets)
	if err != nil {
		r.Close()
		return nil, err
	}

	r.backend, err = newVulkanBackend(r.ctx, r.targets, cfg.framesInFlight())
	if err != nil {
		r.Close()
		return nil, err
	}

	r.scheduler = NewScheduler(r.backend, cfg.framesInFlight(), len(r.targets.Targets), func() float64 {
		return hrtime.Now().Seconds()
	})

	return r, nil
}

// Run drives the frame loop until the surface provider reports a close
// request, then waits for the device to idle. The caller still owns
// Close.
func (r *Renderer) Run() error {
	return r.scheduler.Run(r.provider)
}

// teardownPhase pairs one shutdown action with a name, so the sequence
// can be inspected without touching the device.
type teardownPhase struct {
	name string
	fn   func()
}

// teardown lists Close's phases in execution order: sync primitives,
// then the pipeline resources (which release every framebuffer and the
// depth buffer before the render pass they were created from), the
// remaining targets (image views, swapchain), the descriptor set
// layout, the device, and last the messenger, surface and instance.
// Dependents strictly precede their dependencies.
func (r *Renderer) teardown() []teardownPhase {
	return []teardownPhase{
		{"backend", func() {
			if r.backend != nil {
				r.backend.Destroy()
				r.backend = nil
			}
		}},
		{"resources", func() {
			if r.resources != nil {
				r.resources.Destroy(r.targets)
			}
		}},
		{"targets", func() {
			if r.targets != nil {
				r.targets.Destroy()
				r.targets = nil
			}
		}},
		{"descriptor set layout", func() {
			if r.resources != nil {
				r.resources.destroyDescriptorSetLayout()
				r.resources = nil
			}
		}},
		{"device", func() {
			if r.ctx != nil {
				r.ctx.Destroy()
				r.ctx = nil
			}
		}},
		{"messenger", func() {
			if r.instance != nil {
				r.instance.destroyMessenger()
			}
		}},
		{"surface", func() {
			if r.surface.Initialized() {
				r.surfaceExt.DestroySurface(r.surface, nil)
				r.surface = khr_surface.Surface{}
			}
		}},
		{"instance", func() {
			if r.instance != nil {
				r.instance.Destroy()
				r.instance = nil
			}
		}},
	}
}

// Close destroys everything, dependents before dependencies. Safe to
// call on a partially constructed renderer, after Run, and repeatedly.
func (r *Renderer) Close() {
	for _, phase := range r.teardown() {
		phase.fn()
	}
}
