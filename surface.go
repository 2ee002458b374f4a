package vkpace

import (
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

// SurfaceProvider supplies the platform drawing surface and everything
// the instance needs to use it. The renderer consumes it, it never
// creates one.
type SurfaceProvider interface {
	// InstanceExtensions lists the instance extensions the surface
	// requires.
	InstanceExtensions() []string

	// CreateSurface produces the drawing surface for the given
	// instance.
	CreateSurface(instance core1_0.CoreInstanceDriver, ext khr_surface.ExtensionDriver) (khr_surface.Surface, error)

	// DrawableSize reports the current drawable size in pixels.
	DrawableSize() (width, height int)

	// PumpEvents drains pending window events. It reports whether a
	// close was requested and whether rendering should proceed this
	// iteration (false while the window is minimized).
	PumpEvents() (closeRequested, render bool)
}

// SDLWindow is the stock SurfaceProvider over an SDL2 window.
type SDLWindow struct {
	window    *sdl.Window
	minimized bool
}

// NewSDLWindow initializes SDL video and opens a Vulkan-capable window
// of the requested size. It also resolves the Vulkan loader through
// SDL; the returned driver is the entry point for all instance work.
func NewSDLWindow(title string, width, height int) (*SDLWindow, core1_0.GlobalDriver, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, nil, err
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN)
	if err != nil {
		return nil, nil, err
	}

	driver, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		window.Destroy()
		return nil, nil, err
	}

	return &SDLWindow{window: window}, driver, nil
}

func (w *SDLWindow) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *SDLWindow) CreateSurface(instance core1_0.CoreInstanceDriver, ext khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return vkng_sdl2.CreateSurface(instance.Instance(), ext, w.window)
}

func (w *SDLWindow) DrawableSize() (int, int) {
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

func (w *SDLWindow) PumpEvents() (bool, bool) {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			return true, false
		case *sdl.WindowEvent:
			switch e.Event {
			case sdl.WINDOWEVENT_MINIMIZED:
				w.minimized = true
			case sdl.WINDOWEVENT_RESTORED:
				w.minimized = false
			}
		}
	}
	return false, !w.minimized
}

// Destroy closes the window and shuts SDL down. Call after the
// instance is gone.
func (w *SDLWindow) Destroy() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
