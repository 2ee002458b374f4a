package vkpace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

type fakeDevice struct {
	extensions   []string
	families     []core1_0.QueueFamilyProperties
	presentAt    map[int]bool
	capabilities khr_surface.SurfaceCapabilities
	formats      []khr_surface.SurfaceFormat
	presentModes []khr_surface.PresentMode
	depthFormats []core1_0.Format
}

// newCompliantDevice satisfies every selection predicate.
func newCompliantDevice() *fakeDevice {
	return &fakeDevice{
		extensions: []string{khr_swapchain.ExtensionName},
		families: []core1_0.QueueFamilyProperties{
			{QueueFlags: core1_0.QueueGraphics},
		},
		presentAt: map[int]bool{0: true},
		capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount: 2,
			CurrentExtent: core1_0.Extent2D{Width: 800, Height: 600},
		},
		formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		presentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
		depthFormats: []core1_0.Format{core1_0.FormatD32SignedFloat},
	}
}

func (d *fakeDevice) ExtensionProperties() (map[string]core1_0.ExtensionProperties, error) {
	out := make(map[string]core1_0.ExtensionProperties)
	for _, name := range d.extensions {
		out[name] = core1_0.ExtensionProperties{}
	}
	return out, nil
}

func (d *fakeDevice) QueueFamilyProperties() []core1_0.QueueFamilyProperties {
	return d.families
}

func (d *fakeDevice) SurfaceSupport(queueFamily int) (bool, error) {
	return d.presentAt[queueFamily], nil
}

func (d *fakeDevice) SurfaceDetails() (SurfaceDetails, error) {
	return SurfaceDetails{
		Capabilities: &d.capabilities,
		Formats:      d.formats,
		PresentModes: d.presentModes,
	}, nil
}

func (d *fakeDevice) FormatProperties(format core1_0.Format) core1_0.FormatProperties {
	for _, supported := range d.depthFormats {
		if supported == format {
			return core1_0.FormatProperties{
				OptimalTilingFeatures: core1_0.FormatFeatureDepthStencilAttachment,
			}
		}
	}
	return core1_0.FormatProperties{}
}

func TestSelectDeviceFirstFit(t *testing.T) {
	// Device 1 is "better" (more queue families, more formats), but
	// device 0 already satisfies every predicate and must win.
	better := newCompliantDevice()
	better.families = append(better.families, core1_0.QueueFamilyProperties{QueueFlags: core1_0.QueueGraphics | core1_0.QueueCompute})
	better.formats = append(better.formats, khr_surface.SurfaceFormat{Format: core1_0.FormatR8G8B8A8SRGB})

	selection, err := selectDevice([]DeviceQuery{newCompliantDevice(), better}, requiredDeviceExtensions, depthFormatCandidates)
	require.NoError(t, err)
	assert.Equal(t, 0, selection.index)
}

func TestSelectDeviceSkipsMissingExtension(t *testing.T) {
	missing := newCompliantDevice()
	missing.extensions = nil

	selection, err := selectDevice([]DeviceQuery{missing, newCompliantDevice()}, requiredDeviceExtensions, depthFormatCandidates)
	require.NoError(t, err)
	assert.Equal(t, 1, selection.index)
}

func TestSelectDeviceNoDevices(t *testing.T) {
	_, err := selectDevice(nil, requiredDeviceExtensions, depthFormatCandidates)
	assert.ErrorIs(t, err, ErrNoPhysicalDevices)
}

func TestSelectDeviceNoneSuitable(t *testing.T) {
	noExtension := newCompliantDevice()
	noExtension.extensions = nil

	noPresent := newCompliantDevice()
	noPresent.presentAt = nil

	noFormats := newCompliantDevice()
	noFormats.formats = nil

	noModes := newCompliantDevice()
	noModes.presentModes = nil

	noDepth := newCompliantDevice()
	noDepth.depthFormats = nil

	_, err := selectDevice([]DeviceQuery{noExtension, noPresent, noFormats, noModes, noDepth}, requiredDeviceExtensions, depthFormatCandidates)
	assert.ErrorIs(t, err, ErrNoSuitableDevice)
}

func TestSelectDeviceDepthCandidateOrder(t *testing.T) {
	// Only the last candidate is supported.
	fallback := newCompliantDevice()
	fallback.depthFormats = []core1_0.Format{core1_0.FormatD24UnsignedNormalizedS8UnsignedInt}

	selection, err := selectDevice([]DeviceQuery{fallback}, requiredDeviceExtensions, depthFormatCandidates)
	require.NoError(t, err)
	assert.Equal(t, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt, selection.depthFormat)

	// With every candidate supported, the most preferred one wins.
	all := newCompliantDevice()
	all.depthFormats = depthFormatCandidates

	selection, err = selectDevice([]DeviceQuery{all}, requiredDeviceExtensions, depthFormatCandidates)
	require.NoError(t, err)
	assert.Equal(t, core1_0.FormatD32SignedFloat, selection.depthFormat)
}

func TestFindQueueFamiliesFirstIndexPerDuty(t *testing.T) {
	device := newCompliantDevice()
	device.families = []core1_0.QueueFamilyProperties{
		{QueueFlags: core1_0.QueueTransfer},
		{QueueFlags: core1_0.QueueGraphics},
		{QueueFlags: core1_0.QueueGraphics},
	}
	device.presentAt = map[int]bool{0: true, 2: true}

	indices := findQueueFamilies(device)
	require.True(t, indices.Complete())
	assert.Equal(t, 1, *indices.Graphics)
	assert.Equal(t, 0, *indices.Present)
}

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	other := khr_surface.SurfaceFormat{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	// Preferred pair wins wherever it appears.
	assert.Equal(t, preferred, chooseSurfaceFormat([]khr_surface.SurfaceFormat{other, preferred}))

	// Without it, index 0 wins regardless of content.
	assert.Equal(t, other, chooseSurfaceFormat([]khr_surface.SurfaceFormat{other, {Format: core1_0.FormatB8G8R8A8SRGB}}))
}

func TestChoosePresentMode(t *testing.T) {
	// Mailbox found later in scan order still beats an earlier
	// fallback candidate.
	assert.Equal(t, khr_surface.PresentModeMailbox,
		choosePresentMode([]khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}))

	// FIFO wins over anything that is not mailbox.
	assert.Equal(t, khr_surface.PresentModeFIFO,
		choosePresentMode([]khr_surface.PresentMode{khr_surface.PresentModeImmediate, khr_surface.PresentModeFIFO}))

	// Neither present: first entry.
	assert.Equal(t, khr_surface.PresentModeImmediate,
		choosePresentMode([]khr_surface.PresentMode{khr_surface.PresentModeImmediate, khr_surface.PresentModeFIFORelaxed}))
}

func TestChooseExtent(t *testing.T) {
	anySize := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 400, Height: 400},
		MaxImageExtent: core1_0.Extent2D{Width: 1000, Height: 1000},
	}

	// In range: request honored.
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, chooseExtent(anySize, 800, 600))

	// Below minimum: clamped up per axis.
	assert.Equal(t, core1_0.Extent2D{Width: 400, Height: 400}, chooseExtent(anySize, 50, 50))

	// Above maximum: clamped down per axis.
	assert.Equal(t, core1_0.Extent2D{Width: 1000, Height: 500}, chooseExtent(anySize, 2000, 500))

	// Fixed surface extent: the request is ignored entirely.
	fixed := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: 640, Height: 480},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 640, Height: 480}, chooseExtent(fixed, 800, 600))
}
