package vkpace

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// QueueFamilyIndices holds the first queue family found for each duty.
// The two may name the same family.
type QueueFamilyIndices struct {
	Graphics *int
	Present  *int
}

func (i QueueFamilyIndices) Complete() bool {
	return i.Graphics != nil && i.Present != nil
}

// SurfaceDetails is what the surface reports for one physical device.
type SurfaceDetails struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

// DeviceQuery exposes the per-device facts negotiation depends on.
// Production wraps a physical device handle; tests supply fakes.
type DeviceQuery interface {
	ExtensionProperties() (map[string]core1_0.ExtensionProperties, error)
	QueueFamilyProperties() []core1_0.QueueFamilyProperties
	SurfaceSupport(queueFamily int) (bool, error)
	SurfaceDetails() (SurfaceDetails, error)
	FormatProperties(format core1_0.Format) core1_0.FormatProperties
}

// deviceSelection is the outcome of the pure selection pass.
type deviceSelection struct {
	index       int
	families    QueueFamilyIndices
	details     SurfaceDetails
	depthFormat core1_0.Format
}

// selectDevice walks devices in enumeration order and keeps the first
// one satisfying every predicate: required extensions present, a
// graphics and a presentation queue family exist, the surface reports
// at least one format and one present mode, and one of the depth
// candidates supports depth-stencil attachment with optimal tiling.
// There is no ranking across devices.
func selectDevice(devices []DeviceQuery, required []string, depthCandidates []core1_0.Format) (deviceSelection, error) {
	if len(devices) == 0 {
		return deviceSelection{}, ErrNoPhysicalDevices
	}

	for deviceIndex, device := range devices {
		if !supportsExtensions(device, required) {
			continue
		}

		families := findQueueFamilies(device)
		if !families.Complete() {
			continue
		}

		details, err := device.SurfaceDetails()
		if err != nil || len(details.Formats) == 0 || len(details.PresentModes) == 0 {
			continue
		}

		depthFormat, ok := findDepthFormat(device, depthCandidates)
		if !ok {
			continue
		}

		return deviceSelection{
			index:       deviceIndex,
			families:    families,
			details:     details,
			depthFormat: depthFormat,
		}, nil
	}

	return deviceSelection{}, ErrNoSuitableDevice
}

func supportsExtensions(device DeviceQuery, required []string) bool {
	extensions, err := device.ExtensionProperties()
	if err != nil {
		return false
	}

	for _, extension := range required {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

// findQueueFamilies records the first family index supporting each
// duty independently and stops as soon as both are known.
func findQueueFamilies(device DeviceQuery) QueueFamilyIndices {
	var indices QueueFamilyIndices

	for familyIndex, family := range device.QueueFamilyProperties() {
		if indices.Graphics == nil && (family.QueueFlags&core1_0.QueueGraphics) != 0 {
			index := familyIndex
			indices.Graphics = &index
		}

		if indices.Present == nil {
			supported, err := device.SurfaceSupport(familyIndex)
			if err == nil && supported {
				index := familyIndex
				indices.Present = &index
			}
		}

		if indices.Complete() {
			break
		}
	}

	return indices
}

// findDepthFormat returns the first candidate supporting depth-stencil
// attachment with optimal tiling.
func findDepthFormat(device DeviceQuery, candidates []core1_0.Format) (core1_0.Format, bool) {
	for _, format := range candidates {
		props := device.FormatProperties(format)
		if (props.OptimalTilingFeatures & core1_0.FormatFeatureDepthStencilAttachment) == core1_0.FormatFeatureDepthStencilAttachment {
			return format, true
		}
	}
	return 0, false
}

// chooseSurfaceFormat prefers B8G8R8A8 sRGB in the sRGB nonlinear
// color space; with no match the list's first entry wins.
func chooseSurfaceFormat(formats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range formats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return formats[0]
}

// choosePresentMode prefers mailbox wherever it appears, then FIFO,
// then the list's first entry.
func choosePresentMode(modes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range modes {
		if mode == khr_surface.PresentModeMailbox {
			return mode
		}
	}

	for _, mode := range modes {
		if mode == khr_surface.PresentModeFIFO {
			return mode
		}
	}

	return modes[0]
}

// chooseExtent resolves the draw extent. A current extent of -1 is the
// surface's "any size accepted" sentinel, in which case the requested
// size is clamped per axis into the supported range; otherwise the
// surface dictates and the request is ignored.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, requestedWidth, requestedHeight int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	width := requestedWidth
	height := requestedHeight

	if width < capabilities.MinImageExtent.Width {
		width = capabilities.MinImageExtent.Width
	}
	if width > capabilities.MaxImageExtent.Width {
		width = capabilities.MaxImageExtent.Width
	}
	if height < capabilities.MinImageExtent.Height {
		height = capabilities.MinImageExtent.Height
	}
	if height > capabilities.MaxImageExtent.Height {
		height = capabilities.MaxImageExtent.Height
	}

	return core1_0.Extent2D{Width: width, Height: height}
}

// DeviceContext is the negotiator's output: the selected device, its
// logical device and queues, and every choice the rest of the startup
// path builds on. Immutable after creation.
type DeviceContext struct {
	Instance         core1_0.CoreInstanceDriver
	SurfaceExtension khr_surface.ExtensionDriver
	Surface          khr_surface.Surface

	PhysicalDevice core1_0.PhysicalDevice
	Device         core1_0.CoreDeviceDriver

	GraphicsQueue  core1_0.Queue
	PresentQueue   core1_0.Queue
	GraphicsFamily int
	PresentFamily  int

	SurfaceFormat khr_surface.SurfaceFormat
	PresentMode   khr_surface.PresentMode
	Extent        core1_0.Extent2D
	DepthFormat   core1_0.Format

	Capabilities *khr_surface.SurfaceCapabilities

	DeviceName        string
	PipelineCacheUUID uuid.UUID
}

// physicalDeviceQuery adapts one enumerated physical device to the
// DeviceQuery seam.
type physicalDeviceQuery struct {
	instance   core1_0.CoreInstanceDriver
	surfaceExt khr_surface.ExtensionDriver
	surface    khr_surface.Surface
	device     core1_0.PhysicalDevice
}

func (q *physicalDeviceQuery) ExtensionProperties() (map[string]core1_0.ExtensionProperties, error) {
	extensions, _, err := q.instance.EnumerateDeviceExtensionProperties(q.device)
	return extensions, err
}

func (q *physicalDeviceQuery) QueueFamilyProperties() []core1_0.QueueFamilyProperties {
	return q.instance.GetPhysicalDeviceQueueFamilyProperties(q.device)
}

func (q *physicalDeviceQuery) SurfaceSupport(queueFamily int) (bool, error) {
	supported, _, err := q.surfaceExt.GetPhysicalDeviceSurfaceSupport(q.surface, q.device, queueFamily)
	return supported, err
}

func (q *physicalDeviceQuery) SurfaceDetails() (SurfaceDetails, error) {
	var details SurfaceDetails
	var err error

	details.Capabilities, _, err = q.surfaceExt.GetPhysicalDeviceSurfaceCapabilities(q.surface, q.device)
	if err != nil {
		return details, err
	}

	details.Formats, _, err = q.surfaceExt.GetPhysicalDeviceSurfaceFormats(q.surface, q.device)
	if err != nil {
		return details, err
	}

	details.PresentModes, _, err = q.surfaceExt.GetPhysicalDeviceSurfacePresentModes(q.surface, q.device)
	return details, err
}

func (q *physicalDeviceQuery) FormatProperties(format core1_0.Format) core1_0.FormatProperties {
	return q.instance.GetPhysicalDeviceFormatProperties(q.device, format)
}

// Negotiate enumerates physical devices, selects the first suitable
// one, resolves the surface format, present mode and extent, and
// creates the logical device and its queues.
func Negotiate(instance core1_0.CoreInstanceDriver, surfaceExt khr_surface.ExtensionDriver, surface khr_surface.Surface, cfg *Config) (*DeviceContext, error) {
	physicalDevices, _, err := instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerating physical devices")
	}

	queries := make([]DeviceQuery, 0, len(physicalDevices))
	for i := range physicalDevices {
		queries = append(queries, &physicalDeviceQuery{
			instance:   instance,
			surfaceExt: surfaceExt,
			surface:    surface,
			device:     physicalDevices[i],
		})
	}

	selection, err := selectDevice(queries, requiredDeviceExtensions, depthFormatCandidates)
	if err != nil {
		return nil, err
	}

	physicalDevice := physicalDevices[selection.index]

	ctx := &DeviceContext{
		Instance:         instance,
		SurfaceExtension: surfaceExt,
		Surface:          surface,
		PhysicalDevice:   physicalDevice,

		GraphicsFamily: *selection.families.Graphics,
		PresentFamily:  *selection.families.Present,

		SurfaceFormat: chooseSurfaceFormat(selection.details.Formats),
		PresentMode:   choosePresentMode(selection.details.PresentModes),
		Extent:        chooseExtent(selection.details.Capabilities, cfg.Width, cfg.Height),
		DepthFormat:   selection.depthFormat,
		Capabilities:  selection.details.Capabilities,
	}

	properties, err := instance.GetPhysicalDeviceProperties(physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "reading device properties")
	}
	ctx.DeviceName = properties.DeviceName
	ctx.PipelineCacheUUID = properties.PipelineCacheUUID

	uniqueFamilies := []int{ctx.GraphicsFamily}
	if ctx.PresentFamily != ctx.GraphicsFamily {
		uniqueFamilies = append(uniqueFamilies, ctx.PresentFamily)
	}

	var queueCreateInfos []core1_0.DeviceQueueCreateInfo
	for _, family := range uniqueFamilies {
		queueCreateInfos = append(queueCreateInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string{}, requiredDeviceExtensions...)

	// Portability implementations require this extension on any device
	// advertising it.
	deviceExtensions, _, err := instance.EnumerateDeviceExtensionProperties(physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "enumerating device extensions")
	}
	_, portability := deviceExtensions[khr_portability_subset.ExtensionName]
	if portability {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	ctx.Device, _, err = instance.CreateDevice(physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueCreateInfos,
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating logical device")
	}

	ctx.GraphicsQueue = ctx.Device.GetQueue(ctx.GraphicsFamily, 0)
	ctx.PresentQueue = ctx.Device.GetQueue(ctx.PresentFamily, 0)

	if cfg.Diagnostics {
		cfg.sink().Record(ext_debug_utils.SeverityInfo, ext_debug_utils.TypeGeneral,
			fmt.Sprintf("selected device %q, pipeline cache %s", ctx.DeviceName, ctx.PipelineCacheUUID))
	}

	return ctx, nil
}

// Destroy releases the logical device. The surface and instance belong
// to their own owners.
func (ctx *DeviceContext) Destroy() {
	if ctx.Device != nil {
		ctx.Device.DestroyDevice(nil)
		ctx.Device = nil
	}
}
