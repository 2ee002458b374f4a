package vkpace

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

// Instance owns the Vulkan instance and, when diagnostics are on, the
// debug messenger that feeds the sink.
type Instance struct {
	Driver core1_0.CoreInstanceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger
}

// BuildInstance creates the instance with the surface provider's
// required extensions. When cfg.Diagnostics is set it additionally
// enables the validation layer and attaches a messenger forwarding
// every driver message to the sink without altering control flow.
func BuildInstance(global core1_0.GlobalDriver, cfg *Config, provider SurfaceProvider) (*Instance, error) {
	createInfo := core1_0.InstanceCreateInfo{
		ApplicationName:    cfg.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	available, _, err := global.AvailableExtensions()
	if err != nil {
		return nil, err
	}

	for _, ext := range provider.InstanceExtensions() {
		_, hasExt := available[ext]
		if !hasExt {
			return nil, errors.Errorf("surface provider requires unavailable instance extension %s", ext)
		}
		createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, ext)
	}

	if cfg.Diagnostics {
		createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	// Required on MoltenVK and other portability implementations.
	_, enumerationSupported := available[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		createInfo.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	sink := cfg.sink()
	if cfg.Diagnostics {
		layers, _, err := global.AvailableLayers()
		if err != nil {
			return nil, err
		}

		for _, layer := range validationLayers {
			_, hasLayer := layers[layer]
			if !hasLayer {
				return nil, errors.Errorf("validation layer %s not available - install the LunarG Vulkan SDK", layer)
			}
			createInfo.EnabledLayerNames = append(createInfo.EnabledLayerNames, layer)
		}

		// Covers instance creation itself, before the messenger exists.
		createInfo.Next = messengerCreateInfo(sink)
	}

	instance := &Instance{}
	instance.Driver, _, err = global.CreateInstance(nil, createInfo)
	if err != nil {
		return nil, errors.Wrap(err, "creating instance")
	}

	if cfg.Diagnostics {
		instance.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(instance.Driver)
		instance.debugMessenger, _, err = instance.debugDriver.CreateDebugUtilsMessenger(nil, messengerCreateInfo(sink))
		if err != nil {
			instance.Driver.DestroyInstance(nil)
			return nil, errors.Wrap(err, "creating debug messenger")
		}
	}

	return instance, nil
}

func messengerCreateInfo(sink DiagnosticSink) ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback: func(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
			sink.Record(severity, msgType, data.Message)
			return false
		},
	}
}

func (i *Instance) destroyMessenger() {
	if i.debugMessenger.Initialized() {
		i.debugDriver.DestroyDebugUtilsMessenger(i.debugMessenger, nil)
		i.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}
}

// Destroy tears down the messenger and then the instance.
func (i *Instance) Destroy() {
	i.destroyMessenger()

	if i.Driver != nil {
		i.Driver.DestroyInstance(nil)
		i.Driver = nil
	}
}
