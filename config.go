package vkpace

import (
	"log"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// DefaultFramesInFlight bounds how far the CPU may run ahead of the
// GPU when Config.FramesInFlight is zero.
const DefaultFramesInFlight = 2

// Config carries the process-wide settings consumed once at startup.
type Config struct {
	AppName string

	// Requested drawable size. Only honored when the surface reports
	// the "any extent" sentinel; otherwise the surface dictates.
	Width  int
	Height int

	// FramesInFlight is the number of frame slots, independent of the
	// swapchain image count. Zero means DefaultFramesInFlight.
	FramesInFlight int

	// Diagnostics requests the validation layer and a debug messenger
	// that forwards every driver message to Sink.
	Diagnostics bool

	// Sink receives driver diagnostics when Diagnostics is set. Nil
	// means a stderr logger.
	Sink DiagnosticSink

	// SPIR-V bytecode and geometry for the fixed pipeline. Producing
	// these is the caller's problem; the package only consumes them.
	VertexShader   []byte
	FragmentShader []byte
	Vertices       []Vertex
	Indices        []uint32
}

func (c *Config) framesInFlight() int {
	if c.FramesInFlight <= 0 {
		return DefaultFramesInFlight
	}
	return c.FramesInFlight
}

func (c *Config) sink() DiagnosticSink {
	if c.Sink == nil {
		return NewLogSink(nil)
	}
	return c.Sink
}

// DiagnosticSink receives driver-level diagnostic messages. Recording
// never alters control flow: even messages the driver classifies as
// errors are logged and dropped.
type DiagnosticSink interface {
	Record(severity ext_debug_utils.DebugUtilsMessageSeverityFlags, msgType ext_debug_utils.DebugUtilsMessageTypeFlags, message string)
}

// LogSink writes diagnostics to a standard logger.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink returns a sink over logger, or the process default logger
// when logger is nil.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(severity ext_debug_utils.DebugUtilsMessageSeverityFlags, msgType ext_debug_utils.DebugUtilsMessageTypeFlags, message string) {
	s.logger.Printf("[%s %s] - %s", severity, msgType, message)
}

// depthFormatCandidates is the prioritized list of acceptable depth
// formats, most preferred first.
var depthFormatCandidates = []core1_0.Format{
	core1_0.FormatD32SignedFloat,
	core1_0.FormatD32SignedFloatS8UnsignedInt,
	core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

// requiredDeviceExtensions is the minimum extension set a device must
// support to be selectable.
var requiredDeviceExtensions = []string{khr_swapchain.ExtensionName}
