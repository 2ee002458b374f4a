// Package vkpace initializes a Vulkan rendering context and drives a
// fixed-pipeline frame loop that keeps CPU submission, GPU execution,
// and presentation in lockstep.
//
// The package is split along the phases of startup: an instance is
// built from a SurfaceProvider's requirements, the capability
// negotiator picks a physical device and establishes a DeviceContext,
// the target builder creates the swapchain and its per-image
// presentation targets, the resource builder records one command
// buffer per target, and the frame scheduler paces a bounded number of
// frames in flight between CPU and GPU. Everything before the
// scheduler runs exactly once; resources are destroyed in reverse
// order of creation at shutdown.
package vkpace
