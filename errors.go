package vkpace

import "github.com/cockroachdb/errors"

// Environment-absence failures discovered during negotiation. Both are
// terminal: there is no retry path anywhere in this package, a failure
// means the process cannot render on this machine.
var (
	// ErrNoPhysicalDevices is returned when the instance exposes no
	// physical devices at all.
	ErrNoPhysicalDevices = errors.New("no physical devices available")

	// ErrNoSuitableDevice is returned when devices exist but none
	// satisfies every negotiation predicate.
	ErrNoSuitableDevice = errors.New("no suitable physical device found")
)

// Resource-creation failure classes. Each is marked onto the wrapped
// driver error so callers can classify with errors.Is instead of
// string matching; all are as terminal as the negotiation failures.
var (
	ErrSwapchainCreation   = errors.New("swapchain creation failed")
	ErrImageViewCreation   = errors.New("image view creation failed")
	ErrFramebufferCreation = errors.New("framebuffer creation failed")
)
