package vkpace

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestCreationErrorClasses(t *testing.T) {
	// Resource-creation failures are marked with their class so callers
	// can classify them without losing the underlying driver error.
	driverErr := errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")
	err := errors.Mark(errors.Wrap(driverErr, "creating swapchain"), ErrSwapchainCreation)

	assert.ErrorIs(t, err, ErrSwapchainCreation)
	assert.ErrorIs(t, err, driverErr)

	// The classes are distinct from each other and from the
	// negotiation sentinels.
	assert.NotErrorIs(t, err, ErrImageViewCreation)
	assert.NotErrorIs(t, err, ErrFramebufferCreation)
	assert.NotErrorIs(t, err, ErrNoSuitableDevice)
}
