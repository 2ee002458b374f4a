package vkpace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

func TestSwapImageCount(t *testing.T) {
	// Unbounded maximum: one more than the minimum.
	assert.Equal(t, 3, swapImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2}))

	// Bounded maximum caps the count.
	assert.Equal(t, 3, swapImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 3}))

	// A roomy maximum changes nothing.
	assert.Equal(t, 3, swapImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
}

func TestImageSharing(t *testing.T) {
	// Same family: exclusive, no explicit family list.
	mode, families := imageSharing(0, 0)
	assert.Equal(t, core1_0.SharingModeExclusive, mode)
	assert.Empty(t, families)

	// Distinct families must share concurrently.
	mode, families = imageSharing(0, 2)
	assert.Equal(t, core1_0.SharingModeConcurrent, mode)
	assert.Equal(t, []int{0, 2}, families)
}
