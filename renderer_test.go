package vkpace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseTeardownOrder(t *testing.T) {
	// Dependents before dependencies: the pipeline resources phase
	// releases every framebuffer and the depth buffer ahead of the
	// render pass they were built against, so it must run before the
	// remaining targets; the descriptor set layout waits for the
	// swapchain; the messenger goes before the surface it may report
	// on, and the instance goes last.
	r := &Renderer{}

	var phases []string
	for _, phase := range r.teardown() {
		phases = append(phases, phase.name)
	}

	assert.Equal(t, []string{
		"backend",
		"resources",
		"targets",
		"descriptor set layout",
		"device",
		"messenger",
		"surface",
		"instance",
	}, phases)
}

func TestCloseOnPartialRenderer(t *testing.T) {
	// Every phase nil-checks its component, so Close is safe both on a
	// renderer whose construction failed partway and when called twice.
	r := &Renderer{}

	assert.NotPanics(t, func() { r.Close() })
	assert.NotPanics(t, func() { r.Close() })
}
