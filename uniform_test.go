package vkpace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeUniformDeterministic(t *testing.T) {
	assert.Equal(t, computeUniform(1.25, 4.0/3.0), computeUniform(1.25, 4.0/3.0))
}

func TestComputeUniformRotationWraps(t *testing.T) {
	// The model orientation repeats with the rotation period; view and
	// projection never vary with time at all.
	a := computeUniform(0.5, 1.0)
	b := computeUniform(0.5+rotationPeriodSeconds, 1.0)

	assert.Equal(t, a.Model, b.Model)
	assert.Equal(t, a.View, b.View)
	assert.Equal(t, a.Proj, b.Proj)
}

func TestComputeUniformAspectOnlyAffectsProjection(t *testing.T) {
	narrow := computeUniform(2.0, 1.0)
	wide := computeUniform(2.0, 16.0/9.0)

	assert.Equal(t, narrow.Model, wide.Model)
	assert.Equal(t, narrow.View, wide.View)
	assert.NotEqual(t, narrow.Proj, wide.Proj)
}
