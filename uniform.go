package vkpace

import (
	"math"

	vkngmath "github.com/vkngwrapper/math"
)

// UniformBufferObject is the per-frame uniform payload: two
// orientation matrices and one projection matrix.
type UniformBufferObject struct {
	Model vkngmath.Mat4x4[float32]
	View  vkngmath.Mat4x4[float32]
	Proj  vkngmath.Mat4x4[float32]
}

// rotationPeriodSeconds is the wall-clock time for one full turn of
// the model around Z.
const rotationPeriodSeconds = 4.0

// computeUniform derives the uniform payload purely from elapsed time
// and the draw aspect ratio: a quarter turn per second around Z, a
// fixed look-at, and a perspective projection.
func computeUniform(elapsedSeconds float64, aspectRatio float32) UniformBufferObject {
	timePeriod := math.Mod(elapsedSeconds, rotationPeriodSeconds)

	ubo := UniformBufferObject{}
	ubo.Model.SetRotationZ(timePeriod * math.Pi / 2.0)
	ubo.View.SetLookAt(
		&vkngmath.Vec3[float32]{X: 2, Y: 2, Z: 2},
		&vkngmath.Vec3[float32]{X: 0, Y: 0, Z: 0},
		&vkngmath.Vec3[float32]{X: 0, Y: 0, Z: 1},
	)

	near := float32(0.1)
	far := float32(10.0)
	fovy := math.Pi / 4.0

	ubo.Proj.SetPerspective(fovy, aspectRatio, near, far)

	return ubo
}

// writeUniform recomputes the payload and stores it in the target's
// own uniform buffer. Targets are addressed by image index, never by
// frame slot: the pre-recorded command buffer for an image references
// that image's buffer.
func writeUniform(ctx *DeviceContext, target *PresentationTarget, elapsedSeconds float64) error {
	aspectRatio := float32(ctx.Extent.Width) / float32(ctx.Extent.Height)
	ubo := computeUniform(elapsedSeconds, aspectRatio)
	return writeData(ctx.Device, target.UniformMemory, 0, &ubo)
}
