package vkpace

import "github.com/loov/hrtime"

// FrameBackend is the device side of the frame loop. Slots are frame
// slot indices; images are presentation target indices. The two run at
// independent rates whenever the slot count differs from the target
// count. All waits are unbounded.
type FrameBackend interface {
	// WaitSlot blocks until the GPU has retired whatever frame last
	// used the slot.
	WaitSlot(slot int) error

	// ResetSlot returns the slot's fence to unsignaled ahead of a new
	// submission.
	ResetSlot(slot int) error

	// Acquire requests the next presentable image, signaling the
	// slot's image-available semaphore when it becomes usable.
	Acquire(slot int) (imageIndex int, err error)

	// UpdateUniform recomputes the time-varying uniform payload and
	// writes it to the image's own uniform buffer.
	UpdateUniform(imageIndex int, elapsedSeconds float64) error

	// Submit queues the image's pre-recorded commands, waiting on the
	// slot's image-available semaphore at the color-attachment-output
	// stage and signaling the slot's render-finished semaphore and
	// fence on completion.
	Submit(slot, imageIndex int) error

	// Present queues the image for presentation after the slot's
	// render-finished semaphore signals.
	Present(slot, imageIndex int) error

	// WaitIdle blocks until the device has retired all work.
	WaitIdle() error
}

const unclaimed = -1

// Scheduler paces the frame loop: it bounds the CPU's lead over the
// GPU to the slot count and serializes reuse of each presentation
// target through the slots' fences. Single-threaded; the only real
// parallelism is between this loop and the GPU, mediated entirely by
// the backend's primitives.
type Scheduler struct {
	backend        FrameBackend
	framesInFlight int

	// imageOwner[image] is the slot whose submission last claimed the
	// image, or unclaimed. It is the guard against a target with a
	// long in-flight lifetime being overwritten by a new submission.
	imageOwner []int

	currentFrame int
	clock        func() float64
}

// NewScheduler builds a scheduler over framesInFlight slots and
// targetCount presentation targets. clock reports elapsed seconds for
// the uniform payload; nil means wall clock since construction.
func NewScheduler(backend FrameBackend, framesInFlight, targetCount int, clock func() float64) *Scheduler {
	if clock == nil {
		start := hrtime.Now()
		clock = func() float64 {
			return (hrtime.Now() - start).Seconds()
		}
	}

	owner := make([]int, targetCount)
	for i := range owner {
		owner[i] = unclaimed
	}

	return &Scheduler{
		backend:        backend,
		framesInFlight: framesInFlight,
		imageOwner:     owner,
		clock:          clock,
	}
}

// CurrentFrame reports the slot the next frame will use.
func (s *Scheduler) CurrentFrame() int {
	return s.currentFrame
}

// RunFrame executes one iteration of the frame state machine:
// throttle, acquire, uniform update, cross-wait, claim, submit,
// present, advance.
func (s *Scheduler) RunFrame() error {
	slot := s.currentFrame

	// Throttle: the CPU may not race ahead of the GPU by more than the
	// slot count.
	err := s.backend.WaitSlot(slot)
	if err != nil {
		return err
	}

	imageIndex, err := s.backend.Acquire(slot)
	if err != nil {
		return err
	}

	err = s.backend.UpdateUniform(imageIndex, s.clock())
	if err != nil {
		return err
	}

	// Cross-wait: when targets outnumber slots, the image may still be
	// held by a different slot than the one that just throttled.
	if owner := s.imageOwner[imageIndex]; owner != unclaimed {
		err = s.backend.WaitSlot(owner)
		if err != nil {
			return err
		}
	}
	s.imageOwner[imageIndex] = slot

	err = s.backend.ResetSlot(slot)
	if err != nil {
		return err
	}

	err = s.backend.Submit(slot, imageIndex)
	if err != nil {
		return err
	}

	err = s.backend.Present(slot, imageIndex)
	if err != nil {
		return err
	}

	s.currentFrame = (slot + 1) % s.framesInFlight
	return nil
}

// Run pumps events and renders until a close is requested, then waits
// for the device to go idle so teardown can proceed safely. The close
// request is the only cancellation path, checked once per iteration.
func (s *Scheduler) Run(provider SurfaceProvider) error {
	for {
		closeRequested, render := provider.PumpEvents()
		if closeRequested {
			break
		}

		if !render {
			continue
		}

		err := s.RunFrame()
		if err != nil {
			return err
		}
	}

	return s.backend.WaitIdle()
}
