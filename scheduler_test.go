package vkpace

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// fakeBackend scripts acquisition order and tracks which slots have
// unfenced submissions outstanding.
type fakeBackend struct {
	acquireOrder  []int
	acquireCursor int

	outstanding    map[int]bool
	maxOutstanding int

	uniformWrites []int
	events        []string
	idleWaits     int

	acquireErr error
}

func newFakeBackend(acquireOrder []int) *fakeBackend {
	return &fakeBackend{
		acquireOrder: acquireOrder,
		outstanding:  map[int]bool{},
	}
}

func (b *fakeBackend) WaitSlot(slot int) error {
	// A fence wait retires the slot's submission.
	delete(b.outstanding, slot)
	b.events = append(b.events, fmt.Sprintf("wait %d", slot))
	return nil
}

func (b *fakeBackend) ResetSlot(slot int) error {
	b.events = append(b.events, fmt.Sprintf("reset %d", slot))
	return nil
}

func (b *fakeBackend) Acquire(slot int) (int, error) {
	if b.acquireErr != nil {
		return 0, b.acquireErr
	}
	image := b.acquireOrder[b.acquireCursor%len(b.acquireOrder)]
	b.acquireCursor++
	b.events = append(b.events, fmt.Sprintf("acquire %d", image))
	return image, nil
}

func (b *fakeBackend) UpdateUniform(imageIndex int, elapsedSeconds float64) error {
	b.uniformWrites = append(b.uniformWrites, imageIndex)
	b.events = append(b.events, fmt.Sprintf("update %d", imageIndex))
	return nil
}

func (b *fakeBackend) Submit(slot, imageIndex int) error {
	b.outstanding[slot] = true
	if len(b.outstanding) > b.maxOutstanding {
		b.maxOutstanding = len(b.outstanding)
	}
	b.events = append(b.events, fmt.Sprintf("submit %d %d", slot, imageIndex))
	return nil
}

func (b *fakeBackend) Present(slot, imageIndex int) error {
	b.events = append(b.events, fmt.Sprintf("present %d %d", slot, imageIndex))
	return nil
}

func (b *fakeBackend) WaitIdle() error {
	b.outstanding = map[int]bool{}
	b.idleWaits++
	return nil
}

func TestSchedulerSlotCycle(t *testing.T) {
	// Two frame slots over three targets: the slot index cycles
	// 0,1,0,1,0 while image indices follow acquisition order.
	backend := newFakeBackend([]int{0, 1, 2, 0, 1})
	scheduler := NewScheduler(backend, 2, 3, func() float64 { return 0 })

	var slots []int
	for i := 0; i < 5; i++ {
		slots = append(slots, scheduler.CurrentFrame())
		require.NoError(t, scheduler.RunFrame())
	}

	assert.Equal(t, []int{0, 1, 0, 1, 0}, slots)
	assert.Equal(t, []int{0, 1, 2, 0, 1}, backend.uniformWrites)
}

func TestSchedulerBackpressure(t *testing.T) {
	// Over any run, at most framesInFlight submissions are outstanding
	// at once.
	backend := newFakeBackend([]int{0, 1, 2})
	scheduler := NewScheduler(backend, 2, 3, func() float64 { return 0 })

	for i := 0; i < 12; i++ {
		require.NoError(t, scheduler.RunFrame())
	}

	assert.LessOrEqual(t, backend.maxOutstanding, 2)
}

func TestSchedulerCrossWait(t *testing.T) {
	// The fourth frame (slot 1) reuses image 0, last claimed by slot
	// 0: its fence must be waited a second time, after the uniform
	// write and before the reset/submit.
	backend := newFakeBackend([]int{0, 1, 2, 0})
	scheduler := NewScheduler(backend, 2, 3, func() float64 { return 0 })

	for i := 0; i < 4; i++ {
		require.NoError(t, scheduler.RunFrame())
	}

	// 3 frames x 6 events (no cross-wait on first claims), then the
	// seven-event fourth frame.
	require.Len(t, backend.events, 25)
	assert.Equal(t, []string{
		"wait 1",
		"acquire 0",
		"update 0",
		"wait 0",
		"reset 1",
		"submit 1 0",
		"present 1 0",
	}, backend.events[18:])
}

func TestSchedulerAcquireErrorIsFatal(t *testing.T) {
	backend := newFakeBackend([]int{0})
	backend.acquireErr = errors.New("surface lost")
	scheduler := NewScheduler(backend, 2, 1, func() float64 { return 0 })

	err := scheduler.RunFrame()
	assert.Error(t, err)
	// Nothing was claimed or submitted.
	assert.Empty(t, backend.outstanding)
	assert.Equal(t, []string{"wait 0"}, backend.events)
}

func TestSchedulerDefaultClock(t *testing.T) {
	// A nil clock falls back to elapsed time since construction:
	// non-negative and never running backwards.
	scheduler := NewScheduler(newFakeBackend([]int{0}), 2, 1, nil)

	first := scheduler.clock()
	second := scheduler.clock()

	assert.GreaterOrEqual(t, first, 0.0)
	assert.GreaterOrEqual(t, second, first)
}

// fakeProvider scripts the event pump.
type fakeProvider struct {
	pumps [][2]bool
	calls int
}

func (p *fakeProvider) InstanceExtensions() []string { return nil }

func (p *fakeProvider) CreateSurface(instance core1_0.CoreInstanceDriver, ext khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return khr_surface.Surface{}, nil
}

func (p *fakeProvider) DrawableSize() (int, int) { return 800, 600 }

func (p *fakeProvider) PumpEvents() (bool, bool) {
	pump := p.pumps[p.calls]
	p.calls++
	return pump[0], pump[1]
}

func TestRunStopsOnCloseAndWaitsIdle(t *testing.T) {
	backend := newFakeBackend([]int{0, 1})
	scheduler := NewScheduler(backend, 2, 2, func() float64 { return 0 })

	provider := &fakeProvider{pumps: [][2]bool{
		{false, true},
		{false, true},
		{false, false}, // minimized: pump only, no frame
		{false, true},
		{true, false},
	}}

	require.NoError(t, scheduler.Run(provider))
	assert.Equal(t, 3, backend.acquireCursor)
	assert.Equal(t, 1, backend.idleWaits)
}
