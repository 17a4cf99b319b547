package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestManual_AfterFiresOnce(t *testing.T) {
	clock := NewManual(start)
	calls := 0
	h := clock.After(2*time.Second, func() { calls++ })

	clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, 0, calls)
	assert.True(t, h.Active())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.False(t, h.Active())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, calls)
	assert.Zero(t, clock.Pending())
}

func TestManual_EveryRepeatsUntilCancelled(t *testing.T) {
	clock := NewManual(start)
	var at []time.Time
	h := clock.Every(600*time.Millisecond, func() { at = append(at, clock.Now()) })

	clock.Advance(1900 * time.Millisecond)
	require.Len(t, at, 3)
	assert.Equal(t, start.Add(600*time.Millisecond), at[0])
	assert.Equal(t, start.Add(1800*time.Millisecond), at[2])

	h.Cancel()
	clock.Advance(time.Hour)
	assert.Len(t, at, 3)
}

func TestManual_FiresInChronologicalOrder(t *testing.T) {
	clock := NewManual(start)
	var order []string
	clock.After(3*time.Second, func() { order = append(order, "c") })
	clock.After(1*time.Second, func() { order = append(order, "a") })
	clock.After(2*time.Second, func() { order = append(order, "b") })
	clock.After(2*time.Second, func() { order = append(order, "b2") })

	clock.Advance(5 * time.Second)

	assert.Equal(t, []string{"a", "b", "b2", "c"}, order)
	assert.Equal(t, start.Add(5*time.Second), clock.Now())
}

func TestManual_CallbackCanCancelOther(t *testing.T) {
	// Given a timeout that cancels a repeating action, like the flash timeout
	clock := NewManual(start)
	ticks := 0
	repeat := clock.Every(time.Second, func() { ticks++ })
	clock.After(3500*time.Millisecond, func() { repeat.Cancel() })

	// When time runs well past the timeout
	clock.Advance(10 * time.Second)

	// Then only the ticks before the timeout happened
	assert.Equal(t, 3, ticks)
}

func TestSlot_HoldsOneAction(t *testing.T) {
	clock := NewManual(start)
	var fired []string
	var slot Slot

	slot.Set(clock.After(time.Second, func() { fired = append(fired, "first") }))
	slot.Set(clock.After(2*time.Second, func() { fired = append(fired, "second") }))
	assert.True(t, slot.Active())

	clock.Advance(5 * time.Second)

	assert.Equal(t, []string{"second"}, fired)
	assert.False(t, slot.Active())
}

func TestSlot_CancelIsIdempotent(t *testing.T) {
	var slot Slot
	slot.Cancel()
	assert.False(t, slot.Active())

	var h *Handle
	h.Cancel()
	assert.False(t, h.Active())
}

// queuePoster collects posted callbacks so the test goroutine can run them.
type queuePoster struct {
	mu  sync.Mutex
	fns []func()
}

func (p *queuePoster) Post(fn func()) {
	p.mu.Lock()
	p.fns = append(p.fns, fn)
	p.mu.Unlock()
}

func (p *queuePoster) run() int {
	p.mu.Lock()
	fns := p.fns
	p.fns = nil
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func TestReal_AfterRunsThroughPoster(t *testing.T) {
	// Given a real clock whose callbacks are only queued
	poster := &queuePoster{}
	clock := NewReal(poster)
	called := false
	clock.After(5*time.Millisecond, func() { called = true })

	// When the timer has had time to fire
	require.Eventually(t, func() bool {
		poster.mu.Lock()
		defer poster.mu.Unlock()
		return len(poster.fns) == 1
	}, time.Second, time.Millisecond)

	// Then nothing ran until the consumer drains the poster
	assert.False(t, called)
	poster.run()
	assert.True(t, called)
}

func TestReal_CancelAfterPostSuppressesCallback(t *testing.T) {
	// Given a callback that has already been posted
	poster := &queuePoster{}
	clock := NewReal(poster)
	called := false
	h := clock.After(time.Millisecond, func() { called = true })
	require.Eventually(t, func() bool {
		poster.mu.Lock()
		defer poster.mu.Unlock()
		return len(poster.fns) == 1
	}, time.Second, time.Millisecond)

	// When it is cancelled on the consumer before running
	h.Cancel()
	poster.run()

	// Then it does nothing
	assert.False(t, called)
}

func TestReal_EveryRearmsAfterEachRun(t *testing.T) {
	poster := &queuePoster{}
	clock := NewReal(poster)
	runs := 0
	h := clock.Every(2*time.Millisecond, func() { runs++ })

	require.Eventually(t, func() bool {
		poster.run()
		return runs >= 3
	}, time.Second, time.Millisecond)

	h.Cancel()
	before := runs
	time.Sleep(10 * time.Millisecond)
	poster.run()
	assert.Equal(t, before, runs)
}

func TestPosterFunc(t *testing.T) {
	ran := false
	PosterFunc(func(fn func()) { fn() }).Post(func() { ran = true })
	assert.True(t, ran)
}
