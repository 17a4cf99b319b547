// Package timer provides cancellable one-shot and repeating actions whose
// callbacks run on the consumer goroutine rather than on a runtime timer
// goroutine.
package timer

import "time"

// Poster hands a callback to the consumer goroutine.
type Poster interface {
	Post(fn func())
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(fn func())

// Post calls f(fn)
func (f PosterFunc) Post(fn func()) {
	f(fn)
}

// Clock tells time and schedules actions. All methods, and the Handles they
// return, belong to the consumer goroutine.
type Clock interface {
	Now() time.Time
	After(d time.Duration, fn func()) *Handle
	Every(d time.Duration, fn func()) *Handle
}

// Handle controls one scheduled action.
type Handle struct {
	cancelled bool
	fired     bool
	stop      func()
}

// Cancel prevents any further run of the action. Cancelling twice, or
// cancelling a nil or already fired handle, is a no-op.
func (h *Handle) Cancel() {
	if h == nil || h.cancelled {
		return
	}
	h.cancelled = true
	if h.stop != nil {
		h.stop()
	}
}

// Active reports whether the action may still run.
func (h *Handle) Active() bool {
	return h != nil && !h.cancelled && !h.fired
}

// Slot holds at most one outstanding action. Setting a new one cancels
// the previous one.
type Slot struct {
	h *Handle
}

// Set cancels the held action and holds h instead
func (s *Slot) Set(h *Handle) {
	s.Cancel()
	s.h = h
}

// Cancel cancels and forgets the held action
func (s *Slot) Cancel() {
	if s.h != nil {
		s.h.Cancel()
		s.h = nil
	}
}

// Active reports whether the held action may still run
func (s *Slot) Active() bool {
	return s.h.Active()
}

// Real schedules with time.AfterFunc and delivers callbacks via a Poster.
type Real struct {
	poster Poster
}

// NewReal creates a wall-clock Clock
func NewReal(poster Poster) *Real {
	return &Real{poster: poster}
}

// Now returns time.Now()
func (r *Real) Now() time.Time {
	return time.Now()
}

// After runs fn once after d
func (r *Real) After(d time.Duration, fn func()) *Handle {
	h := &Handle{}
	t := time.AfterFunc(d, func() {
		r.poster.Post(func() {
			if h.cancelled || h.fired {
				return
			}
			h.fired = true
			fn()
		})
	})
	h.stop = func() { t.Stop() }
	return h
}

// Every runs fn every d until cancelled. The next period starts after fn
// returns on the consumer goroutine.
func (r *Real) Every(d time.Duration, fn func()) *Handle {
	h := &Handle{}
	var arm func()
	arm = func() {
		t := time.AfterFunc(d, func() {
			r.poster.Post(func() {
				if h.cancelled {
					return
				}
				fn()
				if !h.cancelled {
					arm()
				}
			})
		})
		h.stop = func() { t.Stop() }
	}
	arm()
	return h
}
