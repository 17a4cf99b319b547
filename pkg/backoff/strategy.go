package backoff

import (
	"math/rand"
	"time"
)

// Strategy defines the interface for pacing strategies
type Strategy interface {
	// Delay returns the duration to wait before the next attempt
	// attempt is 1-based (1 for the first attempt in a window, 2 for the second, etc.)
	Delay(attempt int) time.Duration
}

// Fixed implements a fixed delay strategy
type Fixed struct {
	Duration time.Duration
}

// NewFixed creates a new Fixed backoff strategy
func NewFixed(duration time.Duration) *Fixed {
	return &Fixed{
		Duration: duration,
	}
}

// Delay returns the fixed duration for any attempt
func (f *Fixed) Delay(attempt int) time.Duration {
	return f.Duration
}

// Uniform draws a whole number of seconds uniformly from [Min, Max],
// both ends inclusive. Sub-second parts of the bounds are truncated.
type Uniform struct {
	Min time.Duration
	Max time.Duration

	intn func(n int) int
}

// NewUniform creates a new Uniform strategy backed by math/rand
func NewUniform(min, max time.Duration) *Uniform {
	return NewUniformWithSource(min, max, rand.Intn)
}

// NewUniformWithSource creates a Uniform strategy with a caller supplied
// random source. intn must return a value in [0, n).
func NewUniformWithSource(min, max time.Duration, intn func(n int) int) *Uniform {
	if intn == nil {
		intn = rand.Intn
	}
	return &Uniform{
		Min:  min,
		Max:  max,
		intn: intn,
	}
}

// Delay returns a random whole-second delay between Min and Max
func (u *Uniform) Delay(attempt int) time.Duration {
	lo := int(u.Min / time.Second)
	hi := int(u.Max / time.Second)
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}

	return time.Duration(lo+u.intn(hi-lo+1)) * time.Second
}
