package timer

import "time"

// Manual is a Clock driven by Advance. Callbacks run synchronously inside
// Advance, so tests stay on one goroutine.
type Manual struct {
	now     time.Time
	entries []*manualEntry
	seq     int
}

type manualEntry struct {
	at       time.Time
	interval time.Duration
	fn       func()
	handle   *Handle
	seq      int
}

// NewManual creates a Manual clock starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the manual time
func (m *Manual) Now() time.Time {
	return m.now
}

// After schedules fn at Now()+d
func (m *Manual) After(d time.Duration, fn func()) *Handle {
	return m.add(d, 0, fn)
}

// Every schedules fn at every multiple of d from Now()
func (m *Manual) Every(d time.Duration, fn func()) *Handle {
	return m.add(d, d, fn)
}

func (m *Manual) add(d, interval time.Duration, fn func()) *Handle {
	h := &Handle{}
	m.seq++
	m.entries = append(m.entries, &manualEntry{
		at:       m.now.Add(d),
		interval: interval,
		fn:       fn,
		handle:   h,
		seq:      m.seq,
	})
	return h
}

// Advance moves time forward by d, running every action that falls due in
// chronological order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.at
		if next.interval > 0 {
			next.at = next.at.Add(next.interval)
		} else {
			next.handle.fired = true
		}
		next.fn()
	}
	m.now = target
}

// Set moves time to t without running anything. Due actions run on the
// next Advance.
func (m *Manual) Set(t time.Time) {
	m.now = t
}

// Pending returns the number of actions that may still run
func (m *Manual) Pending() int {
	m.prune()
	return len(m.entries)
}

func (m *Manual) nextDue(target time.Time) *manualEntry {
	m.prune()
	var next *manualEntry
	for _, e := range m.entries {
		if e.at.After(target) {
			continue
		}
		if next == nil || e.at.Before(next.at) || (e.at.Equal(next.at) && e.seq < next.seq) {
			next = e
		}
	}
	return next
}

func (m *Manual) prune() {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.handle.Active() {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}
