// Package ratelimit paces download attempts. It keeps a randomized gap
// between consecutive attempts, counts attempts in a rolling hourly window
// and honours punitive backoff after the remote site rate-limits us.
//
// A Limiter is not safe for concurrent use; it is owned by the consumer
// goroutine together with the scheduler.
package ratelimit

import (
	"time"

	"github.com/shaneisley/snatch/pkg/backoff"
)

// Policy holds the pacing parameters.
type Policy struct {
	// MinDelay and MaxDelay bound the randomized gap between attempts.
	MinDelay time.Duration
	MaxDelay time.Duration
	// Window is the span after which the attempt counter restarts.
	Window time.Duration
	// PenaltyFloor is the shortest backoff Punish will ever apply.
	PenaltyFloor time.Duration
	// Penalty is the backoff requested after a rate-limit response.
	Penalty time.Duration
	// InitialDelay is the gap in effect before the first draw.
	InitialDelay time.Duration
}

// DefaultPolicy returns the stock pacing parameters.
func DefaultPolicy() Policy {
	return Policy{
		MinDelay:     1 * time.Second,
		MaxDelay:     6 * time.Second,
		Window:       time.Hour,
		PenaltyFloor: 5 * time.Second,
		Penalty:      600 * time.Second,
		InitialDelay: 3 * time.Second,
	}
}

// Limiter tracks attempt pacing state.
type Limiter struct {
	policy   Policy
	strategy backoff.Strategy

	lastAttemptAt time.Time
	attemptCount  int
	windowResetAt time.Time
	currentDelay  time.Duration
	backoffUntil  time.Time
}

// New creates a Limiter that draws gaps uniformly from the policy bounds.
func New(policy Policy) *Limiter {
	return NewWithStrategy(policy, backoff.NewUniform(policy.MinDelay, policy.MaxDelay))
}

// NewWithStrategy creates a Limiter with a caller supplied gap strategy.
func NewWithStrategy(policy Policy, strategy backoff.Strategy) *Limiter {
	return &Limiter{
		policy:       policy,
		strategy:     strategy,
		currentDelay: policy.InitialDelay,
	}
}

// Policy returns the limiter's pacing parameters.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// CanProceed reports whether an attempt may start at now and, if not, how
// long the caller has to wait. An active backoff takes precedence over the
// regular gap.
func (l *Limiter) CanProceed(now time.Time) (bool, time.Duration) {
	if !l.backoffUntil.IsZero() && now.Before(l.backoffUntil) {
		return false, l.backoffUntil.Sub(now)
	}

	if l.lastAttemptAt.IsZero() {
		return true, 0
	}

	elapsed := now.Sub(l.lastAttemptAt)
	if elapsed < l.currentDelay {
		return false, l.currentDelay - elapsed
	}

	return true, 0
}

// RecordAttempt notes an attempt at now and draws the next gap.
func (l *Limiter) RecordAttempt(now time.Time) {
	l.lastAttemptAt = now
	l.attemptCount++

	if l.windowResetAt.IsZero() || now.After(l.windowResetAt) {
		l.windowResetAt = now.Add(l.policy.Window)
		l.attemptCount = 1
	}

	l.currentDelay = l.strategy.Delay(l.attemptCount)
}

// Punish blocks attempts until now+penalty, never less than the floor.
func (l *Limiter) Punish(now time.Time, penalty time.Duration) {
	if penalty < l.policy.PenaltyFloor {
		penalty = l.policy.PenaltyFloor
	}
	l.backoffUntil = now.Add(penalty)
}

// Stats returns the number of attempts in the current window.
func (l *Limiter) Stats() int {
	return l.attemptCount
}

// CurrentDelay returns the gap that applies after the last attempt.
func (l *Limiter) CurrentDelay() time.Duration {
	return l.currentDelay
}

// BackoffUntil returns the end of the active backoff, or the zero time.
func (l *Limiter) BackoffUntil() time.Time {
	return l.backoffUntil
}
