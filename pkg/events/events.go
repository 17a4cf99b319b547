// Package events defines the closed set of notifications a download worker
// sends to the consumer, and the queue that carries them across goroutines.
package events

import (
	"fmt"
	"time"
)

// Severity colours a progress or duration label
type Severity int

const (
	Neutral Severity = iota
	Success
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "neutral"
	}
}

// Accent colours the action button
type Accent int

const (
	AccentPrimary Accent = iota
	AccentSuccess
	AccentMuted
)

func (a Accent) String() string {
	switch a {
	case AccentSuccess:
		return "success"
	case AccentMuted:
		return "muted"
	default:
		return "primary"
	}
}

// Outcome is the result carried by FlashSignal and JobCompleted
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeCleared
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "cleared"
	}
}

// Event is implemented only by the types in this package. Consumers switch
// over the concrete types; the unexported method keeps the set closed.
type Event interface {
	event()
}

// Log appends a line to the session log.
type Log struct {
	Message string
}

// Logf builds a Log event from a format string.
func Logf(format string, args ...any) Log {
	return Log{Message: fmt.Sprintf(format, args...)}
}

// Progress updates the progress bar. Fraction is in [0, 1].
type Progress struct {
	Fraction float64
	Label    string
	Severity Severity
}

// DurationKnown sets the media duration label.
type DurationKnown struct {
	Formatted string
	Severity  Severity
}

// ButtonState sets the action button.
type ButtonState struct {
	Enabled bool
	Label   string
	Accent  Accent
}

// ResetUI returns the display to its idle layout after a job.
type ResetUI struct {
	PreserveDuration bool
}

// FlashSignal starts or stops the completion indicator.
type FlashSignal struct {
	Outcome Outcome
}

// RunningFlagChanged mirrors the scheduler's running flag. JobID names the
// job the change belongs to.
type RunningFlagChanged struct {
	Value bool
	JobID string
}

// CaptionExtracted carries the media caption and uploader.
type CaptionExtracted struct {
	Caption string
	Channel string
}

// BackoffRequested asks the consumer to punish the rate limiter.
type BackoffRequested struct {
	Penalty time.Duration
	Reason  string
}

// JobCompleted is the terminal record of one job.
type JobCompleted struct {
	JobID    string
	Outcome  Outcome
	Title    string
	Channel  string
	Path     string
	Duration time.Duration
	Err      string
}

func (Log) event()                {}
func (Progress) event()           {}
func (DurationKnown) event()      {}
func (ButtonState) event()        {}
func (ResetUI) event()            {}
func (FlashSignal) event()        {}
func (RunningFlagChanged) event() {}
func (CaptionExtracted) event()   {}
func (BackoffRequested) event()   {}
func (JobCompleted) event()       {}

// Publisher accepts events from any goroutine.
type Publisher interface {
	Publish(e Event)
}

// Ready is the idle action button.
func Ready() ButtonState {
	return ButtonState{Enabled: true, Label: "PASTE", Accent: AccentPrimary}
}

// Processing is the action button while a job runs.
func Processing() ButtonState {
	return ButtonState{Enabled: false, Label: "PROCESSING...", Accent: AccentMuted}
}
