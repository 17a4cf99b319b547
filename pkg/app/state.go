package app

import (
	"math"

	"github.com/shaneisley/snatch/pkg/events"
)

// MaxLogLines bounds the session log kept in State
const MaxLogLines = 200

// Flash is the completion indicator
type Flash struct {
	Active  bool
	Outcome events.Outcome
	// Lit alternates while the indicator flashes.
	Lit bool
}

// State is everything a front end displays. It is owned by the consumer
// goroutine and changed only through Apply and the Loop.
type State struct {
	Logs             []string
	Fraction         float64
	ProgressLabel    string
	ProgressSeverity events.Severity
	Duration         string
	DurationSeverity events.Severity
	Button           events.ButtonState
	Running          bool
	JobID            string
	Caption          string
	Channel          string
	Flash            Flash
	// Copied is set for a moment after a manual caption copy.
	Copied    bool
	Completed int
	LastJob   *events.JobCompleted
}

// NewState returns the idle display
func NewState() State {
	return State{
		ProgressLabel:    "Ready",
		Duration:         "N/A",
		DurationSeverity: events.Warning,
		Button:           events.Ready(),
	}
}

// Done is the action button shown for a moment after a success
func Done() events.ButtonState {
	return events.ButtonState{Enabled: true, Label: "DONE", Accent: events.AccentSuccess}
}

// Apply folds one event into the display state. It has no side effects;
// timers, the clipboard and the scheduler are handled by Loop.
func (s *State) Apply(e events.Event) {
	switch ev := e.(type) {
	case events.Log:
		s.appendLog(ev.Message)
	case events.Progress:
		s.Fraction = clamp(ev.Fraction)
		s.ProgressLabel = ev.Label
		s.ProgressSeverity = ev.Severity
	case events.DurationKnown:
		s.Duration = ev.Formatted
		s.DurationSeverity = ev.Severity
	case events.ButtonState:
		s.Button = ev
	case events.ResetUI:
		s.Fraction = 0
		s.ProgressLabel = "Channel: " + s.channelOrUnknown()
		s.ProgressSeverity = events.Neutral
		s.Running = false
		if ev.PreserveDuration {
			s.Button = Done()
		} else {
			s.Button = events.Ready()
			s.Duration = "N/A"
			s.DurationSeverity = events.Warning
		}
	case events.FlashSignal:
		if ev.Outcome == events.OutcomeCleared {
			s.Flash = Flash{}
		} else {
			s.Flash = Flash{Active: true, Outcome: ev.Outcome, Lit: true}
		}
	case events.RunningFlagChanged:
		s.Running = ev.Value
		if ev.Value {
			s.JobID = ev.JobID
		} else {
			s.JobID = ""
		}
	case events.CaptionExtracted:
		s.Caption = ev.Caption
		s.Channel = ev.Channel
		s.ProgressLabel = "Channel: " + s.channelOrUnknown()
		s.ProgressSeverity = events.Neutral
	case events.BackoffRequested:
		// the limiter holds the backoff; nothing to display beyond the log line
	case events.JobCompleted:
		s.Completed++
		last := ev
		s.LastJob = &last
	}
}

func (s *State) appendLog(msg string) {
	s.Logs = append(s.Logs, msg)
	if over := len(s.Logs) - MaxLogLines; over > 0 {
		s.Logs = append([]string(nil), s.Logs[over:]...)
	}
}

func (s *State) channelOrUnknown() string {
	if s.Channel == "" {
		return "Unknown"
	}
	return s.Channel
}

func clamp(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
