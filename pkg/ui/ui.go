package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shaneisley/snatch/pkg/events"
)

// Reporter prints download events for headless runs
type Reporter struct {
	writer io.Writer
	quiet  bool

	lastDecile int
}

// RunStats tracks statistics for a headless session
type RunStats struct {
	TotalJobs     int
	Succeeded     int
	Failed        int
	RateLimited   int
	Rejected      int
	TotalDuration time.Duration
	Success       bool
	startTime     time.Time
}

// NewReporter creates a new status reporter
func NewReporter(writer io.Writer) *Reporter {
	return &Reporter{
		writer:     writer,
		quiet:      false,
		lastDecile: -1,
	}
}

// SetQuiet enables or disables quiet mode (suppresses real-time messages)
func (r *Reporter) SetQuiet(quiet bool) {
	r.quiet = quiet
}

// Observe prints one applied event. Progress is printed once per tenth so
// a long download does not flood the terminal.
func (r *Reporter) Observe(e events.Event) {
	switch ev := e.(type) {
	case events.JobCompleted:
		r.jobCompleted(ev)
		return
	case events.BackoffRequested:
		fmt.Fprintf(r.writer, "⏳ [snatch] Backing off for %s\n", FormatDuration(ev.Penalty))
		return
	}

	if r.quiet {
		return
	}

	switch ev := e.(type) {
	case events.Log:
		fmt.Fprintf(r.writer, "[snatch] %s\n", ev.Message)
	case events.Progress:
		r.progress(ev)
	case events.DurationKnown:
		if ev.Formatted != "Extracting…" {
			fmt.Fprintf(r.writer, "[snatch] Duration: %s\n", ev.Formatted)
		}
	case events.RunningFlagChanged:
		if ev.Value {
			r.lastDecile = -1
		}
	}
}

func (r *Reporter) progress(p events.Progress) {
	if p.Severity != events.Neutral {
		fmt.Fprintf(r.writer, "[snatch] %s\n", p.Label)
		return
	}
	decile := int(p.Fraction * 10)
	if decile == r.lastDecile {
		return
	}
	r.lastDecile = decile
	fmt.Fprintf(r.writer, "[snatch] %s\n", p.Label)
}

func (r *Reporter) jobCompleted(ev events.JobCompleted) {
	if ev.Outcome == events.OutcomeSuccess {
		name := filepath.Base(ev.Path)
		if ev.Path == "" {
			name = ev.Title
		}
		fmt.Fprintf(r.writer, "✅ [snatch] Saved %s\n", name)
		return
	}
	fmt.Fprintf(r.writer, "❌ [snatch] Failed: %s\n", Truncate(ev.Err, 120))
}

// FinalSummary reports the session outcome and statistics
func (r *Reporter) FinalSummary(stats *RunStats) {
	if stats.Success {
		if stats.TotalJobs == 1 {
			fmt.Fprintf(r.writer, "✅ [snatch] 1 download completed.\n")
		} else {
			fmt.Fprintf(r.writer, "✅ [snatch] %d downloads completed.\n", stats.TotalJobs)
		}
	} else {
		fmt.Fprintf(r.writer, "❌ [snatch] %d of %d downloads failed.\n", stats.Failed+stats.Rejected, stats.TotalJobs+stats.Rejected)
	}

	var b strings.Builder
	b.WriteString("\nSession Statistics:\n")
	fmt.Fprintf(&b, "  Downloads: %d\n", stats.TotalJobs)
	fmt.Fprintf(&b, "  Succeeded: %d\n", stats.Succeeded)
	fmt.Fprintf(&b, "  Failed: %d\n", stats.Failed)
	fmt.Fprintf(&b, "  Rate Limited: %d\n", stats.RateLimited)
	fmt.Fprintf(&b, "  Rejected Links: %d\n", stats.Rejected)
	fmt.Fprintf(&b, "  Total Duration: %s\n", FormatDuration(stats.TotalDuration))
	fmt.Fprint(r.writer, b.String())
}

// NewRunStats creates a new session statistics tracker
func NewRunStats() *RunStats {
	return &RunStats{
		startTime: time.Now(),
	}
}

// Observe updates counters from an applied event
func (s *RunStats) Observe(e events.Event) {
	switch ev := e.(type) {
	case events.RunningFlagChanged:
		if ev.Value {
			s.TotalJobs++
		}
	case events.JobCompleted:
		if ev.Outcome == events.OutcomeSuccess {
			s.Succeeded++
		} else {
			s.Failed++
		}
	case events.BackoffRequested:
		s.RateLimited++
	}
}

// RecordRejected counts a link that never reached the scheduler
func (s *RunStats) RecordRejected() {
	s.Rejected++
}

// Finalize calculates final statistics
func (s *RunStats) Finalize() {
	s.Success = s.Failed == 0 && s.Rejected == 0
	s.TotalDuration = time.Since(s.startTime)
}
