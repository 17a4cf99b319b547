// Package app is the consumer side of snatch. A Loop owns the display
// State, the scheduler and every timer; front ends call Tick on their own
// goroutine at a fixed cadence and read State afterwards.
package app

import (
	"errors"
	"time"

	"github.com/shaneisley/snatch/pkg/events"
	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/scheduler"
	"github.com/shaneisley/snatch/pkg/timer"
	"github.com/shaneisley/snatch/pkg/urlcheck"
)

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("app is closed")

// Limiter is the rate limiter as the consumer sees it
type Limiter interface {
	scheduler.Limiter
	Punish(now time.Time, penalty time.Duration)
}

// History records job starts and outcomes
type History interface {
	Start(jobID, url string, submittedAt, startedAt time.Time) error
	Finish(jobID, state string, finishedAt time.Time, title, channel, path string, duration time.Duration, errText string) error
}

// Observer sees every applied event, after State has been updated
type Observer func(e events.Event)

// Options holds the consumer timings
type Options struct {
	SuccessHold   time.Duration
	FlashInterval time.Duration
	FlashTimeout  time.Duration
	CopiedHold    time.Duration
	AutoCopy      bool
}

// DefaultOptions returns the stock timings
func DefaultOptions() Options {
	return Options{
		SuccessHold:   2 * time.Second,
		FlashInterval: 600 * time.Millisecond,
		FlashTimeout:  60 * time.Second,
		CopiedHold:    650 * time.Millisecond,
		AutoCopy:      true,
	}
}

// Deps are the Loop's collaborators. Clock may be nil, in which case a
// wall clock posting to the Loop is used. Clipboard, History and Logger
// are optional.
type Deps struct {
	Limiter   Limiter
	Launcher  scheduler.Launcher
	Validator *urlcheck.Validator
	Events    *events.Channel
	Clock     timer.Clock
	Clipboard Clipboard
	History   History
	Logger    *logging.Logger
}

// Loop applies worker events on the consumer goroutine
type Loop struct {
	tasks     *events.Queue[func()]
	events    *events.Channel
	clock     timer.Clock
	scheduler *scheduler.Scheduler
	limiter   Limiter
	launcher  scheduler.Launcher
	validator *urlcheck.Validator
	clipboard Clipboard
	history   History
	logger    *logging.Logger
	opts      Options
	observers []Observer

	state     State
	restore   timer.Slot
	flashTick timer.Slot
	flashStop timer.Slot
	copied    timer.Slot
	rejected  int
	closed    bool
}

// New wires a Loop
func New(deps Deps, opts Options) *Loop {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	l := &Loop{
		tasks:     events.NewQueue[func()](0),
		events:    deps.Events,
		limiter:   deps.Limiter,
		launcher:  deps.Launcher,
		validator: deps.Validator,
		clipboard: deps.Clipboard,
		history:   deps.History,
		logger:    logger.WithComponent("app"),
		opts:      opts,
		state:     NewState(),
	}
	if l.validator == nil {
		l.validator = urlcheck.NewValidator(nil)
	}
	l.clock = deps.Clock
	if l.clock == nil {
		l.clock = timer.NewReal(l)
	}
	l.scheduler = scheduler.New(deps.Limiter, l.clock, deps.Events, scheduler.LauncherFunc(l.launch), logger)
	return l
}

// Post queues fn to run at the start of the next Tick. Safe from any
// goroutine.
func (l *Loop) Post(fn func()) {
	l.tasks.Publish(fn)
}

// Observe registers an observer
func (l *Loop) Observe(o Observer) {
	l.observers = append(l.observers, o)
}

// Tick runs due timer callbacks, then drains and applies every queued
// event. It never blocks and returns the number of events applied.
func (l *Loop) Tick() int {
	for _, fn := range l.tasks.DrainAll() {
		fn()
	}
	evs := l.events.DrainAll()
	for _, e := range evs {
		l.apply(e)
	}
	return len(evs)
}

// State returns a snapshot of the display state
func (l *Loop) State() State {
	s := l.state
	s.Logs = append([]string(nil), l.state.Logs...)
	return s
}

// Scheduler returns the job scheduler
func (l *Loop) Scheduler() *scheduler.Scheduler {
	return l.scheduler
}

// Clock returns the clock the Loop schedules with
func (l *Loop) Clock() timer.Clock {
	return l.clock
}

// Idle reports whether no job is running or waiting
func (l *Loop) Idle() bool {
	return l.scheduler.State() == scheduler.Idle
}

// Rejected returns how many submissions failed validation
func (l *Loop) Rejected() int {
	return l.rejected
}

// Submit validates raw and hands it to the scheduler. Invalid input never
// reaches the rate limiter.
func (l *Loop) Submit(raw string) error {
	if l.closed {
		return ErrClosed
	}

	url, err := l.validator.Validate(raw)
	if err != nil {
		l.rejected++
		l.logger.Info("input rejected", "input", raw, "error", err)
		l.dispatch(events.Log{Message: "Link is invalid or not supported!"})
		return err
	}

	if l.scheduler.State() != scheduler.Running {
		l.stopFlash()
	}
	_, err = l.scheduler.Submit(url)
	return err
}

// Paste submits the clipboard contents
func (l *Loop) Paste() error {
	if l.clipboard == nil {
		l.dispatch(events.Log{Message: "Clipboard is not available"})
		return errors.New("no clipboard configured")
	}
	text, err := l.clipboard.ReadAll()
	if err != nil {
		l.dispatch(events.Logf("Could not read clipboard: %v", err))
		return err
	}
	l.dispatch(events.Log{Message: "Link detected from clipboard..."})
	return l.Submit(text)
}

// CopyCaption copies the last caption to the clipboard and stops the
// completion flash
func (l *Loop) CopyCaption() error {
	l.stopFlash()

	if l.state.Caption == "" {
		l.dispatch(events.Log{Message: "No caption to copy yet!"})
		return nil
	}
	if l.clipboard == nil {
		l.dispatch(events.Log{Message: "Clipboard is not available"})
		return errors.New("no clipboard configured")
	}
	if err := l.clipboard.WriteAll(l.state.Caption); err != nil {
		l.dispatch(events.Logf("Manual copy failed: %v", err))
		return err
	}

	l.dispatch(events.Log{Message: "Caption copied!"})
	l.state.Copied = true
	l.copied.Set(l.clock.After(l.opts.CopiedHold, func() {
		l.state.Copied = false
	}))
	return nil
}

// Close cancels a pending retry and every display timer. A running job is
// not interrupted here; stop the worker pool for that.
func (l *Loop) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.scheduler.CancelAll()
	l.restore.Cancel()
	l.copied.Cancel()
	l.stopFlash()
	l.logger.Info("consumer closed", "completed", l.state.Completed, "rejected", l.rejected)
}

// launch records the job only once a worker has accepted it, so a refused
// launch leaves no running row behind
func (l *Loop) launch(job scheduler.Job) error {
	if err := l.launcher.Launch(job); err != nil {
		return err
	}
	if l.history != nil {
		if err := l.history.Start(job.ID, job.URL, job.SubmittedAt, job.StartedAt); err != nil {
			l.logger.LogError("history start", err, "job_id", job.ID)
		}
	}
	return nil
}

// dispatch applies e to State and notifies observers
func (l *Loop) dispatch(e events.Event) {
	l.state.Apply(e)
	for _, o := range l.observers {
		o(e)
	}
}

func (l *Loop) apply(e events.Event) {
	l.dispatch(e)

	switch ev := e.(type) {
	case events.ButtonState:
		l.restore.Cancel()

	case events.ResetUI:
		if ev.PreserveDuration {
			l.restore.Set(l.clock.After(l.opts.SuccessHold, func() {
				l.dispatch(events.Ready())
			}))
		} else {
			l.restore.Cancel()
		}

	case events.FlashSignal:
		if ev.Outcome == events.OutcomeCleared {
			l.stopFlash()
		} else {
			l.startFlash()
		}

	case events.RunningFlagChanged:
		if !ev.Value && l.scheduler.WorkerFinished(ev.JobID) {
			l.logger.Debug("worker finished", "job_id", ev.JobID)
		}

	case events.CaptionExtracted:
		l.autoCopy(ev.Caption)

	case events.BackoffRequested:
		l.limiter.Punish(l.clock.Now(), ev.Penalty)
		l.logger.Warn("backing off", "penalty", ev.Penalty.String(), "reason", ev.Reason)

	case events.JobCompleted:
		success := ev.Outcome == events.OutcomeSuccess
		l.scheduler.Complete(ev.JobID, success)
		if l.history != nil {
			state := "failed"
			if success {
				state = "succeeded"
			}
			if err := l.history.Finish(ev.JobID, state, l.clock.Now(), ev.Title, ev.Channel, ev.Path, ev.Duration, ev.Err); err != nil {
				l.logger.LogError("history finish", err, "job_id", ev.JobID)
			}
		}
	}
}

// startFlash begins the repeating toggle. State.Apply has already lit the
// indicator.
func (l *Loop) startFlash() {
	l.flashTick.Cancel()
	l.flashStop.Cancel()

	l.flashTick.Set(l.clock.Every(l.opts.FlashInterval, func() {
		l.state.Flash.Lit = !l.state.Flash.Lit
	}))
	if l.opts.FlashTimeout > 0 {
		l.flashStop.Set(l.clock.After(l.opts.FlashTimeout, l.stopFlash))
	}
}

func (l *Loop) stopFlash() {
	l.flashTick.Cancel()
	l.flashStop.Cancel()
	l.state.Flash = Flash{}
}

func (l *Loop) autoCopy(caption string) {
	if !l.opts.AutoCopy || l.clipboard == nil {
		return
	}
	if caption == "" {
		l.dispatch(events.Log{Message: "No caption to auto-copy!"})
		return
	}
	if err := l.clipboard.WriteAll(caption); err != nil {
		l.dispatch(events.Logf("Auto-copy failed (clipboard locked?): %v", err))
		return
	}
	l.dispatch(events.Log{Message: "Auto-copied caption to clipboard!"})
}
