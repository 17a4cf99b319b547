// Package scheduler admits download jobs one at a time. It owns the running
// flag, asks the rate limiter before every start and re-submits throttled
// jobs once the wait is over.
//
// Every method must be called from the consumer goroutine.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/shaneisley/snatch/pkg/events"
	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/timer"
)

// ErrBusy is returned by Submit while a job is running
var ErrBusy = errors.New("a download is already running")

// State is the scheduler state
type State int

const (
	Idle State = iota
	Throttled
	Running
)

func (s State) String() string {
	switch s {
	case Throttled:
		return "throttled"
	case Running:
		return "running"
	default:
		return "idle"
	}
}

// Limiter is the subset of ratelimit.Limiter the scheduler needs
type Limiter interface {
	CanProceed(now time.Time) (bool, time.Duration)
	RecordAttempt(now time.Time)
	Stats() int
}

// Launcher starts a worker for an admitted job
type Launcher interface {
	Launch(job Job) error
}

// LauncherFunc adapts a function to Launcher
type LauncherFunc func(job Job) error

// Launch calls f(job)
func (f LauncherFunc) Launch(job Job) error {
	return f(job)
}

// Scheduler enforces single-flight execution
type Scheduler struct {
	limiter  Limiter
	clock    timer.Clock
	events   events.Publisher
	launcher Launcher
	logger   *logging.Logger

	state     State
	current   *Job
	waiting   *Job
	last      *Job
	waitUntil time.Time
	retry     timer.Slot
}

// New creates an idle scheduler
func New(limiter Limiter, clock timer.Clock, publisher events.Publisher, launcher Launcher, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		limiter:  limiter,
		clock:    clock,
		events:   publisher,
		launcher: launcher,
		logger:   logger.WithComponent("scheduler"),
		state:    Idle,
	}
}

// Submit asks to download url. While a job is running the call is rejected
// with ErrBusy and nothing changes. Otherwise a new job is created and either
// launched now or parked until the limiter allows it, in which case the job
// is returned in JobWaiting state with a nil error.
func (s *Scheduler) Submit(url string) (*Job, error) {
	if s.state == Running {
		s.events.Publish(events.Logf("Busy: still downloading %s", s.current.URL))
		s.logger.Info("submit rejected", "url", url, "running_job", s.current.ID)
		return nil, ErrBusy
	}

	job := NewJob(url, s.clock.Now())
	if err := s.admit(job); err != nil {
		return job, err
	}
	return job, nil
}

func (s *Scheduler) admit(job *Job) error {
	s.retry.Cancel()

	now := s.clock.Now()
	allowed, wait := s.limiter.CanProceed(now)
	if !allowed {
		s.park(job, now, wait)
		return nil
	}

	s.limiter.RecordAttempt(now)
	job.State = JobRunning
	job.StartedAt = now
	job.WindowCount = s.limiter.Stats()

	s.state = Running
	s.current = job
	s.waiting = nil
	s.last = job
	s.waitUntil = time.Time{}

	s.events.Publish(events.FlashSignal{Outcome: events.OutcomeCleared})
	s.events.Publish(events.Processing())
	s.events.Publish(events.DurationKnown{Formatted: "Extracting…", Severity: events.Warning})
	s.events.Publish(events.Progress{Fraction: 0, Label: "Processing…", Severity: events.Warning})
	s.events.Publish(events.RunningFlagChanged{Value: true, JobID: job.ID})
	s.logger.LogAdmission(job.ID, job.URL, true, "")

	if err := s.launcher.Launch(*job); err != nil {
		job.State = JobFailed
		job.FinishedAt = now
		s.state = Idle
		s.current = nil
		s.events.Publish(events.Logf("Could not start download: %v", err))
		s.events.Publish(events.Ready())
		s.events.Publish(events.RunningFlagChanged{Value: false, JobID: job.ID})
		s.logger.LogError("launch", err, "job_id", job.ID)
		return fmt.Errorf("failed to launch job: %w", err)
	}

	return nil
}

func (s *Scheduler) park(job *Job, now time.Time, wait time.Duration) {
	secs := WaitSeconds(wait)
	job.State = JobWaiting

	s.state = Throttled
	s.waiting = job
	s.waitUntil = now.Add(wait)

	s.events.Publish(events.Logf("Please wait %ds to avoid being blocked...", secs))
	s.events.Publish(events.Progress{Fraction: 0, Label: fmt.Sprintf("Wait %ds (anti-spam)", secs), Severity: events.Warning})
	s.logger.LogAdmission(job.ID, job.URL, false, wait.String())

	s.retry.Set(s.clock.After(wait, func() {
		s.resume(job)
	}))
}

// resume re-submits a parked job once its wait is over
func (s *Scheduler) resume(job *Job) {
	if s.state != Throttled || s.waiting != job {
		return
	}
	s.state = Idle
	if err := s.admit(job); err != nil {
		s.logger.LogError("resume", err, "job_id", job.ID)
	}
}

// WorkerFinished returns the scheduler to Idle if jobID is the running job.
// Calls for any other job, or repeated calls, change nothing. It reports
// whether a transition happened.
func (s *Scheduler) WorkerFinished(jobID string) bool {
	if s.state != Running || s.current == nil || s.current.ID != jobID {
		return false
	}
	if !s.current.State.IsFinished() {
		// no terminal record arrived, so the worker ended abnormally
		s.current.State = JobFailed
		s.current.FinishedAt = s.clock.Now()
	}
	s.state = Idle
	s.current = nil
	return true
}

// Complete records the terminal state of a job
func (s *Scheduler) Complete(jobID string, success bool) {
	job := s.current
	if job == nil || job.ID != jobID {
		job = s.last
	}
	if job == nil || job.ID != jobID || job.State.IsFinished() {
		return
	}
	if success {
		job.State = JobSucceeded
	} else {
		job.State = JobFailed
	}
	job.FinishedAt = s.clock.Now()
}

// CancelAll cancels a pending retry. A running job is left alone; it
// reports its own end through the event channel.
func (s *Scheduler) CancelAll() {
	s.retry.Cancel()
	if s.state == Throttled {
		s.state = Idle
		s.waiting = nil
		s.waitUntil = time.Time{}
	}
}

// State returns the scheduler state
func (s *Scheduler) State() State {
	return s.state
}

// Current returns the running job, or nil
func (s *Scheduler) Current() *Job {
	return s.current
}

// Waiting returns the parked job, or nil
func (s *Scheduler) Waiting() *Job {
	return s.waiting
}

// Last returns the most recently admitted job, or nil
func (s *Scheduler) Last() *Job {
	return s.last
}

// WaitUntil returns when a parked job will be retried
func (s *Scheduler) WaitUntil() time.Time {
	return s.waitUntil
}

// RetryPending reports whether a retry is scheduled
func (s *Scheduler) RetryPending() bool {
	return s.retry.Active()
}

// WaitSeconds rounds a wait up to whole seconds, at least one
func WaitSeconds(wait time.Duration) int {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
