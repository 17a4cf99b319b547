// Package worker runs one download on a background goroutine and reports
// every step as an event. It never touches consumer state directly.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/shaneisley/snatch/pkg/conditions"
	"github.com/shaneisley/snatch/pkg/events"
	"github.com/shaneisley/snatch/pkg/extractor"
	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/scheduler"
	"github.com/shaneisley/snatch/pkg/ui"
)

const (
	logTruncate   = 900
	labelTruncate = 120
)

// Worker performs downloads
type Worker struct {
	extractor extractor.Extractor
	opts      extractor.Options
	cookies   bool
	checker   *conditions.Checker
	events    events.Publisher
	logger    *logging.Logger
}

// New creates a Worker. cookies tells the worker whether the extractor will
// authenticate with a cookie file, for the log line only.
func New(ex extractor.Extractor, opts extractor.Options, cookies bool, checker *conditions.Checker, publisher events.Publisher, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Worker{
		extractor: ex,
		opts:      opts,
		cookies:   cookies,
		checker:   checker,
		events:    publisher,
		logger:    logger.WithComponent("worker"),
	}
}

// run holds the per-job state of one Run call
type run struct {
	w        *Worker
	job      scheduler.Job
	logger   *logging.Logger
	last     float64
	released bool
}

// Run downloads job.URL. It always ends by publishing exactly one
// RunningFlagChanged{false} for the job, even if the extractor panics.
func (w *Worker) Run(ctx context.Context, job scheduler.Job) {
	r := &run{w: w, job: job, logger: w.logger.WithJob(job.ID)}
	defer r.finish()

	r.publish(events.Logf("Starting: %s", job.URL))
	if w.opts.Format == extractor.DefaultFormat {
		r.publish(events.Log{Message: "Preferring H.264 + AAC (mp4)"})
	} else if w.opts.Format != "" {
		r.publish(events.Logf("Format: %s", w.opts.Format))
	}
	if w.cookies {
		r.publish(events.Log{Message: "Using cookie authentication"})
	}
	r.logger.Info("extraction started", "url", job.URL)

	result, err := w.extractor.Extract(ctx, job.URL, w.opts, r.onProgress)
	if err != nil {
		r.fail(err)
		return
	}
	r.succeed(result)
}

func (r *run) publish(e events.Event) {
	r.w.events.Publish(e)
}

func (r *run) onProgress(p extractor.Progress) {
	switch p.Status {
	case extractor.StatusDownloading:
		fraction, ok := p.Fraction()
		if !ok || fraction < r.last {
			fraction = r.last
		}
		r.last = fraction

		percent := p.Percent
		if percent == "" {
			percent = fmt.Sprintf("%.1f%%", fraction*100)
		}
		r.publish(events.Progress{
			Fraction: fraction,
			Label:    fmt.Sprintf("Loading: %s | %s | ETA %s", percent, orNA(p.Speed), orNA(p.ETA)),
			Severity: events.Neutral,
		})
	case extractor.StatusFinished:
		r.last = 1
		r.publish(events.Progress{Fraction: 1, Label: "Download finished. Muxing MP4...", Severity: events.Success})
	}
}

func (r *run) succeed(result *extractor.Result) {
	channel := result.Channel
	if channel == "" {
		channel = "Unknown"
	}
	caption := result.Title
	duration := ui.FormatClock(result.Duration, result.HasDuration)

	r.publish(events.DurationKnown{Formatted: duration, Severity: events.Warning})
	r.publish(events.Logf("Duration: %s", duration))
	r.publish(events.Logf("Channel: %s", channel))
	if caption != "" {
		r.publish(events.Logf("Caption: %s", caption))
	} else {
		r.publish(events.Log{Message: "Caption: (empty)"})
	}
	r.publish(events.CaptionExtracted{Caption: caption, Channel: channel})

	name := filepath.Base(result.FinalPath)
	if result.FinalPath == "" {
		name = "(unknown file)"
	}
	r.publish(events.Logf("Done: %s", name))
	r.publish(events.Logf("%d downloads this hour", r.job.WindowCount))
	r.publish(events.Progress{Fraction: 1, Label: "Success!", Severity: events.Success})
	r.publish(events.JobCompleted{
		JobID:    r.job.ID,
		Outcome:  events.OutcomeSuccess,
		Title:    result.Title,
		Channel:  channel,
		Path:     result.FinalPath,
		Duration: result.Duration,
	})
	r.publish(events.ResetUI{PreserveDuration: true})
	r.publish(events.FlashSignal{Outcome: events.OutcomeSuccess})

	r.logger.Info("extraction succeeded", "path", result.FinalPath, "channel", channel)
}

func (r *run) fail(err error) {
	msg := err.Error()
	r.publish(events.Logf("Error: %s", ui.Truncate(msg, logTruncate)))

	// classify on the full stderr so Retry-After hints outside ERROR lines count
	detail := msg
	var exitErr *extractor.ExitError
	if errors.As(err, &exitErr) {
		detail = msg + "\n" + exitErr.Stderr
	}

	verdict := r.w.checker.Classify(detail)
	if verdict.RateLimited {
		r.publish(events.Logf("429 Too Many Requests, backing off %s", ui.FormatDuration(verdict.Penalty)))
		r.publish(events.Progress{Fraction: 0, Label: "429: rate limited!", Severity: events.Error})
		r.publish(events.BackoffRequested{Penalty: verdict.Penalty, Reason: verdict.Reason})
	} else {
		r.publish(events.Progress{Fraction: 0, Label: "Error: " + ui.Truncate(msg, labelTruncate), Severity: events.Error})
	}

	r.terminalError(msg)
	r.logger.LogError("extract", err, "rate_limited", verdict.RateLimited)
}

// terminalError publishes the closing events of a failed run
func (r *run) terminalError(msg string) {
	r.publish(events.DurationKnown{Formatted: "N/A", Severity: events.Warning})
	r.publish(events.Ready())
	r.publish(events.JobCompleted{JobID: r.job.ID, Outcome: events.OutcomeError, Err: msg})
	r.release()
	r.publish(events.FlashSignal{Outcome: events.OutcomeError})
}

func (r *run) release() {
	if r.released {
		return
	}
	r.released = true
	r.publish(events.RunningFlagChanged{Value: false, JobID: r.job.ID})
}

func (r *run) finish() {
	if rec := recover(); rec != nil {
		msg := fmt.Sprintf("unexpected failure: %v", rec)
		r.logger.Error("worker panic", "panic", fmt.Sprint(rec))
		r.publish(events.Logf("Error: %s", ui.Truncate(msg, logTruncate)))
		r.publish(events.Progress{Fraction: 0, Label: "Error: " + ui.Truncate(msg, labelTruncate), Severity: events.Error})
		if !r.released {
			r.terminalError(msg)
		}
	}
	r.release()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
