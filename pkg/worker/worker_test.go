package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/snatch/pkg/conditions"
	"github.com/shaneisley/snatch/pkg/events"
	"github.com/shaneisley/snatch/pkg/extractor"
	"github.com/shaneisley/snatch/pkg/scheduler"
)

// fakeExtractor replays progress reports, then returns result/err or panics.
type fakeExtractor struct {
	reports []extractor.Progress
	result  *extractor.Result
	err     error
	panics  any
	gotURL  string
}

func (f *fakeExtractor) Extract(ctx context.Context, url string, opts extractor.Options, progress extractor.ProgressFunc) (*extractor.Result, error) {
	f.gotURL = url
	for _, p := range f.reports {
		progress(p)
	}
	if f.panics != nil {
		panic(f.panics)
	}
	return f.result, f.err
}

func newWorker(t *testing.T, ex extractor.Extractor, cookies bool) (*Worker, *events.Channel) {
	t.Helper()
	checker, err := conditions.NewChecker("", false, 600*time.Second, time.Hour)
	require.NoError(t, err)
	ch := events.NewChannel(0, nil)
	return New(ex, extractor.DefaultOptions("/tmp/dl"), cookies, checker, ch, nil), ch
}

func testJob() scheduler.Job {
	return scheduler.Job{ID: "job-1", URL: "https://youtu.be/abc", WindowCount: 4}
}

func ofType[T events.Event](evs []events.Event) []T {
	var out []T
	for _, e := range evs {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func logMessages(evs []events.Event) []string {
	var out []string
	for _, l := range ofType[events.Log](evs) {
		out = append(out, l.Message)
	}
	return out
}

func TestWorker_Success(t *testing.T) {
	// Given an extractor that reports progress and succeeds
	ex := &fakeExtractor{
		reports: []extractor.Progress{
			{Status: extractor.StatusDownloading, Downloaded: 0, Total: 100},
			{Status: extractor.StatusDownloading, Downloaded: 40, Total: 100, Percent: "40.0%", Speed: "1MiB/s", ETA: "00:02"},
			{Status: extractor.StatusDownloading, Downloaded: 100, Total: 100, Percent: "100.0%"},
			{Status: extractor.StatusFinished},
		},
		result: &extractor.Result{
			FinalPath:   "/tmp/dl/Clip.mp4",
			Title:       "Clip",
			Channel:     "Someone",
			Duration:    185 * time.Second,
			HasDuration: true,
		},
	}
	w, ch := newWorker(t, ex, true)

	// When the job runs
	w.Run(context.Background(), testJob())
	evs := ch.DrainAll()

	// Then the extractor saw the URL
	assert.Equal(t, "https://youtu.be/abc", ex.gotURL)

	// And progress never goes backwards and ends at 1
	progress := ofType[events.Progress](evs)
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i].Fraction, progress[i-1].Fraction)
	}
	assert.Equal(t, 1.0, progress[len(progress)-1].Fraction)
	assert.Equal(t, events.Success, progress[len(progress)-1].Severity)
	assert.Equal(t, "Loading: 40.0% | 1MiB/s | ETA 00:02", progress[1].Label)
	assert.Equal(t, "Loading: 0.0% | N/A | ETA N/A", progress[0].Label)

	// And the success layout is requested
	assert.Equal(t, []events.DurationKnown{{Formatted: "03:05", Severity: events.Warning}}, ofType[events.DurationKnown](evs))
	assert.Equal(t, []events.CaptionExtracted{{Caption: "Clip", Channel: "Someone"}}, ofType[events.CaptionExtracted](evs))
	assert.Equal(t, []events.ResetUI{{PreserveDuration: true}}, ofType[events.ResetUI](evs))
	assert.Equal(t, []events.JobCompleted{{
		JobID: "job-1", Outcome: events.OutcomeSuccess, Title: "Clip", Channel: "Someone",
		Path: "/tmp/dl/Clip.mp4", Duration: 185 * time.Second,
	}}, ofType[events.JobCompleted](evs))

	logs := logMessages(evs)
	assert.Contains(t, logs, "Starting: https://youtu.be/abc")
	assert.Contains(t, logs, "Preferring H.264 + AAC (mp4)")
	assert.Contains(t, logs, "Using cookie authentication")
	assert.Contains(t, logs, "Channel: Someone")
	assert.Contains(t, logs, "Caption: Clip")
	assert.Contains(t, logs, "Done: Clip.mp4")
	assert.Contains(t, logs, "4 downloads this hour")

	// And the run ends with the success flash followed by exactly one release
	flashes := ofType[events.FlashSignal](evs)
	assert.Equal(t, []events.FlashSignal{{Outcome: events.OutcomeSuccess}}, flashes)
	assert.Equal(t, []events.RunningFlagChanged{{Value: false, JobID: "job-1"}}, ofType[events.RunningFlagChanged](evs))
	assert.Equal(t, events.RunningFlagChanged{Value: false, JobID: "job-1"}, evs[len(evs)-1])
	assert.Empty(t, ofType[events.BackoffRequested](evs))
}

func TestWorker_ProgressClampedAndMonotonic(t *testing.T) {
	// Given progress that jumps backwards, as when audio follows video
	ex := &fakeExtractor{
		reports: []extractor.Progress{
			{Status: extractor.StatusDownloading, Downloaded: 80, Total: 100},
			{Status: extractor.StatusFinished},
			{Status: extractor.StatusDownloading, Downloaded: 10, Total: 100},
			{Status: extractor.StatusDownloading},
			{Status: "unknown-status"},
		},
		result: &extractor.Result{},
	}
	w, ch := newWorker(t, ex, false)

	w.Run(context.Background(), testJob())

	progress := ofType[events.Progress](ch.DrainAll())
	require.Len(t, progress, 5)
	assert.Equal(t, 0.8, progress[0].Fraction)
	assert.Equal(t, 1.0, progress[1].Fraction)
	assert.Equal(t, 1.0, progress[2].Fraction)
	assert.Equal(t, 1.0, progress[3].Fraction)
	for _, p := range progress {
		assert.GreaterOrEqual(t, p.Fraction, 0.0)
		assert.LessOrEqual(t, p.Fraction, 1.0)
	}
}

func TestWorker_SuccessWithMissingMetadata(t *testing.T) {
	w, ch := newWorker(t, &fakeExtractor{result: &extractor.Result{}}, false)

	w.Run(context.Background(), testJob())
	evs := ch.DrainAll()

	assert.Equal(t, "N/A", ofType[events.DurationKnown](evs)[0].Formatted)
	assert.Equal(t, events.CaptionExtracted{Caption: "", Channel: "Unknown"}, ofType[events.CaptionExtracted](evs)[0])
	logs := logMessages(evs)
	assert.Contains(t, logs, "Caption: (empty)")
	assert.Contains(t, logs, "Done: (unknown file)")
	assert.NotContains(t, logs, "Using cookie authentication")
}

func TestWorker_RateLimited(t *testing.T) {
	// Given an extractor failing with HTTP 429
	ex := &fakeExtractor{err: &extractor.ExitError{
		ExitCode: 1,
		Stderr:   "ERROR: [youtube] abc: HTTP Error 429: Too Many Requests\n",
	}}
	w, ch := newWorker(t, ex, false)

	// When the job runs
	w.Run(context.Background(), testJob())
	evs := ch.DrainAll()

	// Then a 600s backoff is requested and the error layout is shown
	assert.Equal(t, []events.BackoffRequested{{Penalty: 600 * time.Second, Reason: "rate limit pattern matched"}}, ofType[events.BackoffRequested](evs))
	progress := ofType[events.Progress](evs)
	assert.Equal(t, events.Progress{Fraction: 0, Label: "429: rate limited!", Severity: events.Error}, progress[len(progress)-1])
	assert.Contains(t, logMessages(evs), "429 Too Many Requests, backing off 10m")
	assertFailureTail(t, evs)
}

func TestWorker_RateLimitedWithRetryAfter(t *testing.T) {
	ex := &fakeExtractor{err: &extractor.ExitError{
		ExitCode: 1,
		Stderr:   "[debug] Retry-After: 1200\nERROR: HTTP Error 429: Too Many Requests\n",
	}}
	w, ch := newWorker(t, ex, false)

	w.Run(context.Background(), testJob())

	backoffs := ofType[events.BackoffRequested](ch.DrainAll())
	require.Len(t, backoffs, 1)
	assert.Equal(t, 1200*time.Second, backoffs[0].Penalty)
}

func TestWorker_GenericFailure(t *testing.T) {
	// Given a long non rate-limit error
	long := "ERROR: " + strings.Repeat("x", 2000)
	w, ch := newWorker(t, &fakeExtractor{err: errors.New(long)}, false)

	// When the job runs
	w.Run(context.Background(), testJob())
	evs := ch.DrainAll()

	// Then no backoff is requested and messages are truncated
	assert.Empty(t, ofType[events.BackoffRequested](evs))
	progress := ofType[events.Progress](evs)
	label := progress[len(progress)-1].Label
	assert.True(t, strings.HasPrefix(label, "Error: ERROR: xxx"))
	assert.Equal(t, len([]rune("Error: "))+120, len([]rune(label)))

	var errorLog string
	for _, m := range logMessages(evs) {
		if strings.HasPrefix(m, "Error: ") {
			errorLog = m
		}
	}
	assert.Equal(t, len([]rune("Error: "))+900, len([]rune(errorLog)))

	completed := ofType[events.JobCompleted](evs)
	require.Len(t, completed, 1)
	assert.Equal(t, long, completed[0].Err)
	assertFailureTail(t, evs)
}

func TestWorker_PanicIsContained(t *testing.T) {
	// Given an extractor that panics mid-download
	ex := &fakeExtractor{
		reports: []extractor.Progress{{Status: extractor.StatusDownloading, Downloaded: 5, Total: 10}},
		panics:  "boom",
	}
	w, ch := newWorker(t, ex, false)

	// When the job runs
	require.NotPanics(t, func() { w.Run(context.Background(), testJob()) })
	evs := ch.DrainAll()

	// Then the failure layout is published exactly once
	assert.Equal(t, []events.ButtonState{events.Ready()}, ofType[events.ButtonState](evs))
	assert.Equal(t, []events.FlashSignal{{Outcome: events.OutcomeError}}, ofType[events.FlashSignal](evs))
	assert.Equal(t, []events.RunningFlagChanged{{Value: false, JobID: "job-1"}}, ofType[events.RunningFlagChanged](evs))
	assert.Contains(t, logMessages(evs), "Error: unexpected failure: boom")
}

// assertFailureTail checks the closing sequence of a failed run.
func assertFailureTail(t *testing.T, evs []events.Event) {
	t.Helper()
	require.GreaterOrEqual(t, len(evs), 5)
	tail := evs[len(evs)-5:]
	assert.Equal(t, events.DurationKnown{Formatted: "N/A", Severity: events.Warning}, tail[0])
	assert.Equal(t, events.Ready(), tail[1])
	assert.IsType(t, events.JobCompleted{}, tail[2])
	assert.Equal(t, events.OutcomeError, tail[2].(events.JobCompleted).Outcome)
	assert.Equal(t, events.RunningFlagChanged{Value: false, JobID: "job-1"}, tail[3])
	assert.Equal(t, events.FlashSignal{Outcome: events.OutcomeError}, tail[4])
	assert.Len(t, ofType[events.RunningFlagChanged](evs), 1)
}
