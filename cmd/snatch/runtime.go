package main

import (
	"fmt"
	"time"

	"github.com/shaneisley/snatch/pkg/app"
	"github.com/shaneisley/snatch/pkg/conditions"
	"github.com/shaneisley/snatch/pkg/config"
	"github.com/shaneisley/snatch/pkg/events"
	"github.com/shaneisley/snatch/pkg/extractor"
	"github.com/shaneisley/snatch/pkg/history"
	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/ratelimit"
	"github.com/shaneisley/snatch/pkg/urlcheck"
	"github.com/shaneisley/snatch/pkg/worker"
)

// maxRetryAfter caps a server supplied Retry-After
const maxRetryAfter = time.Hour

// Replaced in tests
var (
	newExtractor = func(cfg *config.Config) extractor.Extractor {
		return extractor.NewYtDlp(cfg.YtDlpPath)
	}
	newClipboard = app.SystemClipboard
)

type cookieChecker interface {
	CookiesActive(opts extractor.Options) bool
}

// runtime is one fully wired session
type runtime struct {
	loop    *app.Loop
	pool    *worker.Pool
	events  *events.Channel
	history *history.Database
	logger  *logging.Logger
	cookies bool
}

func buildRuntime(cfg *config.Config, logger *logging.Logger, ex extractor.Extractor, clip app.Clipboard) (*runtime, error) {
	checker, err := conditions.NewChecker(cfg.RateLimitPattern, true, cfg.Penalty, maxRetryAfter)
	if err != nil {
		return nil, fmt.Errorf("rate limit pattern: %w", err)
	}

	opts := cfg.ExtractorOptions()
	cookies := false
	if cc, ok := ex.(cookieChecker); ok {
		cookies = cc.CookiesActive(opts)
	}

	rt := &runtime{
		events:  events.NewChannel(cfg.QueueCapacity, logger),
		logger:  logger,
		cookies: cookies,
	}

	w := worker.New(ex, opts, cookies, checker, rt.events, logger)
	rt.pool = worker.NewPool(1, w.Run, logger)

	deps := app.Deps{
		Limiter:   ratelimit.New(cfg.Policy()),
		Launcher:  rt.pool,
		Validator: urlcheck.NewValidator(cfg.AllowedHosts),
		Events:    rt.events,
		Clipboard: clip,
		Logger:    logger,
	}

	// history is best effort; downloads work without it
	db, err := history.NewDatabase(cfg.HistoryDB)
	if err != nil {
		logger.Warn("history disabled", "path", cfg.HistoryDB, "error", err)
	} else {
		if n, err := db.AbandonRunning(time.Now()); err != nil {
			logger.LogError("history recover", err)
		} else if n > 0 {
			logger.Info("marked interrupted downloads as failed", "count", n)
		}
		rt.history = db
		deps.History = db
	}

	rt.loop = app.New(deps, app.Options{
		SuccessHold:   cfg.SuccessHold,
		FlashInterval: cfg.FlashInterval,
		FlashTimeout:  cfg.FlashTimeout,
		CopiedHold:    app.DefaultOptions().CopiedHold,
		AutoCopy:      cfg.AutoCopy,
	})
	rt.pool.Start()

	return rt, nil
}

// Close stops the worker, applies whatever it published on the way out and
// closes the history database
func (rt *runtime) Close() {
	rt.loop.Close()
	rt.pool.Stop()
	rt.loop.Tick()

	if dropped := rt.events.Dropped(); dropped > 0 {
		rt.logger.Warn("events dropped during session", "count", dropped)
	}
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			rt.logger.LogError("history close", err)
		}
	}
}
