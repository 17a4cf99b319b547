package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaneisley/snatch/pkg/config"
	"github.com/shaneisley/snatch/pkg/history"
	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/ui"
	"github.com/shaneisley/snatch/pkg/urlcheck"
)

// createTUICommand creates the interactive subcommand, the same as running
// snatch without one
func createTUICommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "tui",
		Aliases: []string{"ui"},
		Short:   "Open the terminal UI",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}
}

// createGetCommand creates the headless download subcommand
func createGetCommand(opts *cliOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "get <url>...",
		Short: "Download links without the UI",
		Long: `Download one or more links in order, applying the same pacing as the UI.
A link that arrives too early waits for its turn. Invalid links are reported
and skipped. The command fails if any link was rejected or failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd, opts)
			if err != nil {
				return err
			}

			logger := logging.NewLoggerWithWriter(cmd.ErrOrStderr(), "snatch", cfg.Level())

			reporter := ui.NewReporter(cmd.OutOrStdout())
			reporter.SetQuiet(quiet)
			stats, err := runGet(cmd.Context(), cfg, logger, reporter, args)
			if err != nil && stats == nil {
				return err
			}
			reporter.FinalSummary(stats)
			if err != nil {
				return err
			}
			if !stats.Success {
				return fmt.Errorf("%d of %d downloads failed", stats.Failed+stats.Rejected, stats.TotalJobs+stats.Rejected)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print results and the summary")

	return cmd
}

// runGet downloads urls one after another on a ticking consumer loop. It
// returns early if ctx is cancelled or an interrupt arrives.
func runGet(ctx context.Context, cfg *config.Config, logger *logging.Logger, reporter *ui.Reporter, urls []string) (*ui.RunStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := buildRuntime(cfg, logger, newExtractor(cfg), newClipboard())
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	stats := ui.NewRunStats()
	rt.loop.Observe(reporter.Observe)
	rt.loop.Observe(stats.Observe)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		ticker := time.NewTicker(cfg.Tick)
		defer ticker.Stop()

		pending := urls
		for {
			rt.loop.Tick()
			if rt.loop.Idle() && !rt.loop.State().Running {
				if len(pending) == 0 {
					return nil
				}
				next := pending[0]
				pending = pending[1:]
				if err := rt.loop.Submit(next); err != nil {
					if errors.Is(err, urlcheck.ErrInvalidInput) {
						stats.RecordRejected()
						continue
					}
					logger.LogError("submit", err, "url", next)
				}
			}

			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}
	})

	// an interrupt stops the running download instead of waiting for it
	g.Go(func() error {
		select {
		case <-gctx.Done():
			rt.pool.Stop()
		case <-done:
		}
		return nil
	})

	err = g.Wait()
	stats.Finalize()
	if errors.Is(err, context.Canceled) {
		return stats, errors.New("interrupted")
	}
	return stats, err
}

// createHistoryCommand creates the history subcommand
func createHistoryCommand(opts *cliOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent downloads",
		Long:  `Show the most recent downloads recorded in the history database, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd, opts)
			if err != nil {
				return err
			}

			db, err := history.NewDatabase(cfg.HistoryDB)
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer db.Close()

			records, err := db.Recent(limit)
			if err != nil {
				return err
			}
			summary, err := db.Summarize()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No downloads yet.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tSTATE\tDURATION\tTITLE\tURL")
			for _, r := range records {
				title := r.Title
				if title == "" {
					title = r.Error
				}
				duration := "N/A"
				if r.Duration > 0 {
					duration = ui.FormatClock(r.Duration, true)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.SubmittedAt.Local().Format("2006-01-02 15:04"),
					r.State,
					duration,
					ui.Truncate(title, 50),
					r.URL)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%d total, %d succeeded, %d failed, %d running\n",
				summary.Total, summary.Succeeded, summary.Failed, summary.Running)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of downloads to show (0 = all)")

	return cmd
}

// createConfigCommand creates the config subcommand
func createConfigCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long:  `Show every configuration value after applying defaults, the config file, environment variables and flags, with the source of each.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, info, err := resolveConfiguration(cmd, opts, true)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			info.PrintDebugInfo(out)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Resolved Paths:")
			fmt.Fprintf(out, "  download_dir: %s\n", cfg.DownloadDir)
			fmt.Fprintf(out, "  history_db: %s\n", cfg.HistoryDB)
			fmt.Fprintf(out, "  position_file: %s\n", cfg.PositionFile)
			return nil
		},
	}
}
