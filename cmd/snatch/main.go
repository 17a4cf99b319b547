package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaneisley/snatch/pkg/config"
	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/tui"
	"github.com/shaneisley/snatch/pkg/window"
)

var version = "1.0.0"

// cliOptions holds the values of the persistent flags
type cliOptions struct {
	configFile  string
	envFile     string
	debugConfig bool

	downloadDir   string
	cookieFile    string
	ytdlpPath     string
	format        string
	minDelay      time.Duration
	maxDelay      time.Duration
	penalty       time.Duration
	tick          time.Duration
	queueCapacity int
	autoCopy      bool
	logLevel      string
}

// flagKeys maps flag names to configuration keys
var flagKeys = map[string]string{
	"download-dir":   "download_dir",
	"cookies":        "cookie_file",
	"ytdlp":          "ytdlp_path",
	"format":         "format",
	"min-delay":      "min_delay",
	"max-delay":      "max_delay",
	"penalty":        "penalty",
	"tick":           "tick",
	"queue-capacity": "queue_capacity",
	"auto-copy":      "auto_copy",
	"log-level":      "log_level",
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:   "snatch",
		Short: "Paste a link, get the video",
		Long: `snatch downloads videos from YouTube, TikTok, Facebook and Pinterest one at a
time through yt-dlp, pacing requests so the sites do not block you.

Without a subcommand it opens the terminal UI: paste a link and press enter.

Configuration precedence (highest to lowest):
1. CLI flags
2. Environment variables (SNATCH_*, also read from .env)
3. Configuration file
4. Default values

The configuration file is the one given by --config, else .snatch.toml or
snatch.toml in the current directory, else the same names in the home directory.

Environment variables:
- SNATCH_DOWNLOAD_DIR: Where videos are saved
- SNATCH_COOKIE_FILE: Netscape cookie file, used when present
- SNATCH_MIN_DELAY / SNATCH_MAX_DELAY: Random gap between downloads (e.g. "1s", "6s")
- SNATCH_PENALTY: Backoff after an HTTP 429 (e.g. "10m")
- SNATCH_ALLOWED_HOSTS: Comma separated list of supported sites
- SNATCH_LOG_LEVEL: debug, info, warn or error

EXAMPLES:
  # Interactive
  snatch

  # Headless, several links in a row
  snatch get https://youtu.be/abc https://www.tiktok.com/@user/video/123

  # Recent downloads
  snatch history --limit 20`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Configuration file path")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before reading SNATCH_* variables")
	flags.BoolVar(&opts.debugConfig, "debug-config", false, "Show configuration resolution debug information")

	flags.StringVarP(&opts.downloadDir, "download-dir", "o", "", "Download folder (default: ~/Downloads/Snatch-Downloads)")
	flags.StringVar(&opts.cookieFile, "cookies", "", "Cookie file for authenticated downloads (default: cookies.txt)")
	flags.StringVar(&opts.ytdlpPath, "ytdlp", "", "Path to the yt-dlp binary")
	flags.StringVarP(&opts.format, "format", "f", "", "yt-dlp format selector (default: H.264 + AAC)")
	flags.DurationVar(&opts.minDelay, "min-delay", 0, "Shortest random gap between downloads (default: 1s)")
	flags.DurationVar(&opts.maxDelay, "max-delay", 0, "Longest random gap between downloads (default: 6s)")
	flags.DurationVar(&opts.penalty, "penalty", 0, "Backoff after a rate-limit response (default: 10m)")
	flags.DurationVar(&opts.tick, "tick", 0, "Event loop cadence (default: 50ms)")
	flags.IntVar(&opts.queueCapacity, "queue-capacity", 0, "Bound the event queue, dropping the oldest events (default: 0 = unbounded)")
	flags.BoolVar(&opts.autoCopy, "auto-copy", true, "Copy the caption to the clipboard after each download")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")

	rootCmd.AddCommand(
		createTUICommand(opts),
		createGetCommand(opts),
		createHistoryCommand(opts),
		createConfigCommand(opts),
	)

	return rootCmd
}

// flagValue returns the typed value of a flag for the override map
func (o *cliOptions) flagValue(name string) interface{} {
	switch name {
	case "download-dir":
		return o.downloadDir
	case "cookies":
		return o.cookieFile
	case "ytdlp":
		return o.ytdlpPath
	case "format":
		return o.format
	case "min-delay":
		return o.minDelay
	case "max-delay":
		return o.maxDelay
	case "penalty":
		return o.penalty
	case "tick":
		return o.tick
	case "queue-capacity":
		return o.queueCapacity
	case "auto-copy":
		return o.autoCopy
	case "log-level":
		return o.logLevel
	}
	return nil
}

// loadConfiguration loads configuration with full precedence support
func loadConfiguration(cmd *cobra.Command, opts *cliOptions) (*config.Config, error) {
	cfg, debugInfo, err := resolveConfiguration(cmd, opts, opts.debugConfig)
	if err != nil {
		return nil, err
	}

	if opts.debugConfig && debugInfo != nil {
		debugInfo.PrintDebugInfo(cmd.ErrOrStderr())
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	return cfg, nil
}

// resolveConfiguration merges the env file, config file, environment and
// explicitly set flags, then fills in the default paths
func resolveConfiguration(cmd *cobra.Command, opts *cliOptions, debug bool) (*config.Config, *config.ConfigDebugInfo, error) {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return nil, nil, err
	}

	// Determine config file to use
	configPath := opts.configFile
	if configPath == "" {
		cwd, _ := os.Getwd()
		if found := config.FindConfigFile(cwd); found != "" {
			configPath = found
		} else if homeDir, err := os.UserHomeDir(); err == nil {
			configPath = config.FindConfigFile(homeDir)
		}
	}

	// Only explicitly set flags override lower sources
	overrides := make(map[string]interface{})
	for name, key := range flagKeys {
		if cmd.Flags().Changed(name) {
			overrides[key] = opts.flagValue(name)
		}
	}

	cfg, debugInfo, err := config.LoadWithPrecedence(configPath, overrides, debug)
	if err != nil {
		return nil, nil, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cfg.ResolvePaths(home)

	return cfg, debugInfo, nil
}

func runTUI(cmd *cobra.Command, opts *cliOptions) error {
	cfg, err := loadConfiguration(cmd, opts)
	if err != nil {
		return err
	}

	// the screen belongs to the UI, so logs go to a file
	logger, logFile, err := logging.NewFileLogger(filepath.Join(cfg.StateDir, "snatch.log"), "snatch", cfg.Level())
	if err != nil {
		return err
	}
	defer logFile.Close()

	rt, err := buildRuntime(cfg, logger, newExtractor(cfg), newClipboard())
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.LogStartup(version, cfg.DownloadDir, rt.cookies, cfg.AutoCopy)

	return tui.Run(rt.loop, tui.Options{
		Tick:        cfg.Tick,
		Window:      window.NewStore(cfg.PositionFile, version),
		Version:     version,
		DownloadDir: cfg.DownloadDir,
		Logger:      logger,
	})
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
