package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shaneisley/snatch/pkg/conditions"
	"github.com/shaneisley/snatch/pkg/extractor"
	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/ratelimit"
	"github.com/shaneisley/snatch/pkg/urlcheck"
)

// EnvPrefix is prepended to every environment variable
const EnvPrefix = "SNATCH"

// Config holds the configuration for the snatch CLI
type Config struct {
	// Paths. Empty values are filled in by ResolvePaths.
	DownloadDir    string `mapstructure:"download_dir"`
	OutputTemplate string `mapstructure:"output_template"`
	YtDlpPath      string `mapstructure:"ytdlp_path"`
	CookieFile     string `mapstructure:"cookie_file"`
	HistoryDB      string `mapstructure:"history_db"`
	PositionFile   string `mapstructure:"position_file"`
	StateDir       string `mapstructure:"state_dir"`

	// Extractor
	Format        string        `mapstructure:"format"`
	MergeFormat   string        `mapstructure:"merge_format"`
	SocketTimeout time.Duration `mapstructure:"socket_timeout"`
	Retries       int           `mapstructure:"retries"`

	// Pacing
	MinDelay         time.Duration `mapstructure:"min_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	Window           time.Duration `mapstructure:"window"`
	Penalty          time.Duration `mapstructure:"penalty"`
	PenaltyFloor     time.Duration `mapstructure:"penalty_floor"`
	RateLimitPattern string        `mapstructure:"rate_limit_pattern"`

	// UI timing
	Tick          time.Duration `mapstructure:"tick"`
	SuccessHold   time.Duration `mapstructure:"success_hold"`
	FlashInterval time.Duration `mapstructure:"flash_interval"`
	FlashTimeout  time.Duration `mapstructure:"flash_timeout"`

	AllowedHosts  []string `mapstructure:"allowed_hosts"`
	QueueCapacity int      `mapstructure:"queue_capacity"`
	AutoCopy      bool     `mapstructure:"auto_copy"`
	LogLevel      string   `mapstructure:"log_level"`
}

// Keys lists every configuration key in display order
var Keys = []string{
	"download_dir", "output_template", "ytdlp_path", "cookie_file",
	"history_db", "position_file", "state_dir",
	"format", "merge_format", "socket_timeout", "retries",
	"min_delay", "max_delay", "window", "penalty", "penalty_floor", "rate_limit_pattern",
	"tick", "success_hold", "flash_interval", "flash_timeout",
	"allowed_hosts", "queue_capacity", "auto_copy", "log_level",
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}

// ConfigSource represents where a configuration value came from
type ConfigSource int

const (
	SourceDefault ConfigSource = iota
	SourceConfigFile
	SourceEnvironment
	SourceCLIFlag
)

func (s ConfigSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceConfigFile:
		return "config file"
	case SourceEnvironment:
		return "environment variable"
	case SourceCLIFlag:
		return "CLI flag"
	default:
		return "unknown"
	}
}

// ConfigDebugInfo holds debugging information about configuration resolution
type ConfigDebugInfo struct {
	ConfigFile string
	Sources    map[string]ConfigSource
	Values     map[string]interface{}
}

// EnvVar returns the environment variable bound to a config key
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// LoadEnvFile loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped and variables that are
// already set are left alone.
func LoadEnvFile(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a TOML or YAML file
func LoadFromFile(configFile string) (*Config, error) {
	cfg, _, err := LoadWithPrecedence(configFile, nil, false)
	return cfg, err
}

// LoadWithPrecedence resolves configuration as
// defaults < config file < environment < flags.
// overrides holds only the flag values the user explicitly set, keyed by
// config key.
func LoadWithPrecedence(configFile string, overrides map[string]interface{}, debug bool) (*Config, *ConfigDebugInfo, error) {
	var debugInfo *ConfigDebugInfo
	if debug {
		debugInfo = &ConfigDebugInfo{
			ConfigFile: configFile,
			Sources:    make(map[string]ConfigSource),
			Values:     make(map[string]interface{}),
		}
	}

	v := viper.New()

	setDefaults(v)
	if debug {
		recordDefaults(debugInfo, v)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if filepath.Ext(configFile) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, debugInfo, fmt.Errorf("failed to read config file: %w", err)
		}
		if debug {
			recordConfigFile(debugInfo, v)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, key := range Keys {
		v.BindEnv(key, EnvVar(key))
	}
	if debug {
		recordEnvironment(debugInfo)
	}

	for key, value := range overrides {
		v.Set(key, value)
		if debug {
			debugInfo.Sources[key] = SourceCLIFlag
			debugInfo.Values[key] = value
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, debugInfo, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, debugInfo, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, debugInfo, nil
}

// LoadWithDefaults returns a configuration with default values
func LoadWithDefaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	v.Unmarshal(&config)
	return &config
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("download_dir", "")
	v.SetDefault("output_template", "%(title)s.%(ext)s")
	v.SetDefault("ytdlp_path", "")
	v.SetDefault("cookie_file", "cookies.txt")
	v.SetDefault("history_db", "")
	v.SetDefault("position_file", "")
	v.SetDefault("state_dir", "")

	v.SetDefault("format", extractor.DefaultFormat)
	v.SetDefault("merge_format", "mp4")
	v.SetDefault("socket_timeout", 30*time.Second)
	v.SetDefault("retries", 3)

	policy := ratelimit.DefaultPolicy()
	v.SetDefault("min_delay", policy.MinDelay)
	v.SetDefault("max_delay", policy.MaxDelay)
	v.SetDefault("window", policy.Window)
	v.SetDefault("penalty", policy.Penalty)
	v.SetDefault("penalty_floor", policy.PenaltyFloor)
	v.SetDefault("rate_limit_pattern", conditions.DefaultRateLimitPattern)

	v.SetDefault("tick", 50*time.Millisecond)
	v.SetDefault("success_hold", 2*time.Second)
	v.SetDefault("flash_interval", 600*time.Millisecond)
	v.SetDefault("flash_timeout", 60*time.Second)

	v.SetDefault("allowed_hosts", append([]string(nil), urlcheck.DefaultHosts...))
	v.SetDefault("queue_capacity", 0)
	v.SetDefault("auto_copy", true)
	v.SetDefault("log_level", "info")
}

// FindConfigFile searches for a configuration file in the given directory
// It looks for .snatch.toml, snatch.toml, .snatch.yaml, snatch.yaml files
func FindConfigFile(dir string) string {
	configNames := []string{".snatch.toml", "snatch.toml", ".snatch.yaml", "snatch.yaml"}

	for _, name := range configNames {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return ""
}

// ResolvePaths fills empty path settings relative to home
func (c *Config) ResolvePaths(home string) {
	if c.DownloadDir == "" {
		c.DownloadDir = filepath.Join(home, "Downloads", "Snatch-Downloads")
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(home, ".snatch")
	}
	if c.HistoryDB == "" {
		c.HistoryDB = filepath.Join(c.StateDir, "history.db")
	}
	if c.PositionFile == "" {
		c.PositionFile = filepath.Join(c.StateDir, "window_config.json")
	}
	if c.OutputTemplate != "" && !filepath.IsAbs(c.OutputTemplate) {
		c.OutputTemplate = filepath.Join(c.DownloadDir, c.OutputTemplate)
	}
}

// Policy returns the pacing parameters
func (c *Config) Policy() ratelimit.Policy {
	policy := ratelimit.DefaultPolicy()
	policy.MinDelay = c.MinDelay
	policy.MaxDelay = c.MaxDelay
	policy.Window = c.Window
	policy.Penalty = c.Penalty
	policy.PenaltyFloor = c.PenaltyFloor
	return policy
}

// ExtractorOptions returns the per-download extractor options
func (c *Config) ExtractorOptions() extractor.Options {
	opts := extractor.DefaultOptions(c.DownloadDir)
	if c.OutputTemplate != "" {
		opts.OutputTemplate = c.OutputTemplate
	}
	opts.Format = c.Format
	opts.MergeFormat = c.MergeFormat
	opts.CookieFile = c.CookieFile
	opts.SocketTimeout = c.SocketTimeout
	opts.Retries = c.Retries
	return opts
}

// Level returns the configured log level
func (c *Config) Level() logging.LogLevel {
	return logging.ParseLevel(c.LogLevel)
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []ValidationError

	nonNegative := func(field string, d time.Duration) {
		if d < 0 {
			errs = append(errs, ValidationError{Field: field, Value: d, Message: "must be non-negative"})
		}
	}

	// Validate pacing
	nonNegative("min_delay", c.MinDelay)
	nonNegative("max_delay", c.MaxDelay)
	nonNegative("penalty", c.Penalty)
	nonNegative("penalty_floor", c.PenaltyFloor)
	if c.MaxDelay < c.MinDelay {
		errs = append(errs, ValidationError{
			Field:   "max_delay",
			Value:   c.MaxDelay,
			Message: "must be greater than or equal to min_delay",
		})
	}
	if c.Window <= 0 {
		errs = append(errs, ValidationError{Field: "window", Value: c.Window, Message: "must be greater than 0"})
	}
	if c.MaxDelay > 24*time.Hour {
		errs = append(errs, ValidationError{Field: "max_delay", Value: c.MaxDelay, Message: "must be 24 hours or less"})
	}
	if _, err := regexp.Compile(c.RateLimitPattern); err != nil {
		errs = append(errs, ValidationError{Field: "rate_limit_pattern", Value: c.RateLimitPattern, Message: err.Error()})
	}

	// Validate extractor
	nonNegative("socket_timeout", c.SocketTimeout)
	if c.Retries < 0 {
		errs = append(errs, ValidationError{Field: "retries", Value: c.Retries, Message: "must be non-negative"})
	}
	if strings.TrimSpace(c.MergeFormat) == "" {
		errs = append(errs, ValidationError{Field: "merge_format", Value: c.MergeFormat, Message: "must not be empty"})
	}

	// Validate UI timing
	if c.Tick <= 0 || c.Tick > time.Second {
		errs = append(errs, ValidationError{Field: "tick", Value: c.Tick, Message: "must be between 1ns and 1s"})
	}
	if c.FlashInterval <= 0 {
		errs = append(errs, ValidationError{Field: "flash_interval", Value: c.FlashInterval, Message: "must be greater than 0"})
	}
	nonNegative("success_hold", c.SuccessHold)
	nonNegative("flash_timeout", c.FlashTimeout)

	if c.QueueCapacity < 0 {
		errs = append(errs, ValidationError{
			Field:   "queue_capacity",
			Value:   c.QueueCapacity,
			Message: "must be non-negative (0 means unbounded)",
		})
	}

	switch logging.LogLevel(strings.ToLower(c.LogLevel)) {
	case logging.LogLevelDebug, logging.LogLevelInfo, logging.LogLevelWarn, logging.LogLevelError:
	default:
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Value:   c.LogLevel,
			Message: "must be 'debug', 'info', 'warn' or 'error'",
		})
	}

	if len(errs) > 0 {
		var messages []string
		for _, err := range errs {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(messages, "\n  - "))
	}

	return nil
}

// recordDefaults records default values in debug info
func recordDefaults(debug *ConfigDebugInfo, v *viper.Viper) {
	for _, key := range Keys {
		debug.Sources[key] = SourceDefault
		debug.Values[key] = v.Get(key)
	}
}

// recordConfigFile records config file values in debug info
func recordConfigFile(debug *ConfigDebugInfo, v *viper.Viper) {
	for _, key := range Keys {
		if v.InConfig(key) {
			debug.Sources[key] = SourceConfigFile
			debug.Values[key] = v.Get(key)
		}
	}
}

// recordEnvironment records environment variable values in debug info
func recordEnvironment(debug *ConfigDebugInfo) {
	for _, key := range Keys {
		if value := os.Getenv(EnvVar(key)); value != "" {
			debug.Sources[key] = SourceEnvironment
			debug.Values[key] = value
		}
	}
}

// PrintDebugInfo writes configuration debug information to w
func (debug *ConfigDebugInfo) PrintDebugInfo(w io.Writer) {
	fmt.Fprintln(w, "Configuration Resolution Debug Info:")
	fmt.Fprintln(w, "===================================")
	if debug.ConfigFile != "" {
		fmt.Fprintf(w, "%-20s: %s\n", "config_file", debug.ConfigFile)
	}

	for _, key := range Keys {
		source := debug.Sources[key]
		value := debug.Values[key]
		fmt.Fprintf(w, "%-20s: %-15v (from %s)\n", key, value, source)
	}
}
