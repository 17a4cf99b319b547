package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/snatch/pkg/extractor"
	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/urlcheck"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfig_Defaults(t *testing.T) {
	// When loading defaults
	config := LoadWithDefaults()

	// Then pacing and UI timing match the stock values
	assert.Equal(t, time.Second, config.MinDelay)
	assert.Equal(t, 6*time.Second, config.MaxDelay)
	assert.Equal(t, time.Hour, config.Window)
	assert.Equal(t, 600*time.Second, config.Penalty)
	assert.Equal(t, 5*time.Second, config.PenaltyFloor)
	assert.Equal(t, 50*time.Millisecond, config.Tick)
	assert.Equal(t, 2*time.Second, config.SuccessHold)
	assert.Equal(t, 600*time.Millisecond, config.FlashInterval)
	assert.Equal(t, 60*time.Second, config.FlashTimeout)
	assert.Equal(t, urlcheck.DefaultHosts, config.AllowedHosts)
	assert.Equal(t, extractor.DefaultFormat, config.Format)
	assert.Equal(t, "mp4", config.MergeFormat)
	assert.Equal(t, "cookies.txt", config.CookieFile)
	assert.True(t, config.AutoCopy)
	assert.Equal(t, 0, config.QueueCapacity)
	assert.NoError(t, config.Validate())
}

func TestConfig_LoadFromFile(t *testing.T) {
	// Given a TOML configuration file
	configFile := writeConfig(t, "snatch.toml", `
download_dir = "/media/clips"
min_delay = "2s"
max_delay = "10s"
penalty = "15m"
allowed_hosts = ["youtube.com", "vimeo.com"]
auto_copy = false
log_level = "debug"
retries = 5
`)

	// When loading configuration from file
	config, err := LoadFromFile(configFile)

	// Then it should load specified values and keep defaults for others
	require.NoError(t, err)
	assert.Equal(t, "/media/clips", config.DownloadDir)
	assert.Equal(t, 2*time.Second, config.MinDelay)
	assert.Equal(t, 10*time.Second, config.MaxDelay)
	assert.Equal(t, 15*time.Minute, config.Penalty)
	assert.Equal(t, []string{"youtube.com", "vimeo.com"}, config.AllowedHosts)
	assert.False(t, config.AutoCopy)
	assert.Equal(t, logging.LogLevelDebug, config.Level())
	assert.Equal(t, 5, config.Retries)
	assert.Equal(t, time.Hour, config.Window) // Default
}

func TestConfig_LoadYAML(t *testing.T) {
	configFile := writeConfig(t, ".snatch.yaml", "queue_capacity: 64\nflash_timeout: 30s\n")

	config, err := LoadFromFile(configFile)

	require.NoError(t, err)
	assert.Equal(t, 64, config.QueueCapacity)
	assert.Equal(t, 30*time.Second, config.FlashTimeout)
}

func TestConfig_LoadFromNonExistentFile(t *testing.T) {
	config, err := LoadFromFile("/non/existent/file.toml")

	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestConfig_InvalidFileRejected(t *testing.T) {
	// Given a file with several invalid values
	configFile := writeConfig(t, "snatch.toml", `
min_delay = "10s"
max_delay = "2s"
queue_capacity = -1
log_level = "loud"
rate_limit_pattern = "(unclosed"
`)

	// When loading it
	_, err := LoadFromFile(configFile)

	// Then every problem is reported together
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "max_delay")
	assert.Contains(t, err.Error(), "queue_capacity")
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "rate_limit_pattern")
}

func TestConfig_Precedence(t *testing.T) {
	// Given a file, an environment variable and a flag override
	configFile := writeConfig(t, "snatch.toml", `
min_delay = "2s"
max_delay = "20s"
penalty = "5m"
format = "best"
`)
	t.Setenv("SNATCH_MAX_DELAY", "30s")
	t.Setenv("SNATCH_PENALTY", "7m")
	t.Setenv("SNATCH_ALLOWED_HOSTS", "youtube.com,example.org")

	// When resolving with debug info
	config, debug, err := LoadWithPrecedence(configFile, map[string]interface{}{
		"penalty": 9 * time.Minute,
	}, true)

	// Then each value comes from the highest source that set it
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, config.MinDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Equal(t, 9*time.Minute, config.Penalty)
	assert.Equal(t, "best", config.Format)
	assert.Equal(t, []string{"youtube.com", "example.org"}, config.AllowedHosts)

	assert.Equal(t, SourceConfigFile, debug.Sources["min_delay"])
	assert.Equal(t, SourceEnvironment, debug.Sources["max_delay"])
	assert.Equal(t, SourceCLIFlag, debug.Sources["penalty"])
	assert.Equal(t, SourceDefault, debug.Sources["window"])

	var out bytes.Buffer
	debug.PrintDebugInfo(&out)
	assert.Contains(t, out.String(), "Configuration Resolution Debug Info:")
	assert.Contains(t, out.String(), "(from CLI flag)")
	assert.Contains(t, out.String(), configFile)
}

func TestConfig_EnvFile(t *testing.T) {
	// Given a .env file and an already exported variable
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SNATCH_RETRIES=7\nSNATCH_LOG_LEVEL=warn\n"), 0644))
	t.Setenv("SNATCH_LOG_LEVEL", "error")
	t.Cleanup(func() { os.Unsetenv("SNATCH_RETRIES") })

	// When loading the env file then the configuration
	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env"), envFile))
	config, _, err := LoadWithPrecedence("", nil, false)

	// Then values from the file apply, but never over the real environment
	require.NoError(t, err)
	assert.Equal(t, 7, config.Retries)
	assert.Equal(t, "error", config.LogLevel)
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", FindConfigFile(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "snatch.toml"), nil, 0644))
	assert.Equal(t, filepath.Join(dir, "snatch.toml"), FindConfigFile(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".snatch.toml"), nil, 0644))
	assert.Equal(t, filepath.Join(dir, ".snatch.toml"), FindConfigFile(dir))
}

func TestConfig_ResolvePathsAndConversions(t *testing.T) {
	// Given defaults with no paths set
	config := LoadWithDefaults()
	config.Penalty = 2 * time.Minute

	// When resolving against a home directory
	config.ResolvePaths("/home/u")

	// Then the state files live under the state directory
	assert.Equal(t, filepath.Join("/home/u", "Downloads", "Snatch-Downloads"), config.DownloadDir)
	assert.Equal(t, filepath.Join("/home/u", ".snatch"), config.StateDir)
	assert.Equal(t, filepath.Join("/home/u", ".snatch", "history.db"), config.HistoryDB)
	assert.Equal(t, filepath.Join("/home/u", ".snatch", "window_config.json"), config.PositionFile)

	opts := config.ExtractorOptions()
	assert.Equal(t, filepath.Join(config.DownloadDir, "%(title)s.%(ext)s"), opts.OutputTemplate)
	assert.Equal(t, "cookies.txt", opts.CookieFile)
	assert.Equal(t, 30*time.Second, opts.SocketTimeout)

	policy := config.Policy()
	assert.Equal(t, 2*time.Minute, policy.Penalty)
	assert.Equal(t, 3*time.Second, policy.InitialDelay)
}

func TestValidationError_Message(t *testing.T) {
	err := ValidationError{Field: "tick", Value: 0, Message: "must be greater than 0"}

	assert.Equal(t, "invalid tick value '0': must be greater than 0", err.Error())
}

func TestConfigSource_String(t *testing.T) {
	assert.Equal(t, "default", SourceDefault.String())
	assert.Equal(t, "config file", SourceConfigFile.String())
	assert.Equal(t, "environment variable", SourceEnvironment.String())
	assert.Equal(t, "CLI flag", SourceCLIFlag.String())
	assert.Equal(t, "SNATCH_MIN_DELAY", EnvVar("min_delay"))
}
