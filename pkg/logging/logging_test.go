package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestStructuredLogging(t *testing.T) {
	t.Run("ParseLevel maps config strings", func(t *testing.T) {
		tests := []struct {
			in       string
			expected LogLevel
		}{
			{"debug", LogLevelDebug},
			{"INFO", LogLevelInfo},
			{" warn ", LogLevelWarn},
			{"error", LogLevelError},
			{"verbose", LogLevelInfo},
			{"", LogLevelInfo},
		}

		for _, tt := range tests {
			t.Run(tt.in, func(t *testing.T) {
				assert.Equal(t, tt.expected, ParseLevel(tt.in))
			})
		}
	})

	t.Run("Logger outputs structured JSON", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "scheduler", LogLevelDebug)

		logger.Info("test message", "key", "value", "number", 42)

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 1)
		entry := entries[0]
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "test message", entry["msg"])
		assert.Equal(t, "scheduler", entry["component"])
		assert.Equal(t, "value", entry["key"])
		assert.Equal(t, float64(42), entry["number"])
		assert.Contains(t, entry, "time")
	})

	t.Run("level filters records", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "test", LogLevelWarn)

		logger.Debug("hidden")
		logger.Info("hidden")
		logger.Warn("shown")
		logger.Error("shown too")

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 2)
		assert.Equal(t, "WARN", entries[0]["level"])
		assert.Equal(t, "ERROR", entries[1]["level"])
	})

	t.Run("WithComponent and WithJob", func(t *testing.T) {
		var buf bytes.Buffer
		base := NewLoggerWithWriter(&buf, "original", LogLevelInfo)

		base.WithComponent("worker").WithJob("job-1").Info("started")

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "worker", entries[0]["component"])
		assert.Equal(t, "job-1", entries[0]["job_id"])
		assert.Equal(t, "original", base.Component())
	})

	t.Run("LogError includes operation and error", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "window", LogLevelInfo)

		logger.LogError("save_position", errors.New("disk full"), "path", "/tmp/x")

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "operation failed", entries[0]["msg"])
		assert.Equal(t, "save_position", entries[0]["operation"])
		assert.Equal(t, "disk full", entries[0]["error"])
		assert.Equal(t, "/tmp/x", entries[0]["path"])
	})
}

func TestNewFileLogger(t *testing.T) {
	// Given a path in a directory that does not exist yet
	path := filepath.Join(t.TempDir(), "state", "snatch.log")

	// When a file logger is created and used
	logger, f, err := NewFileLogger(path, "tui", LogLevelInfo)
	require.NoError(t, err)
	logger.LogStartup("1.0.0", "/downloads", true, false)
	require.NoError(t, f.Close())

	// Then the record lands in the file
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"snatch starting"`)
	assert.Contains(t, string(data), `"cookies":true`)
}
