package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labflat/internal/config"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line: %s", line)
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(config.LoggingConfig{Level: "info", Output: "console"}, &buf)
	require.NoError(t, err)
	assert.Nil(t, closer)

	logger.Info("archive flattened", "rows", 2)
	logger.Debug("hidden")

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, "archive flattened", entries[0]["msg"])
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.EqualValues(t, 2, entries[0]["rows"])
}

func TestNewLoggerBoth(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "labflat.log")

	var buf bytes.Buffer
	logger, closer, err := NewLogger(config.LoggingConfig{Level: "debug", Output: "both", FilePath: logFile}, &buf)
	require.NoError(t, err)
	require.NotNil(t, closer)

	logger.Debug("both outputs")
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "both outputs", decodeLines(t, content)[0]["msg"])
	assert.Equal(t, "both outputs", decodeLines(t, buf.Bytes())[0]["msg"])
}

func TestNewLoggerFileError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, _, err := NewLogger(config.LoggingConfig{Output: "file", FilePath: filepath.Join(blocker, "app.log")}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestTraceIDInjection(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := NewLogger(config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	ctx := WithTraceID(context.Background(), "trace-123")
	logger.With("component", "test").InfoContext(ctx, "with trace")
	logger.InfoContext(context.Background(), "without trace")

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 2)
	assert.Equal(t, "trace-123", entries[0]["trace_id"])
	assert.Equal(t, "test", entries[0]["component"])
	assert.NotContains(t, entries[1], "trace_id")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"INFO":    "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in).String(), in)
	}
}

func TestInitializeLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")
	t.Cleanup(func() { _ = CloseLogFile() })

	logger, err := InitializeLogger(config.LoggingConfig{Level: "info", Output: "file", FilePath: logFile})
	require.NoError(t, err)
	assert.Same(t, logger, GetLogger())

	logger.Info("global")
	require.NoError(t, CloseLogFile())
	require.NoError(t, CloseLogFile(), "second close is a no-op")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"global"`)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	ctx = EnsureTraceID(ctx)
	id := GetTraceID(ctx)
	assert.Len(t, id, 36)
	assert.Equal(t, id, GetTraceID(EnsureTraceID(ctx)), "existing id kept")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := NewLogger(config.LoggingConfig{Level: "info", Output: "console"}, &buf)
	require.NoError(t, err)

	WithComponent(logger, "exporter").Info("written")

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, "exporter", entries[0]["component"])
	assert.Equal(t, "written", entries[0]["msg"])
}
