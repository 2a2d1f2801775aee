package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"labflat/internal/config"
)

var (
	globalMu      sync.Mutex
	globalLogger  *slog.Logger
	globalLogFile io.Closer
)

// InitializeLogger creates the application logger from cfg, installs it as
// slog's default and remembers the log file so CloseLogFile can release it.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	logger, file, err := NewLogger(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogFile != nil {
		globalLogFile.Close()
	}
	globalLogger = logger
	globalLogFile = file
	slog.SetDefault(logger)

	return logger, nil
}

// GetLogger returns the global logger instance.
// If not initialized, returns the default slog logger.
func GetLogger() *slog.Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// CloseLogFile closes the global log file if open.
func CloseLogFile() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogFile == nil {
		return nil
	}
	err := globalLogFile.Close()
	globalLogFile = nil
	return err
}

// NewLogger builds a JSON logger writing to console, to cfg.FilePath, or to
// both depending on cfg.Output. The returned closer is nil when no file is
// opened.
func NewLogger(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{
		AddSource: parseLogLevel(cfg.Level) == slog.LevelDebug,
		Level:     parseLogLevel(cfg.Level),
	}

	var (
		output io.Writer
		file   *os.File
		err    error
	)
	switch strings.ToLower(cfg.Output) {
	case "file":
		if file, err = openLogFile(cfg.FilePath); err != nil {
			return nil, nil, err
		}
		output = file
	case "both":
		if file, err = openLogFile(cfg.FilePath); err != nil {
			return nil, nil, err
		}
		output = io.MultiWriter(console, file)
	default:
		output = console
	}

	logger := slog.New(&traceHandler{Handler: slog.NewJSONHandler(output, opts)})
	if file == nil {
		return logger, nil, nil
	}
	return logger, file, nil
}

// traceHandler wraps a slog.Handler to inject trace_id from context
type traceHandler struct {
	slog.Handler
}

// Handle adds trace_id to the record: the request's trace id when set,
// otherwise the id of the active span.
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	} else if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openLogFile opens or creates a log file in append mode
func openLogFile(filePath string) (*os.File, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}
	return file, nil
}
