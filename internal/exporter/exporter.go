package exporter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"labflat/internal/extract"
	"labflat/internal/infrastructure"
)

// Exporter errors
var (
	ErrExport            = errors.New("export failed")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// ExportError reports a sink failure; no artifact should be handed out.
type ExportError struct {
	Format Format
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s failed: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrExport) hold for any ExportError.
func (e *ExportError) Is(target error) bool { return target == ErrExport }

// Sink serialises a table in one format.
type Sink interface {
	Write(w io.Writer, t *extract.Table) error
	ContentType() string
	Format() Format
}

// Options configures the exporter.
type Options struct {
	CSVBOM bool
}

// Exporter selects a sink per format and writes tables through it.
type Exporter struct {
	opts   Options
	logger *slog.Logger
}

// New creates an exporter. A nil logger falls back to slog.Default.
func New(opts Options, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{opts: opts, logger: infrastructure.WithComponent(logger, "exporter")}
}

// Sink returns the sink for f.
func (e *Exporter) Sink(f Format) (Sink, error) {
	switch f {
	case FormatCSV:
		return CSVSink{BOMPrefix: e.opts.CSVBOM}, nil
	case FormatXLSX:
		return XLSXSink{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
}

// Export writes t to w in format f. Sink failures are returned as
// *ExportError.
func (e *Exporter) Export(w io.Writer, f Format, t *extract.Table) error {
	sink, err := e.Sink(f)
	if err != nil {
		return &ExportError{Format: f, Err: err}
	}
	if err := sink.Write(w, t); err != nil {
		e.logger.Error("export failed",
			slog.String("format", f.String()),
			slog.String("error", err.Error()))
		return &ExportError{Format: f, Err: err}
	}

	e.logger.Debug("table exported",
		slog.String("format", f.String()),
		slog.Int("rows", t.Len()),
		slog.Int("columns", t.Width()))
	return nil
}

// WriteFile exports t to path. The file is written to a temporary sibling
// first and renamed into place, so a failed export leaves nothing behind.
func (e *Exporter) WriteFile(path string, f Format, t *extract.Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ExportError{Format: f, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return &ExportError{Format: f, Err: fmt.Errorf("failed to create file: %w", err)}
	}
	defer os.Remove(tmp.Name())

	if err := e.Export(tmp, f, t); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return &ExportError{Format: f, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &ExportError{Format: f, Err: fmt.Errorf("failed to move export into place: %w", err)}
	}

	e.logger.Info("export written",
		slog.String("path", path),
		slog.String("format", f.String()),
		slog.Int("rows", t.Len()))
	return nil
}
