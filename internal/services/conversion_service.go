package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"labflat/internal/exporter"
	"labflat/internal/extract"
	"labflat/internal/infrastructure"
	"labflat/internal/intake"
)

// Conversion is a finished export held in memory.
type Conversion struct {
	Data        []byte
	FileName    string
	ContentType string
	Format      exporter.Format
	Rows        int
	Columns     int
	Outcomes    []extract.FileOutcome
}

// Skipped returns the outcomes of result files left out of the table.
func (c *Conversion) Skipped() []extract.FileOutcome {
	var skipped []extract.FileOutcome
	for _, o := range c.Outcomes {
		if o.Status == extract.StatusSkipped {
			skipped = append(skipped, o)
		}
	}
	return skipped
}

// Preview is a flattened table without an export artifact.
type Preview struct {
	Columns []string
	Rows    [][]string
	Files   []extract.FileOutcome
}

// ConversionOptions configures a ConversionService.
type ConversionOptions struct {
	Intake intake.Options
	Export exporter.Options
}

// ConversionService turns uploaded archives into flat tables.
type ConversionService struct {
	intake   intake.Options
	pipeline *extract.Pipeline
	exporter *exporter.Exporter
	tracer   trace.Tracer
	metrics  *infrastructure.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewConversionService creates the service. A nil tracer or metrics set falls
// back to no-op instruments; a nil logger to slog.Default.
func NewConversionService(opts ConversionOptions, tracer trace.Tracer, metrics *infrastructure.Metrics, logger *slog.Logger) *ConversionService {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer(infrastructure.InstrumentationName)
	}
	if metrics == nil {
		metrics, _ = infrastructure.CreateMetrics(noop.NewMeterProvider().Meter(infrastructure.InstrumentationName))
	}

	return &ConversionService{
		intake:   opts.Intake,
		pipeline: extract.NewPipeline(logger),
		exporter: exporter.New(opts.Export, logger),
		tracer:   tracer,
		metrics:  metrics,
		logger:   infrastructure.WithComponent(logger, "conversion_service"),
		now:      time.Now,
	}
}

// Convert flattens the tar archive read from archive and exports it in
// format. The workspace holding the unpacked archive is removed before
// Convert returns.
func (s *ConversionService) Convert(ctx context.Context, archive io.Reader, format exporter.Format) (*Conversion, error) {
	ctx, span := s.tracer.Start(ctx, "conversion.convert",
		trace.WithAttributes(attribute.String("export.format", string(format))))
	defer span.End()

	start := s.now()

	f, err := exporter.ParseFormat(string(format))
	if err != nil {
		return nil, s.fail(ctx, &ConversionError{Kind: ErrInvalidFormat, Err: err})
	}

	result, err := s.flatten(ctx, archive)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	var buf bytes.Buffer
	if err := s.exporter.Export(&buf, f, result.Table); err != nil {
		return nil, s.fail(ctx, &ConversionError{Kind: ErrExport, Err: err, Outcomes: result.Outcomes})
	}

	sink, _ := s.exporter.Sink(f)
	conv := &Conversion{
		Data:        buf.Bytes(),
		FileName:    exporter.FileName(f, s.now()),
		ContentType: sink.ContentType(),
		Format:      f,
		Rows:        result.Table.Len(),
		Columns:     result.Table.Width(),
		Outcomes:    result.Outcomes,
	}

	s.record(ctx, "success", result, time.Since(start))
	s.metrics.ExportBytes.Add(ctx, int64(len(conv.Data)),
		metric.WithAttributes(attribute.String("format", f.String())))
	infrastructure.SetSpanAttributes(ctx,
		attribute.Int("table.rows", conv.Rows),
		attribute.Int("table.columns", conv.Columns),
		attribute.Int("files.skipped", len(conv.Skipped())))

	s.logger.InfoContext(ctx, "conversion completed",
		slog.String("format", f.String()),
		slog.String("file_name", conv.FileName),
		slog.Int("rows", conv.Rows),
		slog.Int("columns", conv.Columns),
		slog.Int("skipped", len(conv.Skipped())),
		slog.Int("bytes", len(conv.Data)))

	return conv, nil
}

// Preview flattens the archive and returns the table itself.
func (s *ConversionService) Preview(ctx context.Context, archive io.Reader) (*Preview, error) {
	ctx, span := s.tracer.Start(ctx, "conversion.preview")
	defer span.End()

	start := s.now()
	result, err := s.flatten(ctx, archive)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.record(ctx, "success", result, time.Since(start))

	return &Preview{
		Columns: result.Table.Columns(),
		Rows:    result.Table.Rows(),
		Files:   result.Outcomes,
	}, nil
}

// FlattenArchive unpacks a tar archive into a temporary workspace and
// returns the flattened table without exporting it.
func (s *ConversionService) FlattenArchive(ctx context.Context, archive io.Reader) (*extract.Result, error) {
	ctx, span := s.tracer.Start(ctx, "conversion.flatten_archive")
	defer span.End()

	start := s.now()
	result, err := s.flatten(ctx, archive)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.record(ctx, "success", result, time.Since(start))
	return result, nil
}

// FlattenDirectory runs the pipeline over an already unpacked archive.
func (s *ConversionService) FlattenDirectory(ctx context.Context, dir string) (*extract.Result, error) {
	ctx, span := s.tracer.Start(ctx, "conversion.flatten_directory")
	defer span.End()

	start := s.now()
	bundle, err := intake.FromDirectory(dir)
	if err != nil {
		return nil, s.fail(ctx, classifyIntake(err))
	}

	result, err := s.run(ctx, bundle)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.record(ctx, "success", result, time.Since(start))
	return result, nil
}

// Exporter returns the exporter used for conversions.
func (s *ConversionService) Exporter() *exporter.Exporter { return s.exporter }

// flatten unpacks archive into a fresh workspace and runs the pipeline.
func (s *ConversionService) flatten(ctx context.Context, archive io.Reader) (*extract.Result, error) {
	ws, err := intake.NewWorkspace(s.intake, s.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			s.logger.WarnContext(ctx, "failed to remove workspace",
				slog.String("workspace_id", ws.ID),
				slog.String("error", err.Error()))
		}
	}()

	if err := ws.ExtractTar(ctx, archive); err != nil {
		return nil, classifyIntake(err)
	}

	bundle, err := ws.Bundle()
	if err != nil {
		return nil, classifyIntake(err)
	}

	return s.run(ctx, bundle)
}

func (s *ConversionService) run(ctx context.Context, bundle extract.Bundle) (*extract.Result, error) {
	result, err := s.pipeline.Run(ctx, bundle)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, extract.ErrMalformedIndex):
		return nil, &ConversionError{Kind: ErrMalformedIndex, Err: err}
	case errors.Is(err, extract.ErrNoRecords):
		var outcomes []extract.FileOutcome
		if result != nil {
			outcomes = result.Outcomes
			s.recordSkipped(ctx, outcomes)
		}
		return nil, &ConversionError{Kind: ErrNoRecords, Err: err, Outcomes: outcomes}
	default:
		return nil, err
	}
}

func classifyIntake(err error) error {
	switch {
	case errors.Is(err, intake.ErrArchiveTooLarge):
		return &ConversionError{Kind: ErrArchiveTooLarge, Err: err}
	case errors.Is(err, intake.ErrInvalidArchive):
		return &ConversionError{Kind: ErrInvalidArchive, Err: err}
	case errors.Is(err, intake.ErrIndexNotFound):
		return &ConversionError{Kind: ErrMalformedIndex, Err: err}
	default:
		return err
	}
}

// fail records a failed conversion and returns err unchanged.
func (s *ConversionService) fail(ctx context.Context, err error) error {
	s.metrics.ArchivesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", failureStatus(err))))
	infrastructure.RecordError(ctx, err)

	s.logger.WarnContext(ctx, "conversion failed",
		slog.String("status", failureStatus(err)),
		slog.String("error", err.Error()))
	return err
}

func (s *ConversionService) record(ctx context.Context, status string, result *extract.Result, elapsed time.Duration) {
	s.metrics.ArchivesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	s.metrics.RecordsTotal.Add(ctx, int64(result.Table.Len()))
	s.metrics.ConversionDuration.Record(ctx, elapsed.Seconds())
	s.recordSkipped(ctx, result.Outcomes)
}

func (s *ConversionService) recordSkipped(ctx context.Context, outcomes []extract.FileOutcome) {
	for _, o := range outcomes {
		if o.Status != extract.StatusSkipped {
			continue
		}
		s.metrics.SkippedFilesTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", string(o.Reason))))
	}
}

func failureStatus(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArchive):
		return "invalid_archive"
	case errors.Is(err, ErrArchiveTooLarge):
		return "archive_too_large"
	case errors.Is(err, ErrMalformedIndex):
		return "malformed_index"
	case errors.Is(err, ErrNoRecords):
		return "no_records"
	case errors.Is(err, ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, ErrExport):
		return "export_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
