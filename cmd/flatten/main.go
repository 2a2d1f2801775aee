// Command flatten converts an analyzer archive into a CSV or XLSX table
// without starting the web service.
//
//	flatten -in run.tar -format xlsx -out ./exports
//	flatten -in ./unpacked -format csv -out table.csv
//
// -in accepts a tar archive or a directory holding an unpacked archive.
// When -out names an existing directory, or is omitted, the file is named
// extracted_data_<timestamp>.<format>.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"labflat/internal/config"
	"labflat/internal/exporter"
	"labflat/internal/extract"
	"labflat/internal/infrastructure"
	"labflat/internal/intake"
	"labflat/internal/services"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "flatten: %v\n", err)
		return exitUsage
	}

	fs := flag.NewFlagSet("flatten", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "tar archive or unpacked archive directory (required)")
	format := fs.String("format", cfg.Export.DefaultFormat, "output format: csv | xlsx")
	out := fs.String("out", "", "output file or directory (defaults to the current directory)")
	bom := fs.Bool("bom", cfg.Export.CSVBOM, "prefix CSV output with a UTF-8 byte order mark")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *in == "" {
		fmt.Fprintln(stderr, "flatten: -in is required")
		fs.Usage()
		return exitUsage
	}
	f, err := exporter.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(stderr, "flatten: %v\n", err)
		return exitUsage
	}

	logger, closer, err := infrastructure.NewLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "flatten: %v\n", err)
		return exitUsage
	}
	if closer != nil {
		defer closer.Close()
	}
	ctx = infrastructure.EnsureTraceID(ctx)

	svc := services.NewConversionService(services.ConversionOptions{
		Intake: intake.Options{
			BaseDir:         cfg.Intake.WorkDir,
			MaxArchiveBytes: cfg.Intake.MaxArchiveBytes,
		},
		Export: exporter.Options{CSVBOM: *bom},
	}, nil, nil, logger)

	result, err := flatten(ctx, svc, *in)
	if err != nil {
		fmt.Fprintf(stderr, "flatten: %v\n", err)
		var convErr *services.ConversionError
		if errors.As(err, &convErr) {
			printSkipped(stderr, convErr.Skipped())
		}
		return exitFailure
	}

	path, err := outputPath(*out, f, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "flatten: %v\n", err)
		return exitFailure
	}
	if err := svc.Exporter().WriteFile(path, f, result.Table); err != nil {
		fmt.Fprintf(stderr, "flatten: %v\n", err)
		return exitFailure
	}

	fmt.Fprintf(stdout, "wrote %s (%d rows, %d columns)\n", path, result.Table.Len(), result.Table.Width())
	printSkipped(stdout, result.Skipped())
	return exitOK
}

// flatten runs the pipeline over a directory or a tar file.
func flatten(ctx context.Context, svc *services.ConversionService, in string) (*extract.Result, error) {
	info, err := os.Stat(in)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return svc.FlattenDirectory(ctx, in)
	}

	file, err := os.Open(in)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return svc.FlattenArchive(ctx, file)
}

// outputPath resolves -out against the default file name.
func outputPath(out string, f exporter.Format, now time.Time) (string, error) {
	name := exporter.FileName(f, now)
	if out == "" {
		return name, nil
	}

	info, err := os.Stat(out)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(out, name), nil
	case err == nil, errors.Is(err, os.ErrNotExist):
		return out, nil
	default:
		return "", err
	}
}

func printSkipped(w io.Writer, skipped []extract.FileOutcome) {
	for _, o := range skipped {
		if o.Err != nil {
			fmt.Fprintf(w, "skipped %s: %s (%v)\n", o.File, o.Reason, o.Err)
			continue
		}
		fmt.Fprintf(w, "skipped %s: %s\n", o.File, o.Reason)
	}
}
