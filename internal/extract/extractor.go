package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"labflat/internal/infrastructure"
)

// Result document vocabulary. Elements are typed by tag (st string field,
// dt date field, d data field, o object) and named by attribute.
const (
	tagStringField = "st"
	tagDateField   = "dt"
	tagDataField   = "d"
	tagObject      = "o"

	attrName = "n"
	attrType = "t"

	fieldSampleID       = "FIELD_SID_SAMPLE_ID"
	fieldAnalysisDate   = "ANALYSIS_DATE"
	fieldParameterID    = "Id"
	fieldParameterValue = "Value"

	objectParameterResult = "SampleParameterResult"
)

// Extractor turns result documents into records.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger falls back to slog.Default.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: infrastructure.WithComponent(logger, "record_extractor")}
}

// Extract reads the result document at path and returns its record. name is
// the file name as referenced by the index and becomes the File column.
//
// A path that does not exist yields a MissingResultFileError; anything that
// prevents parsing yields a MalformedResultFileError.
func (e *Extractor) Extract(ctx context.Context, name, path string) (*Record, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &MissingResultFileError{File: name}
	}
	if err != nil {
		return nil, &MalformedResultFileError{File: name, Err: err}
	}
	if info.IsDir() {
		return nil, &MalformedResultFileError{File: name, Err: errors.New("path is a directory")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &MalformedResultFileError{File: name, Err: err}
	}
	defer f.Close()

	rec, err := e.ExtractReader(name, f)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "record extracted",
		slog.String("file", name),
		slog.Int("columns", rec.Len()))
	return rec, nil
}

// ExtractReader is Extract for an already opened document.
func (e *Extractor) ExtractReader(name string, r io.Reader) (*Record, error) {
	root, err := parseDocument(r)
	if err != nil {
		return nil, &MalformedResultFileError{File: name, Err: err}
	}
	return recordFromDocument(name, root), nil
}

func recordFromDocument(name string, root *element) *Record {
	rec := NewRecord(name)

	if el := root.firstDescendant(namedWith(tagStringField, attrName, fieldSampleID)); el != nil && el.Text() != "" {
		rec.Set(ColumnSampleID, strings.TrimSpace(el.Text()))
	}
	if el := root.firstDescendant(namedWith(tagDateField, attrName, fieldAnalysisDate)); el != nil && el.Text() != "" {
		rec.Set(ColumnAnalysisDate, strings.TrimSpace(el.Text()))
	}

	for _, param := range root.descendants(namedWith(tagObject, attrType, objectParameterResult)) {
		id := param.firstChild(namedWith(tagStringField, attrName, fieldParameterID))
		value := param.firstChild(namedWith(tagDataField, attrName, fieldParameterValue))
		if id == nil || value == nil {
			continue
		}
		rec.Set(strings.TrimSpace(id.Text()), strings.TrimSpace(value.Text()))
	}

	// File is always the processed name, even if a parameter reused the key.
	rec.Set(ColumnFile, name)
	return rec
}
