package services

import (
	"errors"
	"fmt"

	"labflat/internal/extract"
)

// Conversion error kinds
var (
	ErrInvalidArchive  = errors.New("invalid archive")
	ErrArchiveTooLarge = errors.New("archive too large")
	ErrMalformedIndex  = errors.New("malformed archive index")
	ErrNoRecords       = errors.New("no valid data records found")
	ErrInvalidFormat   = errors.New("invalid output format")
	ErrExport          = errors.New("export failed")
)

// ConversionError is a fatal conversion failure. errors.Is matches both Kind
// and the underlying cause.
type ConversionError struct {
	Kind error
	Err  error
	// Outcomes lists per-file results gathered before the failure, if any.
	Outcomes []extract.FileOutcome
}

func (e *ConversionError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Skipped returns the skipped-file outcomes carried by the error.
func (e *ConversionError) Skipped() []extract.FileOutcome {
	var skipped []extract.FileOutcome
	for _, o := range e.Outcomes {
		if o.Status == extract.StatusSkipped {
			skipped = append(skipped, o)
		}
	}
	return skipped
}
