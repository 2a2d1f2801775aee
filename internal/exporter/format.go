package exporter

import (
	"fmt"
	"strings"
	"time"
)

// Format is an export format from the closed set {csv, xlsx}.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Formats lists the supported formats.
func Formats() []Format { return []Format{FormatCSV, FormatXLSX} }

// ParseFormat validates a user supplied format selector.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// String implements fmt.Stringer
func (f Format) String() string { return string(f) }

// fileNameLayout renders as YYYYmmddHHMMSS.
const fileNameLayout = "20060102150405"

// FileName returns the download name for an export created at now, e.g.
// extracted_data_20240101093000.csv.
func FileName(f Format, now time.Time) string {
	return fmt.Sprintf("extracted_data_%s.%s", now.Format(fileNameLayout), f)
}
