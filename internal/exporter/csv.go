package exporter

import (
	"encoding/csv"
	"fmt"
	"io"

	"labflat/internal/extract"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVSink writes tables as comma separated values.
type CSVSink struct {
	// BOMPrefix adds a UTF-8 BOM for Excel compatibility
	BOMPrefix bool
}

// Write writes the header row and all rows of t to w.
func (s CSVSink) Write(w io.Writer, t *extract.Table) error {
	if s.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range t.Rows() {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ContentType returns the MIME type of CSV output.
func (CSVSink) ContentType() string { return "text/csv; charset=utf-8" }

// Format returns FormatCSV.
func (CSVSink) Format() Format { return FormatCSV }
