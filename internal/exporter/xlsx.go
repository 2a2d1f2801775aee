package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"labflat/internal/extract"
)

// DefaultSheetName is the sheet XLSX exports are written to.
const DefaultSheetName = "Sheet1"

// XLSXSink writes tables as a single-sheet Excel workbook.
type XLSXSink struct {
	SheetName string
}

// Write streams the header row and all rows of t into a workbook and writes
// the workbook to w.
func (s XLSXSink) Write(w io.Writer, t *extract.Table) error {
	sheet := s.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}

	f := excelize.NewFile()
	defer f.Close()

	if name := f.GetSheetName(0); name != sheet {
		if err := f.SetSheetName(name, sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	if err := writeRow(sw, 1, t.Columns()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range t.Rows() {
		if err := writeRow(sw, i+2, row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRow(sw *excelize.StreamWriter, rowNum int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	return sw.SetRow(cell, values)
}

// ContentType returns the MIME type of XLSX output.
func (XLSXSink) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Format returns FormatXLSX.
func (XLSXSink) Format() Format { return FormatXLSX }
