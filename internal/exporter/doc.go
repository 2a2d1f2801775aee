// Package exporter serialises flattened tables for download.
//
// Two sinks are provided and selected by Format:
//
// CSVSink: header row followed by one line per row, with an optional UTF-8 BOM
// so spreadsheet tools detect the encoding.
//
// XLSXSink: a single-sheet workbook ("Sheet1") written with excelize's stream
// writer; every cell is stored as a string so values survive unchanged.
//
// Both sinks write exactly the table's cells, so a CSV and an XLSX export of
// the same table carry identical content.
//
// Example usage:
//
//	exp := exporter.New(exporter.Options{}, logger)
//	name := exporter.FileName(exporter.FormatXLSX, time.Now())
//	err := exp.WriteFile(filepath.Join(outDir, name), exporter.FormatXLSX, table)
package exporter
