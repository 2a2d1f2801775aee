package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"labflat/internal/exporter"
	"labflat/internal/extract"
	"labflat/internal/intake"
	"labflat/internal/shared/testutil"
)

var scenarioTable = [][]string{
	{"File", "SampleID", "AnalysisDate", "TEMP", "PH"},
	{"r1.xml", "S1", "", "36.6", ""},
	{"r2.xml", "S2", "2024-01-01", "", "7.2"},
}

func newTestService(t *testing.T) (*ConversionService, string) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	workDir := t.TempDir()

	svc := NewConversionService(ConversionOptions{
		Intake: intake.Options{BaseDir: workDir, MaxArchiveBytes: 1 << 20},
	}, nil, nil, logger)
	svc.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return svc, workDir
}

func assertWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace should be removed")
}

func TestConvertCSV(t *testing.T) {
	svc, workDir := newTestService(t)
	archive := testutil.TarArchive(t, testutil.ScenarioFiles())

	conv, err := svc.Convert(context.Background(), bytes.NewReader(archive), exporter.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "extracted_data_20240506070809.csv", conv.FileName)
	assert.Equal(t, "text/csv; charset=utf-8", conv.ContentType)
	assert.Equal(t, 2, conv.Rows)
	assert.Equal(t, 5, conv.Columns)

	records, err := csv.NewReader(bytes.NewReader(conv.Data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, scenarioTable, records)

	skipped := conv.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, "missing.xml", skipped[0].File)
	assert.Equal(t, extract.ReasonMissing, skipped[0].Reason)

	assertWorkDirEmpty(t, workDir)
}

func TestConvertXLSX(t *testing.T) {
	svc, _ := newTestService(t)
	archive := testutil.TarArchive(t, testutil.ScenarioFiles())

	conv, err := svc.Convert(context.Background(), bytes.NewReader(archive), exporter.FormatXLSX)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(conv.FileName, ".xlsx"))

	f, err := excelize.OpenReader(bytes.NewReader(conv.Data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exporter.DefaultSheetName)
	require.NoError(t, err)
	require.Len(t, rows, len(scenarioTable))
	for i, want := range scenarioTable {
		got := rows[i]
		for len(got) < len(want) {
			got = append(got, "")
		}
		assert.Equal(t, want, got, "row %d", i)
	}
}

func TestConvertFailures(t *testing.T) {
	corrupt := testutil.ScenarioFiles()
	corrupt["ar-0001.xml"] = testutil.IndexXML("bad.xml")
	corrupt["bad.xml"] = "<broken"

	tests := []struct {
		name     string
		archive  func(t *testing.T) []byte
		format   exporter.Format
		wantKind error
	}{
		{
			name:     "not a tar",
			archive:  func(t *testing.T) []byte { return []byte(strings.Repeat("garbage ", 100)) },
			format:   exporter.FormatCSV,
			wantKind: ErrInvalidArchive,
		},
		{
			name: "no index",
			archive: func(t *testing.T) []byte {
				return testutil.TarArchive(t, map[string]string{"r1.xml": "<r/>"})
			},
			format:   exporter.FormatCSV,
			wantKind: ErrMalformedIndex,
		},
		{
			name: "index without results",
			archive: func(t *testing.T) []byte {
				return testutil.TarArchive(t, map[string]string{"ar-1.xml": "<archive/>"})
			},
			format:   exporter.FormatCSV,
			wantKind: ErrMalformedIndex,
		},
		{
			name:     "no records",
			archive:  func(t *testing.T) []byte { return testutil.TarArchive(t, corrupt) },
			format:   exporter.FormatXLSX,
			wantKind: ErrNoRecords,
		},
		{
			name:     "bad format",
			archive:  func(t *testing.T) []byte { return testutil.TarArchive(t, testutil.ScenarioFiles()) },
			format:   exporter.Format("pdf"),
			wantKind: ErrInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, workDir := newTestService(t)

			conv, err := svc.Convert(context.Background(), bytes.NewReader(tt.archive(t)), tt.format)
			require.Error(t, err)
			assert.Nil(t, conv)
			assert.ErrorIs(t, err, tt.wantKind)

			var convErr *ConversionError
			require.True(t, errors.As(err, &convErr))
			assert.Equal(t, tt.wantKind, convErr.Kind)

			assertWorkDirEmpty(t, workDir)
		})
	}
}

func TestConvertNoRecordsCarriesOutcomes(t *testing.T) {
	svc, _ := newTestService(t)
	files := map[string]string{
		"ar-0001.xml": testutil.IndexXML("bad.xml", "gone.xml"),
		"bad.xml":     "<broken",
	}

	_, err := svc.Convert(context.Background(), bytes.NewReader(testutil.TarArchive(t, files)), exporter.FormatCSV)
	require.ErrorIs(t, err, ErrNoRecords)
	assert.ErrorIs(t, err, extract.ErrNoRecords)

	var convErr *ConversionError
	require.True(t, errors.As(err, &convErr))
	skipped := convErr.Skipped()
	require.Len(t, skipped, 2)
	assert.Equal(t, extract.ReasonMalformed, skipped[0].Reason)
	assert.Equal(t, extract.ReasonMissing, skipped[1].Reason)
}

func TestConvertArchiveTooLarge(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	svc := NewConversionService(ConversionOptions{
		Intake: intake.Options{BaseDir: t.TempDir(), MaxArchiveBytes: 10},
	}, nil, nil, logger)

	_, err := svc.Convert(context.Background(), bytes.NewReader(testutil.TarArchive(t, testutil.ScenarioFiles())), exporter.FormatCSV)
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
}

func TestConvertCancelled(t *testing.T) {
	svc, workDir := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Convert(ctx, bytes.NewReader(testutil.TarArchive(t, testutil.ScenarioFiles())), exporter.FormatCSV)
	assert.ErrorIs(t, err, context.Canceled)
	assertWorkDirEmpty(t, workDir)
}

func TestPreview(t *testing.T) {
	svc, workDir := newTestService(t)

	preview, err := svc.Preview(context.Background(), bytes.NewReader(testutil.TarArchive(t, testutil.ScenarioFiles())))
	require.NoError(t, err)

	assert.Equal(t, scenarioTable[0], preview.Columns)
	assert.Equal(t, scenarioTable[1:], preview.Rows)
	require.Len(t, preview.Files, 3)
	assert.Equal(t, extract.StatusProcessed, preview.Files[0].Status)
	assert.Equal(t, extract.StatusSkipped, preview.Files[2].Status)
	assertWorkDirEmpty(t, workDir)
}

func TestFlattenDirectory(t *testing.T) {
	svc, _ := newTestService(t)
	dir := testutil.WriteFiles(t, t.TempDir(), testutil.ScenarioFiles())

	result, err := svc.FlattenDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, scenarioTable[0], result.Table.Columns())
	assert.Equal(t, 2, result.Processed())

	_, err = svc.FlattenDirectory(context.Background(), filepath.Join(dir, "nope"))
	assert.Error(t, err)
}

func TestFlattenArchive(t *testing.T) {
	svc, workDir := newTestService(t)
	archive := testutil.TarArchive(t, testutil.ScenarioFiles())

	result, err := svc.FlattenArchive(context.Background(), bytes.NewReader(archive))
	require.NoError(t, err)
	assert.Equal(t, scenarioTable[0], result.Table.Columns())
	assert.Equal(t, scenarioTable[1:], result.Table.Rows())
	require.Len(t, result.Skipped(), 1)
	assert.Equal(t, "missing.xml", result.Skipped()[0].File)
	assertWorkDirEmpty(t, workDir)
}

func TestFailureStatus(t *testing.T) {
	assert.Equal(t, "no_records", failureStatus(&ConversionError{Kind: ErrNoRecords}))
	assert.Equal(t, "cancelled", failureStatus(context.Canceled))
	assert.Equal(t, "error", failureStatus(errors.New("x")))
}
