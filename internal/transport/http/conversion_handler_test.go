package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "labflat/internal/errors"
	"labflat/internal/exporter"
	"labflat/internal/extract"
	"labflat/internal/intake"
	"labflat/internal/middleware"
	"labflat/internal/services"
	"labflat/internal/shared/testutil"
)

// MockConversionService is a mock implementation of ConversionServiceInterface.
// The archive is read eagerly and passed to the mock as a string.
type MockConversionService struct {
	mock.Mock
}

func (m *MockConversionService) Convert(ctx context.Context, archive io.Reader, format exporter.Format) (*services.Conversion, error) {
	data, _ := io.ReadAll(archive)
	args := m.Called(string(data), format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Conversion), args.Error(1)
}

func (m *MockConversionService) Preview(ctx context.Context, archive io.Reader) (*services.Preview, error) {
	data, _ := io.ReadAll(archive)
	args := m.Called(string(data))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Preview), args.Error(1)
}

func multipartBody(t *testing.T, fileName string, archive []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile(FieldArchive, fileName)
		require.NoError(t, err)
		_, err = fw.Write(archive)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newConversionRouter(t *testing.T, svc ConversionServiceInterface, maxUpload int64) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	h := NewConversionHandler(svc, middleware.NewValidator(), maxUpload, logger, apierrors.NewErrorHandler(logger, false))

	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

func decodeProblem(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var problem map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&problem))
	return problem
}

func TestConversionHandler_Convert(t *testing.T) {
	conv := &services.Conversion{
		Data:        []byte("File,SampleID,AnalysisDate\nr1.xml,S1,\n"),
		FileName:    "extracted_data_20240506070809.csv",
		ContentType: "text/csv; charset=utf-8",
		Format:      exporter.FormatCSV,
		Rows:        1,
		Columns:     3,
		Outcomes: []extract.FileOutcome{
			{File: "r1.xml", Status: extract.StatusProcessed},
			{File: "lost file.xml", Status: extract.StatusSkipped, Reason: extract.ReasonMissing},
			{File: "notes.txt", Status: extract.StatusSkipped, Reason: extract.ReasonNotXML},
		},
	}

	svc := new(MockConversionService)
	svc.On("Convert", "tar-bytes", exporter.FormatCSV).Return(conv, nil)

	body, contentType := multipartBody(t, "run.tar", []byte("tar-bytes"), map[string]string{FieldOutputFormat: " CSV "})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newConversionRouter(t, svc, 1<<20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, string(conv.Data), rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get(HeaderSkippedCount))
	assert.Equal(t, "lost%20file.xml,notes.txt", rec.Header().Get(HeaderSkippedFiles))

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, conv.FileName, params["filename"])

	svc.AssertExpectations(t)
}

func TestConversionHandler_ConvertNoSkipped(t *testing.T) {
	svc := new(MockConversionService)
	svc.On("Convert", "tar-bytes", exporter.FormatXLSX).Return(&services.Conversion{
		Data:        []byte("xlsx"),
		FileName:    "extracted_data_20240506070809.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Format:      exporter.FormatXLSX,
		Outcomes:    []extract.FileOutcome{{File: "r1.xml", Status: extract.StatusProcessed}},
	}, nil)

	body, contentType := multipartBody(t, "run.tar", []byte("tar-bytes"), map[string]string{FieldOutputFormat: "xlsx"})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newConversionRouter(t, svc, 1<<20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get(HeaderSkippedCount))
	assert.Empty(t, rec.Header().Get(HeaderSkippedFiles))
	svc.AssertExpectations(t)
}

func TestConversionHandler_ConvertRejectsRequest(t *testing.T) {
	tests := []struct {
		name        string
		fileName    string
		fields      map[string]string
		rawBody     string
		contentType string
		wantStatus  int
		wantCode    string
		wantFields  []string
	}{
		{
			name:       "missing archive",
			fields:     map[string]string{FieldOutputFormat: "csv"},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationFailed,
			wantFields: []string{FieldArchive},
		},
		{
			name:       "missing format",
			fileName:   "run.tar",
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationFailed,
			wantFields: []string{FieldOutputFormat},
		},
		{
			name:       "unsupported format",
			fileName:   "run.tar",
			fields:     map[string]string{FieldOutputFormat: "pdf"},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationFailed,
			wantFields: []string{FieldOutputFormat},
		},
		{
			name:        "not multipart",
			rawBody:     `{"output_format":"csv"}`,
			contentType: "application/json",
			wantStatus:  http.StatusUnsupportedMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockConversionService)

			var body io.Reader
			contentType := tt.contentType
			if tt.rawBody != "" {
				body = strings.NewReader(tt.rawBody)
			} else {
				body, contentType = multipartBody(t, tt.fileName, []byte("tar-bytes"), tt.fields)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			newConversionRouter(t, svc, 1<<20).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, apierrors.ContentTypeProblemJSON, rec.Header().Get("Content-Type"))

			problem := decodeProblem(t, rec.Body)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, problem["error_code"])
			}
			if len(tt.wantFields) > 0 {
				details, ok := problem["details"].([]interface{})
				require.True(t, ok)
				var fields []string
				for _, d := range details {
					fields = append(fields, d.(map[string]interface{})["field"].(string))
				}
				assert.Equal(t, tt.wantFields, fields)
			}
			svc.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything)
		})
	}
}

func TestConversionHandler_ConvertUploadTooLarge(t *testing.T) {
	svc := new(MockConversionService)

	body, contentType := multipartBody(t, "run.tar", bytes.Repeat([]byte("x"), 4096), map[string]string{FieldOutputFormat: "csv"})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newConversionRouter(t, svc, 512).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	problem := decodeProblem(t, rec.Body)
	assert.Equal(t, apierrors.CodePayloadTooLarge, problem["error_code"])
	svc.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything)
}

func TestConversionHandler_ConvertServiceErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantType    string
		wantCode    string
		wantDetail  string
		wantSkipped int
	}{
		{
			name:       "invalid archive",
			err:        &services.ConversionError{Kind: services.ErrInvalidArchive, Err: intake.ErrInvalidArchive},
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeInvalidArchive,
			wantCode:   apierrors.CodeInvalidArchive,
		},
		{
			name:       "archive too large",
			err:        &services.ConversionError{Kind: services.ErrArchiveTooLarge, Err: intake.ErrArchiveTooLarge},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   apierrors.TypePayloadTooLarge,
			wantCode:   apierrors.CodePayloadTooLarge,
		},
		{
			name:       "index not found",
			err:        &services.ConversionError{Kind: services.ErrMalformedIndex, Err: intake.ErrIndexNotFound},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   apierrors.TypeMalformedIndex,
			wantCode:   apierrors.CodeMalformedIndex,
			wantDetail: "No archive XML file starting with 'ar-' found.",
		},
		{
			name:       "malformed index",
			err:        &services.ConversionError{Kind: services.ErrMalformedIndex, Err: errors.New("results element missing")},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   apierrors.TypeMalformedIndex,
			wantCode:   apierrors.CodeMalformedIndex,
			wantDetail: "The archive index could not be read",
		},
		{
			name: "no records",
			err: &services.ConversionError{
				Kind: services.ErrNoRecords,
				Err:  extract.ErrNoRecords,
				Outcomes: []extract.FileOutcome{
					{File: "r9.xml", Status: extract.StatusSkipped, Reason: extract.ReasonMissing},
					{File: "bad.xml", Status: extract.StatusSkipped, Reason: extract.ReasonMalformed, Err: errors.New("unexpected EOF")},
				},
			},
			wantStatus:  http.StatusUnprocessableEntity,
			wantType:    apierrors.TypeNoRecords,
			wantCode:    apierrors.CodeNoRecords,
			wantDetail:  "No valid data records found in the archive.",
			wantSkipped: 2,
		},
		{
			name:       "invalid format",
			err:        &services.ConversionError{Kind: services.ErrInvalidFormat},
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
			wantCode:   apierrors.CodeValidationFailed,
		},
		{
			name:       "export failure",
			err:        &services.ConversionError{Kind: services.ErrExport, Err: errors.New("disk full")},
			wantStatus: http.StatusInternalServerError,
			wantType:   apierrors.TypeExportFailed,
			wantCode:   apierrors.CodeExportFailed,
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   apierrors.TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockConversionService)
			svc.On("Convert", "tar-bytes", exporter.FormatCSV).Return(nil, tt.err)

			body, contentType := multipartBody(t, "run.tar", []byte("tar-bytes"), map[string]string{FieldOutputFormat: "csv"})
			req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			newConversionRouter(t, svc, 1<<20).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			problem := decodeProblem(t, rec.Body)
			assert.Equal(t, tt.wantType, problem["type"])
			assert.Equal(t, "/api/convert", problem["instance"])
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, problem["error_code"])
			}
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, problem["detail"])
			}
			if tt.wantSkipped > 0 {
				details, ok := problem["details"].([]interface{})
				require.True(t, ok)
				assert.Len(t, details, tt.wantSkipped)
				first := details[0].(map[string]interface{})
				assert.Equal(t, "r9.xml", first["file"])
				assert.Equal(t, "missing", first["reason"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestConversionHandler_Preview(t *testing.T) {
	svc := new(MockConversionService)
	svc.On("Preview", "tar-bytes").Return(&services.Preview{
		Columns: []string{"File", "SampleID", "AnalysisDate", "TEMP"},
		Rows:    [][]string{{"r1.xml", "S1", "", "36.6"}},
		Files: []extract.FileOutcome{
			{File: "r1.xml", Status: extract.StatusProcessed},
			{File: "missing.xml", Status: extract.StatusSkipped, Reason: extract.ReasonMissing},
		},
	}, nil)

	body, contentType := multipartBody(t, "run.tar", []byte("tar-bytes"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newConversionRouter(t, svc, 1<<20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string          `json:"status"`
		Data   previewResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, []string{"File", "SampleID", "AnalysisDate", "TEMP"}, resp.Data.Columns)
	assert.Equal(t, [][]string{{"r1.xml", "S1", "", "36.6"}}, resp.Data.Rows)
	assert.Equal(t, 1, resp.Data.RowCount)
	assert.Equal(t, []fileOutcome{
		{File: "r1.xml", Status: "processed"},
		{File: "missing.xml", Status: "skipped", Reason: "missing"},
	}, resp.Data.Files)
	svc.AssertExpectations(t)
}

func TestConversionHandler_PreviewMissingArchive(t *testing.T) {
	svc := new(MockConversionService)

	body, contentType := multipartBody(t, "", nil, map[string]string{FieldOutputFormat: "csv"})
	req := httptest.NewRequest(http.MethodPost, "/api/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newConversionRouter(t, svc, 1<<20).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Preview", mock.Anything)
}

func TestConversionHandler_ConvertEndToEnd(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	workDir := t.TempDir()
	svc := services.NewConversionService(services.ConversionOptions{
		Intake: intake.Options{BaseDir: workDir, MaxArchiveBytes: 1 << 20},
	}, nil, nil, logger)

	archive := testutil.TarArchive(t, testutil.ScenarioFiles())
	body, contentType := multipartBody(t, "run.tar", archive, map[string]string{FieldOutputFormat: "csv"})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newConversionRouter(t, svc, 4<<20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get(HeaderSkippedCount))
	assert.Equal(t, "missing.xml", rec.Header().Get(HeaderSkippedFiles))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"File", "SampleID", "AnalysisDate", "TEMP", "PH"},
		{"r1.xml", "S1", "", "36.6", ""},
		{"r2.xml", "S2", "2024-01-01", "", "7.2"},
	}, rows)
}
