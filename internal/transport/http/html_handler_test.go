package http

import (
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"labflat/internal/exporter"
	"labflat/internal/extract"
	"labflat/internal/intake"
	"labflat/internal/services"
	"labflat/internal/shared/testutil"
)

func newTestHTMLHandler(t *testing.T, svc ConversionServiceInterface) *HTMLHandler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return NewHTMLHandler(svc, 4<<20, "csv", "labflat", "1.0.0", logger)
}

func TestHTMLHandler_Index(t *testing.T) {
	h := newTestHTMLHandler(t, new(MockConversionService))

	rec := httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	page := rec.Body.String()
	assert.Contains(t, page, `enctype="multipart/form-data"`)
	assert.Contains(t, page, `name="tar_file"`)
	assert.Contains(t, page, `value="csv" checked`)
	assert.Contains(t, page, `value="xlsx"`)
	assert.Contains(t, page, "Up to 4 MB.")
	assert.NotContains(t, page, `class="flash"`)
}

func TestHTMLHandler_SubmitDownload(t *testing.T) {
	svc := new(MockConversionService)
	svc.On("Convert", "tar-bytes", exporter.FormatXLSX).Return(&services.Conversion{
		Data:        []byte("xlsx-bytes"),
		FileName:    "extracted_data_20240506070809.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Format:      exporter.FormatXLSX,
		Outcomes:    []extract.FileOutcome{{File: "r1.xml", Status: extract.StatusProcessed}},
	}, nil)
	h := newTestHTMLHandler(t, svc)

	body, contentType := multipartBody(t, "run.tar", []byte("tar-bytes"), map[string]string{FieldOutputFormat: "xlsx"})
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xlsx-bytes", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment"))
	svc.AssertExpectations(t)
}

func TestHTMLHandler_SubmitFlash(t *testing.T) {
	tests := []struct {
		name       string
		fileName   string
		format     string
		serviceErr error
		wantStatus int
		wantFlash  string
	}{
		{
			name:       "missing archive",
			format:     "csv",
			wantStatus: http.StatusBadRequest,
			wantFlash:  FlashMissingInput,
		},
		{
			name:       "missing format",
			fileName:   "run.tar",
			wantStatus: http.StatusBadRequest,
			wantFlash:  FlashMissingInput,
		},
		{
			name:       "index not found",
			fileName:   "run.tar",
			format:     "csv",
			serviceErr: &services.ConversionError{Kind: services.ErrMalformedIndex, Err: intake.ErrIndexNotFound},
			wantStatus: http.StatusUnprocessableEntity,
			wantFlash:  FlashIndexNotFound,
		},
		{
			name:       "no records",
			fileName:   "run.tar",
			format:     "csv",
			serviceErr: &services.ConversionError{Kind: services.ErrNoRecords, Err: extract.ErrNoRecords},
			wantStatus: http.StatusUnprocessableEntity,
			wantFlash:  FlashNoRecords,
		},
		{
			name:       "not a tar",
			fileName:   "run.tar",
			format:     "csv",
			serviceErr: &services.ConversionError{Kind: services.ErrInvalidArchive, Err: intake.ErrInvalidArchive},
			wantStatus: http.StatusBadRequest,
			wantFlash:  FlashInvalidArchive,
		},
		{
			name:       "archive too large",
			fileName:   "run.tar",
			format:     "csv",
			serviceErr: &services.ConversionError{Kind: services.ErrArchiveTooLarge, Err: intake.ErrArchiveTooLarge},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantFlash:  FlashTooLarge,
		},
		{
			name:       "unexpected",
			fileName:   "run.tar",
			format:     "csv",
			serviceErr: errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
			wantFlash:  "An unexpected error occurred: disk on fire",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockConversionService)
			if tt.serviceErr != nil {
				svc.On("Convert", "tar-bytes", exporter.Format(tt.format)).Return(nil, tt.serviceErr)
			}
			h := newTestHTMLHandler(t, svc)

			fields := map[string]string{}
			if tt.format != "" {
				fields[FieldOutputFormat] = tt.format
			}
			body, contentType := multipartBody(t, tt.fileName, []byte("tar-bytes"), fields)
			req := httptest.NewRequest(http.MethodPost, "/", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			h.Submit(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), template.HTMLEscapeString(tt.wantFlash))

			if tt.serviceErr == nil {
				svc.AssertNotCalled(t, "Convert", mock.Anything, mock.Anything)
			} else {
				svc.AssertExpectations(t)
			}
		})
	}
}

func TestHTMLHandler_SubmitNotMultipart(t *testing.T) {
	h := newTestHTMLHandler(t, new(MockConversionService))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("output_format=csv"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), template.HTMLEscapeString(FlashMissingInput))
}
