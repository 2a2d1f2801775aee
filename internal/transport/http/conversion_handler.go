package http

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "labflat/internal/errors"
	"labflat/internal/exporter"
	"labflat/internal/extract"
	"labflat/internal/infrastructure"
	"labflat/internal/intake"
	"labflat/internal/middleware"
	"labflat/internal/services"
)

// Response headers describing skipped result files
const (
	HeaderSkippedCount = "X-Skipped-Count"
	HeaderSkippedFiles = "X-Skipped-Files"
)

// ConversionHandler handles the archive conversion API
type ConversionHandler struct {
	service        ConversionServiceInterface
	validator      *middleware.Validator
	maxUploadBytes int64
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
}

// NewConversionHandler creates a conversion handler. maxUploadBytes caps
// the request body; zero disables the cap.
func NewConversionHandler(service ConversionServiceInterface, validator *middleware.Validator, maxUploadBytes int64, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ConversionHandler {
	return &ConversionHandler{
		service:        service,
		validator:      validator,
		maxUploadBytes: maxUploadBytes,
		logger:         infrastructure.WithComponent(logger, "conversion_handler"),
		errorHandler:   errorHandler,
	}
}

// RegisterRoutes adds the conversion routes to r. Both accept
// multipart/form-data only.
func (h *ConversionHandler) RegisterRoutes(r chi.Router) {
	multipart := r.With(middleware.RequireMultipart)
	multipart.Post("/convert", h.Convert)
	multipart.Post("/preview", h.Preview)
}

// Convert handles POST /api/convert
func (h *ConversionHandler) Convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	up, err := readUpload(w, r, h.maxUploadBytes)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer up.Close()

	req := ConvertRequest{FileName: up.name, OutputFormat: formValue(r, FieldOutputFormat)}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "converting archive",
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.String("archive", req.FileName),
		slog.String("format", req.OutputFormat))

	conv, err := h.service.Convert(ctx, up.archive, exporter.Format(req.OutputFormat))
	if err != nil {
		h.errorHandler.HandleError(w, r, mapError(err))
		return
	}

	writeAttachment(w, conv)
}

// Preview handles POST /api/preview
func (h *ConversionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	up, err := readUpload(w, r, h.maxUploadBytes)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer up.Close()

	req := PreviewRequest{FileName: up.name}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	preview, err := h.service.Preview(ctx, up.archive)
	if err != nil {
		h.errorHandler.HandleError(w, r, mapError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   newPreviewResponse(preview),
	})
}

// fileOutcome is the JSON form of a per-file outcome
type fileOutcome struct {
	File   string `json:"file"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

type previewResponse struct {
	Columns  []string      `json:"columns"`
	Rows     [][]string    `json:"rows"`
	RowCount int           `json:"row_count"`
	Files    []fileOutcome `json:"files"`
}

func newPreviewResponse(p *services.Preview) previewResponse {
	resp := previewResponse{
		Columns:  p.Columns,
		Rows:     p.Rows,
		RowCount: len(p.Rows),
		Files:    make([]fileOutcome, 0, len(p.Files)),
	}
	if resp.Rows == nil {
		resp.Rows = [][]string{}
	}
	for _, o := range p.Files {
		resp.Files = append(resp.Files, toFileOutcome(o, true))
	}
	return resp
}

func toFileOutcome(o extract.FileOutcome, withStatus bool) fileOutcome {
	out := fileOutcome{File: o.File, Reason: string(o.Reason)}
	if withStatus {
		out.Status = string(o.Status)
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return out
}

// writeAttachment sends a finished conversion as a file download.
func writeAttachment(w http.ResponseWriter, conv *services.Conversion) {
	skipped := conv.Skipped()

	w.Header().Set("Content-Type", conv.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": conv.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(conv.Data)))
	w.Header().Set(HeaderSkippedCount, strconv.Itoa(len(skipped)))
	if len(skipped) > 0 {
		w.Header().Set(HeaderSkippedFiles, skippedHeader(skipped))
	}

	w.WriteHeader(http.StatusOK)
	w.Write(conv.Data)
}

func skippedHeader(skipped []extract.FileOutcome) string {
	names := make([]string, 0, len(skipped))
	for _, o := range skipped {
		names = append(names, url.PathEscape(o.File))
	}
	return strings.Join(names, ",")
}

// mapError translates conversion service errors into API errors. Errors
// without a known kind are returned unchanged.
func mapError(err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidArchive):
		return apierrors.NewWithDetails(http.StatusBadRequest, apierrors.CodeInvalidArchive,
			"The uploaded file is not a readable tar archive", err.Error())

	case errors.Is(err, services.ErrArchiveTooLarge):
		return apierrors.New(http.StatusRequestEntityTooLarge, apierrors.CodePayloadTooLarge,
			"The unpacked archive exceeds the maximum allowed size")

	case errors.Is(err, intake.ErrIndexNotFound):
		return apierrors.New(http.StatusUnprocessableEntity, apierrors.CodeMalformedIndex,
			"No archive XML file starting with 'ar-' found.")

	case errors.Is(err, services.ErrMalformedIndex):
		return apierrors.NewWithDetails(http.StatusUnprocessableEntity, apierrors.CodeMalformedIndex,
			"The archive index could not be read", err.Error())

	case errors.Is(err, services.ErrNoRecords):
		var skipped []fileOutcome
		var convErr *services.ConversionError
		if errors.As(err, &convErr) {
			for _, o := range convErr.Skipped() {
				skipped = append(skipped, toFileOutcome(o, false))
			}
		}
		if len(skipped) == 0 {
			return apierrors.New(http.StatusUnprocessableEntity, apierrors.CodeNoRecords,
				"No valid data records found in the archive.")
		}
		return apierrors.NewWithDetails(http.StatusUnprocessableEntity, apierrors.CodeNoRecords,
			"No valid data records found in the archive.", skipped)

	case errors.Is(err, services.ErrInvalidFormat):
		return apierrors.NewValidationErrors([]apierrors.ValidationError{{
			Field:   FieldOutputFormat,
			Message: "output_format must be one of: " + strings.Join(formatNames(), ", "),
		}})

	case errors.Is(err, services.ErrExport):
		return apierrors.New(http.StatusInternalServerError, apierrors.CodeExportFailed,
			"The table could not be written in the requested format")
	}
	return err
}

func formatNames() []string {
	formats := exporter.Formats()
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.String())
	}
	return names
}
