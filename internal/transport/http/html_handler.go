package http

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	apierrors "labflat/internal/errors"
	"labflat/internal/exporter"
	"labflat/internal/infrastructure"
	"labflat/internal/intake"
	"labflat/internal/services"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Flash messages shown on the upload form
const (
	FlashMissingInput   = "Please upload a .tar file and select an output format."
	FlashIndexNotFound  = "No archive XML file starting with 'ar-' found."
	FlashNoRecords      = "No valid data records found in the archive."
	FlashInvalidArchive = "The uploaded file is not a readable tar archive."
	FlashTooLarge       = "The uploaded archive is too large."
	FlashMalformedIndex = "The archive index could not be read."
)

type pageData struct {
	Title       string
	Version     string
	Flash       string
	Formats     []string
	Selected    string
	MaxUploadMB int64
}

// HTMLHandler serves the upload form and answers its submissions with the
// converted file
type HTMLHandler struct {
	service        ConversionServiceInterface
	maxUploadBytes int64
	defaultFormat  string
	title          string
	version        string
	logger         *slog.Logger
}

// NewHTMLHandler creates the form handler
func NewHTMLHandler(service ConversionServiceInterface, maxUploadBytes int64, defaultFormat, title, version string, logger *slog.Logger) *HTMLHandler {
	return &HTMLHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		defaultFormat:  defaultFormat,
		title:          title,
		version:        version,
		logger:         infrastructure.WithComponent(logger, "html_handler"),
	}
}

// Index handles GET /
func (h *HTMLHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "", h.defaultFormat)
}

// Submit handles POST /. Failures re-render the form with a flash message
// instead of a problem document.
func (h *HTMLHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	up, err := readUpload(w, r, h.maxUploadBytes)
	if err != nil {
		status, flash := flashFor(err)
		h.render(w, r, status, flash, h.defaultFormat)
		return
	}
	defer up.Close()

	format := formValue(r, FieldOutputFormat)
	if up.archive == nil {
		h.render(w, r, http.StatusBadRequest, FlashMissingInput, format)
		return
	}
	if _, err := exporter.ParseFormat(format); err != nil {
		h.render(w, r, http.StatusBadRequest, FlashMissingInput, h.defaultFormat)
		return
	}

	conv, err := h.service.Convert(ctx, up.archive, exporter.Format(format))
	if err != nil {
		status, flash := flashFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "form conversion failed", slog.String("error", err.Error()))
		}
		h.render(w, r, status, flash, format)
		return
	}

	writeAttachment(w, conv)
}

func (h *HTMLHandler) render(w http.ResponseWriter, r *http.Request, status int, flash, selected string) {
	data := pageData{
		Title:       h.title,
		Version:     h.version,
		Flash:       flash,
		Formats:     formatNames(),
		Selected:    selected,
		MaxUploadMB: h.maxUploadBytes >> 20,
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render form", slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// flashFor picks the status code and flash message for a failed submission.
func flashFor(err error) (int, string) {
	var apiErr *apierrors.APIError
	switch {
	case errors.Is(err, services.ErrArchiveTooLarge):
		return http.StatusRequestEntityTooLarge, FlashTooLarge
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusRequestEntityTooLarge:
		return http.StatusRequestEntityTooLarge, FlashTooLarge
	case errors.As(err, &apiErr):
		return apiErr.StatusCode, FlashMissingInput
	case errors.Is(err, intake.ErrIndexNotFound):
		return http.StatusUnprocessableEntity, FlashIndexNotFound
	case errors.Is(err, services.ErrMalformedIndex):
		return http.StatusUnprocessableEntity, FlashMalformedIndex
	case errors.Is(err, services.ErrNoRecords):
		return http.StatusUnprocessableEntity, FlashNoRecords
	case errors.Is(err, services.ErrInvalidArchive):
		return http.StatusBadRequest, FlashInvalidArchive
	case errors.Is(err, services.ErrInvalidFormat):
		return http.StatusBadRequest, FlashMissingInput
	}
	return http.StatusInternalServerError, fmt.Sprintf("An unexpected error occurred: %v", err)
}
