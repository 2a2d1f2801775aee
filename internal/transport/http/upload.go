package http

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	apierrors "labflat/internal/errors"
)

// Form field names of the upload form
const (
	FieldArchive      = "tar_file"
	FieldOutputFormat = "output_format"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

// ConvertRequest is the validated form of a convert submission
type ConvertRequest struct {
	FileName     string `form:"tar_file" validate:"required,archive_name"`
	OutputFormat string `form:"output_format" validate:"required,oneof=csv xlsx"`
}

// PreviewRequest is the validated form of a preview submission
type PreviewRequest struct {
	FileName string `form:"tar_file" validate:"required,archive_name"`
}

// upload is an archive received in a multipart request. Close releases the
// part and any temporary files the form spilled to disk.
type upload struct {
	archive multipart.File
	name    string
	form    *multipart.Form
}

func (u *upload) Close() error {
	var errs []error
	if u.archive != nil {
		errs = append(errs, u.archive.Close())
	}
	if u.form != nil {
		errs = append(errs, u.form.RemoveAll())
	}
	return errors.Join(errs...)
}

// readUpload caps the request body at maxBytes, parses the multipart form
// and opens the tar_file part. A missing part is not an error: the returned
// upload has an empty name and validation reports the field.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*upload, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apierrors.PayloadTooLarge(maxErr.Limit)
		}
		return nil, apierrors.InvalidRequestWithError(err)
	}

	up := &upload{form: r.MultipartForm}
	file, header, err := r.FormFile(FieldArchive)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return up, nil
	case err != nil:
		up.Close()
		return nil, apierrors.InvalidRequestWithError(err)
	}

	up.archive = file
	up.name = header.Filename
	return up, nil
}

// formValue returns a trimmed, lower-cased form value.
func formValue(r *http.Request, key string) string {
	return strings.ToLower(strings.TrimSpace(r.FormValue(key)))
}
