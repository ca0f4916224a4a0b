package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/h2non/filetype"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/medapi"
)

// allowedExtensions is the upload allowlist, in the order reported to users.
var allowedExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp"}

// multipartOverhead is the slack allowed on top of the file size limit for
// form fields and part headers.
const multipartOverhead = 1 << 20

// upload is a validated image from a multipart request.
type upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// readUpload parses the multipart form and validates the image in the "file"
// field: extension allowlist, size limit, and magic-byte sniffing.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, *apierr.Error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, s.tooLarge()
		}
		return nil, apierr.Newf(apierr.CodeValidation, err, "Expected a multipart form with a %q file.", medapi.UploadField)
	}

	f, header, err := r.FormFile(medapi.UploadField)
	if err != nil {
		return nil, apierr.Newf(apierr.CodeValidation, err, "No file uploaded.")
	}
	defer f.Close()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if !slices.Contains(allowedExtensions, ext) {
		return nil, apierr.Validation("Invalid file type. Allowed types: " + strings.Join(allowedExtensions, ", "))
	}

	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		return nil, apierr.Newf(apierr.CodeValidation, err, "Failed to read the uploaded file.")
	}
	if int64(len(data)) > s.maxUpload {
		return nil, s.tooLarge()
	}
	if len(data) == 0 {
		return nil, apierr.Validation("The uploaded file is empty.")
	}

	head := data
	if len(head) > 261 {
		head = head[:261]
	}
	kind, _ := filetype.Match(head)
	if !filetype.IsImage(head) {
		return nil, apierr.Validation("The uploaded file is not a recognised image.")
	}

	return &upload{
		FileName:    filepath.Base(header.Filename),
		ContentType: kind.MIME.Value,
		Data:        data,
	}, nil
}

func (s *Server) tooLarge() *apierr.Error {
	return apierr.Validation(fmt.Sprintf("File size exceeds %dMB limit", s.maxUpload>>20))
}
