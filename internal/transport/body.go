package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"github.com/fpang/medassist/internal/apierr"
)

// FilePart is a local file sent as one multipart form field.
type FilePart struct {
	Field    string // form field name, e.g. "file"
	Path     string // local path
	FileName string // name sent to the server; defaults to the base of Path
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeBody serializes the request body. It returns a nil reader for
// bodiless requests.
func encodeBody(req Request) (io.Reader, string, *apierr.Error) {
	switch {
	case len(req.Fields) > 0 || len(req.Files) > 0:
		return encodeMultipart(req.Fields, req.Files)
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", apierr.New(apierr.CodeUnknown, fmt.Errorf("encode request: %w", err))
		}
		return bytes.NewReader(data), "application/json", nil
	default:
		return nil, "", nil
	}
}

func encodeMultipart(fields map[string]string, files []FilePart) (io.Reader, string, *apierr.Error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", apierr.New(apierr.CodeUnknown, fmt.Errorf("write field %s: %w", name, err))
		}
	}

	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, "", apierr.ImageProcessing(fmt.Errorf("read upload %s: %w", f.Path, err))
		}
		fileName := f.FileName
		if fileName == "" {
			fileName = filepath.Base(f.Path)
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(fileName)))
		header.Set("Content-Type", DetectContentType(data))
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", apierr.New(apierr.CodeUnknown, fmt.Errorf("create part %s: %w", f.Field, err))
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", apierr.New(apierr.CodeUnknown, fmt.Errorf("write part %s: %w", f.Field, err))
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", apierr.New(apierr.CodeUnknown, fmt.Errorf("close multipart body: %w", err))
	}
	return &buf, w.FormDataContentType(), nil
}

// DetectContentType sniffs the MIME type from the file's magic bytes.
func DetectContentType(data []byte) string {
	head := data
	if len(head) > 261 {
		head = head[:261]
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
