package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"vidtube/internal/constants"
)

// multipartMemory is how much of a form is buffered in memory before
// mime/multipart spills file parts to disk.
const multipartMemory = 1 << 20

var errFileTooLarge = errors.New("uploaded file too large")

// uploadForm is a parsed multipart form whose file parts were copied to
// temporary files the media host can upload from.
type uploadForm struct {
	form  *multipart.Form
	files map[string]string
}

func (u *uploadForm) Value(name string) string {
	if values := u.form.Value[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// File is the temp path of the named file part, or "" when it was not sent.
func (u *uploadForm) File(name string) string {
	return u.files[name]
}

// Cleanup removes whatever the media host left behind.
func (u *uploadForm) Cleanup() {
	for _, path := range u.files {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("error removing temporary upload", "path", path, "error", err)
		}
	}
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

// readUploadForm parses a multipart request and stores each named file
// field in tempDir. It writes the error response itself when it returns
// false.
func readUploadForm(w http.ResponseWriter, r *http.Request, fileMaxBytes int64, tempDir string, fileFields ...string) (*uploadForm, bool) {
	requestLimit := int64(len(fileFields))*fileMaxBytes + constants.RequestBodyMaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, requestLimit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			payloadTooLarge(w)
			return nil, false
		}
		badRequest(w, "Invalid multipart form")
		return nil, false
	}

	upload := &uploadForm{form: r.MultipartForm, files: make(map[string]string)}
	for _, field := range fileFields {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}

		path, err := saveTempFile(headers[0], fileMaxBytes, tempDir)
		if err != nil {
			upload.Cleanup()
			if errors.Is(err, errFileTooLarge) {
				payloadTooLarge(w)
				return nil, false
			}
			slog.Error("error saving upload to temp dir", "field", field, "error", err)
			internalError(w)
			return nil, false
		}
		upload.files[field] = path
	}

	return upload, true
}

func saveTempFile(header *multipart.FileHeader, maxBytes int64, tempDir string) (string, error) {
	if header.Size > maxBytes {
		return "", errFileTooLarge
	}

	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("opening file part: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	dst, err := os.CreateTemp(tempDir, "upload-*"+safeExt(header.Filename))
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	written, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > maxBytes {
		err = errFileTooLarge
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		if errors.Is(err, errFileTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("writing temp file: %w", err)
	}

	return dst.Name(), nil
}

// safeExt keeps a short alphanumeric extension from the client's file name.
func safeExt(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || len(filename)-idx > 6 {
		return ""
	}
	ext := strings.ToLower(filename[idx:])
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
