package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"vidtube/internal/blob"
)

type MediaHandler struct {
	blobs *blob.Service
}

func NewMediaHandler(blobs *blob.Service) *MediaHandler {
	return &MediaHandler{blobs: blobs}
}

// GET /media/{name}
func (h *MediaHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))

	file, err := h.blobs.Open(name)
	if errors.Is(err, blob.ErrInvalidPath) || errors.Is(err, os.ErrNotExist) {
		notFound(w, "Media not found")
		return
	}
	if err != nil {
		slog.Error("error opening blob", "blob", name, "error", err)
		internalError(w)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		slog.Error("error reading blob info", "blob", name, "error", err)
		internalError(w)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+strings.TrimSuffix(name, filepath.Ext(name))+`"`)
	w.Header().Set("Content-Type", mediaContentType(name))
	w.Header().Set("Content-Disposition", `inline; filename="`+name+`"`)

	http.ServeContent(w, r, name, info.ModTime(), file)
}

func mediaContentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}
