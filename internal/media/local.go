package media

import (
	"context"
	"log/slog"
	"os"

	"vidtube/internal/blob"
	"vidtube/internal/mediaurl"
)

// Local serves uploads from the blob store at <baseURL>/media/<name>.
type Local struct {
	blobs   *blob.Service
	baseURL string
}

func NewLocal(blobs *blob.Service, baseURL string) *Local {
	return &Local{blobs: blobs, baseURL: baseURL}
}

func (l *Local) Upload(ctx context.Context, localPath string) (string, bool) {
	if localPath == "" {
		return "", false
	}
	defer removeTemp(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		slog.Error("error opening upload", "component", "media", "error", err)
		return "", false
	}
	defer f.Close()

	stored, err := l.blobs.Save(ctx, f)
	if err != nil {
		slog.Warn("error storing upload", "component", "media", "error", err)
		return "", false
	}

	return mediaurl.Blob(l.baseURL, stored.Name), true
}

func (l *Local) Delete(_ context.Context, url string) {
	if _, ok := mediaurl.ParseBlobName(url); !ok {
		slog.Warn("not a local media url", "component", "media", "url", url)
		return
	}
	publicID := mediaurl.PublicID(url)
	if err := l.blobs.Delete(publicID); err != nil {
		slog.Warn("error deleting media", "component", "media", "public_id", publicID, "error", err)
	}
}
