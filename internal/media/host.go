// Package media uploads profile images to a media host and deletes them by
// URL. Hosts never return errors to callers: a failed upload is reported as
// absence and a failed delete is logged.
package media

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

type Host interface {
	// Upload stores the file at localPath and returns its public URL. The
	// local file is removed afterwards whether or not the upload worked.
	Upload(ctx context.Context, localPath string) (string, bool)
	// Delete removes the media the URL points at.
	Delete(ctx context.Context, url string)
}

func removeTemp(localPath string) {
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("error removing temporary upload", "component", "media", "path", localPath, "error", err)
	}
}
