package blob

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
	DefaultOrphanGrace     = 24 * time.Hour
)

// ReferenceChecker reports whether any identity still points at a blob.
type ReferenceChecker interface {
	BlobReferenced(ctx context.Context, name string) (bool, error)
}

// CleanupService deletes stored blobs that no identity references anymore,
// such as media left behind by a failed registration.
type CleanupService struct {
	refs     ReferenceChecker
	blobs    *Service
	interval time.Duration
	grace    time.Duration
}

func NewCleanupService(refs ReferenceChecker, blobs *Service) *CleanupService {
	return &CleanupService{
		refs:     refs,
		blobs:    blobs,
		interval: DefaultCleanupInterval,
		grace:    DefaultOrphanGrace,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting blob cleanup service", "component", "blob_cleanup", "interval", s.interval)

	s.runCleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping blob cleanup service", "component", "blob_cleanup")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *CleanupService) runCleanup(ctx context.Context) int {
	cutoff := time.Now().Add(-s.grace)
	var orphans []string

	err := s.blobs.Walk(func(name string, modTime time.Time) error {
		if modTime.After(cutoff) {
			return nil
		}
		referenced, err := s.refs.BlobReferenced(ctx, name)
		if err != nil {
			slog.Error("error checking blob references", "component", "blob_cleanup", "error", err, "blob", name)
			return nil
		}
		if !referenced {
			orphans = append(orphans, name)
		}
		return ctx.Err()
	})
	if err != nil {
		slog.Error("error walking blob storage", "component", "blob_cleanup", "error", err)
	}

	deleted := 0
	for _, name := range orphans {
		blobID := strings.TrimSuffix(name, filepath.Ext(name))
		if err := s.blobs.Delete(blobID); err != nil {
			slog.Warn("error deleting orphaned blob", "component", "blob_cleanup", "error", err, "blob", name)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		slog.Info("deleted orphaned blobs", "component", "blob_cleanup", "count", deleted)
	}
	return deleted
}
