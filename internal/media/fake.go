package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Fake is an in-memory Host for tests of code that uploads media.
type Fake struct {
	mu          sync.Mutex
	baseURL     string
	next        int
	failUploads bool
	uploaded    []string
	deleted     []string
}

func NewFake(baseURL string) *Fake {
	return &Fake{baseURL: strings.TrimRight(baseURL, "/")}
}

// FailUploads makes every following Upload report absence.
func (f *Fake) FailUploads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUploads = fail
}

func (f *Fake) Upload(_ context.Context, localPath string) (string, bool) {
	if localPath == "" {
		return "", false
	}
	defer removeTemp(localPath)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUploads {
		return "", false
	}

	f.next++
	ext := filepath.Ext(localPath)
	if ext == "" {
		ext = ".bin"
	}
	url := fmt.Sprintf("%s/media-%d%s", f.baseURL, f.next, ext)
	f.uploaded = append(f.uploaded, url)
	return url, true
}

func (f *Fake) Delete(_ context.Context, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
}

func (f *Fake) Uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploaded...)
}

func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
