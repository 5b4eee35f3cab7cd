package mediaurl

import (
	"net/url"
	"path"
	"strings"
)

const PathPrefix = "/media/"

// Blob is the public URL of a locally stored blob file.
func Blob(baseURL, name string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return PathPrefix + name
	}
	return baseURL + PathPrefix + name
}

// ParseBlobName extracts <id><ext> from a local media URL.
func ParseBlobName(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	p := u.Path
	if p == "" {
		p = raw
	}

	if !strings.HasPrefix(p, PathPrefix) {
		return "", false
	}

	name := strings.TrimPrefix(p, PathPrefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}

	return name, true
}

// PublicID is the last path component of a media URL without its file
// extension. It returns "" when the URL has no usable path.
func PublicID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}

	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
