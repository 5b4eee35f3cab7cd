package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"vidtube/internal/db"
)

var (
	ErrFileTooLarge   = errors.New("blob file too large")
	ErrEmptyFile      = errors.New("blob file is empty")
	ErrDisallowedType = errors.New("disallowed blob mime type")
	ErrExecutableFile = errors.New("executable files are not allowed")
	ErrInvalidPath    = errors.New("invalid blob path")
)

var (
	blobNamePattern = regexp.MustCompile(`^blb_[0-9a-f]+\.(jpg|png)$`)
	blobIDPattern   = regexp.MustCompile(`^blb_[0-9a-f]+$`)
)

type StoredBlob struct {
	ID          string
	Name        string
	StoragePath string
	MimeType    string
	SizeBytes   int64
	CreatedAt   time.Time
}

// Service stores profile images on local disk under <root>/<xx>/<id><ext>.
type Service struct {
	rootDir        string
	maxUploadBytes int64
}

func NewService(rootDir string, maxUploadBytes int64) (*Service, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be > 0")
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root directory: %w", err)
	}

	return &Service{
		rootDir:        rootDir,
		maxUploadBytes: maxUploadBytes,
	}, nil
}

func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Save validates and normalizes an uploaded image and writes it atomically.
func (s *Service) Save(_ context.Context, src io.Reader) (*StoredBlob, error) {
	img, err := PrepareImage(src, s.maxUploadBytes)
	if err != nil {
		return nil, err
	}

	blobID, err := db.GenerateID(db.PrefixBlob)
	if err != nil {
		return nil, fmt.Errorf("generating blob id: %w", err)
	}
	name := blobID + img.Ext()
	relPath := blobRelativePath(name)

	absPath, err := s.resolveStoragePath(relPath)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(absPath, blobID, img.Data); err != nil {
		return nil, err
	}

	return &StoredBlob{
		ID:          blobID,
		Name:        name,
		StoragePath: relPath,
		MimeType:    img.MimeType,
		SizeBytes:   int64(len(img.Data)),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// writeFileAtomic writes data next to absPath and renames it into place, so
// readers and the cleanup walker never see a partial file.
func writeFileAtomic(absPath, blobID string, data []byte) error {
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, blobID+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary blob file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("writing blob file: %w", err)
	}

	if err := os.Rename(tmpPath, absPath); err != nil {
		return fmt.Errorf("finalizing blob file: %w", err)
	}
	return nil
}

// Open returns the stored file named <id><ext>.
func (s *Service) Open(name string) (*os.File, error) {
	if !blobNamePattern.MatchString(name) {
		return nil, ErrInvalidPath
	}
	absPath, err := s.resolveStoragePath(blobRelativePath(name))
	if err != nil {
		return nil, err
	}
	return os.Open(absPath)
}

// Delete removes every stored file for blobID regardless of extension.
// Deleting a missing blob is not an error.
func (s *Service) Delete(blobID string) error {
	if !blobIDPattern.MatchString(blobID) {
		return ErrInvalidPath
	}
	dir, err := s.resolveStoragePath(blobPathPrefix(blobID))
	if err != nil {
		return err
	}

	matches, err := filepath.Glob(filepath.Join(dir, blobID+".*"))
	if err != nil {
		return fmt.Errorf("finding blob files: %w", err)
	}
	for _, match := range matches {
		if strings.Contains(filepath.Base(match), ".tmp-") {
			continue
		}
		if err := os.Remove(match); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("deleting blob file: %w", err)
		}
	}
	return nil
}

// Walk calls fn for every stored blob with its name and modification time.
func (s *Service) Walk(fn func(name string, modTime time.Time) error) error {
	return filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !blobNamePattern.MatchString(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(d.Name(), info.ModTime())
	})
}

// PrepareImage reads at most maxBytes from src, rejects executables and
// anything that is not a raster image, and returns the normalized image.
func PrepareImage(src io.Reader, maxBytes int64) (*NormalizedImage, error) {
	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading blob data: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrFileTooLarge
	}

	if isExecutableSignature(data) {
		return nil, ErrExecutableFile
	}
	if !isAllowedImage(data) {
		return nil, ErrDisallowedType
	}

	return NormalizeStaticImage(bytes.NewReader(data), DefaultMaxEdge, DefaultQuality)
}

func (s *Service) resolveStoragePath(storagePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(storagePath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", ErrInvalidPath
	}

	return filepath.Join(s.rootDir, clean), nil
}

func blobRelativePath(name string) string {
	return filepath.ToSlash(filepath.Join(blobPathPrefix(name), name))
}

func blobPathPrefix(blobID string) string {
	randomPart := strings.TrimPrefix(blobID, "blb_")
	if len(randomPart) < 2 {
		return "xx"
	}
	return randomPart[:2]
}

// executableMagic lists the leading bytes of PE, ELF, Mach-O (both
// endiannesses, 32/64 bit and fat) binaries and shebang scripts.
var executableMagic = [][]byte{
	{'M', 'Z'},
	{0x7f, 'E', 'L', 'F'},
	{0xfe, 0xed, 0xfa, 0xce},
	{0xce, 0xfa, 0xed, 0xfe},
	{0xfe, 0xed, 0xfa, 0xcf},
	{0xcf, 0xfa, 0xed, 0xfe},
	{0xca, 0xfe, 0xba, 0xbe},
	{0xbe, 0xba, 0xfe, 0xca},
	{'#', '!'},
}

func isExecutableSignature(data []byte) bool {
	for _, magic := range executableMagic {
		if bytes.HasPrefix(data, magic) {
			return true
		}
	}
	return false
}

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

func isAllowedImage(data []byte) bool {
	detected := mimetype.Detect(data)
	for _, allowed := range allowedImageTypes {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}
