package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
)

// defaultExtensions are the file suffixes treated as documents when a
// pattern resolves to a directory.
var defaultExtensions = []string{".md", ".markdown"}

// FileSystem reads documents from local disk. Content is decoded as UTF-8,
// with UTF-16 (either endianness) accepted when a byte order mark is present.
type FileSystem struct {
	extensions []string
	logger     logging.Logger
}

// FileSystemOption configures a FileSystem.
type FileSystemOption func(*FileSystem)

// WithExtensions overrides the suffixes matched during directory listing.
func WithExtensions(exts ...string) FileSystemOption {
	return func(fs *FileSystem) {
		if len(exts) > 0 {
			fs.extensions = exts
		}
	}
}

// WithLogger attaches a logger for listing diagnostics.
func WithLogger(logger logging.Logger) FileSystemOption {
	return func(fs *FileSystem) {
		fs.logger = logger
	}
}

// NewFileSystem creates a local disk source.
func NewFileSystem(opts ...FileSystemOption) *FileSystem {
	fs := &FileSystem{
		extensions: defaultExtensions,
		logger:     &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.logger = logging.OrNoOp(fs.logger)
	return fs
}

// List resolves pattern to a sorted slice of file paths. A pattern naming an
// existing directory is walked recursively for files with the configured
// extensions; anything else is treated as a glob.
func (fs *FileSystem) List(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, pkgerrors.NewConfigurationError("list pattern is required", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(pattern)
	if err == nil && info.IsDir() {
		return fs.listDir(pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, pkgerrors.NewConfigurationError("invalid list pattern: "+pattern, err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		fi, statErr := os.Stat(m)
		if statErr != nil || fi.IsDir() {
			continue
		}
		paths = append(paths, m)
	}
	sort.Strings(paths)

	fs.logger.Debug("listed files",
		logging.String("pattern", pattern),
		logging.Int("count", len(paths)))
	return paths, nil
}

func (fs *FileSystem) listDir(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if fs.matchesExtension(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, mapOSError(dir, err)
	}
	sort.Strings(paths)

	fs.logger.Debug("listed directory",
		logging.String("dir", dir),
		logging.Int("count", len(paths)))
	return paths, nil
}

func (fs *FileSystem) matchesExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range fs.extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// Read loads and decodes one file. A byte order mark, when present, selects
// the decoding and is stripped from the returned text.
func (fs *FileSystem) Read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", mapOSError(path, err)
	}
	defer f.Close()

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(f, decoder))
	if err != nil {
		return "", pkgerrors.NewReadError(path, err)
	}

	return string(data), nil
}

// mapOSError wraps filesystem failures with the matching sentinel so callers
// can branch on not-found versus permission without inspecting syscalls.
func mapOSError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return pkgerrors.NewReadError(path, pkgerrors.ErrNotFound)
	case os.IsPermission(err):
		return pkgerrors.NewReadError(path, pkgerrors.ErrPermissionDenied)
	default:
		return pkgerrors.NewReadError(path, err)
	}
}
