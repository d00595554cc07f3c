package source

import (
	"context"
	"path"
	"sort"
	"strings"

	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/storage"
)

// BlobSource reads documents from blob storage through a storage.BlobClient.
type BlobSource struct {
	client     storage.BlobClient
	extensions []string
}

// NewBlobSource creates a blob-backed source. Extensions default to the same
// document suffixes as the filesystem source.
func NewBlobSource(client storage.BlobClient, extensions ...string) (*BlobSource, error) {
	if client == nil {
		return nil, pkgerrors.NewConfigurationError("blob client is required", nil)
	}
	exts := extensions
	if len(exts) == 0 {
		exts = defaultExtensions
	}
	return &BlobSource{client: client, extensions: exts}, nil
}

// List enumerates blobs under the given prefix, filtered to document
// extensions and sorted.
func (b *BlobSource) List(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	names, err := b.client.List(ctx, prefix)
	if err != nil {
		return nil, pkgerrors.NewReadError(pattern, err)
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		if b.matchesExtension(name) {
			paths = append(paths, name)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (b *BlobSource) matchesExtension(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, want := range b.extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// Read downloads one blob and returns its content as text.
func (b *BlobSource) Read(ctx context.Context, blobPath string) (string, error) {
	data, err := b.client.Download(ctx, blobPath)
	if err != nil {
		return "", pkgerrors.NewReadError(blobPath, err)
	}
	return string(data), nil
}
