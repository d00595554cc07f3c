// Package source abstracts where documents come from. The pipeline only needs
// two capabilities: enumerating paths that match a pattern and reading one
// path's content as text.
package source

import "context"

// Lister enumerates document paths matching a pattern. Implementations must
// return paths in a deterministic order.
type Lister interface {
	List(ctx context.Context, pattern string) ([]string, error)
}

// Reader loads one document's full content as decoded text.
type Reader interface {
	Read(ctx context.Context, path string) (string, error)
}

// Source combines listing and reading over one backing store.
type Source interface {
	Lister
	Reader
}
