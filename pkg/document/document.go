package document

import (
	"fmt"
	"sort"
)

// Document is one processed source file: its path identity, the metadata
// extracted from the frontmatter block, and the remaining body text.
// Documents are immutable; the With* methods return fresh copies so earlier
// pipeline stages can never observe later mutations.
type Document struct {
	path     string
	metadata map[string]interface{}
	body     string
}

// New builds a document from its parts. The metadata map is deep-copied so the
// caller's map stays independent.
func New(path string, metadata map[string]interface{}, body string) (*Document, error) {
	if path == "" {
		return nil, fmt.Errorf("document path cannot be empty")
	}
	return &Document{
		path:     path,
		metadata: copyValueMap(metadata),
		body:     body,
	}, nil
}

// Path returns the source path identifying this document.
func (d *Document) Path() string {
	return d.path
}

// Body returns the document body text, without the frontmatter block.
func (d *Document) Body() string {
	return d.body
}

// Metadata returns a copy of the extracted metadata map.
func (d *Document) Metadata() map[string]interface{} {
	return copyValueMap(d.metadata)
}

// MetadataValue returns the value stored at key, if present.
func (d *Document) MetadataValue(key string) (interface{}, bool) {
	v, ok := d.metadata[key]
	return copyValue(v), ok
}

// MetadataKeys returns the metadata keys in sorted order.
func (d *Document) MetadataKeys() []string {
	keys := make([]string, 0, len(d.metadata))
	for k := range d.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithMetadataValue returns a copy of the document with key set to value.
func (d *Document) WithMetadataValue(key string, value interface{}) *Document {
	meta := copyValueMap(d.metadata)
	meta[key] = copyValue(value)
	return &Document{
		path:     d.path,
		metadata: meta,
		body:     d.body,
	}
}

// WithBody returns a copy of the document carrying the given body.
func (d *Document) WithBody(body string) *Document {
	return &Document{
		path:     d.path,
		metadata: copyValueMap(d.metadata),
		body:     body,
	}
}

// String implements fmt.Stringer for diagnostics.
func (d *Document) String() string {
	return fmt.Sprintf("Document{path: %s, metadata_keys: %d, body_bytes: %d}", d.path, len(d.metadata), len(d.body))
}

// copyValueMap deep-copies a metadata map. Nested maps and slices are copied;
// scalar values are shared (they are immutable in Go).
func copyValueMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		return copyValueMap(typed)
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
