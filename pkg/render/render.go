// Package render turns an aggregated data map into output text.
package render

import (
	"context"

	json "github.com/goccy/go-json"
)

// Renderer produces the textual output of a run from aggregated data.
type Renderer interface {
	Render(ctx context.Context, data map[string]interface{}) (string, error)
}

// JSONRenderer serializes the aggregate as JSON. The zero value renders
// compact output.
type JSONRenderer struct {
	indent string
}

// JSONOption configures a JSONRenderer.
type JSONOption func(*JSONRenderer)

// WithIndent enables pretty printing with the given indent unit.
func WithIndent(indent string) JSONOption {
	return func(r *JSONRenderer) {
		r.indent = indent
	}
}

// NewJSONRenderer creates a JSON renderer.
func NewJSONRenderer(opts ...JSONOption) *JSONRenderer {
	r := &JSONRenderer{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render serializes the aggregate. A nil aggregate renders as an empty
// object, never null.
func (r *JSONRenderer) Render(ctx context.Context, data map[string]interface{}) (string, error) {
	if data == nil {
		data = map[string]interface{}{}
	}

	var out []byte
	var err error
	if r.indent != "" {
		out, err = json.MarshalIndent(data, "", r.indent)
	} else {
		out, err = json.Marshal(data)
	}
	if err != nil {
		return "", err
	}
	return string(out), nil
}
