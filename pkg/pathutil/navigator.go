// Package pathutil navigates dot-separated paths through parsed data trees
// (maps, slices). Aggregation directives address fields with these paths.
package pathutil

import (
	"fmt"
	"strings"
)

// Split breaks a dot path into segments, dropping empty ones.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// Get walks a dot path through nested maps and returns the value found there.
// The walk does not descend into arrays; use Collect for that.
func Get(data map[string]interface{}, path string) (interface{}, bool) {
	segments := Split(path)
	if len(segments) == 0 {
		return nil, false
	}

	var current interface{} = data
	for _, seg := range segments {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes value at a dot path, creating intermediate objects as needed.
// An intermediate that already exists as a non-object is an error; Set never
// silently clobbers structure on the way down.
func Set(data map[string]interface{}, path string, value interface{}) error {
	segments := Split(path)
	if len(segments) == 0 {
		return fmt.Errorf("path cannot be empty")
	}

	current := data
	for _, seg := range segments[:len(segments)-1] {
		next, exists := current[seg]
		if !exists {
			created := make(map[string]interface{})
			current[seg] = created
			current = created
			continue
		}
		obj, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("path segment %q is %T, not an object", seg, next)
		}
		current = obj
	}

	current[segments[len(segments)-1]] = value
	return nil
}

// Collect gathers every value reachable at a dot path, fanning out across any
// array encountered along the way. A leaf that is itself an array is spread
// into the result. Returns false when nothing was reachable.
func Collect(data map[string]interface{}, path string) ([]interface{}, bool) {
	segments := Split(path)
	if len(segments) == 0 {
		return nil, false
	}
	values := collect(data, segments)
	return values, len(values) > 0
}

func collect(node interface{}, segments []string) []interface{} {
	if len(segments) == 0 {
		if arr, ok := node.([]interface{}); ok {
			return arr
		}
		if node == nil {
			return nil
		}
		return []interface{}{node}
	}

	switch typed := node.(type) {
	case map[string]interface{}:
		child, ok := typed[segments[0]]
		if !ok {
			return nil
		}
		return collect(child, segments[1:])
	case []interface{}:
		var out []interface{}
		for _, element := range typed {
			out = append(out, collect(element, segments)...)
		}
		return out
	default:
		return nil
	}
}
