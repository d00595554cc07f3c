package frontmatter

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
)

// JSONExtractor extracts a balanced JSON object prefixed to the body.
type JSONExtractor struct{}

func (JSONExtractor) Extract(content string) (*Parts, error) {
	trimmed := strings.TrimLeft(strings.TrimPrefix(content, "\uFEFF"), " \t\r\n")
	if !strings.HasPrefix(trimmed, "{") {
		return nil, pkgerrors.ErrMissingFrontmatter
	}

	end, err := balancedObjectEnd(trimmed)
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]interface{})
	if err := json.Unmarshal([]byte(trimmed[:end]), &metadata); err != nil {
		return nil, fmt.Errorf("invalid JSON frontmatter: %w", err)
	}

	body := strings.TrimPrefix(trimmed[end:], "\r\n")
	body = strings.TrimPrefix(body, "\n")
	return &Parts{Metadata: metadata, Body: body}, nil
}

// balancedObjectEnd returns the byte offset just past the top-level object
// closing brace, tracking strings and escapes so braces inside values do not
// count.
func balancedObjectEnd(s string) (int, error) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i + 1, nil
				}
			}
		}
	}

	return 0, fmt.Errorf("unterminated JSON frontmatter object")
}
