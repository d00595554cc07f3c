// Package frontmatter extracts the metadata block and body from structured
// text documents. Three block syntaxes are recognized by their leading
// delimiter: "---" fences YAML, "+++" fences TOML, and a bare "{" opens a
// JSON object prefix.
package frontmatter

import (
	"fmt"
	"strings"

	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
)

// Parts is the result of a successful extraction: the parsed metadata block
// and the remaining body text.
type Parts struct {
	Metadata map[string]interface{}
	Body     string
}

// Extractor turns raw document content into metadata and body.
type Extractor interface {
	Extract(content string) (*Parts, error)
}

// Format identifies a frontmatter block syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
	FormatNone Format = "none"
)

// Detect inspects the leading delimiter and reports the block format.
func Detect(content string) Format {
	trimmed := strings.TrimLeft(content, "\uFEFF")
	switch {
	case strings.HasPrefix(trimmed, "---"):
		return FormatYAML
	case strings.HasPrefix(trimmed, "+++"):
		return FormatTOML
	case strings.HasPrefix(strings.TrimLeft(trimmed, " \t\r\n"), "{"):
		return FormatJSON
	default:
		return FormatNone
	}
}

// AutoExtractor delegates to the extractor matching the detected format.
type AutoExtractor struct {
	yaml YAMLExtractor
	toml TOMLExtractor
	json JSONExtractor
}

// NewAutoExtractor creates an extractor that handles all supported formats.
func NewAutoExtractor() *AutoExtractor {
	return &AutoExtractor{}
}

// Extract detects the block format and extracts with the matching extractor.
// Content without a recognizable metadata block is an error; every document
// must carry one.
func (a *AutoExtractor) Extract(content string) (*Parts, error) {
	switch Detect(content) {
	case FormatYAML:
		return a.yaml.Extract(content)
	case FormatTOML:
		return a.toml.Extract(content)
	case FormatJSON:
		return a.json.Extract(content)
	default:
		return nil, pkgerrors.ErrMissingFrontmatter
	}
}

// splitFenced splits "<fence>\n<block>\n<fence>\n<body>" content. The closing
// fence must sit alone on its own line. CRLF line endings are tolerated.
func splitFenced(content, fence string) (block, body string, err error) {
	content = strings.TrimPrefix(content, "\uFEFF")

	rest, ok := strings.CutPrefix(content, fence)
	if !ok {
		return "", "", pkgerrors.ErrMissingFrontmatter
	}
	rest = strings.TrimPrefix(rest, "\r")
	rest, ok = strings.CutPrefix(rest, "\n")
	if !ok {
		return "", "", fmt.Errorf("opening %s delimiter must end its line", fence)
	}

	lines := strings.SplitAfter(rest, "\n")
	var blockBuilder strings.Builder
	offset := 0
	for _, line := range lines {
		if strings.TrimRight(line, "\r\n") == fence {
			return blockBuilder.String(), rest[offset+len(line):], nil
		}
		blockBuilder.WriteString(line)
		offset += len(line)
	}

	return "", "", fmt.Errorf("unterminated %s frontmatter block", fence)
}
