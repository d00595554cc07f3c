package frontmatter

import (
	"fmt"

	toml "github.com/pelletier/go-toml/v2"
)

// TOMLExtractor extracts "+++" fenced TOML frontmatter.
type TOMLExtractor struct{}

func (TOMLExtractor) Extract(content string) (*Parts, error) {
	block, body, err := splitFenced(content, "+++")
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]interface{})
	if err := toml.Unmarshal([]byte(block), &metadata); err != nil {
		return nil, fmt.Errorf("invalid TOML frontmatter: %w", err)
	}

	return &Parts{Metadata: metadata, Body: body}, nil
}
