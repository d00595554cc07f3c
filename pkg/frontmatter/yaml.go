package frontmatter

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLExtractor extracts "---" fenced YAML frontmatter.
type YAMLExtractor struct{}

func (YAMLExtractor) Extract(content string) (*Parts, error) {
	block, body, err := splitFenced(content, "---")
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(block), &metadata); err != nil {
		return nil, fmt.Errorf("invalid YAML frontmatter: %w", err)
	}

	return &Parts{Metadata: metadata, Body: body}, nil
}
