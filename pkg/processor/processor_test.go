package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/frontmatter"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/schema"
)

// mapReader serves file content from memory.
type mapReader map[string]string

func (m mapReader) Read(_ context.Context, path string) (string, error) {
	content, ok := m[path]
	if !ok {
		return "", pkgerrors.NewReadError(path, pkgerrors.ErrNotFound)
	}
	return content, nil
}

func itemRules(t *testing.T) *schema.RuleSet {
	t.Helper()
	s, err := schema.NewParser().Parse([]byte(`{
		"type": "OBJECT",
		"x-collection-target": "commands",
		"properties": {
			"commands": {
				"type": "ARRAY",
				"items": {
					"type": "OBJECT",
					"properties": {
						"name": {"type": "STRING", "required": true},
						"weight": {"type": "NUMBER"}
					}
				}
			}
		}
	}`))
	require.NoError(t, err)

	rules, err := schema.BuildRuleSet(s)
	require.NoError(t, err)
	return rules
}

func TestProcessor_Process(t *testing.T) {
	reader := mapReader{
		"docs/build.md":   "---\nname: build\nweight: 10\n---\nRuns the build.\n",
		"docs/broken.md":  "---\nname: [unterminated\n---\nbody\n",
		"docs/nometa.md":  "plain text, no metadata block\n",
		"docs/badtype.md": "---\nname: 42\n---\nbody\n",
		"docs/missing.md": "---\nweight: 3\n---\nbody\n",
	}
	p, err := New(reader, frontmatter.NewAutoExtractor())
	require.NoError(t, err)

	rules := itemRules(t)
	ctx := context.Background()

	t.Run("valid document", func(t *testing.T) {
		doc, err := p.Process(ctx, "docs/build.md", rules)
		require.NoError(t, err)
		assert.Equal(t, "docs/build.md", doc.Path())
		assert.Equal(t, "Runs the build.\n", doc.Body())

		name, ok := doc.MetadataValue("name")
		require.True(t, ok)
		assert.Equal(t, "build", name)
	})

	t.Run("read failure surfaces not found", func(t *testing.T) {
		_, err := p.Process(ctx, "docs/absent.md", rules)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("parse failure surfaces extraction error", func(t *testing.T) {
		_, err := p.Process(ctx, "docs/broken.md", rules)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeExtraction, pkgerrors.CodeOf(err))
	})

	t.Run("missing metadata block surfaces extraction error", func(t *testing.T) {
		_, err := p.Process(ctx, "docs/nometa.md", rules)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeExtraction, pkgerrors.CodeOf(err))
	})

	t.Run("type mismatch surfaces validation error", func(t *testing.T) {
		_, err := p.Process(ctx, "docs/badtype.md", rules)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("missing required field surfaces validation error", func(t *testing.T) {
		_, err := p.Process(ctx, "docs/missing.md", rules)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	})

	t.Run("nil rules skip validation", func(t *testing.T) {
		doc, err := p.Process(ctx, "docs/badtype.md", nil)
		require.NoError(t, err)
		name, ok := doc.MetadataValue("name")
		require.True(t, ok)
		assert.Equal(t, 42, name)
	})

	t.Run("empty path rejected", func(t *testing.T) {
		_, err := p.Process(ctx, "  ", rules)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsConfiguration(err))
	})
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, frontmatter.NewAutoExtractor())
	require.Error(t, err)

	_, err = New(mapReader{}, nil)
	require.Error(t, err)
}
