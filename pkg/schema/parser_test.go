package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commandSchemaJSON = `{
	"type": "OBJECT",
	"description": "aggregated command registry",
	"x-collection-target": "commands",
	"x-derive": [
		{"sourcePath": "commands.tags", "targetField": "availableTags", "unique": true}
	],
	"x-base-properties": {"meta.generatedBy": "aggregator"},
	"properties": {
		"commands": {
			"type": "ARRAY",
			"items": {
				"type": "OBJECT",
				"properties": {
					"name": {"type": "STRING", "required": true},
					"tags": {"type": "ARRAY", "items": {"type": "STRING"}}
				}
			}
		},
		"availableTags": {"type": "ARRAY", "items": {"type": "STRING"}},
		"meta": {
			"type": "OBJECT",
			"properties": {
				"generatedBy": {"type": "STRING"}
			}
		}
	}
}`

const commandSchemaYAML = `type: OBJECT
x-collection-target: commands
x-derive:
  - sourcePath: commands.tags
    targetField: availableTags
    unique: true
x-base-properties:
  meta.generatedBy: aggregator
properties:
  commands:
    type: ARRAY
    items:
      type: OBJECT
      properties:
        name:
          type: STRING
          required: true
        tags:
          type: ARRAY
          items:
            type: STRING
  availableTags:
    type: ARRAY
    items:
      type: STRING
  meta:
    type: OBJECT
    properties:
      generatedBy:
        type: STRING
`

func TestParser_Parse_DetectsJSON(t *testing.T) {
	s, err := NewParser().Parse([]byte("  \n" + commandSchemaJSON))
	require.NoError(t, err)

	assert.Equal(t, TypeObject, s.Type)
	assert.Equal(t, "commands", s.CollectionTarget)
	require.Len(t, s.Derivations, 1)
	assert.Equal(t, "commands.tags", s.Derivations[0].SourcePath)
	assert.Equal(t, "availableTags", s.Derivations[0].TargetField)
	assert.True(t, s.Derivations[0].Unique)
	assert.Equal(t, "aggregator", s.BaseProperties["meta.generatedBy"])
}

func TestParser_Parse_FallsBackToYAML(t *testing.T) {
	s, err := NewParser().Parse([]byte(commandSchemaYAML))
	require.NoError(t, err)

	assert.Equal(t, TypeObject, s.Type)
	assert.Equal(t, "commands", s.CollectionTarget)
	require.Len(t, s.Derivations, 1)
	assert.True(t, s.Derivations[0].Unique)

	commands := s.PropertyAt("commands")
	require.NotNil(t, commands)
	assert.Equal(t, TypeArray, commands.Type)
	require.NotNil(t, commands.Items)
	assert.True(t, commands.Items.Properties["name"].Required)
}

func TestParser_Parse_EmptyInput(t *testing.T) {
	_, err := NewParser().Parse([]byte("  \n\t"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}

func TestParser_ParseJSON_MalformedInput(t *testing.T) {
	_, err := NewParser().ParseJSON([]byte(`{"type": "OBJECT",`))
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "SCHEMA_PARSE_ERROR", schemaErr.Code)
}

func TestSchemaError_Unwrap(t *testing.T) {
	cause := errors.New("unexpected token")
	err := ParseError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "schema parsing failed")
	assert.Contains(t, err.Error(), "unexpected token")
}

func TestParser_Parse_RequiresType(t *testing.T) {
	_, err := NewParser().Parse([]byte(`{"description": "no type"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema type is required")
}

func TestParser_Parse_RejectsUnknownType(t *testing.T) {
	_, err := NewParser().Parse([]byte(`{"type": "object"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schema type: object")
}

func TestParser_Parse_ValidatesPropertyTypes(t *testing.T) {
	_, err := NewParser().Parse([]byte(`{
		"type": "OBJECT",
		"properties": {"title": {"type": "TEXT"}}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "property 'title' has invalid type: TEXT")
}

func TestParser_Parse_ValidatesNestedProperties(t *testing.T) {
	_, err := NewParser().Parse([]byte(`{
		"type": "OBJECT",
		"properties": {
			"meta": {
				"type": "OBJECT",
				"properties": {"author": {}}
			}
		}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "property 'meta.author' must have a type")
}

func TestParser_Parse_ValidatesArrayItems(t *testing.T) {
	_, err := NewParser().Parse([]byte(`{
		"type": "ARRAY",
		"items": {"type": "TEXT"}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid array items")
}

func TestParser_Parse_RejectsMismatchedValidationRules(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		wantErr string
	}{
		{
			name:    "length rules on number",
			schema:  `{"type": "OBJECT", "properties": {"count": {"type": "NUMBER", "validation": {"minLength": 1}}}}`,
			wantErr: "minLength/maxLength",
		},
		{
			name:    "pattern on number",
			schema:  `{"type": "OBJECT", "properties": {"count": {"type": "NUMBER", "validation": {"pattern": "^a"}}}}`,
			wantErr: "string validation rules",
		},
		{
			name:    "range rules on string",
			schema:  `{"type": "OBJECT", "properties": {"title": {"type": "STRING", "validation": {"minimum": 1}}}}`,
			wantErr: "number validation rules",
		},
		{
			name:    "item rules on string",
			schema:  `{"type": "OBJECT", "properties": {"title": {"type": "STRING", "validation": {"uniqueItems": true}}}}`,
			wantErr: "array validation rules",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse([]byte(tt.schema))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParser_Parse_ByteLengthRulesAllowed(t *testing.T) {
	_, err := NewParser().Parse([]byte(`{
		"type": "OBJECT",
		"properties": {"payload": {"type": "BYTE", "validation": {"minLength": 4}}}
	}`))
	require.NoError(t, err)
}

func TestParser_Parse_DirectiveErrors(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		wantErr string
	}{
		{
			name:    "unresolved collection target",
			schema:  `{"type": "OBJECT", "x-collection-target": "missing", "properties": {"title": {"type": "STRING"}}}`,
			wantErr: `collection target "missing" does not resolve`,
		},
		{
			name:    "collection target is not an array",
			schema:  `{"type": "OBJECT", "x-collection-target": "title", "properties": {"title": {"type": "STRING"}}}`,
			wantErr: "must be an ARRAY property",
		},
		{
			name:    "collection target array without items",
			schema:  `{"type": "OBJECT", "x-collection-target": "commands", "properties": {"commands": {"type": "ARRAY"}}}`,
			wantErr: "must declare items",
		},
		{
			name:    "derivation without source",
			schema:  `{"type": "OBJECT", "x-derive": [{"targetField": "tags"}], "properties": {"tags": {"type": "ARRAY", "items": {"type": "STRING"}}}}`,
			wantErr: "empty sourcePath",
		},
		{
			name:    "derivation without target",
			schema:  `{"type": "OBJECT", "x-derive": [{"sourcePath": "commands.tags"}], "properties": {"tags": {"type": "ARRAY", "items": {"type": "STRING"}}}}`,
			wantErr: "empty targetField",
		},
		{
			name:    "blank base property name",
			schema:  `{"type": "OBJECT", "x-base-properties": {" ": "x"}, "properties": {"title": {"type": "STRING"}}}`,
			wantErr: "base property with empty field name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse([]byte(tt.schema))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParser_ParseFile_DispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "schema.json")
	yamlPath := filepath.Join(dir, "schema.yaml")
	sniffPath := filepath.Join(dir, "schema.conf")
	require.NoError(t, os.WriteFile(jsonPath, []byte(commandSchemaJSON), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte(commandSchemaYAML), 0o644))
	require.NoError(t, os.WriteFile(sniffPath, []byte(commandSchemaYAML), 0o644))

	for _, path := range []string{jsonPath, yamlPath, sniffPath} {
		s, err := NewParser().ParseFile(path)
		require.NoError(t, err, path)
		assert.Equal(t, "commands", s.CollectionTarget, path)
	}
}

func TestParser_ParseFile_MissingFile(t *testing.T) {
	_, err := NewParser().ParseFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read schema file")
}

func TestSchema_PropertyAt(t *testing.T) {
	s, err := NewParser().Parse([]byte(commandSchemaJSON))
	require.NoError(t, err)

	generated := s.PropertyAt("meta.generatedBy")
	require.NotNil(t, generated)
	assert.Equal(t, TypeString, generated.Type)

	assert.Nil(t, s.PropertyAt(""))
	assert.Nil(t, s.PropertyAt("meta.missing"))
	// Array items are not addressable through dot paths
	assert.Nil(t, s.PropertyAt("commands.name"))
}

func TestSchema_CollectionAccessors(t *testing.T) {
	s, err := NewParser().Parse([]byte(commandSchemaJSON))
	require.NoError(t, err)

	require.True(t, s.HasCollectionTarget())

	target := s.TargetProperty()
	require.NotNil(t, target)
	assert.Equal(t, TypeArray, target.Type)

	item := s.ItemProperty()
	require.NotNil(t, item)
	assert.Equal(t, TypeObject, item.Type)

	flat := &Schema{Type: TypeObject}
	assert.False(t, flat.HasCollectionTarget())
	assert.Nil(t, flat.TargetProperty())
	assert.Nil(t, flat.ItemProperty())
}
