package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyShape(t *testing.T) {
	s := mustParse(t, `{
		"type": "OBJECT",
		"properties": {
			"commands": {
				"type": "ARRAY",
				"items": {"type": "OBJECT", "properties": {"name": {"type": "STRING"}}}
			},
			"meta": {
				"type": "OBJECT",
				"properties": {
					"tags": {"type": "ARRAY", "items": {"type": "STRING"}},
					"title": {"type": "STRING"}
				}
			},
			"title": {"type": "STRING"},
			"count": {"type": "NUMBER"}
		}
	}`)

	shape := EmptyShape(s)

	assert.Equal(t, map[string]interface{}{
		"commands": []interface{}{},
		"meta": map[string]interface{}{
			"tags": []interface{}{},
		},
	}, shape)
}

func TestEmptyShape_NilAndNonObject(t *testing.T) {
	assert.Equal(t, map[string]interface{}{}, EmptyShape(nil))
	assert.Equal(t, map[string]interface{}{}, EmptyShape(&Schema{Type: TypeArray}))
}

func TestApplyDefaults_FillsMissing(t *testing.T) {
	s := mustParse(t, `{
		"type": "OBJECT",
		"properties": {
			"draft": {"type": "BOOLEAN", "default": true},
			"title": {"type": "STRING", "default": "untitled"},
			"weight": {"type": "NUMBER"}
		}
	}`)

	data := ApplyDefaults(map[string]interface{}{"title": "release notes"}, s.Properties)

	assert.Equal(t, true, data["draft"])
	assert.Equal(t, "release notes", data["title"])
	_, exists := data["weight"]
	assert.False(t, exists)
}

func TestApplyDefaults_RecursesIntoObjects(t *testing.T) {
	s := mustParse(t, `{
		"type": "OBJECT",
		"properties": {
			"meta": {
				"type": "OBJECT",
				"properties": {
					"owner": {"type": "STRING", "default": "unassigned"},
					"reviewed": {"type": "BOOLEAN", "default": false}
				}
			}
		}
	}`)

	data := ApplyDefaults(map[string]interface{}{
		"meta": map[string]interface{}{"owner": "platform"},
	}, s.Properties)

	meta, ok := data["meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "platform", meta["owner"])
	assert.Equal(t, false, meta["reviewed"])
}

func TestApplyDefaults_CreatesNestedObjects(t *testing.T) {
	s := mustParse(t, `{
		"type": "OBJECT",
		"properties": {
			"meta": {
				"type": "OBJECT",
				"properties": {
					"owner": {"type": "STRING", "default": "unassigned"}
				}
			}
		}
	}`)

	data := ApplyDefaults(map[string]interface{}{}, s.Properties)

	meta, ok := data["meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "unassigned", meta["owner"])
}

func TestApplyDefaults_ArrayItems(t *testing.T) {
	s := mustParse(t, `{
		"type": "OBJECT",
		"properties": {
			"commands": {
				"type": "ARRAY",
				"items": {
					"type": "OBJECT",
					"properties": {
						"name": {"type": "STRING"},
						"enabled": {"type": "BOOLEAN", "default": true}
					}
				}
			}
		}
	}`)

	data := ApplyDefaults(map[string]interface{}{
		"commands": []interface{}{
			map[string]interface{}{"name": "deploy"},
			map[string]interface{}{"name": "status", "enabled": false},
		},
	}, s.Properties)

	commands, ok := data["commands"].([]interface{})
	require.True(t, ok)
	first := commands[0].(map[string]interface{})
	second := commands[1].(map[string]interface{})
	assert.Equal(t, true, first["enabled"])
	assert.Equal(t, false, second["enabled"])
}

func TestApplyDefaults_NilData(t *testing.T) {
	s := mustParse(t, `{
		"type": "OBJECT",
		"properties": {"title": {"type": "STRING", "default": "untitled"}}
	}`)

	data := ApplyDefaults(nil, s.Properties)

	require.NotNil(t, data)
	assert.Equal(t, "untitled", data["title"])
}
