package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *Schema {
	t.Helper()
	s, err := NewParser().Parse([]byte(raw))
	require.NoError(t, err)
	return s
}

func rulePaths(rs *RuleSet) []string {
	paths := make([]string, 0, rs.Len())
	for _, rule := range rs.Rules() {
		paths = append(paths, rule.Path)
	}
	return paths
}

func commandRules(t *testing.T) *RuleSet {
	t.Helper()
	s := mustParse(t, `{
		"type": "OBJECT",
		"x-collection-target": "commands",
		"properties": {
			"commands": {
				"type": "ARRAY",
				"items": {
					"type": "OBJECT",
					"properties": {
						"name": {"type": "STRING", "required": true},
						"weight": {"type": "NUMBER"},
						"tags": {"type": "ARRAY", "items": {"type": "STRING"}},
						"meta": {
							"type": "OBJECT",
							"properties": {
								"owner": {"type": "STRING", "required": true}
							}
						}
					}
				}
			}
		}
	}`)
	rs, err := BuildRuleSet(s)
	require.NoError(t, err)
	return rs
}

func TestBuildRuleSet_NilSchema(t *testing.T) {
	_, err := BuildRuleSet(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be nil")
}

func TestBuildRuleSet_RootScoped(t *testing.T) {
	s := mustParse(t, `{
		"type": "OBJECT",
		"properties": {
			"title": {"type": "STRING", "required": true},
			"meta": {
				"type": "OBJECT",
				"properties": {
					"author": {"type": "STRING"},
					"published": {"type": "DATE"}
				}
			},
			"draft": {"type": "BOOLEAN", "default": true}
		}
	}`)

	rs, err := BuildRuleSet(s)
	require.NoError(t, err)

	assert.False(t, rs.ItemScoped())
	assert.Equal(t, []string{"draft", "meta", "meta.author", "meta.published", "title"}, rulePaths(rs))

	rules := rs.Rules()
	assert.Equal(t, TypeBoolean, rules[0].Type)
	assert.Equal(t, true, rules[0].Default)
	assert.Equal(t, TypeDate, rules[3].Type)
	assert.True(t, rules[4].Required)
}

func TestBuildRuleSet_ItemScoped(t *testing.T) {
	rs := commandRules(t)

	assert.True(t, rs.ItemScoped())
	assert.Equal(t, []string{"meta", "meta.owner", "name", "tags", "weight"}, rulePaths(rs))
}

func TestBuildRuleSet_TargetItemsMustBeObject(t *testing.T) {
	s := mustParse(t, `{
		"type": "OBJECT",
		"x-collection-target": "tags",
		"properties": {
			"tags": {"type": "ARRAY", "items": {"type": "STRING"}}
		}
	}`)

	_, err := BuildRuleSet(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "items must be OBJECT")
}

func TestBuildRuleSet_RootMustBeObject(t *testing.T) {
	s := mustParse(t, `{"type": "ARRAY", "items": {"type": "STRING"}}`)

	_, err := BuildRuleSet(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root must be OBJECT")
}

func TestRuleSet_Rules_ReturnsCopy(t *testing.T) {
	s := mustParse(t, `{"type": "OBJECT", "properties": {"title": {"type": "STRING"}}}`)
	rs, err := BuildRuleSet(s)
	require.NoError(t, err)

	rules := rs.Rules()
	rules[0].Path = "mutated"

	assert.Equal(t, "title", rs.Rules()[0].Path)
}

func TestRuleSet_Validate_ValidMetadata(t *testing.T) {
	rs := commandRules(t)

	result := rs.Validate(map[string]interface{}{
		"name":   "deploy",
		"weight": 3,
		"tags":   []interface{}{"ops", "release"},
		"meta":   map[string]interface{}{"owner": "platform"},
	})

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestRuleSet_Validate_MissingRequired(t *testing.T) {
	rs := commandRules(t)

	result := rs.Validate(map[string]interface{}{
		"meta": map[string]interface{}{"owner": "platform"},
	})

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "name", result.Errors[0].Path)
	assert.Equal(t, "REQUIRED", result.Errors[0].Code)
}

func TestRuleSet_Validate_ExplicitNullCountsAsMissing(t *testing.T) {
	rs := commandRules(t)

	result := rs.Validate(map[string]interface{}{
		"name": nil,
		"meta": map[string]interface{}{"owner": "platform"},
	})

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "name", result.Errors[0].Path)
	assert.Equal(t, "REQUIRED", result.Errors[0].Code)
}

func TestRuleSet_Validate_TypeMismatch(t *testing.T) {
	rs := commandRules(t)

	result := rs.Validate(map[string]interface{}{
		"name":   42,
		"weight": "heavy",
		"meta":   map[string]interface{}{"owner": "platform"},
	})

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 2)

	codes := map[string]string{}
	for _, e := range result.Errors {
		codes[e.Path] = e.Code
	}
	assert.Equal(t, "TYPE_MISMATCH", codes["name"])
	assert.Equal(t, "TYPE_MISMATCH", codes["weight"])
}

func TestRuleSet_Validate_ObjectRulesCheckShapeOnly(t *testing.T) {
	rs := commandRules(t)

	result := rs.Validate(map[string]interface{}{
		"name": "deploy",
		"meta": "not-an-object",
	})

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "meta", result.Errors[0].Path)
	assert.Equal(t, "TYPE_MISMATCH", result.Errors[0].Code)
	assert.Equal(t, "meta.owner", result.Errors[1].Path)
	assert.Equal(t, "REQUIRED", result.Errors[1].Code)
}

func TestRuleSet_Validate_RequiredChildOfAbsentObject(t *testing.T) {
	rs := commandRules(t)

	result := rs.Validate(map[string]interface{}{"name": "deploy"})

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "meta.owner", result.Errors[0].Path)
	assert.Equal(t, "REQUIRED", result.Errors[0].Code)
}

func TestRuleSet_Validate_ArrayItems(t *testing.T) {
	rs := commandRules(t)

	result := rs.Validate(map[string]interface{}{
		"name": "deploy",
		"tags": []interface{}{"ops", 7},
		"meta": map[string]interface{}{"owner": "platform"},
	})

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "tags[1]", result.Errors[0].Path)
	assert.Equal(t, "TYPE_MISMATCH", result.Errors[0].Code)
}
