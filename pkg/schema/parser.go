package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Parser handles parsing of schema definitions from JSON or YAML documents.
type Parser struct{}

// NewParser creates a new schema parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses a schema, detecting JSON by a leading brace and falling back
// to YAML otherwise.
func (p *Parser) Parse(schemaBytes []byte) (*Schema, error) {
	if len(bytes.TrimSpace(schemaBytes)) == 0 {
		return nil, fmt.Errorf("schema bytes cannot be empty")
	}

	if bytes.HasPrefix(bytes.TrimSpace(schemaBytes), []byte("{")) {
		return p.ParseJSON(schemaBytes)
	}
	return p.ParseYAML(schemaBytes)
}

// ParseJSON parses a schema from JSON bytes
func (p *Parser) ParseJSON(schemaBytes []byte) (*Schema, error) {
	var schema Schema
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return nil, ParseError(err)
	}
	if err := p.validateSchema(&schema); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &schema, nil
}

// ParseYAML parses a schema from YAML bytes
func (p *Parser) ParseYAML(schemaBytes []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(schemaBytes, &schema); err != nil {
		return nil, ParseError(err)
	}
	if err := p.validateSchema(&schema); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &schema, nil
}

// ParseFile loads and parses a schema file, choosing the decoder by extension
// (.json, .yaml, .yml).
func (p *Parser) ParseFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return p.ParseJSON(data)
	case ".yaml", ".yml":
		return p.ParseYAML(data)
	default:
		return p.Parse(data)
	}
}

// validateSchema ensures the schema structure and aggregation directives are valid
func (p *Parser) validateSchema(schema *Schema) error {
	if schema.Type == "" {
		return fmt.Errorf("schema type is required")
	}

	if !IsValidType(schema.Type) {
		return fmt.Errorf("invalid schema type: %s", schema.Type)
	}

	if schema.Type == TypeObject && schema.Properties != nil {
		for propName, prop := range schema.Properties {
			if err := p.validateProperty(prop, propName); err != nil {
				return err
			}
		}
	}

	if schema.Type == TypeArray && schema.Items != nil {
		if err := p.validateProperty(schema.Items, "items"); err != nil {
			return fmt.Errorf("invalid array items: %w", err)
		}
	}

	return p.validateDirectives(schema)
}

// validateDirectives checks the aggregation directives against the property tree
func (p *Parser) validateDirectives(schema *Schema) error {
	if schema.CollectionTarget != "" {
		target := schema.PropertyAt(schema.CollectionTarget)
		if target == nil {
			return fmt.Errorf("collection target %q does not resolve to a schema property", schema.CollectionTarget)
		}
		if target.Type != TypeArray {
			return fmt.Errorf("collection target %q must be an ARRAY property, got %s", schema.CollectionTarget, target.Type)
		}
		if target.Items == nil {
			return fmt.Errorf("collection target %q must declare items", schema.CollectionTarget)
		}
	}

	for i, rule := range schema.Derivations {
		if rule.SourcePath == "" {
			return fmt.Errorf("derivation rule %d has an empty sourcePath", i)
		}
		if rule.TargetField == "" {
			return fmt.Errorf("derivation rule %d has an empty targetField", i)
		}
	}

	for field := range schema.BaseProperties {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("base property with empty field name")
		}
	}

	return nil
}

// validateProperty validates a property definition
func (p *Parser) validateProperty(prop *Property, name string) error {
	if prop.Type == "" {
		return fmt.Errorf("property '%s' must have a type", name)
	}

	if !IsValidType(prop.Type) {
		return fmt.Errorf("property '%s' has invalid type: %s", name, prop.Type)
	}

	if prop.Type == TypeObject && prop.Properties != nil {
		for nestedName, nestedProp := range prop.Properties {
			if err := p.validateProperty(nestedProp, name+"."+nestedName); err != nil {
				return err
			}
		}
	}

	if prop.Type == TypeArray && prop.Items != nil {
		if err := p.validateProperty(prop.Items, name+"[]"); err != nil {
			return err
		}
	}

	if prop.Validation != nil {
		if err := p.validateValidationRules(prop.Validation, prop.Type, name); err != nil {
			return err
		}
	}

	return nil
}

// validateValidationRules ensures validation rules are appropriate for the field type
func (p *Parser) validateValidationRules(rules *ValidationRules, fieldType SchemaType, name string) error {
	if fieldType != TypeString && fieldType != TypeByte {
		if rules.MinLength != nil || rules.MaxLength != nil {
			return fmt.Errorf("property '%s': minLength/maxLength validation rules used on non-string/non-byte type %s", name, fieldType)
		}
	}

	if fieldType != TypeString {
		if rules.Pattern != "" || rules.Format != "" || len(rules.Enum) > 0 {
			return fmt.Errorf("property '%s': string validation rules (pattern/format/enum) used on non-string type %s", name, fieldType)
		}
	}

	if fieldType != TypeNumber {
		if rules.Minimum != nil || rules.Maximum != nil {
			return fmt.Errorf("property '%s': number validation rules used on non-number type %s", name, fieldType)
		}
	}

	if fieldType != TypeArray {
		if rules.MinItems != nil || rules.MaxItems != nil || rules.UniqueItems {
			return fmt.Errorf("property '%s': array validation rules used on non-array type %s", name, fieldType)
		}
	}

	return nil
}
