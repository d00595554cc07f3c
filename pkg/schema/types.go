package schema

import "github.com/tettuan/frontmatter-to-schema-sub004/pkg/pathutil"

// Schema represents a complete declarative schema definition, including the
// aggregation directives that drive how per-document fragments combine into
// the final output structure.
type Schema struct {
	Type        SchemaType           `json:"type" yaml:"type"`
	Properties  map[string]*Property `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items       *Property            `json:"items,omitempty" yaml:"items,omitempty"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`

	// CollectionTarget is a dot path into Properties naming an array the
	// aggregate output is built at, one element per input document.
	CollectionTarget string `json:"x-collection-target,omitempty" yaml:"x-collection-target,omitempty"`

	// Derivations are applied after aggregation, collecting values across the
	// target array into separate fields.
	Derivations []DerivationRule `json:"x-derive,omitempty" yaml:"x-derive,omitempty"`

	// BaseProperties are dot-path -> default pairs filled only when the path
	// is absent after aggregation and derivation.
	BaseProperties map[string]interface{} `json:"x-base-properties,omitempty" yaml:"x-base-properties,omitempty"`
}

// Property represents a field property in a schema
type Property struct {
	Type        SchemaType           `json:"type" yaml:"type"`
	Required    bool                 `json:"required,omitempty" yaml:"required,omitempty"`
	Default     interface{}          `json:"default,omitempty" yaml:"default,omitempty"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Validation  *ValidationRules     `json:"validation,omitempty" yaml:"validation,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty" yaml:"properties,omitempty"` // For OBJECT type
	Items       *Property            `json:"items,omitempty" yaml:"items,omitempty"`           // For ARRAY type
}

// DerivationRule copies values collected from an array at SourcePath into
// TargetField, deduplicated when Unique is set.
type DerivationRule struct {
	SourcePath  string `json:"sourcePath" yaml:"sourcePath"`
	TargetField string `json:"targetField" yaml:"targetField"`
	Unique      bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// SchemaType represents the data type of a field
type SchemaType string

// Supported schema types
const (
	TypeString   SchemaType = "STRING"
	TypeNumber   SchemaType = "NUMBER"
	TypeBoolean  SchemaType = "BOOLEAN"
	TypeObject   SchemaType = "OBJECT"
	TypeArray    SchemaType = "ARRAY"
	TypeDate     SchemaType = "DATE"
	TypeDateTime SchemaType = "DATETIME"
	TypeByte     SchemaType = "BYTE"
	TypeAny      SchemaType = "ANY"
)

// ValidationRules contains validation rules for a field
type ValidationRules struct {
	// String validations
	MinLength *int     `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Format    string   `json:"format,omitempty" yaml:"format,omitempty"`
	Enum      []string `json:"enum,omitempty" yaml:"enum,omitempty"`

	// Number validations
	Minimum *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`

	// Array validations
	MinItems    *int `json:"minItems,omitempty" yaml:"minItems,omitempty"`
	MaxItems    *int `json:"maxItems,omitempty" yaml:"maxItems,omitempty"`
	UniqueItems bool `json:"uniqueItems,omitempty" yaml:"uniqueItems,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// IsValidType checks if a schema type is valid
func IsValidType(t SchemaType) bool {
	validTypes := map[SchemaType]bool{
		TypeString: true, TypeNumber: true, TypeBoolean: true,
		TypeObject: true, TypeArray: true, TypeDate: true,
		TypeDateTime: true, TypeByte: true, TypeAny: true,
	}
	return validTypes[t]
}

// HasCollectionTarget reports whether the schema declares a collection target.
func (s *Schema) HasCollectionTarget() bool {
	return s.CollectionTarget != ""
}

// TargetProperty resolves the property the collection target points at, or nil
// when no target is declared or the path does not resolve.
func (s *Schema) TargetProperty() *Property {
	if s.CollectionTarget == "" {
		return nil
	}
	return s.PropertyAt(s.CollectionTarget)
}

// ItemProperty returns the element definition of the collection target array,
// or nil when the target is absent or not an array with items.
func (s *Schema) ItemProperty() *Property {
	target := s.TargetProperty()
	if target == nil || target.Type != TypeArray {
		return nil
	}
	return target.Items
}

// PropertyAt resolves a dot path through the schema's property tree.
func (s *Schema) PropertyAt(path string) *Property {
	segments := pathutil.Split(path)
	if len(segments) == 0 {
		return nil
	}

	props := s.Properties
	var current *Property
	for i, seg := range segments {
		if props == nil {
			return nil
		}
		current = props[seg]
		if current == nil {
			return nil
		}
		if i < len(segments)-1 {
			props = current.Properties
		}
	}
	return current
}
