package schema

import (
	"fmt"
	"sort"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/pathutil"
)

// FieldRule is one ordered validation rule: the dot path of a field, its
// expected type, whether it must be present, and the schema default if any.
type FieldRule struct {
	Path     string
	Type     SchemaType
	Required bool
	Default  interface{}

	property *Property
}

// RuleSet is the ordered, read-only collection of field rules a run validates
// every document against. When the schema declares a collection target, the
// rules describe one element of that collection rather than the whole output.
type RuleSet struct {
	rules      []FieldRule
	itemScoped bool
	validator  *Validator
}

// BuildRuleSet derives the rule set from a parsed schema. With a collection
// target declared, rules come from the target's item definition; otherwise
// from the schema's root properties. Built once per run.
func BuildRuleSet(s *Schema) (*RuleSet, error) {
	if s == nil {
		return nil, fmt.Errorf("schema cannot be nil")
	}

	var props map[string]*Property
	itemScoped := false

	if s.HasCollectionTarget() {
		item := s.ItemProperty()
		if item == nil {
			return nil, fmt.Errorf("collection target %q does not resolve to an array with items", s.CollectionTarget)
		}
		if item.Type != TypeObject {
			return nil, fmt.Errorf("collection target %q items must be OBJECT to validate document metadata, got %s", s.CollectionTarget, item.Type)
		}
		props = item.Properties
		itemScoped = true
	} else {
		if s.Type != TypeObject {
			return nil, fmt.Errorf("schema root must be OBJECT to validate document metadata, got %s", s.Type)
		}
		props = s.Properties
	}

	rs := &RuleSet{
		itemScoped: itemScoped,
		validator:  NewValidator(),
	}
	rs.appendRules(props, "")
	return rs, nil
}

// appendRules flattens a property tree into ordered rules. Object properties
// contribute a shallow rule plus one rule per child; arrays and scalars
// contribute a single rule validated in full.
func (r *RuleSet) appendRules(props map[string]*Property, prefix string) {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop := props[name]
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		r.rules = append(r.rules, FieldRule{
			Path:     path,
			Type:     prop.Type,
			Required: prop.Required,
			Default:  prop.Default,
			property: prop,
		})

		if prop.Type == TypeObject && prop.Properties != nil {
			r.appendRules(prop.Properties, path)
		}
	}
}

// Rules returns a copy of the ordered field rules.
func (r *RuleSet) Rules() []FieldRule {
	out := make([]FieldRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Len returns the number of field rules.
func (r *RuleSet) Len() int {
	return len(r.rules)
}

// ItemScoped reports whether the rules describe one collection element.
func (r *RuleSet) ItemScoped() bool {
	return r.itemScoped
}

// Validate checks metadata against every rule in order and returns the
// combined result. Object-typed rules check presence and shape only; their
// children carry their own rules.
func (r *RuleSet) Validate(metadata map[string]interface{}) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Errors: []ValidationError{},
	}

	for _, rule := range r.rules {
		value, exists := pathutil.Get(metadata, rule.Path)

		if rule.Type == TypeObject {
			if !exists {
				if rule.Required {
					result.Errors = append(result.Errors, ValidationError{
						Path:    rule.Path,
						Message: "required field missing",
						Code:    "REQUIRED",
					})
				}
				continue
			}
			if _, ok := value.(map[string]interface{}); !ok {
				result.Errors = append(result.Errors, ValidationError{
					Path:    rule.Path,
					Message: fmt.Sprintf("expected object, got %T", value),
					Code:    "TYPE_MISMATCH",
				})
			}
			continue
		}

		if !exists {
			if rule.Required {
				result.Errors = append(result.Errors, ValidationError{
					Path:    rule.Path,
					Message: "required field missing",
					Code:    "REQUIRED",
				})
			}
			continue
		}

		// Delegate full validation of the present value, arrays included, to
		// the validator. An explicit null on a required field still counts as
		// missing there.
		result.Errors = append(result.Errors, r.validator.ValidateProperty(value, rule.property, rule.Path)...)
	}

	if len(result.Errors) > 0 {
		result.Valid = false
	}
	return result
}
