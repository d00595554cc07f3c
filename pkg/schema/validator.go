package schema

import (
	"encoding/base64"
	"fmt"
	"regexp"
)

// Validator validates metadata against schemas
type Validator struct {
	formatValidators map[string]FormatValidator
}

// NewValidator creates a new schema validator
func NewValidator() *Validator {
	v := &Validator{
		formatValidators: make(map[string]FormatValidator),
	}

	// Register default format validators
	v.RegisterFormat("email", validateEmail)
	v.RegisterFormat("uri", validateURI)
	v.RegisterFormat("uuid", validateUUID)
	v.RegisterFormat("date", validateDate)
	v.RegisterFormat("datetime", validateDateTime)

	return v
}

// RegisterFormat registers a custom format validator
func (v *Validator) RegisterFormat(format string, validator FormatValidator) {
	v.formatValidators[format] = validator
}

// Validate validates data against a schema
func (v *Validator) Validate(data interface{}, schema *Schema) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Errors: []ValidationError{},
	}

	prop := &Property{
		Type:       schema.Type,
		Properties: schema.Properties,
		Items:      schema.Items,
	}

	errs := v.validateValue(data, prop, "root")
	if len(errs) > 0 {
		result.Valid = false
		result.Errors = errs
	}

	return result
}

// ValidateProperty validates a value against a single property definition.
// RuleSet validation uses this per field rule.
func (v *Validator) ValidateProperty(value interface{}, prop *Property, path string) []ValidationError {
	return v.validateValue(value, prop, path)
}

// validateValue validates a value against a property definition
func (v *Validator) validateValue(value interface{}, prop *Property, path string) []ValidationError {
	var errs []ValidationError

	if prop.Required && value == nil {
		errs = append(errs, ValidationError{
			Path:    path,
			Message: "field is required",
			Code:    "REQUIRED",
		})
		return errs
	}

	// Absent and not required is valid
	if value == nil {
		return errs
	}

	switch prop.Type {
	case TypeString:
		if str, ok := value.(string); ok {
			errs = append(errs, v.validateString(str, prop.Validation, path)...)
		} else {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expected string, got %T", value),
				Code:    "TYPE_MISMATCH",
			})
		}

	case TypeNumber:
		num, ok := toFloat(value)
		if !ok {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expected number, got %T", value),
				Code:    "TYPE_MISMATCH",
			})
			return errs
		}
		errs = append(errs, v.validateNumber(num, prop.Validation, path)...)

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expected boolean, got %T", value),
				Code:    "TYPE_MISMATCH",
			})
		}

	case TypeArray:
		if arr, ok := value.([]interface{}); ok {
			errs = append(errs, v.validateArray(arr, prop, path)...)
		} else {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expected array, got %T", value),
				Code:    "TYPE_MISMATCH",
			})
		}

	case TypeObject:
		if obj, ok := value.(map[string]interface{}); ok {
			errs = append(errs, v.validateObject(obj, prop, path)...)
		} else {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expected object, got %T", value),
				Code:    "TYPE_MISMATCH",
			})
		}

	case TypeDate, TypeDateTime:
		// Dates and datetimes arrive as strings from frontmatter
		str, ok := value.(string)
		if !ok {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expected string for date/datetime, got %T", value),
				Code:    "TYPE_MISMATCH",
			})
			return errs
		}
		format := "date"
		if prop.Type == TypeDateTime {
			format = "datetime"
		}
		if check, exists := v.formatValidators[format]; exists && !check(str) {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value does not match format '%s'", format),
				Code:    "FORMAT_MISMATCH",
			})
		}
		errs = append(errs, v.validateString(str, prop.Validation, path)...)

	case TypeByte:
		switch val := value.(type) {
		case string:
			errs = append(errs, v.validateByte(val, prop.Validation, path)...)
		case []byte:
			errs = append(errs, v.validateByte(string(val), prop.Validation, path)...)
		default:
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("expected string or bytes, got %T", value),
				Code:    "TYPE_MISMATCH",
			})
		}

	case TypeAny:
		// No validation
	}

	return errs
}

func toFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// validateString validates string-specific rules
func (v *Validator) validateString(value string, rules *ValidationRules, path string) []ValidationError {
	var errs []ValidationError

	if rules == nil {
		return errs
	}

	if rules.MinLength != nil && len(value) < *rules.MinLength {
		errs = append(errs, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d is less than minimum %d", len(value), *rules.MinLength),
			Code:    "MIN_LENGTH",
		})
	}

	if rules.MaxLength != nil && len(value) > *rules.MaxLength {
		errs = append(errs, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d exceeds maximum %d", len(value), *rules.MaxLength),
			Code:    "MAX_LENGTH",
		})
	}

	if rules.Pattern != "" {
		matched, err := regexp.MatchString(rules.Pattern, value)
		if err != nil {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("invalid regex pattern: %v", err),
				Code:    "INVALID_PATTERN",
			})
		} else if !matched {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value does not match pattern '%s'", rules.Pattern),
				Code:    "PATTERN_MISMATCH",
			})
		}
	}

	if rules.Format != "" {
		if check, exists := v.formatValidators[rules.Format]; exists {
			if !check(value) {
				errs = append(errs, ValidationError{
					Path:    path,
					Message: fmt.Sprintf("value does not match format '%s'", rules.Format),
					Code:    "FORMAT_MISMATCH",
				})
			}
		} else {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("unknown format validator: %s", rules.Format),
				Code:    "UNKNOWN_FORMAT",
			})
		}
	}

	if len(rules.Enum) > 0 {
		found := false
		for _, allowed := range rules.Enum {
			if value == allowed {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value '%s' not in allowed values %v", value, rules.Enum),
				Code:    "ENUM_MISMATCH",
			})
		}
	}

	return errs
}

// validateNumber validates number-specific rules
func (v *Validator) validateNumber(value float64, rules *ValidationRules, path string) []ValidationError {
	var errs []ValidationError

	if rules == nil {
		return errs
	}

	if rules.Minimum != nil && value < *rules.Minimum {
		errs = append(errs, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %f is less than minimum %f", value, *rules.Minimum),
			Code:    "MIN_VALUE",
		})
	}

	if rules.Maximum != nil && value > *rules.Maximum {
		errs = append(errs, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %f exceeds maximum %f", value, *rules.Maximum),
			Code:    "MAX_VALUE",
		})
	}

	return errs
}

// validateByte validates byte-specific rules (expects base64-encoded string)
func (v *Validator) validateByte(value string, rules *ValidationRules, path string) []ValidationError {
	var errs []ValidationError

	if rules == nil {
		return errs
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(value)
		if err != nil {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("invalid base64 encoding: %v", err),
				Code:    "INVALID_BASE64",
			})
			return errs
		}
	}

	byteLength := len(decoded)

	if rules.MinLength != nil && byteLength < *rules.MinLength {
		errs = append(errs, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("byte length %d is less than minimum %d", byteLength, *rules.MinLength),
			Code:    "MIN_LENGTH",
		})
	}

	if rules.MaxLength != nil && byteLength > *rules.MaxLength {
		errs = append(errs, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("byte length %d exceeds maximum %d", byteLength, *rules.MaxLength),
			Code:    "MAX_LENGTH",
		})
	}

	return errs
}

// validateArray validates array-specific rules
func (v *Validator) validateArray(arr []interface{}, prop *Property, path string) []ValidationError {
	var errs []ValidationError

	if prop.Validation != nil {
		if prop.Validation.MinItems != nil && len(arr) < *prop.Validation.MinItems {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("array length %d is less than minimum %d", len(arr), *prop.Validation.MinItems),
				Code:    "MIN_ITEMS",
			})
		}

		if prop.Validation.MaxItems != nil && len(arr) > *prop.Validation.MaxItems {
			errs = append(errs, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("array length %d exceeds maximum %d", len(arr), *prop.Validation.MaxItems),
				Code:    "MAX_ITEMS",
			})
		}

		if prop.Validation.UniqueItems {
			seen := make(map[string]bool)
			for i, item := range arr {
				key := fmt.Sprintf("%v", item)
				if seen[key] {
					errs = append(errs, ValidationError{
						Path:    fmt.Sprintf("%s[%d]", path, i),
						Message: "duplicate item found",
						Code:    "DUPLICATE_ITEM",
					})
					break
				}
				seen[key] = true
			}
		}
	}

	if prop.Items != nil {
		for i, item := range arr {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			errs = append(errs, v.validateValue(item, prop.Items, itemPath)...)
		}
	}

	return errs
}

// validateObject validates object properties
func (v *Validator) validateObject(obj map[string]interface{}, prop *Property, path string) []ValidationError {
	var errs []ValidationError

	if prop.Properties == nil {
		return errs
	}

	for propName, propDef := range prop.Properties {
		value, exists := obj[propName]
		propPath := fmt.Sprintf("%s.%s", path, propName)

		if !exists && propDef.Required {
			errs = append(errs, ValidationError{
				Path:    propPath,
				Message: "required field missing",
				Code:    "REQUIRED",
			})
			continue
		}

		if exists {
			errs = append(errs, v.validateValue(value, propDef, propPath)...)
		}
	}

	return errs
}
