package schema

// EmptyShape builds the empty-but-schema-shaped structure for a schema:
// object properties become nested empty objects, array properties become
// empty arrays, scalar properties are omitted so defaults can fill them
// later. Aggregation over zero documents returns this, never nil.
func EmptyShape(s *Schema) map[string]interface{} {
	if s == nil || s.Type != TypeObject {
		return map[string]interface{}{}
	}
	return emptyObjectShape(s.Properties)
}

func emptyObjectShape(props map[string]*Property) map[string]interface{} {
	shape := make(map[string]interface{})
	for name, prop := range props {
		switch prop.Type {
		case TypeObject:
			if prop.Properties != nil {
				shape[name] = emptyObjectShape(prop.Properties)
			}
		case TypeArray:
			shape[name] = []interface{}{}
		}
	}
	return shape
}

// ApplyDefaults fills schema-declared property defaults into data for fields
// that are missing, recursing through objects and array items. Existing
// values are never overridden.
func ApplyDefaults(data map[string]interface{}, props map[string]*Property) map[string]interface{} {
	if data == nil {
		data = make(map[string]interface{})
	}
	for name, prop := range props {
		value, exists := data[name]

		switch {
		case !exists && prop.Default != nil:
			data[name] = prop.Default
		case exists && prop.Type == TypeObject && prop.Properties != nil:
			if obj, ok := value.(map[string]interface{}); ok {
				data[name] = ApplyDefaults(obj, prop.Properties)
			}
		case exists && prop.Type == TypeArray && prop.Items != nil && prop.Items.Type == TypeObject:
			if arr, ok := value.([]interface{}); ok {
				for i, item := range arr {
					if obj, ok := item.(map[string]interface{}); ok {
						arr[i] = ApplyDefaults(obj, prop.Items.Properties)
					}
				}
			}
		case !exists && prop.Type == TypeObject && prop.Properties != nil:
			nested := ApplyDefaults(make(map[string]interface{}), prop.Properties)
			if len(nested) > 0 {
				data[name] = nested
			}
		}
	}
	return data
}
