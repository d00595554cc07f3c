package aggregate

import (
	"fmt"
	"sort"

	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/pathutil"
)

// PopulateBaseProperties fills declared defaults for fields absent after
// aggregation. Present fields are never overridden, so running it again on
// its own output changes nothing. A rule with a nil default is a
// configuration error and aborts immediately.
func PopulateBaseProperties(data map[string]interface{}, rules map[string]interface{}) (map[string]interface{}, error) {
	out := deepCopyMap(data)
	if out == nil {
		out = make(map[string]interface{})
	}
	if len(rules) == 0 {
		return out, nil
	}

	fields := make([]string, 0, len(rules))
	for field := range rules {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		defaultValue := rules[field]
		if defaultValue == nil {
			return nil, pkgerrors.NewConfigurationError(
				fmt.Sprintf("base property %q declares no default", field), nil)
		}

		if _, present := pathutil.Get(out, field); present {
			continue
		}
		if err := pathutil.Set(out, field, deepCopyValue(defaultValue)); err != nil {
			return nil, pkgerrors.NewConfigurationError(
				fmt.Sprintf("cannot set base property %q", field), err)
		}
	}

	return out, nil
}
