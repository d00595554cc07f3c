// Package aggregate merges per-document metadata into the final
// schema-conformant structure, applies derivation rules, and fills declared
// base-property defaults.
package aggregate

import (
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/document"
)

// ExtractParts reshapes documents into candidate output-array elements: each
// document's entire metadata object becomes one element. Documents with no
// metadata are dropped, unless that would drop everything, in which case the
// unfiltered candidates are returned unchanged so a schema misconfiguration
// never silently discards all data.
func ExtractParts(docs []*document.Document) []map[string]interface{} {
	candidates := make([]map[string]interface{}, 0, len(docs))
	valid := make([]map[string]interface{}, 0, len(docs))

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		meta := doc.Metadata()
		candidates = append(candidates, meta)
		if len(meta) > 0 {
			valid = append(valid, meta)
		}
	}

	if len(valid) == 0 {
		return candidates
	}
	return valid
}
