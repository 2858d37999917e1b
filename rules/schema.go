package rules

import (
	"context"
	"sort"
	"strings"

	"github.com/liamcoop/formrules/fieldpath"
)

// ApplySchemaRules evaluates every rule against formData and merges the
// resulting schema modifications into a deep copy of baseSchema. Each field
// path is walked through nested `properties` nodes by its dot-separated parts;
// missing nodes are created as empty object schemas. The modification is
// shallow-merged into the node it lands on.
func (en *Engine) ApplySchemaRules(ctx context.Context, baseSchema map[string]any, formData map[string]any) map[string]any {
	result := en.EvaluateRules(ctx, formData, "")
	return MergeSchemaModifications(baseSchema, result.SchemaModifications)
}

// MergeSchemaModifications applies mods to a deep copy of baseSchema.
// Fields are merged in sorted order so nested paths land deterministically.
func MergeSchemaModifications(baseSchema map[string]any, mods map[string]map[string]any) map[string]any {
	schema := fieldpath.CloneMap(baseSchema)

	fields := make([]string, 0, len(mods))
	for f := range mods {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		node := schema
		for _, part := range strings.Split(field, ".") {
			props, ok := node["properties"].(map[string]any)
			if !ok {
				props = map[string]any{}
				node["properties"] = props
			}
			child, ok := props[part].(map[string]any)
			if !ok {
				child = map[string]any{"type": "object", "properties": map[string]any{}}
				props[part] = child
			}
			node = child
		}
		for k, v := range mods[field] {
			node[k] = fieldpath.Clone(v)
		}
	}
	return schema
}
