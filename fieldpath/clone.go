package fieldpath

// Clone deep-copies a tree of map[string]any and []any. Other values,
// including typed Go containers, are shared with the source.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Clone(child)
		}
		return out
	}
	return v
}

// CloneMap is Clone for the common object-root case. A nil map yields an
// empty one.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return Clone(m).(map[string]any)
}
