package catalog

// WrapDetailValue returns the stored form of a detail value. Maps are stored as they are,
// every other value is wrapped as {"__literal__": value}.
func WrapDetailValue(v any) map[string]any {
	if m, ok := v.(map[string]any); ok && m != nil {
		return m
	}
	return map[string]any{LiteralKey: v}
}

// UnwrapDetailValue reverses WrapDetailValue
func UnwrapDetailValue(raw map[string]any) any {
	if len(raw) == 1 {
		if v, ok := raw[LiteralKey]; ok {
			return v
		}
	}
	return raw
}

// NewDetail builds a detail from its stored representation
func NewDetail(id int64, key, stem, title, description string, raw map[string]any) Detail {
	if raw == nil {
		raw = map[string]any{}
	}
	return Detail{
		ID:          id,
		Key:         key,
		Stem:        stem,
		Title:       title,
		Description: description,
		RawValue:    raw,
		Value:       UnwrapDetailValue(raw),
	}
}
