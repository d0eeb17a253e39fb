package schema

// Coercion helpers for canonical values. FormState rides the wire as JSON, so
// values stored as int come back as float64 after a round trip; callers must
// go through these instead of type-asserting directly.

func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func AsBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
