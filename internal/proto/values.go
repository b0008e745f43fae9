package proto

// Accessors for bodies decoded from structpb, where every number is a float64.

func String(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func Int64(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func Map(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}
