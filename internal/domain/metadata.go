package domain

import (
	"bytes"
	"encoding/json"
)

// NormalizeMetadata returns a deep copy of m shaped the way a JSON column
// decodes it: objects as map[string]any, arrays as []any, integral numbers as
// int64 and every other number as float64. Stores apply it on both write and
// read so audit metadata has one representation regardless of driver.
func NormalizeMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool:
		return x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case map[string]any:
		return NormalizeMetadata(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeValue(item)
		}
		return out
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return v
	}
	return normalizeValue(decoded)
}

// normalizeFloat folds whole floats into int64, matching what a JSON decode of
// the same value produces.
func normalizeFloat(f float64) any {
	if f == float64(int64(f)) && f >= -(1<<53) && f <= 1<<53 {
		return int64(f)
	}
	return f
}
