package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMetadata(t *testing.T) {
	t.Parallel()

	got := NormalizeMetadata(map[string]any{
		"count":    3,
		"decoded":  json.Number("7"),
		"ratio":    json.Number("0.5"),
		"whole":    2.0,
		"reason":   "chargeback",
		"flag":     true,
		"nothing":  nil,
		"nested":   map[string]any{"n": int32(4), "list": []any{json.Number("1"), "a"}},
		"ids":      []string{"a", "b"},
		"sizes":    []int{1, 2},
		"embedded": struct{ Seats int }{Seats: 5},
	})

	assert.Equal(t, map[string]any{
		"count":    int64(3),
		"decoded":  int64(7),
		"ratio":    0.5,
		"whole":    int64(2),
		"reason":   "chargeback",
		"flag":     true,
		"nothing":  nil,
		"nested":   map[string]any{"n": int64(4), "list": []any{int64(1), "a"}},
		"ids":      []any{"a", "b"},
		"sizes":    []any{int64(1), int64(2)},
		"embedded": map[string]any{"Seats": int64(5)},
	}, got)
}

func TestNormalizeMetadataCopies(t *testing.T) {
	t.Parallel()

	in := map[string]any{"nested": map[string]any{"k": "v"}}
	out := NormalizeMetadata(in)
	out["nested"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", in["nested"].(map[string]any)["k"])

	assert.Equal(t, map[string]any{}, NormalizeMetadata(nil))
}
