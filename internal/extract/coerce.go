package extract

import (
	"math"
	"strconv"
	"strings"
)

// MaxRecords caps the number of records Records returns by default.
const MaxRecords = 20

// Strings returns the trimmed, non-empty string elements of v when v is a
// JSON array. Anything else yields an empty slice.
func Strings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Records returns the object elements of v when v is a JSON array, keeping
// at most limit of them. limit <= 0 means MaxRecords.
func Records(v any, limit int) []map[string]any {
	if limit <= 0 {
		limit = MaxRecords
	}
	items, ok := v.([]any)
	if !ok {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, min(len(items), limit))
	for _, item := range items {
		if len(out) == limit {
			break
		}
		if rec, ok := item.(map[string]any); ok && rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// Number returns v as a finite float64. Numeric strings are accepted; any
// other value returns def.
func Number(v any, def float64) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// String returns v when it is a string, otherwise "".
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Clamp bounds f to [lo, hi].
func Clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}
