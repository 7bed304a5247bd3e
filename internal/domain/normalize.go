package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// SafeFloat looks up keys in order in a provider-native field map and
// returns the first present, finite numeric value, or nil.
//
// This is the safe-cast helper every normalizer lookup goes through:
// missing keys, nulls, NaN, the string sentinel "None" and anything
// non-numeric all yield nil rather than an error. When a canonical field
// can come from several provider-native names, the fixed key order decides
// which wins; values are never averaged or merged.
func SafeFloat(m map[string]interface{}, keys ...string) *float64 {
	if m == nil {
		return nil
	}
	for _, key := range keys {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		if v, ok := castFloat(raw); ok {
			return &v
		}
	}
	return nil
}

// castFloat converts a provider-native value to a finite float64.
func castFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case float32:
		return castFloat(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return castFloat(f)
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "none") || s == "-" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return castFloat(f)
	default:
		return 0, false
	}
}
