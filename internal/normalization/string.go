package normalization

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseInputString coerces a decoded JSON scalar into a trimmed string.
// Non-scalars become "".
func ParseInputString(input any) string {
	switch v := input.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// ParseInputStringPtr is ParseInputString with "" mapped to nil.
func ParseInputStringPtr(input any) *string {
	s := ParseInputString(input)
	if s == "" {
		return nil
	}
	return &s
}

// ParseInputNumber accepts numbers and numeric strings. ok is false for
// anything else, including NaN and infinities.
func ParseInputNumber(input any) (float64, bool) {
	var f float64
	switch v := input.(type) {
	case float64:
		f = v
	case json.Number:
		p, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// firstString returns the first non-empty alias value present in m.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := ParseInputString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstStringPtr(m map[string]any, keys ...string) *string {
	if s := firstString(m, keys...); s != "" {
		return &s
	}
	return nil
}

func nonNegative(m map[string]any, key string) float64 {
	f, ok := ParseInputNumber(m[key])
	if !ok || f < 0 {
		return 0
	}
	return f
}
