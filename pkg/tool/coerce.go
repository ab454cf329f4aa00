package tool

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CoerceArgs walks a tool call's decoded arguments and repairs the most
// common shapes an LLM gets wrong when it's supposed to emit typed JSON
// but instead stringifies a value: a JSON array or object serialized as
// a string, or a number/bool/null serialized as a string. Fields that
// already have the right shape pass through unchanged.
//
// This does not replace schema validation — a field the LLM got
// structurally wrong in a way no cascade below recognizes still fails
// Registry.Validate and produces the malformed-call path (§4.4).
func CoerceArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = coerceValue(v)
	}
	return out
}

func coerceValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return coerceString(s)
}

// coerceString applies the parsing cascade: JSON list/object first (the
// shape a schema is most likely to require and a string most often
// mangles), then scalar coercion, falling back to the original string.
func coerceString(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}

	if looksLikeJSONContainer(trimmed) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}

	return coerceScalar(s)
}

func looksLikeJSONContainer(s string) bool {
	return strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")
}

// coerceScalar converts a bare string to bool/nil/number when it
// unambiguously looks like one, otherwise returns the string unchanged.
func coerceScalar(s string) any {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)

	switch lower {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return float64(i) // jsonschema's numeric type expects float64
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return s
		}
		return f
	}

	return s
}
