package telemetry

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Keys that may carry case text, entity values or credentials.
var denyKeys = []string{
	"text",
	"value",
	"content",
	"sanitized",
	"filename",
	"authorization",
	"api_key",
	"token",
}

// SafeAttributes filters out unsafe keys and oversized values and returns
// OTEL attributes.
func SafeAttributes(values map[string]any) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	var attrs []attribute.KeyValue
	for k, v := range values {
		if denied(k) {
			continue
		}
		switch val := v.(type) {
		case string:
			if val == "" || len(val) > 256 {
				continue
			}
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case []string:
			if len(val) == 0 {
				continue
			}
			attrs = append(attrs, attribute.StringSlice(k, truncateStrings(val, 32)))
		}
	}
	return attrs
}

func denied(key string) bool {
	lk := strings.ToLower(key)
	for _, bad := range denyKeys {
		if strings.Contains(lk, bad) {
			return true
		}
	}
	return false
}

func truncateStrings(in []string, limit int) []string {
	if len(in) <= limit {
		return in
	}
	return in[:limit]
}
