package telemetry

import (
	"strings"
	"testing"
)

func TestSafeAttributesFiltersContent(t *testing.T) {
	kvs := map[string]any{
		"text":             "John Smith, SSN 123-45-6789",
		"sanitized_text":   "[PERSON]",
		"entity.value":     "123-45-6789",
		"filename":         "payroll.pdf",
		"api_key":          "sk-123",
		"authorization":    "secret",
		"long_string":      strings.Repeat("x", 600),
		"desens.decision":  "BLOCK",
		"desens.count":     2,
		"desens.types":     []string{"PERSON", "SSN"},
		"desens.empty":     "",
		"desens.empty_set": []string{},
	}

	attrs := SafeAttributes(kvs)
	got := map[string]bool{}
	for _, a := range attrs {
		got[string(a.Key)] = true
	}
	for _, bad := range []string{"text", "sanitized_text", "entity.value", "filename", "api_key", "authorization", "long_string", "desens.empty", "desens.empty_set"} {
		if got[bad] {
			t.Fatalf("unexpected unsafe attribute %s", bad)
		}
	}
	for _, want := range []string{"desens.decision", "desens.count", "desens.types"} {
		if !got[want] {
			t.Fatalf("expected attribute %s, got %v", want, got)
		}
	}
}

func TestSafeAttributesTruncatesSlices(t *testing.T) {
	many := make([]string, 40)
	for i := range many {
		many[i] = "EMAIL"
	}
	attrs := SafeAttributes(map[string]any{"types": many})
	if len(attrs) != 1 || len(attrs[0].Value.AsStringSlice()) != 32 {
		t.Fatalf("expected slice truncated to 32, got %v", attrs)
	}
}
