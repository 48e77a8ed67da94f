package regression

import (
	"errors"
	"strings"
	"testing"
)

func TestParseDataset(t *testing.T) {
	doc := `[
		{"id": 1, "text": "John Smith, SSN 123-45-6789", "expected_entities": ["PERSON", "SSN"]},
		{"id": "case-b", "text": "hello", "expected_entities": ["EMAIL", " EMAIL ", "ＥＭＡＩＬ"]},
		{"text": "no id and no expectations"}
	]`

	cases, err := LoadDataset(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	if len(cases) != 3 {
		t.Fatalf("expected 3 cases, got %d", len(cases))
	}
	if cases[0].ID != "1" || cases[0].Text != "John Smith, SSN 123-45-6789" {
		t.Fatalf("unexpected first case %+v", cases[0])
	}
	if len(cases[0].Expected) != 2 || cases[0].Expected[0] != "PERSON" || cases[0].Expected[1] != "SSN" {
		t.Fatalf("unexpected expectations %v", cases[0].Expected)
	}
	if cases[1].ID != "case-b" {
		t.Fatalf("unexpected id %q", cases[1].ID)
	}
	if len(cases[1].Expected) != 1 || cases[1].Expected[0] != "EMAIL" {
		t.Fatalf("expected normalized, deduplicated EMAIL, got %v", cases[1].Expected)
	}
	if cases[2].ID != "3" {
		t.Fatalf("missing id should default to position, got %q", cases[2].ID)
	}
	if cases[2].Expected == nil || len(cases[2].Expected) != 0 {
		t.Fatalf("missing expectations should be empty, got %#v", cases[2].Expected)
	}
}

func TestParseDatasetEmptyArray(t *testing.T) {
	cases, err := ParseDataset([]byte(" [] "))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cases) != 0 {
		t.Fatalf("expected no cases, got %d", len(cases))
	}
}

func TestParseDatasetMalformed(t *testing.T) {
	cases := []struct {
		name  string
		doc   string
		index int
	}{
		{name: "empty", doc: ``, index: -1},
		{name: "object", doc: `{"id": 1}`, index: -1},
		{name: "truncated", doc: `[{"id": 1, "text": "a"}`, index: -1},
		{name: "case not object", doc: `[{"id": 1, "text": "a"}, "b"]`, index: 1},
		{name: "missing text", doc: `[{"id": 1}]`, index: 0},
		{name: "expectations not strings", doc: `[{"id": 1, "text": "a", "expected_entities": [1, 2]}]`, index: 0},
		{name: "id object", doc: `[{"id": {"x": 1}, "text": "a"}]`, index: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDataset([]byte(tc.doc))
			var derr *DatasetError
			if !errors.As(err, &derr) {
				t.Fatalf("expected *DatasetError, got %v", err)
			}
			if derr.Index != tc.index {
				t.Fatalf("expected index %d, got %d (%v)", tc.index, derr.Index, err)
			}
		})
	}
}
