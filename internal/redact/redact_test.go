package redact

import (
	"strings"
	"testing"
)

func TestStringRedaction(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		disallow []string
		require  []string
	}{
		{
			name:     "bearer header",
			input:    "Authorization: Bearer sk-secret-123",
			disallow: []string{"sk-secret-123"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "api keys slice",
			input:    "api_keys=[wb-key-1 wb-key-2]",
			disallow: []string{"wb-key-1", "wb-key-2"},
			require:  []string{"api_keys=[REDACTED]"},
		},
		{
			name:     "service url keeps endpoint",
			input:    "POST http://127.0.0.1:8000/sanitize failed",
			require:  []string{"http://127.0.0.1:8000/sanitize failed"},
			disallow: []string{"[REDACTED_URL]"},
		},
		{
			name:     "webhook url drops path and query",
			input:    "webhook=https://hooks.example.test/services/T000/B000/XXXX?sig=abc123",
			disallow: []string{"T000", "sig=abc123"},
			require:  []string{"https://hooks.example.test/[REDACTED_PATH]/XXXX"},
		},
		{
			name:     "credentials in url",
			input:    "base_url=https://user:pw@svc.example.test/",
			disallow: []string{"user:pw"},
			require:  []string{"https://svc.example.test"},
		},
		{
			name:     "mixed token",
			input:    "Bearer abc key=supersecret token=anotherone password=hunter2",
			disallow: []string{"abc", "supersecret", "anotherone", "hunter2"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:    "plain text untouched",
			input:   "run 9f2c finished: 3 / 5 tests passed",
			require: []string{"run 9f2c finished: 3 / 5 tests passed"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := String(tc.input)
			for _, bad := range tc.disallow {
				if bad != "" && contains(out, bad) {
					t.Fatalf("output still contains %q: %s", bad, out)
				}
			}
			for _, want := range tc.require {
				if !contains(out, want) {
					t.Fatalf("output missing required substring %q: %s", want, out)
				}
			}
		})
	}
}

func TestURL(t *testing.T) {
	if got := URL(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := URL("not a url"); got != "[REDACTED_URL]" {
		t.Fatalf("unexpected %q", got)
	}
	if got := URL("http://localhost:8000"); got != "http://localhost:8000" {
		t.Fatalf("unexpected %q", got)
	}
}

func contains(s, sub string) bool {
	return s != "" && sub != "" && strings.Contains(s, sub)
}
