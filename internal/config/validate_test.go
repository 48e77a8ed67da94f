package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Service.BaseURL = "https://sanitizer.example.com"
	return cfg
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing base url",
			mutate: func(c *Config) { c.Service.BaseURL = "" },
			want:   "service.base_url",
		},
		{
			name:   "invalid base url",
			mutate: func(c *Config) { c.Service.BaseURL = "::://bad" },
			want:   "base_url",
		},
		{
			name:   "non http scheme",
			mutate: func(c *Config) { c.Service.BaseURL = "ftp://example.com" },
			want:   "http or https",
		},
		{
			name: "private network blocked",
			mutate: func(c *Config) {
				c.Service.BaseURL = "http://127.0.0.1:8000"
				c.Service.BlockPrivateNetworks = true
			},
			want: "SSRF",
		},
		{
			name:   "concurrency below one",
			mutate: func(c *Config) { c.Regression.Concurrency = -2 },
			want:   "regression.concurrency",
		},
		{
			name:   "missing server addr",
			mutate: func(c *Config) { c.Server.Addr = " " },
			want:   "server.addr",
		},
		{
			name:   "client without keys",
			mutate: func(c *Config) { c.Server.Clients = []APIClient{{Name: "ci"}} },
			want:   "api_keys",
		},
		{
			name: "shared api key",
			mutate: func(c *Config) {
				c.Server.Clients = []APIClient{{Name: "a", APIKeys: []string{"k"}}, {Name: "b", APIKeys: []string{"k"}}}
			},
			want: "reuses",
		},
		{
			name:   "unknown sink",
			mutate: func(c *Config) { c.Publish.Sinks = []SinkConfig{{Type: "kafka"}} },
			want:   "unknown type",
		},
		{
			name:   "file sink without path",
			mutate: func(c *Config) { c.Publish.Sinks = []SinkConfig{{Type: "file_jsonl"}} },
			want:   "missing path",
		},
		{
			name:   "webhook bad url",
			mutate: func(c *Config) { c.Publish.Sinks = []SinkConfig{{Type: "webhook", URL: "not-a-url"}} },
			want:   "invalid url",
		},
		{
			name:   "telemetry without endpoint",
			mutate: func(c *Config) { c.Telemetry.Enabled = true },
			want:   "endpoint",
		},
		{
			name: "telemetry bad protocol",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = "localhost:4317"
				c.Telemetry.Protocol = "udp"
			},
			want: "telemetry.protocol",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
			want:   "logging.level",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			} else if !contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	loopback := Default()
	if err := Validate(loopback); err != nil {
		t.Fatalf("loopback base url should be allowed by default, got %v", err)
	}

	withSinks := validConfig()
	withSinks.Publish.Sinks = []SinkConfig{
		{Type: "file_jsonl", Path: "/tmp/events.jsonl"},
		{Type: "WEBHOOK", URL: "https://hooks.example.com/desens"},
	}
	withSinks.Server.Clients = []APIClient{{Name: "ci", APIKeys: []string{"k1", "k2"}}}
	if err := Validate(withSinks); err != nil {
		t.Fatalf("expected valid config with sinks, got %v", err)
	}
}

func TestValidateNil(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func contains(s, sub string) bool {
	return s != "" && sub != "" && strings.Contains(s, sub)
}
