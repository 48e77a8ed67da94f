package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if err := validateServiceConfig(cfg.Service); err != nil {
		return err
	}

	if cfg.Regression.Concurrency < 1 {
		return fmt.Errorf("regression.concurrency must be >= 1, got %d", cfg.Regression.Concurrency)
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	seen := map[string]string{}
	for i, c := range cfg.Server.Clients {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("server client %d name must be set", i)
		}
		if len(c.APIKeys) == 0 {
			return fmt.Errorf("server client %q must define at least one api_keys entry", c.Name)
		}
		for _, k := range c.APIKeys {
			if owner, dup := seen[k]; dup {
				return fmt.Errorf("server client %q reuses an api key of %q", c.Name, owner)
			}
			seen[k] = c.Name
		}
	}

	if err := validatePublishConfig(cfg.Publish); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}

	return nil
}

func validateServiceConfig(s ServiceConfig) error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return errors.New("service.base_url must be set")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("service.base_url is invalid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("service.base_url must be http or https")
	}
	if err := blockPrivateHost(u.Host, !s.BlockPrivateNetworks); err != nil {
		return fmt.Errorf("service.base_url blocked: %w", err)
	}
	if s.Timeout < 0 {
		return errors.New("service.timeout must not be negative")
	}
	return nil
}

func validatePublishConfig(p PublishConfig) error {
	for i, s := range p.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("publish sink %d (file_jsonl) missing path", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("publish sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("publish sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("publish sink %d (webhook) url must be http or https", i)
			}
		default:
			return fmt.Errorf("publish sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if strings.EqualFold(strings.TrimSpace(host), "localhost") {
		return errors.New("private network host localhost blocked for SSRF safety")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private network IP %s blocked for SSRF safety", ip.String())
	}
	return nil
}

var privateBlocks = []*net.IPNet{
	{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("169.254.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("::1"), Mask: net.CIDRMask(128, 128)},
	{IP: net.ParseIP("fc00::"), Mask: net.CIDRMask(7, 128)},
	{IP: net.ParseIP("fe80::"), Mask: net.CIDRMask(10, 128)},
}

func isPrivateIP(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
