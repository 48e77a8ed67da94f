package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL          = "http://127.0.0.1:8000"
	DefaultAPIKeyEnv        = "DESENS_API_KEY"
	DefaultTimeout          = 60 * time.Second
	DefaultMaxResponseBytes = 4 << 20
	DefaultMaxUploadBytes   = 20 << 20
)

// Config holds desens configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Regression RegressionConfig `yaml:"regression"`
	Server     ServerConfig     `yaml:"server"`
	Publish    PublishConfig    `yaml:"publish"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServiceConfig points at the remote sanitization service.
type ServiceConfig struct {
	BaseURL              string        `yaml:"base_url"`
	APIKeyEnv            string        `yaml:"api_key_env"`
	APIKey               string        `yaml:"api_key"` // filled from APIKeyEnv when empty
	Timeout              time.Duration `yaml:"timeout"`
	MaxResponseBytes     int64         `yaml:"max_response_bytes"`
	BlockPrivateNetworks bool          `yaml:"block_private_networks"`
}

type RegressionConfig struct {
	Concurrency int    `yaml:"concurrency"` // 1 = strictly sequential
	ReportPath  string `yaml:"report_path"` // optional JSON report output
}

// ServerConfig configures the local workbench API.
type ServerConfig struct {
	Addr           string      `yaml:"addr"`
	MaxUploadBytes int64       `yaml:"max_upload_bytes"`
	Clients        []APIClient `yaml:"clients"` // empty disables auth
}

type APIClient struct {
	Name    string   `yaml:"name"`
	APIKeys []string `yaml:"api_keys"`
}

type PublishConfig struct {
	QueueSize       int           `yaml:"queue_size"`
	Workers         int           `yaml:"workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Sinks           []SinkConfig  `yaml:"sinks"`
}

type SinkConfig struct {
	Type           string            `yaml:"type"` // file_jsonl | webhook
	Path           string            `yaml:"path"`
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	Timeout        time.Duration     `yaml:"timeout"`
	MaxRetries     int               `yaml:"max_retries"` // 0 = default, negative disables retries
	BackoffInitial time.Duration     `yaml:"backoff_initial"`
	BackoffMax     time.Duration     `yaml:"backoff_max"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Protocol    string `yaml:"protocol"` // grpc | http
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	Debug bool   `yaml:"debug"`
}

// Load reads configuration from a YAML file, then applies .env and
// environment overrides. A missing file yields the default config.
func Load(path string) (*Config, error) {
	// Best-effort: .env in the working directory never overrides real env
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DESENS_BASE_URL")); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DESENS_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Regression.Concurrency = n
		}
	}
	if cfg.Service.APIKey == "" {
		env := cfg.Service.APIKeyEnv
		if env == "" {
			env = DefaultAPIKeyEnv
		}
		cfg.Service.APIKey = strings.TrimSpace(os.Getenv(env))
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Service.BaseURL == "" {
		cfg.Service.BaseURL = DefaultBaseURL
	}
	cfg.Service.BaseURL = strings.TrimRight(cfg.Service.BaseURL, "/")
	if cfg.Service.APIKeyEnv == "" {
		cfg.Service.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.Service.Timeout <= 0 {
		cfg.Service.Timeout = DefaultTimeout
	}
	if cfg.Service.MaxResponseBytes <= 0 {
		cfg.Service.MaxResponseBytes = DefaultMaxResponseBytes
	}

	if cfg.Regression.Concurrency == 0 {
		cfg.Regression.Concurrency = 1
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8090"
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if cfg.Publish.QueueSize <= 0 {
		cfg.Publish.QueueSize = 1000
	}
	if cfg.Publish.Workers <= 0 {
		cfg.Publish.Workers = 2
	}
	if cfg.Publish.ShutdownTimeout <= 0 {
		cfg.Publish.ShutdownTimeout = 2 * time.Second
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "desens"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
