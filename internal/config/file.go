package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for the optional YAML file. Secrets can be kept
// out of the file with ${VAR} references, expanded from the environment.
type fileConfig struct {
	Server struct {
		Port     int    `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`

	Backend struct {
		Kind        string   `yaml:"kind"`
		Endpoint    string   `yaml:"endpoint"`
		APIKey      string   `yaml:"api_key"`
		APIVersion  string   `yaml:"api_version"`
		AgentID     string   `yaml:"agent_id"`
		HTTPTimeout duration `yaml:"http_timeout"`
	} `yaml:"backend"`

	Polling struct {
		Interval   duration `yaml:"interval"`
		MaxPolls   int      `yaml:"max_polls"`
		RunTimeout duration `yaml:"run_timeout"`
	} `yaml:"polling"`

	Resilience struct {
		MaxRetries     *int     `yaml:"max_retries"` // 0 disables retries
		InitialBackoff duration `yaml:"initial_backoff"`
		MaxConcurrency int      `yaml:"max_concurrency"`
	} `yaml:"resilience"`

	Cache struct {
		ThreadTTL duration `yaml:"thread_ttl"`
	} `yaml:"cache"`

	HTTP struct {
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		RateLimitRequests  *int     `yaml:"rate_limit_requests"` // 0 disables limiting
		RateLimitWindow    duration `yaml:"rate_limit_window"`
		JWTSecret          string   `yaml:"jwt_secret"`
	} `yaml:"http"`

	Tracing struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`
}

// duration accepts Go duration strings ("1s", "2m") in YAML.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}
