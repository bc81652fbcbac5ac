package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Cycle    CycleConfig    `yaml:"cycle"`
	Feeds    []FeedConfig   `yaml:"feeds"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type CycleConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type FeedConfig struct {
	Label string `yaml:"label"`
	URL   string `yaml:"url"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Feeds) == 0 {
		cfg.Feeds = feedsFromEnv(os.Getenv("PROJECTS"))
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// feedsFromEnv parses the legacy PROJECTS form: comma-separated
// "label:url" pairs, e.g. "grafana:https://github.com/grafana/grafana/releases.atom".
func feedsFromEnv(projects string) []FeedConfig {
	var feeds []FeedConfig
	for _, pair := range strings.Split(projects, ",") {
		label, url, ok := strings.Cut(pair, ":")
		label = strings.TrimSpace(label)
		url = strings.TrimSpace(url)
		if !ok || label == "" || url == "" {
			continue
		}
		feeds = append(feeds, FeedConfig{Label: label, URL: url})
	}
	return feeds
}

func (c *Config) setDefaults() {
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Webhook.Retry.MaxAttempts == 0 {
		c.Webhook.Retry.MaxAttempts = 3
	}
	if c.Webhook.Retry.InitialBackoff == 0 {
		c.Webhook.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Webhook.Retry.MaxBackoff == 0 {
		c.Webhook.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Cycle.Timeout == 0 {
		c.Cycle.Timeout = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Webhook.URL == "" {
		return fmt.Errorf("webhook url is not configured")
	}
	if len(c.Feeds) == 0 {
		return fmt.Errorf("no feeds configured")
	}
	for _, f := range c.Feeds {
		if f.Label == "" || f.URL == "" {
			return fmt.Errorf("feed entry needs both label and url: %+v", f)
		}
	}
	return nil
}
