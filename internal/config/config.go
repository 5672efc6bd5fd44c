package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	EnvRedisURL = "REDIS_URL"
	EnvListen   = "LISTEN"

	defaultListen       = ":8080"
	defaultRedisURL     = "redis://localhost:6379/0"
	defaultWorkers      = 4
	defaultTimeoutSec   = 30
	defaultMaxRedirects = 5
	defaultMaxBodyBytes = 10 << 20
	defaultRasterWidth  = 800
	defaultRasterHeight = 600
)

// FetchConfig is the policy for one fetch attempt. The same caps apply to
// the direct strategy and to every relay.
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRedirects   int    `yaml:"max_redirects"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
	UserAgent      string `yaml:"user_agent"`

	// Relay base URLs tried in order after the direct strategy. Each must
	// accept the percent-encoded original url appended to it.
	Relays []string `yaml:"relays"`
}

// QuotaConfig is the tier limit schedule and the per-tier request caps.
// A daily limit of -1 means unbounded.
type QuotaConfig struct {
	DailyLimits map[string]int64 `yaml:"daily_limits"`
	RequestCaps map[string]int   `yaml:"request_caps"`
}

type RasterConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Config struct {
	Listen   string       `yaml:"listen"`
	RedisURL string       `yaml:"redis_url"`
	LogLevel string       `yaml:"log_level"`
	Workers  int          `yaml:"workers"`
	SpoolDir string       `yaml:"spool_dir"`
	Fetch    FetchConfig  `yaml:"fetch"`
	Quota    QuotaConfig  `yaml:"quota"`
	Raster   RasterConfig `yaml:"raster"`
}

func (c *Config) SetDefaults() {
	c.Listen = defaultListen
	c.RedisURL = defaultRedisURL
	c.LogLevel = LogLevelInfo
	c.Workers = defaultWorkers
	c.Fetch.TimeoutSeconds = defaultTimeoutSec
	c.Fetch.MaxRedirects = defaultMaxRedirects
	c.Fetch.MaxBodyBytes = defaultMaxBodyBytes
	c.Fetch.UserAgent = "imgfetch/1.0"
	c.Raster.Width = defaultRasterWidth
	c.Raster.Height = defaultRasterHeight
	c.Quota.DailyLimits = map[string]int64{
		"anonymous":  5,
		"registered": 10,
		"subscribed": -1,
	}
	c.Quota.RequestCaps = map[string]int{
		"anonymous":  5,
		"registered": 10,
		"subscribed": 10,
	}
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}

	if c.Fetch.TimeoutSeconds < 1 {
		return fmt.Errorf("fetch timeout must be positive")
	}

	if c.Fetch.MaxBodyBytes < 1 {
		return fmt.Errorf("fetch body cap must be positive")
	}

	if c.Raster.Width < 1 || c.Raster.Height < 1 {
		return fmt.Errorf("raster canvas must be positive")
	}

	for _, tier := range []string{"anonymous", "registered", "subscribed"} {
		if _, exists := c.Quota.DailyLimits[tier]; !exists {
			return fmt.Errorf("no daily limit for tier %s", tier)
		}

		if reqCap, exists := c.Quota.RequestCaps[tier]; !exists || reqCap < 1 {
			return fmt.Errorf("no request cap for tier %s", tier)
		}
	}

	return nil
}

// Load reads the yaml config, applying defaults first and env overrides
// last. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	cfg.SetDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}

	if url := os.Getenv(EnvRedisURL); url != "" {
		cfg.RedisURL = url
	}

	if listen := os.Getenv(EnvListen); listen != "" {
		cfg.Listen = listen
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}
