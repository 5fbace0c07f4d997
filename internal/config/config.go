// Package config loads the daemon configuration from a YAML file with
// environment-variable overrides. Environment values always win so a
// deployment can tune a single setting without editing the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Channel ChannelConfig `yaml:"channel"`
	Redis   RedisConfig   `yaml:"redis"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig configures the REST client.
type APIConfig struct {
	BaseURL   string  `yaml:"base_url"`
	RateLimit float64 `yaml:"rate_limit"`
}

// ChannelConfig configures the push channel.
type ChannelConfig struct {
	URL         string        `yaml:"url"`
	Commodities []string      `yaml:"commodities"`
	States      []string      `yaml:"states"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	MaxRetries  int           `yaml:"max_retries"`
}

// RedisConfig configures the durable kv store. When Addr is empty the
// daemon falls back to the in-memory store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CacheConfig configures the offline response cache.
type CacheConfig struct {
	Version string `yaml:"version"`
}

// ServerConfig configures the local HTTP surface.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// JobsConfig holds the cron expressions of the periodic jobs.
type JobsConfig struct {
	PriceRefresh string `yaml:"price_refresh"`
	QueueFlush   string `yaml:"queue_flush"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "http://localhost:5000",
			RateLimit: 10,
		},
		Channel: ChannelConfig{
			URL:         "ws://localhost:5000/ws/prices",
			BackoffBase: time.Second,
			BackoffMax:  30 * time.Second,
			MaxRetries:  5,
		},
		Redis: RedisConfig{
			KeyPrefix: "mandistream:",
		},
		Cache: CacheConfig{
			Version: "v3",
		},
		Server: ServerConfig{
			ListenAddr: ":8090",
		},
		Jobs: JobsConfig{
			PriceRefresh: "@every 5m",
			QueueFlush:   "@every 1m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads config/mandistream.yaml relative to the working directory,
// then applies environment overrides. A missing file is not an error;
// defaults are used.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join("config", "mandistream.yaml"))
}

// LoadFromPath reads the configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides configuration values from the environment.
func (c *Config) applyEnv() {
	setString(&c.API.BaseURL, "MANDISTREAM_API_BASE_URL")
	setFloat(&c.API.RateLimit, "MANDISTREAM_API_RATE_LIMIT")
	setString(&c.Channel.URL, "MANDISTREAM_CHANNEL_URL")
	setDuration(&c.Channel.BackoffBase, "MANDISTREAM_BACKOFF_BASE")
	setDuration(&c.Channel.BackoffMax, "MANDISTREAM_BACKOFF_MAX")
	setInt(&c.Channel.MaxRetries, "MANDISTREAM_MAX_RETRIES")
	setString(&c.Redis.Addr, "MANDISTREAM_REDIS_ADDR")
	setString(&c.Redis.Password, "MANDISTREAM_REDIS_PASSWORD")
	setInt(&c.Redis.DB, "MANDISTREAM_REDIS_DB")
	setString(&c.Redis.KeyPrefix, "MANDISTREAM_REDIS_KEY_PREFIX")
	setString(&c.Cache.Version, "MANDISTREAM_CACHE_VERSION")
	setString(&c.Server.ListenAddr, "MANDISTREAM_LISTEN_ADDR")
	setString(&c.Jobs.PriceRefresh, "MANDISTREAM_JOB_PRICE_REFRESH")
	setString(&c.Jobs.QueueFlush, "MANDISTREAM_JOB_QUEUE_FLUSH")
	setString(&c.Log.Level, "MANDISTREAM_LOG_LEVEL")
}

// Validate checks the settings a misconfigured deployment most often gets
// wrong.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Channel.URL == "" {
		return fmt.Errorf("channel.url is required")
	}
	if c.API.RateLimit <= 0 {
		return fmt.Errorf("api.rate_limit must be positive")
	}
	if c.Channel.MaxRetries < 0 {
		return fmt.Errorf("channel.max_retries must not be negative")
	}
	if c.Cache.Version == "" {
		return fmt.Errorf("cache.version is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
