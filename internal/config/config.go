package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clawdeck/clawdeck/internal/consts"
)

type (
	Config struct {
		Server    ServerConfig    `yaml:"server"`
		Logging   LoggingConfig   `yaml:"logging"`
		Store     StoreConfig     `yaml:"store"`
		Scheduler SchedulerConfig `yaml:"scheduler"`
		Monitor   MonitorConfig   `yaml:"monitor"`
		Dispatch  DispatchConfig  `yaml:"dispatch"`
		Notify    NotifyConfig    `yaml:"notify"`
	}

	ServerConfig struct {
		Bind           string `yaml:"bind"`
		MetricsBind    string `yaml:"metrics_bind"` // empty disables the metrics endpoint
		AuthToken      string `yaml:"auth_token"`
		RequestTimeout int    `yaml:"request_timeout"` // seconds
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	StoreConfig struct {
		Driver string `yaml:"driver"` // sqlite, postgres
		Path   string `yaml:"path"`   // sqlite file path
		DSN    string `yaml:"dsn"`    // postgres connection string
	}

	SchedulerConfig struct {
		Enabled       *bool `yaml:"enabled"`
		TickSec       int   `yaml:"tick_sec"`
		MaxConcurrent int   `yaml:"max_concurrent"`
		JobTimeoutSec int   `yaml:"job_timeout_sec"`
	}

	MonitorConfig struct {
		Enabled           *bool `yaml:"enabled"`
		TickSec           int   `yaml:"tick_sec"`
		DefaultTimeoutSec int   `yaml:"default_timeout_sec"`
		StalledBelow      int   `yaml:"stalled_below"` // health %
		WarnBelow         int   `yaml:"warn_below"`    // health %
		GraceSec          int   `yaml:"grace_sec"`
	}

	DispatchConfig struct {
		Auto     bool `yaml:"auto"`
		MaxSlots int  `yaml:"max_slots"`
	}

	NotifyConfig struct {
		Telegram TelegramNotifyConfig `yaml:"telegram"`
	}

	TelegramNotifyConfig struct {
		Enabled bool   `yaml:"enabled"`
		Token   string `yaml:"token"`
		ChatID  string `yaml:"chat_id"`
	}
)

// Load reads and validates the config file at path. An empty path falls back
// to the default location under ~/.clawdeck.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = consts.DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a config with every knob at its documented default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:           "127.0.0.1:18790",
			MetricsBind:    "127.0.0.1:18791",
			RequestTimeout: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   consts.DefaultDataPath(),
		},
		Scheduler: SchedulerConfig{
			TickSec:       15,
			MaxConcurrent: 4,
			JobTimeoutSec: 300,
		},
		Monitor: MonitorConfig{
			TickSec:           30,
			DefaultTimeoutSec: 600,
			StalledBelow:      30,
			WarnBelow:         60,
			GraceSec:          120,
		},
		Dispatch: DispatchConfig{
			Auto:     false,
			MaxSlots: 6,
		},
	}
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
	}

	if c.Scheduler.TickSec <= 0 {
		return fmt.Errorf("scheduler.tick_sec must be positive")
	}
	if c.Monitor.TickSec <= 0 {
		return fmt.Errorf("monitor.tick_sec must be positive")
	}
	if c.Monitor.StalledBelow < 0 || c.Monitor.StalledBelow > c.Monitor.WarnBelow {
		return fmt.Errorf("monitor thresholds must satisfy 0 <= stalled_below <= warn_below")
	}
	if c.Notify.Telegram.Enabled && strings.TrimSpace(c.Notify.Telegram.Token) == "" {
		return fmt.Errorf("notify.telegram.token is required when telegram notify is enabled")
	}
	return nil
}

// SchedulerEnabled reports whether the cron scheduler should run. Absent in
// the file means enabled.
func (c *Config) SchedulerEnabled() bool {
	return c.Scheduler.Enabled == nil || *c.Scheduler.Enabled
}

// MonitorEnabled reports whether the heartbeat monitor should run. Absent in
// the file means enabled.
func (c *Config) MonitorEnabled() bool {
	return c.Monitor.Enabled == nil || *c.Monitor.Enabled
}

// RequestTimeout returns the server request timeout as a duration.
func (c *ServerConfig) Timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}
