package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"examdesk/internal/model"
	"examdesk/internal/printout"
)

// DefaultPath is used when EXAMDESK_CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`

	API struct {
		BaseURL         string  `yaml:"base_url"`
		APIKey          string  `yaml:"api_key"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		RatePerSecond   float64 `yaml:"rate_per_second"`
		Burst           int     `yaml:"burst"`
		CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	} `yaml:"api"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
		Backup  struct {
			Enabled       bool   `yaml:"enabled"`
			IntervalHours int    `yaml:"interval_hours"`
			Path          string `yaml:"path"`
			RetentionDays int    `yaml:"retention_days"`
		} `yaml:"backup"`
	} `yaml:"journal"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Draft struct {
		DefaultDurationMinutes int `yaml:"default_duration_minutes"`
	} `yaml:"draft"`

	Print struct {
		Locale     string `yaml:"locale"`
		Direction  string `yaml:"direction"`
		Title      string `yaml:"title"`
		SchoolName string `yaml:"school_name"`
		AMLabel    string `yaml:"am_label"`
		PMLabel    string `yaml:"pm_label"`
		DateLayout string `yaml:"date_layout"`
	} `yaml:"print"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// PathFromEnv returns the config path from EXAMDESK_CONFIG_PATH or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv("EXAMDESK_CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("config %s: api.base_url is required", path)
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "data/examdesk.db"
	}
	if cfg.Journal.Backup.Path == "" {
		cfg.Journal.Backup.Path = "data/backups"
	}
	if cfg.Journal.Enabled {
		if err = os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	return &cfg, nil
}

func (c *Config) APITimeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Journal.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Journal.Backup.IntervalHours) * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	if c.API.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.API.CacheTTLSeconds) * time.Second
}

func (c *Config) DefaultDuration() int {
	if c.Draft.DefaultDurationMinutes <= 0 {
		return model.DefaultDurationMinutes
	}
	return c.Draft.DefaultDurationMinutes
}

// PrintOptions maps the print section onto printout options. Blank fields
// keep the printout defaults.
func (c *Config) PrintOptions() printout.Options {
	return printout.Options{
		Locale:     c.Print.Locale,
		Direction:  c.Print.Direction,
		Title:      c.Print.Title,
		SchoolName: c.Print.SchoolName,
		AMLabel:    c.Print.AMLabel,
		PMLabel:    c.Print.PMLabel,
		DateLayout: c.Print.DateLayout,
	}
}

// LogLevel parses log.level, defaulting to info.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
