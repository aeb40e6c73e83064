package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"stationbook/internal/booking"
)

type Config struct {
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address        string `yaml:"address"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
		LockWaitMillis int    `yaml:"lock_wait_millis"`
	} `yaml:"redis"`

	API struct {
		Port           int     `yaml:"port"`
		APIKey         string  `yaml:"api_key"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		MaxExtensionHours         float64 `yaml:"max_extension_hours"`
		ExtensionSurchargePerHour *int64  `yaml:"extension_surcharge_per_hour"`
		GamesPerHour              int     `yaml:"games_per_hour"`
		RecheckOverlapOnExtend    bool    `yaml:"recheck_overlap_on_extend"`
		RejectUnavailableStations bool    `yaml:"reject_unavailable_stations"`
	} `yaml:"booking"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		RetentionDays int    `yaml:"retention_days"`
		ExportDir     string `yaml:"export_dir"`
		ExportOnStart bool   `yaml:"export_on_start"`
	} `yaml:"audit"`

	Stations struct {
		Path          string `yaml:"path"`
		ReloadSeconds int    `yaml:"reload_seconds"`
	} `yaml:"stations"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/stationbook.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.RateLimitRPS == 0 {
		c.API.RateLimitRPS = 20
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = 40
	}
	if c.Stations.Path == "" {
		c.Stations.Path = "configs/stations.yaml"
	}
	if c.Audit.ExportDir == "" {
		c.Audit.ExportDir = "data/exports"
	}
}

// BookingPolicy turns the booking section into scheduler rules. Unset
// fields keep the scheduler defaults.
func (c *Config) BookingPolicy() booking.Policy {
	p := booking.DefaultPolicy()
	if c.Booking.MaxExtensionHours > 0 {
		p.MaxExtensionHours = c.Booking.MaxExtensionHours
	}
	if c.Booking.ExtensionSurchargePerHour != nil {
		p.ExtensionSurchargePerHour = *c.Booking.ExtensionSurchargePerHour
	}
	if c.Booking.GamesPerHour > 0 {
		p.GamesPerHour = c.Booking.GamesPerHour
	}
	p.RecheckOverlapOnExtend = c.Booking.RecheckOverlapOnExtend
	p.RejectUnavailableStations = c.Booking.RejectUnavailableStations
	return p
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

func (c *Config) LockWait() time.Duration {
	if c.Redis.LockWaitMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Redis.LockWaitMillis) * time.Millisecond
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) StationsReloadInterval() time.Duration {
	if c.Stations.ReloadSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Stations.ReloadSeconds) * time.Second
}
