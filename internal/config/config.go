package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"tillsync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Storage    StorageConfig    `yaml:"storage"`
	Backend    BackendConfig    `yaml:"backend"`
	Queue      QueueConfig      `yaml:"queue"`
	Netmon     NetmonConfig     `yaml:"netmon"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Backup     BackupConfig     `yaml:"backup"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	DeviceID    string `yaml:"device_id"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

// StorageConfig selects the durable queue backend: a SQLite file (default)
// or a device-local Redis instance.
type StorageConfig struct {
	Backend string      `yaml:"backend"` // sqlite or redis
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BackendConfig points at the venue backend that accepts orders.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type QueueConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	SyncInterval  time.Duration `yaml:"sync_interval"`
}

type NetmonConfig struct {
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	// DebounceCount is how many consecutive agreeing probes it takes to
	// report a reachability flip; brief blips never surface.
	DebounceCount int `yaml:"debounce_count"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; it only seeds variables for the YAML expansion below.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.App.DeviceID == "" {
		return errors.New("app device_id is required")
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return errors.New("storage path is required for sqlite backend")
		}
	case "redis":
		if c.Storage.Redis.Address == "" {
			return errors.New("redis address is required for redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return errors.New("telegram notifications require bot_token and chat_id")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 15 * time.Second
	}

	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = models.MaxSyncAttempts
	}
	if c.Queue.InitialDelay == 0 {
		c.Queue.InitialDelay = models.InitialRetryDelay
	}
	if c.Queue.MaxDelay == 0 {
		c.Queue.MaxDelay = models.MaxRetryDelay
	}
	if c.Queue.BackoffFactor == 0 {
		c.Queue.BackoffFactor = 2
	}
	if c.Queue.SyncInterval == 0 {
		c.Queue.SyncInterval = models.SyncInterval
	}

	if c.Netmon.ProbeInterval == 0 {
		c.Netmon.ProbeInterval = 5 * time.Second
	}
	if c.Netmon.ProbeTimeout == 0 {
		c.Netmon.ProbeTimeout = 3 * time.Second
	}
	if c.Netmon.DebounceCount == 0 {
		c.Netmon.DebounceCount = 2
	}

	if c.API.Enabled {
		if c.API.Port == 0 {
			c.API.Port = 8080
		}
		if !c.API.Auth.Enabled {
			c.API.Auth.Enabled = true
		}
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
