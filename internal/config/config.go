package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the engine configuration
type Config struct {
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Schedules   ScheduleConfig    `yaml:"schedules" json:"schedules"`
	Retention   RetentionConfig   `yaml:"retention" json:"retention"`
	Encryption  EncryptionConfig  `yaml:"encryption" json:"encryption"`
	Compression CompressionConfig `yaml:"compression" json:"compression"`
	Sinks       []SinkConfig      `yaml:"sinks" json:"sinks"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// StorageConfig contains on-disk layout settings
type StorageConfig struct {
	BackupRoot   string `yaml:"backup_root" json:"backup_root"`
	DatabasePath string `yaml:"database_path" json:"database_path"`
}

// ScheduleConfig contains cron expressions per backup kind
type ScheduleConfig struct {
	Full        string `yaml:"full" json:"full"`
	Incremental string `yaml:"incremental" json:"incremental"`
	LedgerSync  string `yaml:"ledger_sync" json:"ledger_sync"`
}

// RetentionConfig contains retention windows per artifact class
type RetentionConfig struct {
	DailyDays     int `yaml:"daily_days" json:"daily_days"`
	WeeklyWeeks   int `yaml:"weekly_weeks" json:"weekly_weeks"`
	MonthlyMonths int `yaml:"monthly_months" json:"monthly_months"`
}

// EncryptionConfig contains artifact encryption settings
type EncryptionConfig struct {
	Enabled             bool   `yaml:"enabled" json:"enabled"`
	Algorithm           string `yaml:"algorithm" json:"algorithm"`
	KeyRotationInterval string `yaml:"key_rotation_interval" json:"key_rotation_interval"` // advisory only
}

// CompressionConfig controls the gzip stage of the artifact codec.
// Level is clamped to 1-9; zero selects the default.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Level   int  `yaml:"level" json:"level"`
}

// SinkConfig contains configuration for one delivery destination
type SinkConfig struct {
	ID       string `yaml:"id" json:"id"`
	Type     string `yaml:"type" json:"type"` // "local", "object-storage", "blob-storage", "ftp"
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Priority int    `yaml:"priority" json:"priority"`

	// local
	Path string `yaml:"path" json:"path"`

	// object-storage / blob-storage
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"` // Optional, for S3-compatible storage

	// ftp (SFTP transport)
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	KeyPath  string `yaml:"key_path" json:"key_path"`

	// Host key verification for the SFTP transport. An empty
	// known_hosts_path disables verification.
	KnownHostsPath  string `yaml:"known_hosts_path" json:"known_hosts_path"`
	TrustOnFirstUse bool   `yaml:"trust_on_first_use" json:"trust_on_first_use"`

	DeliveryTimeout string `yaml:"delivery_timeout" json:"delivery_timeout"`
}

// ServerConfig contains HTTP control API settings
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			BackupRoot:   "./data/backups",
			DatabasePath: "./data/safety-platform.db",
		},
		Schedules: ScheduleConfig{
			Full:        "0 2 * * *",
			Incremental: "0 * * * *",
			LedgerSync:  "*/30 * * * *",
		},
		Retention: RetentionConfig{
			DailyDays:     7,
			WeeklyWeeks:   4,
			MonthlyMonths: 12,
		},
		Encryption: EncryptionConfig{
			Enabled:             true,
			Algorithm:           "aes-256-gcm",
			KeyRotationInterval: "720h",
		},
		Compression: CompressionConfig{
			Enabled: true,
			Level:   6,
		},
		Sinks: []SinkConfig{},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	if backupRoot := os.Getenv("BACKUP_ROOT"); backupRoot != "" {
		cfg.Storage.BackupRoot = backupRoot
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.Storage.DatabasePath = dbPath
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	cfg.normalizeStoragePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.BackupRoot) == "" {
		return fmt.Errorf("storage.backup_root is required")
	}

	if c.Encryption.Enabled {
		if c.Encryption.Algorithm != "aes-256-gcm" {
			return fmt.Errorf("unsupported encryption algorithm: %s", c.Encryption.Algorithm)
		}
		if c.Encryption.KeyRotationInterval != "" {
			if _, err := time.ParseDuration(c.Encryption.KeyRotationInterval); err != nil {
				return fmt.Errorf("invalid key_rotation_interval: %w", err)
			}
		}
	}

	if c.Compression.Enabled && (c.Compression.Level < 0 || c.Compression.Level > 9) {
		return fmt.Errorf("compression level must be between 1 and 9")
	}

	if c.Retention.DailyDays < 0 || c.Retention.WeeklyWeeks < 0 || c.Retention.MonthlyMonths < 0 {
		return fmt.Errorf("retention windows must not be negative")
	}

	seen := make(map[string]bool)
	for _, sink := range c.Sinks {
		if strings.TrimSpace(sink.ID) == "" {
			return fmt.Errorf("sink id is required")
		}
		if seen[sink.ID] {
			return fmt.Errorf("duplicate sink id: %s", sink.ID)
		}
		seen[sink.ID] = true

		switch sink.Type {
		case "local", "object-storage", "blob-storage", "ftp":
		default:
			return fmt.Errorf("sink %s: unsupported type %q", sink.ID, sink.Type)
		}

		if sink.DeliveryTimeout != "" {
			if _, err := time.ParseDuration(sink.DeliveryTimeout); err != nil {
				return fmt.Errorf("sink %s: invalid delivery_timeout: %w", sink.ID, err)
			}
		}
	}

	return nil
}

// Timeout returns the configured delivery timeout for a sink, or the default.
func (s *SinkConfig) Timeout() time.Duration {
	if s.DeliveryTimeout != "" {
		if d, err := time.ParseDuration(s.DeliveryTimeout); err == nil && d > 0 {
			return d
		}
	}
	return 2 * time.Minute
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

func (c *Config) normalizeStoragePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	if strings.TrimSpace(c.Storage.BackupRoot) == "" {
		c.Storage.BackupRoot = filepath.Join(rootDir, "data", "backups")
	}
	c.Storage.BackupRoot = resolvePath(c.Storage.BackupRoot)

	if strings.TrimSpace(c.Storage.DatabasePath) != "" {
		c.Storage.DatabasePath = resolvePath(c.Storage.DatabasePath)
	}
}
