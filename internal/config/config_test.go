package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Retention.DailyDays != 7 {
		t.Fatalf("expected default daily retention 7, got %d", cfg.Retention.DailyDays)
	}
	if !cfg.Encryption.Enabled || cfg.Encryption.Algorithm != "aes-256-gcm" {
		t.Fatalf("expected aes-256-gcm encryption by default")
	}
	if cfg.Compression.Level != 6 {
		t.Fatalf("expected default compression level 6, got %d", cfg.Compression.Level)
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  backup_root: /var/backups/safety
schedules:
  full: "0 3 * * *"
retention:
  daily_days: 14
sinks:
  - id: mirror
    type: local
    enabled: true
    priority: 1
    path: /mnt/mirror
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", configPath)
	t.Setenv("BACKUP_ROOT", "/srv/backups")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Storage.BackupRoot != "/srv/backups" {
		t.Fatalf("expected env override for backup root, got %s", cfg.Storage.BackupRoot)
	}
	if cfg.Schedules.Full != "0 3 * * *" {
		t.Fatalf("expected schedule from file, got %s", cfg.Schedules.Full)
	}
	if cfg.Retention.DailyDays != 14 {
		t.Fatalf("expected daily retention 14, got %d", cfg.Retention.DailyDays)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].ID != "mirror" {
		t.Fatalf("expected one sink named mirror")
	}
}

func TestValidateRejectsBadSink(t *testing.T) {
	cfg := &Config{
		Storage:    StorageConfig{BackupRoot: "/tmp/backups"},
		Encryption: EncryptionConfig{Enabled: true, Algorithm: "aes-256-gcm"},
		Sinks: []SinkConfig{
			{ID: "x", Type: "carrier-pigeon"},
		},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unsupported sink type")
	}
}

func TestValidateRejectsDuplicateSinkIDs(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{BackupRoot: "/tmp/backups"},
		Sinks: []SinkConfig{
			{ID: "a", Type: "local"},
			{ID: "a", Type: "local"},
		},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for duplicate sink ids")
	}
}

func TestValidateRejectsUnknownAlgorithm(t *testing.T) {
	cfg := &Config{
		Storage:    StorageConfig{BackupRoot: "/tmp/backups"},
		Encryption: EncryptionConfig{Enabled: true, Algorithm: "rot13"},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}

func TestSinkTimeoutDefault(t *testing.T) {
	sink := &SinkConfig{}
	if sink.Timeout() != 2*time.Minute {
		t.Fatalf("expected default timeout 2m, got %v", sink.Timeout())
	}

	sink.DeliveryTimeout = "45s"
	if sink.Timeout() != 45*time.Second {
		t.Fatalf("expected configured timeout 45s, got %v", sink.Timeout())
	}
}
