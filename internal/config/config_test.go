package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.DataRoot != "./data" {
		t.Errorf("data root = %q", cfg.Storage.DataRoot)
	}
	if cfg.Storage.DefaultDatabase != "default" {
		t.Errorf("default database = %q", cfg.Storage.DefaultDatabase)
	}
	if cfg.Server.CommandTimeout != 30*time.Second {
		t.Errorf("command timeout = %v", cfg.Server.CommandTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "linal.yaml")
	content := "storage:\n  data_root: /tmp/linal-data\n  default_database: main\nlogging:\n  level: debug\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.DataRoot != "/tmp/linal-data" || cfg.Storage.DefaultDatabase != "main" {
		t.Errorf("storage config = %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("defaults should survive partial files, port = %d", cfg.Server.HTTPPort)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LINAL_DATA_ROOT", "/srv/linal")
	t.Setenv("LINAL_HTTP_PORT", "9999")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.DataRoot != "/srv/linal" {
		t.Errorf("env data root lost: %q", cfg.Storage.DataRoot)
	}
	if cfg.Server.HTTPPort != 9999 {
		t.Errorf("env port lost: %d", cfg.Server.HTTPPort)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(file, []byte("server:\n  http_port: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(file); err == nil {
		t.Error("expected validation error")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "info", Format: "json"}); err != nil {
		t.Errorf("NewLogger failed: %v", err)
	}
	if _, err := NewLogger(LoggingConfig{Level: "nope", Format: "json"}); err == nil {
		t.Error("expected level parse error")
	}
}
