package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the complete LINAL configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP service configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
}

// StorageConfig locates persisted data.
type StorageConfig struct {
	DataRoot        string `yaml:"data_root"`
	DefaultDatabase string `yaml:"default_database"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a file (or the default locations),
// applies environment overrides, and validates the result.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	} else {
		defaultFiles := []string{
			"linal.yaml",
			"linal.yml",
			"/etc/linal/config.yaml",
		}
		for _, file := range defaultFiles {
			if _, err := os.Stat(file); err == nil {
				if err := loadFromFile(cfg, file); err != nil {
					return nil, fmt.Errorf("failed to load config from file %s: %w", file, err)
				}
				break
			}
		}
	}

	loadFromEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(cfg *Config) {
	cfg.Server = ServerConfig{
		Host:            "0.0.0.0",
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		CommandTimeout:  30 * time.Second,
	}
	cfg.Storage = StorageConfig{
		DataRoot:        "./data",
		DefaultDatabase: "default",
	}
	cfg.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv applies LINAL_* environment overrides.
func loadFromEnv(cfg *Config) {
	if host := os.Getenv("LINAL_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("LINAL_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.HTTPPort = p
		}
	}
	if root := os.Getenv("LINAL_DATA_ROOT"); root != "" {
		cfg.Storage.DataRoot = root
	}
	if db := os.Getenv("LINAL_DEFAULT_DATABASE"); db != "" {
		cfg.Storage.DefaultDatabase = db
	}
	if level := os.Getenv("LINAL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// validate validates the configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}
	if cfg.Storage.DataRoot == "" {
		return fmt.Errorf("storage data root cannot be empty")
	}
	if cfg.Storage.DefaultDatabase == "" {
		return fmt.Errorf("default database cannot be empty")
	}
	if cfg.Server.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}
	return nil
}

// NewLogger builds the zap logger the configuration describes.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
