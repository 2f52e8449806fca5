// Package config provides configuration management for the engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// EngineConfig holds backtest engine defaults. Callers may override
// cash, commission and threshold per request.
type EngineConfig struct {
	Cash                float64 `mapstructure:"cash"`
	Commission          float64 `mapstructure:"commission"`
	MLThreshold         float64 `mapstructure:"ml_threshold"`
	MinBars             int     `mapstructure:"min_bars"`
	Concurrency         int     `mapstructure:"concurrency"`
	MaxHorizonDays      int     `mapstructure:"max_horizon_days"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// StorageConfig holds data storage paths.
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	ModelsDir string `mapstructure:"models_dir"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/stockml"
	}
	return filepath.Join(home, ".config", "stockml")
}

// Defaults returns the built-in configuration: 100k cash, 8bps
// commission, 0.51 probability threshold.
func Defaults() *Config {
	configDir := DefaultConfigDir()
	return &Config{
		Engine: EngineConfig{
			Cash:                100000,
			Commission:          0.0008,
			MLThreshold:         0.51,
			MinBars:             2,
			Concurrency:         runtime.NumCPU(),
			MaxHorizonDays:      5,
			ConfidenceThreshold: 0.6,
		},
		Storage: StorageConfig{
			DBPath:    filepath.Join(configDir, "stockml.db"),
			ModelsDir: filepath.Join(configDir, "models"),
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			File:       true,
			FilePath:   filepath.Join(configDir, "logs", "stockml.log"),
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
	}
}

// Load loads configuration from the specified directory. If configDir
// is empty, the default config directory is used. A missing config
// file is not an error: defaults apply and a template is written.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if werr := writeTemplateConfig(configDir); werr != nil {
				return nil, fmt.Errorf("writing config template: %w", werr)
			}
		} else {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
	} else {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("parsing config.toml: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOCKML_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("STOCKML_MODELS_DIR"); v != "" {
		cfg.Storage.ModelsDir = v
	}
	if v := os.Getenv("STOCKML_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("STOCKML_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STOCKML_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Concurrency = n
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.Cash <= 0 {
		return fmt.Errorf("engine.cash must be positive, got %v", c.Engine.Cash)
	}
	if c.Engine.Commission < 0 || c.Engine.Commission >= 1 {
		return fmt.Errorf("engine.commission must be in [0, 1), got %v", c.Engine.Commission)
	}
	if c.Engine.MLThreshold < 0.5 || c.Engine.MLThreshold > 1.0 {
		return fmt.Errorf("engine.ml_threshold must be in [0.5, 1.0], got %v", c.Engine.MLThreshold)
	}
	if c.Engine.MinBars < 1 {
		return fmt.Errorf("engine.min_bars must be at least 1, got %d", c.Engine.MinBars)
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be at least 1, got %d", c.Engine.Concurrency)
	}
	if c.Engine.MaxHorizonDays < 1 || c.Engine.MaxHorizonDays > 5 {
		return fmt.Errorf("engine.max_horizon_days must be in [1, 5], got %d", c.Engine.MaxHorizonDays)
	}
	if c.Engine.ConfidenceThreshold < 0 || c.Engine.ConfidenceThreshold > 1 {
		return fmt.Errorf("engine.confidence_threshold must be in [0, 1], got %v", c.Engine.ConfidenceThreshold)
	}
	return nil
}
