// Package config loads the engine deployment configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the widget engine.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Services ServicesConfig `mapstructure:"services"`
	Widget   WidgetConfig   `mapstructure:"widget"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the bridge HTTP server configuration.
type ServerConfig struct {
	Hostname     string        `mapstructure:"hostname"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// ServicesConfig holds the upstream endpoints the engine consumes.
type ServicesConfig struct {
	ConfigServiceBaseURL string        `mapstructure:"config_service_base_url"`
	ConsentAPIBaseURL    string        `mapstructure:"consent_api_base_url"`
	TranslationBaseURL   string        `mapstructure:"translation_base_url"`
	AnalyticsBaseURL     string        `mapstructure:"analytics_base_url"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// WidgetConfig selects which widget the engine serves and its page
// context defaults.
type WidgetConfig struct {
	ID                  string `mapstructure:"id"`
	PageURL             string `mapstructure:"page_url"`
	LanguageCode        string `mapstructure:"language_code"`
	ConsentDurationDays int    `mapstructure:"consent_duration_days"`
}

// StorageConfig selects the visitor-store backend.
type StorageConfig struct {
	// Backend is one of: file, mysql, memory.
	Backend  string         `mapstructure:"backend"`
	FilePath string         `mapstructure:"file_path"`
	Database DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig holds the MySQL backend configuration.
type DatabaseConfig struct {
	Hostname        string        `mapstructure:"hostname"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RetryConfig tunes the submission retry policy and the config-fetch
// retry delay.
type RetryConfig struct {
	MaxAttempts           int           `mapstructure:"max_attempts"`
	InitialBackoff        time.Duration `mapstructure:"initial_backoff"`
	AttemptTimeout        time.Duration `mapstructure:"attempt_timeout"`
	ConfigFetchRetryDelay time.Duration `mapstructure:"config_fetch_retry_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("deployment")
		v.SetConfigType("yaml")
		v.AddConfigPath("./repository/conf")
		v.AddConfigPath("./cmd/widget/repository/conf")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CONSENT_WIDGET")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	globalConfig = &config
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.hostname", "0.0.0.0")
	v.SetDefault("server.port", 8290)
	v.SetDefault("services.timeout", "30s")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.file_path", "./repository/data/widget_store.json")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "1s")
	v.SetDefault("retry.attempt_timeout", "10s")
	v.SetDefault("retry.config_fetch_retry_delay", "2s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Widget.ID == "" {
		return fmt.Errorf("widget ID is required")
	}
	if config.Services.ConfigServiceBaseURL == "" {
		return fmt.Errorf("config service base URL is required")
	}
	if config.Services.ConsentAPIBaseURL == "" {
		return fmt.Errorf("consent API base URL is required")
	}

	switch config.Storage.Backend {
	case "file":
		if config.Storage.FilePath == "" {
			return fmt.Errorf("storage file path is required for the file backend")
		}
	case "mysql":
		if config.Storage.Database.Hostname == "" {
			return fmt.Errorf("database hostname is required for the mysql backend")
		}
		if config.Storage.Database.Database == "" {
			return fmt.Errorf("database name is required for the mysql backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s", config.Storage.Backend)
	}
	return nil
}

// Get returns the global configuration.
func Get() *Config {
	return globalConfig
}

// SetGlobal sets the global configuration (for testing purposes).
func SetGlobal(cfg *Config) {
	globalConfig = cfg
}

// GetDSN returns the database connection string.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User,
		d.Password,
		d.Hostname,
		d.Port,
		d.Database,
	)
}

// GetServerAddress returns the server address in host:port format.
func (s *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", s.Hostname, s.Port)
}
