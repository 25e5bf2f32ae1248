package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxBodySize  int    `yaml:"max_body_size"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	IdleTimeout  int    `yaml:"idle_timeout"`
}

// StorageConfig contains storage backend settings
type StorageConfig struct {
	// Backend selects the storage implementation: badger, postgres or memory
	Backend string `yaml:"backend"`

	// DataDir is the base directory for the badger backend
	DataDir string `yaml:"data_dir"`

	// DatabaseURL is the connection string for the postgres backend
	DatabaseURL string `yaml:"database_url"`

	// Read cache settings (badger backend only)
	CacheEnabled           bool `yaml:"cache_enabled"`
	RecordCacheSize        int  `yaml:"record_cache_size"`
	CacheExpirationSeconds int  `yaml:"cache_expiration_seconds"`
}

// BroadcastConfig contains real-time broadcast settings
type BroadcastConfig struct {
	// MaxConnections caps the number of concurrently open channels
	MaxConnections int `yaml:"max_connections"`

	// WriteTimeoutMs bounds a single send to one connection
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
}

// AuthConfig contains session settings
type AuthConfig struct {
	SessionCookie    string `yaml:"session_cookie"`
	SessionTTLHours  int    `yaml:"session_ttl_hours"`
	OTPExpiryMinutes int    `yaml:"otp_expiry_minutes"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Format        string            `yaml:"format"`
	IncludeCaller bool              `yaml:"include_caller"`
	GlobalFields  map[string]string `yaml:"global_fields"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodySize:  1048576, // 1MB
			ReadTimeout:  5,
			WriteTimeout: 10,
			IdleTimeout:  120,
		},
		Storage: StorageConfig{
			Backend:                "badger",
			DataDir:                "./data",
			CacheEnabled:           true,
			RecordCacheSize:        10000,
			CacheExpirationSeconds: 30,
		},
		Broadcast: BroadcastConfig{
			MaxConnections: 10000,
			WriteTimeoutMs: 5000,
		},
		Auth: AuthConfig{
			SessionCookie:    "dailytrack_session",
			SessionTTLHours:  72,
			OTPExpiryMinutes: 5,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			IncludeCaller: true,
			GlobalFields:  map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filePath string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filePath).Msg("Configuration file not found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration from file, environment variables, and flags
func LoadConfig(configFile string, dataDir string, serverAddr string, logLevel string) (*Config, error) {
	var config *Config
	var err error

	if configFile != "" {
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	// Override with environment variables
	applyEnvOverrides(config)

	// Override with command line flags (highest priority)
	if dataDir != "" {
		absDataDir, err := filepath.Abs(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for data directory: %w", err)
		}
		config.Storage.DataDir = absDataDir
	}

	if serverAddr != "" {
		config.Server.Addr = serverAddr
	}

	if logLevel != "" {
		config.Logging.Level = logLevel
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(config *Config) {
	if addr := os.Getenv("DAILYTRACK_SERVER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}

	if backend := os.Getenv("DAILYTRACK_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}
	if dataDir := os.Getenv("DAILYTRACK_STORAGE_DATA_DIR"); dataDir != "" {
		config.Storage.DataDir = dataDir
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.DatabaseURL = dbURL
	}
	if sizeStr := os.Getenv("DAILYTRACK_STORAGE_RECORD_CACHE_SIZE"); sizeStr != "" {
		if val, err := strconv.Atoi(sizeStr); err == nil {
			config.Storage.RecordCacheSize = val
		}
	}

	if level := os.Getenv("DAILYTRACK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("DAILYTRACK_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}
