// Package config provides configuration management for the PSO precompile
// cache service.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Shaders  ShadersConfig  `mapstructure:"shaders"`
	Batching BatchingConfig `mapstructure:"batching"`
	AutoSave AutoSaveConfig `mapstructure:"autosave"`
	Log      LogConfig      `mapstructure:"log"`
}

// CacheConfig holds record store configuration.
type CacheConfig struct {
	Name     string `mapstructure:"name"`      // Cache file name (store namespace)
	Platform string `mapstructure:"platform"`  // Target platform label
	Type     string `mapstructure:"type"`      // sqlite, mysql or postgres
	DSN      string `mapstructure:"dsn"`       // Data source name (sqlite path or server DSN)
	Host     string `mapstructure:"host"`      // Server host (mysql/postgres)
	Port     int    `mapstructure:"port"`      // Server port (mysql/postgres)
	Database string `mapstructure:"database"`  // Database name (mysql/postgres)
	User     string `mapstructure:"user"`      // Database user (mysql/postgres)
	Password string `mapstructure:"password"`  // Database password (mysql/postgres)
	MaxConns int    `mapstructure:"max_conns"` // Connection pool size
}

// ShadersConfig holds shader-code library configuration.
type ShadersConfig struct {
	StorageType string `mapstructure:"storage_type"` // local or cos
	LocalPath   string `mapstructure:"local_path"`   // Blob directory for local storage
	Bucket      string `mapstructure:"bucket"`       // COS bucket
	Region      string `mapstructure:"region"`       // COS region
	SecretID    string `mapstructure:"secret_id"`    // COS credentials
	SecretKey   string `mapstructure:"secret_key"`   // COS credentials
	Scheme      string `mapstructure:"scheme"`       // https or http
	Domain      string `mapstructure:"domain"`       // COS domain override
}

// BatchingConfig holds the conveyor's batching presets and filters.
type BatchingConfig struct {
	StartupMode string `mapstructure:"startup_mode"` // paused, fast or background

	FastBatchSize  int `mapstructure:"fast_batch_size"`
	FastBatchTime  int `mapstructure:"fast_batch_time_ms"`
	BackgroundSize int `mapstructure:"background_batch_size"`
	BackgroundTime int `mapstructure:"background_batch_time_ms"` // 0 means no cap

	PrecompileBatchSize int `mapstructure:"precompile_batch_size"`
	PrecompileBatchTime int `mapstructure:"precompile_batch_time_ms"`
	MaxPrecompileTime   int `mapstructure:"max_precompile_time_ms"` // 0 means no ceiling

	TickInterval int    `mapstructure:"tick_interval_ms"`
	MinBindCount int    `mapstructure:"min_bind_count"`
	MaskEnabled  bool   `mapstructure:"mask_enabled"`
	DefaultMask  uint64 `mapstructure:"default_mask"`

	ReadPoolSize int `mapstructure:"read_pool_size"` // Async read goroutine pool
}

// AutoSaveConfig holds bound-PSO auto-save thresholds.
type AutoSaveConfig struct {
	Threshold int `mapstructure:"threshold"`    // New binds before a save is forced
	Interval  int `mapstructure:"interval_sec"` // Seconds between timed saves, 0 disables
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pso-precache")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file, run on defaults
		} else if os.IsNotExist(err) {
			// Explicit path missing, run on defaults
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PSO_PRECACHE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.name", "pipeline-cache")
	v.SetDefault("cache.platform", "generic")
	v.SetDefault("cache.type", "sqlite")
	v.SetDefault("cache.dsn", "./pso-cache.db")
	v.SetDefault("cache.max_conns", 4)

	v.SetDefault("shaders.storage_type", "local")
	v.SetDefault("shaders.local_path", "./shaderlib")
	v.SetDefault("shaders.scheme", "https")

	v.SetDefault("batching.startup_mode", "background")
	v.SetDefault("batching.fast_batch_size", 50)
	v.SetDefault("batching.fast_batch_time_ms", 16)
	v.SetDefault("batching.background_batch_size", 1)
	v.SetDefault("batching.background_batch_time_ms", 0)
	v.SetDefault("batching.precompile_batch_size", 50)
	v.SetDefault("batching.precompile_batch_time_ms", 10)
	v.SetDefault("batching.max_precompile_time_ms", 0)
	v.SetDefault("batching.tick_interval_ms", 100)
	v.SetDefault("batching.min_bind_count", 0)
	v.SetDefault("batching.mask_enabled", false)
	v.SetDefault("batching.default_mask", uint64(0))
	v.SetDefault("batching.read_pool_size", 8)

	v.SetDefault("autosave.threshold", 512)
	v.SetDefault("autosave.interval_sec", 30)

	v.SetDefault("log.level", "info")
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Cache.Type {
	case "sqlite", "mysql", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported cache store type: %s", c.Cache.Type)
	}

	switch c.Shaders.StorageType {
	case "local", "cos":
	default:
		return fmt.Errorf("unsupported shader storage type: %s", c.Shaders.StorageType)
	}

	switch c.Batching.StartupMode {
	case "paused", "fast", "background":
	default:
		return fmt.Errorf("invalid startup mode: %s (want paused, fast or background)", c.Batching.StartupMode)
	}

	if c.Batching.FastBatchSize < 1 || c.Batching.PrecompileBatchSize < 1 || c.Batching.BackgroundSize < 1 {
		return fmt.Errorf("batch sizes must be at least 1")
	}
	if c.Batching.TickInterval < 1 {
		return fmt.Errorf("tick interval must be at least 1ms")
	}
	if c.Batching.ReadPoolSize < 1 {
		return fmt.Errorf("read pool size must be at least 1")
	}
	if c.Batching.MinBindCount < 0 {
		return fmt.Errorf("min bind count must not be negative")
	}
	if c.AutoSave.Threshold < 0 || c.AutoSave.Interval < 0 {
		return fmt.Errorf("autosave thresholds must not be negative")
	}

	return nil
}
