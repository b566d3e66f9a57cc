package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vjranagit/timesync/pkg/storage"
	"github.com/vjranagit/timesync/pkg/timeseries"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Path             string        `yaml:"path"`
	TenantID         string        `yaml:"tenant_id"`
	RetentionDays    int           `yaml:"retention_days"`
	CompressionLevel int           `yaml:"compression_level"`
	BlockSpan        int64         `yaml:"block_span"`
	CacheSizeMB      int           `yaml:"cache_size_mb"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

// EngineConfig holds the defaults of the synchronization engine
type EngineConfig struct {
	// Interpolation forces one mode for all series; empty keeps each
	// resource's own mode.
	Interpolation string `yaml:"interpolation"`
	HistoryDepth  int    `yaml:"history_depth"`
	IgnoreGaps    bool   `yaml:"ignore_gaps"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Path:             "./data",
			TenantID:         "default",
			RetentionDays:    0,
			CompressionLevel: 3,
			BlockSpan:        3600000,
			CacheSizeMB:      64,
			CacheTTL:         5 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
	cfg.applyEnv()
	return cfg
}

// Load reads a YAML file over the defaults. Environment variables win over
// both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage.Path = getEnv("STORAGE_PATH", c.Storage.Path)
	c.Storage.TenantID = getEnv("TENANT_ID", c.Storage.TenantID)
	c.Storage.RetentionDays = getEnvInt("RETENTION_DAYS", c.Storage.RetentionDays)
	c.Storage.CompressionLevel = getEnvInt("COMPRESSION_LEVEL", c.Storage.CompressionLevel)
	c.Storage.CacheSizeMB = getEnvInt("CACHE_SIZE_MB", c.Storage.CacheSizeMB)
	c.Engine.Interpolation = getEnv("ENGINE_INTERPOLATION", c.Engine.Interpolation)
	c.Engine.HistoryDepth = getEnvInt("ENGINE_HISTORY_DEPTH", c.Engine.HistoryDepth)
	c.Engine.IgnoreGaps = getEnvBool("ENGINE_IGNORE_GAPS", c.Engine.IgnoreGaps)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig() *storage.Config {
	return &storage.Config{
		Path:             c.Storage.Path,
		RetentionDays:    c.Storage.RetentionDays,
		CompressionLevel: c.Storage.CompressionLevel,
		BlockSpan:        c.Storage.BlockSpan,
		CacheSizeMB:      c.Storage.CacheSizeMB,
		CacheTTL:         c.Storage.CacheTTL,
	}
}

// InterpolationMode returns the forced interpolation mode, if one is set.
func (c *Config) InterpolationMode() (timeseries.InterpolationMode, bool, error) {
	if c.Engine.Interpolation == "" {
		return timeseries.None, false, nil
	}
	mode, err := timeseries.ParseInterpolationMode(c.Engine.Interpolation)
	if err != nil {
		return timeseries.None, false, err
	}
	return mode, true, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Storage.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}

	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	if c.Storage.BlockSpan <= 0 {
		return fmt.Errorf("block span must be positive")
	}

	if c.Storage.CacheSizeMB < 0 {
		return fmt.Errorf("cache size must not be negative")
	}

	if c.Engine.HistoryDepth < 0 {
		return fmt.Errorf("history depth must not be negative")
	}

	if _, _, err := c.InterpolationMode(); err != nil {
		return fmt.Errorf("invalid engine interpolation: %w", err)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
