// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/codr1/Stitchcraft/internal/pattern"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type EngineConfig struct {
	// Quantizer is "kmeans" or "median".
	Quantizer string `yaml:"quantizer"`
	// Metric is "rgb", "cie76" or "ciede2000".
	Metric              string  `yaml:"metric"`
	Workers             int     `yaml:"workers"`
	BackstitchThreshold float64 `yaml:"backstitch_threshold"`
	// Timeout bounds a single generation request.
	Timeout time.Duration `yaml:"timeout"`
}

type LimitsConfig struct {
	MinDimension    int `yaml:"min_dimension"`
	MaxDimension    int `yaml:"max_dimension"`
	MinColors       int `yaml:"min_colors"`
	MaxColors       int `yaml:"max_colors"`
	MaxUploadBytes  int `yaml:"max_upload_bytes"`
	MaxSourcePixels int `yaml:"max_source_pixels"`
}

type StorageConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Retention   time.Duration `yaml:"retention"`
	CleanupCron string        `yaml:"cleanup_cron"`
	// CompressionLevel is the zstd level: 1 fastest .. 4 best.
	CompressionLevel int `yaml:"compression_level"`
}

type RateLimitConfig struct {
	Enabled            bool          `yaml:"enabled"`
	TrustProxy         bool          `yaml:"trust_proxy"`
	GenerateCooldown   time.Duration `yaml:"generate_cooldown"`
	GenerateMaxPerHour int           `yaml:"generate_max_per_hour"`
	SaveMaxPerHour     int           `yaml:"save_max_per_hour"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		LogLevel    string `yaml:"log_level"`
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Limits    LimitsConfig    `yaml:"limits"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

// Default returns a configuration that runs a local development server.
func Default() *Config {
	var cfg Config
	cfg.App.Name = "stitchcraft"
	cfg.App.Environment = "development"
	cfg.App.Port = 5000
	cfg.App.LogLevel = "info"
	cfg.Database = DatabaseConfig{Driver: "sqlite", Filename: "data/stitchcraft.db"}
	cfg.Engine = EngineConfig{
		Quantizer:           "kmeans",
		Metric:              "rgb",
		BackstitchThreshold: 60,
		Timeout:             30 * time.Second,
	}
	cfg.Limits = LimitsConfig{
		MinDimension:    10,
		MaxDimension:    500,
		MinColors:       2,
		MaxColors:       100,
		MaxUploadBytes:  10 << 20,
		MaxSourcePixels: 40_000_000,
	}
	cfg.Storage = StorageConfig{
		Enabled:          true,
		Retention:        30 * 24 * time.Hour,
		CleanupCron:      "0 * * * *",
		CompressionLevel: 2,
	}
	cfg.RateLimit = RateLimitConfig{
		Enabled:            true,
		GenerateCooldown:   2 * time.Second,
		GenerateMaxPerHour: 60,
		SaveMaxPerHour:     30,
	}
	cfg.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	return &cfg
}

// Load loads both .env and yaml configuration. Values missing from the file
// keep their defaults.
func Load(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv lets deployments override a few values without editing the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("APP_ENVIRONMENT"); v != "" {
		cfg.App.Environment = v
	}
	if v := os.Getenv("DATABASE_FILENAME"); v != "" {
		cfg.Database.Filename = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "" || c.App.Environment == "development"
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch strings.ToLower(c.Engine.Quantizer) {
	case "", "kmeans", "median":
	default:
		return fmt.Errorf("unsupported engine quantizer: %s", c.Engine.Quantizer)
	}
	switch strings.ToLower(c.Engine.Metric) {
	case "", "rgb", "cie76", "ciede2000":
	default:
		return fmt.Errorf("unsupported engine metric: %s", c.Engine.Metric)
	}
	if c.Engine.BackstitchThreshold < 0 {
		return fmt.Errorf("engine backstitch_threshold must not be negative")
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine timeout must not be negative")
	}

	l := c.Limits
	if l.MinDimension < 1 || l.MaxDimension < l.MinDimension || l.MaxDimension > pattern.MaxDimension {
		return fmt.Errorf("limits min_dimension/max_dimension must satisfy 1 <= min <= max <= %d, got %d/%d", pattern.MaxDimension, l.MinDimension, l.MaxDimension)
	}
	if l.MinColors < 2 || l.MaxColors < l.MinColors {
		return fmt.Errorf("limits min_colors/max_colors must satisfy 2 <= min <= max, got %d/%d", l.MinColors, l.MaxColors)
	}
	if l.MaxUploadBytes <= 0 {
		return fmt.Errorf("limits max_upload_bytes must be positive")
	}

	if c.Storage.Enabled {
		if c.Storage.Retention <= 0 {
			return fmt.Errorf("storage retention must be positive")
		}
		if _, err := cron.ParseStandard(c.Storage.CleanupCron); err != nil {
			return fmt.Errorf("storage cleanup_cron %q: %w", c.Storage.CleanupCron, err)
		}
		if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
			return fmt.Errorf("storage compression_level must be between 1 and 4")
		}
	}

	if c.RateLimit.Enabled && (c.RateLimit.GenerateMaxPerHour < 0 || c.RateLimit.SaveMaxPerHour < 0) {
		return fmt.Errorf("rate_limit hourly limits must not be negative")
	}

	return nil
}
