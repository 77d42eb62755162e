package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LastFM   LastFMConfig   `yaml:"lastfm"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Matching MatchingConfig `yaml:"matching"`
	Repair   RepairConfig   `yaml:"repair"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LastFMConfig holds Last.fm history API settings.
type LastFMConfig struct {
	APIKey string `yaml:"api_key"`
	User   string `yaml:"user"`
	// RequestInterval is the minimum spacing between API calls.
	RequestInterval time.Duration `yaml:"request_interval"`
}

// CatalogConfig holds MusicBrainz catalog API settings.
type CatalogConfig struct {
	// RequestInterval is the minimum spacing between API calls.
	// MusicBrainz asks for at most one request per second per client;
	// the default leaves a little headroom.
	RequestInterval time.Duration `yaml:"request_interval"`
}

// MatchingConfig holds string-matching settings.
type MatchingConfig struct {
	// FuzzyThreshold is the Jaro-Winkler acceptance score for the fuzzy
	// matcher preset. Must be in (0, 1].
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// RepairConfig holds repair scheduler settings.
type RepairConfig struct {
	// BatchSize bounds how many records each repair pass processes per run.
	BatchSize int `yaml:"batch_size"`
	// IntervalHours is the scheduler tick; 0 disables the scheduler.
	IntervalHours int `yaml:"interval_hours"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Path: "/data/trackline.db",
		},
		LastFM: LastFMConfig{
			RequestInterval: 1100 * time.Millisecond,
		},
		Catalog: CatalogConfig{
			RequestInterval: 1100 * time.Millisecond,
		},
		Matching: MatchingConfig{
			FuzzyThreshold: 0.80,
		},
		Repair: RepairConfig{
			BatchSize:     100,
			IntervalHours: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from trusted env/flag
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("TL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("TL_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("TL_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("TL_LASTFM_KEY"); v != "" {
		c.LastFM.APIKey = v
	}
	if v := os.Getenv("TL_LASTFM_USER"); v != "" {
		c.LastFM.User = v
	}
	if v := os.Getenv("TL_FUZZY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Matching.FuzzyThreshold = f
		}
	}
	if v := os.Getenv("TL_REPAIR_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Repair.BatchSize = n
		}
	}
	if v := os.Getenv("TL_REPAIR_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Repair.IntervalHours = n
		}
	}
	if v := os.Getenv("TL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TL_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Matching.FuzzyThreshold <= 0 || c.Matching.FuzzyThreshold > 1 {
		return fmt.Errorf("invalid fuzzy threshold: %f", c.Matching.FuzzyThreshold)
	}
	if c.Repair.BatchSize < 1 {
		return fmt.Errorf("invalid repair batch size: %d", c.Repair.BatchSize)
	}
	if c.LastFM.RequestInterval <= 0 {
		c.LastFM.RequestInterval = 1100 * time.Millisecond
	}
	if c.Catalog.RequestInterval <= 0 {
		c.Catalog.RequestInterval = 1100 * time.Millisecond
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
