// Package config loads the prism client configuration from YAML with
// environment variable overrides.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the prism client.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	Logging   Logging         `yaml:"logging"`
}

// APIConfig points at the analysis service.
type APIConfig struct {
	BaseURL         string `yaml:"base_url"`
	TimeoutSecs     int    `yaml:"timeout_secs"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// CacheConfig controls the movers cache and its durable store.
type CacheConfig struct {
	MoversTTLMins int    `yaml:"movers_ttl_mins"`
	DBPath        string `yaml:"db_path"`
}

// SearchConfig controls the symbol search engine.
type SearchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

// WatchlistConfig identifies the watchlist owner. An empty user id means
// guest mode (watchlist disabled).
type WatchlistConfig struct {
	UserID string `yaml:"user_id"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:         "http://127.0.0.1:5000",
			TimeoutSecs:     30,
			RateLimitPerMin: 120,
		},
		Cache: CacheConfig{
			MoversTTLMins: 30,
			DBPath:        "prism.db",
		},
		Search: SearchConfig{
			DebounceMs: 300,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// MoversTTL returns the movers cache TTL as a duration.
func (c *Config) MoversTTL() time.Duration {
	return time.Duration(c.Cache.MoversTTLMins) * time.Minute
}

// Debounce returns the search quiet period as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Search.DebounceMs) * time.Millisecond
}

// APITimeout returns the HTTP client timeout as a duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// Load reads the YAML configuration at path over the defaults and applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRISM_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("PRISM_DB_PATH"); v != "" {
		cfg.Cache.DBPath = v
	}
	if v := os.Getenv("PRISM_USER_ID"); v != "" {
		cfg.Watchlist.UserID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
}
