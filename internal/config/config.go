// Package config loads Fableloom server configuration from a TOML file
// with environment-variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fableloom/fableloom/pkg/story/layout"
)

// Config is the full server configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Mongo  MongoConfig  `toml:"mongo"`
	Redis  RedisConfig  `toml:"redis"`
	Log    LogConfig    `toml:"log"`
	Layout LayoutConfig `toml:"layout"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string `toml:"addr"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	CacheDir        string `toml:"cache_dir"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "mongo".
	Backend string `toml:"backend"`
}

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// RedisConfig configures the session backend. An empty Addr keeps sessions
// in process memory.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `toml:"level"`
}

// LayoutConfig overrides the default story-map geometry.
type LayoutConfig struct {
	Height        float64 `toml:"height"`
	SiblingSpread float64 `toml:"sibling_spread"`
	MinRowGap     float64 `toml:"min_row_gap"`
	MaxRowGap     float64 `toml:"max_row_gap"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		Store: StoreConfig{Backend: "memory"},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "fableloom",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a TOML config file, applies environment overrides, and
// validates the result. An empty path loads defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file. Secrets
// (connection strings, passwords) are expected here rather than in the
// file checked into deployment repos.
func applyEnv(cfg *Config) {
	if v := os.Getenv("FABLELOOM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("FABLELOOM_STORE"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("FABLELOOM_MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("FABLELOOM_MONGO_DB"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("FABLELOOM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FABLELOOM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FABLELOOM_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("FABLELOOM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks that the selected backends are fully configured.
// Missing required config for a selected backend is a startup error.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("store backend %q requires mongo.uri", c.Store.Backend)
		}
		if c.Mongo.Database == "" {
			return fmt.Errorf("store backend %q requires mongo.database", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	for _, d := range []string{c.Server.ReadTimeout, c.Server.WriteTimeout, c.Server.ShutdownTimeout} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid server timeout %q: %w", d, err)
		}
	}
	return nil
}

// LayoutOptions converts the layout section to engine layout options.
// Zero values fall through to the layout package defaults.
func (c Config) LayoutOptions() layout.Options {
	return layout.Options{
		Height:        c.Layout.Height,
		SiblingSpread: c.Layout.SiblingSpread,
		MinRowGap:     c.Layout.MinRowGap,
		MaxRowGap:     c.Layout.MaxRowGap,
	}
}

// Duration parses a config duration string, falling back to def when the
// value is empty.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
