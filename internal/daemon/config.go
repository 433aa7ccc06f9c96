// Package daemon manages the LearnQuest daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/infra/store"
)

// Config holds all daemon configuration.
type Config struct {
	Storage     StorageConfig     `toml:"storage"`
	Cache       CacheConfig       `toml:"cache"`
	API         APIConfig         `toml:"api"`
	Engine      EngineConfig      `toml:"engine"`
	Leaderboard LeaderboardConfig `toml:"leaderboard"`
	Logging     LoggingConfig     `toml:"logging"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// StorageConfig selects the database.
type StorageConfig struct {
	Driver string `toml:"driver"` // sqlite or postgres
	Dir    string `toml:"dir"`    // sqlite data directory
	DSN    string `toml:"dsn"`    // postgres connection string
}

// CacheConfig controls the Redis leaderboard cache. Empty RedisAddr
// disables it.
type CacheConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTL           string `toml:"ttl"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequestTimeout string `toml:"request_timeout"`
}

// EngineConfig tunes the gamification rules.
type EngineConfig struct {
	Timezone        string `toml:"timezone"`
	EnrollmentBonus int64  `toml:"enrollment_bonus"`
}

// LeaderboardConfig controls leaderboard sizes and cache warm-up.
type LeaderboardConfig struct {
	DefaultLimit    int      `toml:"default_limit"`
	RefreshSchedule string   `toml:"refresh_schedule"` // cron spec, empty disables
	Warm            []string `toml:"warm"`             // "metric:period" pairs
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	Mode  string `toml:"mode"` // dev or prod
}

// TelemetryConfig controls metrics and tracing.
type TelemetryConfig struct {
	Prometheus   bool    `toml:"prometheus"`
	Tracing      bool    `toml:"tracing"`
	OTLPEndpoint string  `toml:"otlp_endpoint"`
	SampleRatio  float64 `toml:"sample_ratio"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := learnquestHome()
	return Config{
		Storage: StorageConfig{
			Driver: store.DriverSQLite,
			Dir:    homeDir,
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			RequestTimeout: "30s",
		},
		Engine: EngineConfig{
			Timezone:        "UTC",
			EnrollmentBonus: 5,
		},
		Leaderboard: LeaderboardConfig{
			DefaultLimit:    10,
			RefreshSchedule: "*/5 * * * *",
			Warm: []string{
				"points:daily", "points:weekly", "points:monthly", "points:all_time",
				"level:all_time", "badges:all_time",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			Mode:  "dev",
		},
		Telemetry: TelemetryConfig{
			Prometheus:  true,
			SampleRatio: 1,
		},
	}
}

// LoadConfig reads $LEARNQUEST_HOME/.env and config.toml over the defaults,
// then applies LEARNQUEST_* environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig with an explicit config file in place of
// $LEARNQUEST_HOME/config.toml. The home config may be absent; an explicit
// one must exist.
func LoadConfigFile(path string) (Config, error) {
	home := learnquestHome()
	if err := godotenv.Load(filepath.Join(home, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, "config.toml")
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides config values from the environment.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("LEARNQUEST_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("LEARNQUEST_DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LEARNQUEST_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("LEARNQUEST_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("LEARNQUEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEARNQUEST_LOG_MODE"); v != "" {
		cfg.Logging.Mode = v
	}
	if v := os.Getenv("LEARNQUEST_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEARNQUEST_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("LEARNQUEST_TRACING"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LEARNQUEST_TRACING: %w", err)
		}
		cfg.Telemetry.Tracing = on
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case store.DriverSQLite:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for sqlite")
		}
	case store.DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := c.Engine.Location(); err != nil {
		return err
	}
	if _, err := c.Leaderboard.Targets(); err != nil {
		return err
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	return nil
}

// Location resolves the configured timezone.
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// Target names one leaderboard kept warm in the cache.
type Target struct {
	Metric domain.Metric
	Period domain.Period
}

func (t Target) String() string { return string(t.Metric) + ":" + string(t.Period) }

// Targets parses the warm list.
func (l LeaderboardConfig) Targets() ([]Target, error) {
	out := make([]Target, 0, len(l.Warm))
	for _, raw := range l.Warm {
		m, p, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("leaderboard.warm %q: want metric:period", raw)
		}
		metric, err := domain.ParseMetric(m)
		if err != nil {
			return nil, fmt.Errorf("leaderboard.warm %q: %w", raw, err)
		}
		period, err := domain.ParsePeriod(p)
		if err != nil {
			return nil, fmt.Errorf("leaderboard.warm %q: %w", raw, err)
		}
		out = append(out, Target{Metric: metric, Period: period})
	}
	return out, nil
}

// SaveConfig writes the config to $LEARNQUEST_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(learnquestHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// learnquestHome returns the LearnQuest data directory.
func learnquestHome() string {
	if env := os.Getenv("LEARNQUEST_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".learnquest")
}

// Home is exported for use by other packages.
func Home() string {
	return learnquestHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
